package importer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/xxxsen/noteimport/internal/importer/mocks"
	"github.com/xxxsen/noteimport/internal/model"
	appErr "github.com/xxxsen/noteimport/internal/pkg/errors"
)

func pngResource(data string, filename string) model.ExportResource {
	res := model.ExportResource{Data: []byte(data), MimeType: "image/png", OriginalFilename: filename}
	res.ContentHash = ContentHash(res)
	return res
}

func TestResolverDedupWithinJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockObjectStore(ctrl)
	first := pngResource("same-bytes", "a.png")
	second := pngResource("same-bytes", "b.png")
	require.Equal(t, first.ContentHash, second.ContentHash)

	key := StorageKey("u1", first.ContentHash, ".png")
	store.EXPECT().Put(gomock.Any(), key, "image/png", []byte("same-bytes")).Return("/files/"+key, nil).Times(1)

	r := NewResolver(store, "u1")
	noteA := r.Resolve(context.Background(), []model.ExportResource{first, second})
	noteB := r.Resolve(context.Background(), []model.ExportResource{second})

	require.Empty(t, noteA.Failed)
	require.Len(t, noteA.Resolved, 1)
	require.Equal(t, "/files/"+key, noteA.Resolved[first.ContentHash].Locator)
	require.Equal(t, noteA.Resolved[first.ContentHash].Locator, noteB.Resolved[second.ContentHash].Locator)
	require.Equal(t, int64(len("same-bytes")), noteA.Resolved[first.ContentHash].Size)
}

func TestResolverConcurrentSameHashUploadsOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockObjectStore(ctrl)
	res := pngResource("shared", "")
	store.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("loc", nil).Times(1)

	r := NewResolver(store, "u1")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := r.Resolve(context.Background(), []model.ExportResource{res})
			assert.Equal(t, "loc", out.Resolved[res.ContentHash].Locator)
		}()
	}
	wg.Wait()
}

func TestResolverFailureIsNotFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockObjectStore(ctrl)
	good := pngResource("good", "good.png")
	bad := pngResource("bad", "bad.png")
	store.EXPECT().Put(gomock.Any(), StorageKey("u1", good.ContentHash, ".png"), gomock.Any(), gomock.Any()).Return("good-loc", nil)
	store.EXPECT().Put(gomock.Any(), StorageKey("u1", bad.ContentHash, ".png"), gomock.Any(), gomock.Any()).Return("", errors.New("bucket full"))

	out := NewResolver(store, "u1").Resolve(context.Background(), []model.ExportResource{bad, good})
	require.Len(t, out.Resolved, 1)
	require.Equal(t, "good-loc", out.Resolved[good.ContentHash].Locator)
	require.Len(t, out.Failed, 1)
	require.Equal(t, bad.ContentHash, out.Failed[0].Hash)
	require.Equal(t, "bad.png", out.Failed[0].Filename)
	require.ErrorIs(t, out.Failed[0].Err, appErr.ErrResourceStorage)
}

func TestResolverRetriesAfterFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockObjectStore(ctrl)
	res := pngResource("flaky", "")
	gomock.InOrder(
		store.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("", errors.New("timeout")),
		store.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("loc", nil),
	)
	r := NewResolver(store, "u1")
	require.Len(t, r.Resolve(context.Background(), []model.ExportResource{res}).Failed, 1)
	require.Equal(t, "loc", r.Resolve(context.Background(), []model.ExportResource{res}).Resolved[res.ContentHash].Locator)
}

func TestResolverEmptyResource(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockObjectStore(ctrl)
	out := NewResolver(store, "u1").Resolve(context.Background(), []model.ExportResource{{MimeType: "image/png"}})
	require.Len(t, out.Failed, 1)
	require.Empty(t, out.Resolved)
}

func TestStorageKey(t *testing.T) {
	require.Equal(t, "u1_abc123.png", StorageKey("u1", "abc123", ".png"))
	require.Equal(t, "a-b-c_ff.pdf", StorageKey("a/b.c", "ff", ".pdf"))
}

func TestContentHashRecomputed(t *testing.T) {
	// md5("hello")
	require.Equal(t, "5d41402abc4b2a76b9719d911017c592", ContentHash(model.ExportResource{Data: []byte("hello")}))
	require.Equal(t, "abc123", ContentHash(model.ExportResource{Data: []byte("hello"), ContentHash: "ABC123"}))
}
