package importer

//go:generate mockgen -source=resolver.go -destination=mocks/object_store.go -package=mocks

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"mime"
	"strings"
	"sync"

	"github.com/xxxsen/noteimport/internal/model"
	appErr "github.com/xxxsen/noteimport/internal/pkg/errors"
)

// ObjectStore persists resource bytes and returns a locator usable to fetch
// or publicly address them later.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

type Resolved struct {
	Locator  string
	FileKey  string
	MimeType string
	Filename string
	Size     int64
	Width    int
	Height   int
}

type ResolveFailure struct {
	Hash     string
	Filename string
	Err      error
}

type ResolveResult struct {
	Resolved map[string]Resolved
	// Failed keeps document order; the note still imports without them.
	Failed []ResolveFailure
}

type pending struct {
	done     chan struct{}
	resolved Resolved
	err      error
}

// Resolver stores the resources of one import job. Identical bytes are
// uploaded once per job no matter how many notes reference them.
type Resolver struct {
	store ObjectStore
	owner string

	mu      sync.Mutex
	entries map[string]*pending
}

func NewResolver(store ObjectStore, ownerID string) *Resolver {
	return &Resolver{
		store:   store,
		owner:   ownerID,
		entries: make(map[string]*pending),
	}
}

// Resolve stores every resource of a note. Storage failures are reported in
// the result, never returned.
func (r *Resolver) Resolve(ctx context.Context, resources []model.ExportResource) ResolveResult {
	result := ResolveResult{Resolved: make(map[string]Resolved, len(resources))}
	for _, res := range resources {
		hash := ContentHash(res)
		if _, ok := result.Resolved[hash]; ok {
			continue
		}
		resolved, err := r.resolveOne(ctx, hash, res)
		if err != nil {
			result.Failed = append(result.Failed, ResolveFailure{
				Hash:     hash,
				Filename: res.OriginalFilename,
				Err:      err,
			})
			continue
		}
		result.Resolved[hash] = resolved
	}
	return result
}

func (r *Resolver) resolveOne(ctx context.Context, hash string, res model.ExportResource) (Resolved, error) {
	r.mu.Lock()
	if entry, ok := r.entries[hash]; ok {
		r.mu.Unlock()
		<-entry.done
		return entry.resolved, entry.err
	}
	entry := &pending{done: make(chan struct{})}
	r.entries[hash] = entry
	r.mu.Unlock()

	entry.resolved, entry.err = r.upload(ctx, hash, res)
	if entry.err != nil {
		// a later note may retry the upload
		r.mu.Lock()
		delete(r.entries, hash)
		r.mu.Unlock()
	}
	close(entry.done)
	return entry.resolved, entry.err
}

func (r *Resolver) upload(ctx context.Context, hash string, res model.ExportResource) (Resolved, error) {
	if len(res.Data) == 0 {
		return Resolved{}, fmt.Errorf("%w: empty resource", appErr.ErrResourceStorage)
	}
	mimeType := strings.TrimSpace(res.MimeType)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	ext := extensionFor(mimeType, res.OriginalFilename)
	key := StorageKey(r.owner, hash, ext)
	locator, err := r.store.Put(ctx, key, mimeType, res.Data)
	if err != nil {
		return Resolved{}, fmt.Errorf("%w: %v", appErr.ErrResourceStorage, err)
	}
	filename := res.OriginalFilename
	if filename == "" {
		filename = hash + ext
	}
	return Resolved{
		Locator:  locator,
		FileKey:  key,
		MimeType: mimeType,
		Filename: filename,
		Size:     int64(len(res.Data)),
		Width:    res.Width,
		Height:   res.Height,
	}, nil
}

// ContentHash returns the hash a resource is referenced by. Parsers fill it
// from the decoded bytes; it is recomputed when missing.
func ContentHash(res model.ExportResource) string {
	if res.ContentHash != "" {
		return strings.ToLower(res.ContentHash)
	}
	sum := md5.Sum(res.Data)
	return hex.EncodeToString(sum[:])
}

// StorageKey builds the flat object key "<owner>_<hash><ext>".
func StorageKey(ownerID, hash, ext string) string {
	return sanitizeKeyPart(ownerID) + "_" + hash + ext
}

func sanitizeKeyPart(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return '-'
	}, s)
}

var preferredExt = map[string]string{
	"image/jpeg":         ".jpg",
	"image/png":          ".png",
	"image/gif":          ".gif",
	"image/webp":         ".webp",
	"image/svg+xml":      ".svg",
	"application/pdf":    ".pdf",
	"audio/mpeg":         ".mp3",
	"audio/wav":          ".wav",
	"audio/amr":          ".amr",
	"video/mp4":          ".mp4",
	"text/plain":         ".txt",
	"text/html":          ".html",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
}

func extensionFor(mimeType, filename string) string {
	if ext, ok := preferredExt[strings.ToLower(mimeType)]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	if idx := strings.LastIndex(filename, "."); idx >= 0 {
		ext := strings.ToLower(filename[idx:])
		if sanitizeKeyPart(ext[1:]) == ext[1:] && len(ext) <= 8 {
			return ext
		}
	}
	return ""
}
