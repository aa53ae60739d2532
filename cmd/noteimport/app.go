package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/xxxsen/common/logger"

	"github.com/xxxsen/noteimport/internal/config"
	"github.com/xxxsen/noteimport/internal/db"
	"github.com/xxxsen/noteimport/internal/filestore"
	"github.com/xxxsen/noteimport/internal/notify"
	"github.com/xxxsen/noteimport/internal/repo"
	"github.com/xxxsen/noteimport/internal/service"
)

type app struct {
	cfg       *config.Config
	db        *sqlx.DB
	store     filestore.Store
	publisher notify.Publisher
	imports   *service.ImportService
	jobs      *service.JobService
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	sqlDB, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("init file store: %w", err)
	}
	publisher, err := notify.New(ctx, cfg.Notify)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("init notify: %w", err)
	}

	jobRepo := repo.NewImportJobRepo(sqlDB)
	tags := service.NewTagService(repo.NewTagRepo(sqlDB), cfg.Import.TagCacheSize, cfg.Import.TagCacheDuration())
	imports := service.NewImportService(service.ImportStores{
		Jobs:        jobRepo,
		Notebooks:   repo.NewNotebookRepo(sqlDB),
		Notes:       repo.NewNoteRepo(sqlDB),
		NoteTags:    repo.NewNoteTagRepo(sqlDB),
		Attachments: repo.NewAttachmentRepo(sqlDB),
		Tx:          repo.NewTxManager(sqlDB),
	}, tags, filestore.NewUploader(store), publisher, service.ImportOptions{
		Workers:         cfg.Import.Workers,
		DefaultNotebook: cfg.Import.DefaultNotebook,
	})
	return &app{
		cfg:       cfg,
		db:        sqlDB,
		store:     store,
		publisher: publisher,
		imports:   imports,
		jobs:      service.NewJobService(jobRepo),
	}, nil
}

func (a *app) Close() {
	_ = a.publisher.Close()
	_ = a.db.Close()
}
