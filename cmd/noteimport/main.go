package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/noteimport/internal/handler"
	"github.com/xxxsen/noteimport/internal/job"
	"github.com/xxxsen/noteimport/internal/middleware"
	"github.com/xxxsen/noteimport/internal/schedule"
	"github.com/xxxsen/noteimport/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "noteimport",
		Short: "note import service",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json or config.yaml")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the import server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(ctx, a)
		},
	}

	var (
		owner    string
		notebook string
	)
	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "import a local export file for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			req := service.ImportRequest{
				OwnerID:      owner,
				Filename:     filepath.Base(path),
				MimeType:     mime.TypeByExtension(filepath.Ext(path)),
				Data:         data,
				NotebookName: notebook,
			}
			if info, err := os.Stat(path); err == nil {
				modified := info.ModTime()
				req.ModifiedAt = &modified
			}
			result, err := a.imports.Import(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	importCmd.Flags().StringVar(&owner, "owner", "", "owner id the notes belong to")
	importCmd.Flags().StringVar(&notebook, "notebook", "", "target notebook name")
	_ = importCmd.MarkFlagRequired("owner")

	var limit int
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "list recent import jobs of an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			items, err := a.jobs.List(cmd.Context(), owner, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, items)
		},
	}
	jobsCmd.Flags().StringVar(&owner, "owner", "", "owner id")
	jobsCmd.Flags().IntVar(&limit, "limit", 20, "max jobs to list")
	_ = jobsCmd.MarkFlagRequired("owner")

	rootCmd.AddCommand(runCmd, importCmd, jobsCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logutil.GetLogger(context.Background()).Fatal("command failed", zap.Error(err))
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runServer(ctx context.Context, a *app) error {
	cfg := a.cfg
	logger := logutil.GetLogger(ctx)
	logger.Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("file_store", cfg.FileStore.Type),
		zap.Int("workers", cfg.Import.Workers),
		zap.Bool("notify", cfg.Notify.Enabled),
	)

	scheduler := schedule.NewCronScheduler()
	reaper := job.NewStaleImportJob(a.jobs, cfg.Import.StaleAfter())
	if err := scheduler.AddJob(reaper, cfg.Import.ReaperSchedule); err != nil {
		return fmt.Errorf("schedule %s: %w", reaper.Name(), err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()
	// jobs left running by a previous process are reaped right away
	if _, err := scheduler.RunNow(ctx, reaper.Name()); err != nil {
		logger.Error("initial stale job reap failed", zap.Error(err))
	}

	deps := handler.RouterDeps{
		Imports:        handler.NewImportHandler(a.imports, a.jobs, cfg.Import.MaxUploadBytes()),
		Files:          handler.NewFileHandler(a.store),
		JWTSecret:      []byte(cfg.JWTSecret),
		UploadCooldown: cfg.Import.UploadCooldown(),
	}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logger.Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("server stopping...")
	return nil
}
