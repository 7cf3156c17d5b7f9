package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lucasaxm/RegataSimulator/internal/assets"
	"github.com/lucasaxm/RegataSimulator/internal/chat"
	"github.com/lucasaxm/RegataSimulator/internal/compose"
	"github.com/lucasaxm/RegataSimulator/internal/config"
	"github.com/lucasaxm/RegataSimulator/internal/curation"
	"github.com/lucasaxm/RegataSimulator/internal/history"
	"github.com/lucasaxm/RegataSimulator/internal/imaging"
	"github.com/lucasaxm/RegataSimulator/internal/selection"
	"github.com/lucasaxm/RegataSimulator/internal/steps"
	"github.com/lucasaxm/RegataSimulator/internal/storage"
	"github.com/lucasaxm/RegataSimulator/internal/telegram"
	"github.com/lucasaxm/RegataSimulator/internal/workflow"
)

// app wires every collaborator of the workflow steps
type app struct {
	cfg      *config.Config
	store    storage.Store
	library  *assets.Library
	pipeline *compose.Pipeline
	steps    *steps.Steps
	engine   *workflow.Engine
	curator  *curation.Curator
}

func newTool(cfg *config.Config) imaging.Tool {
	if cfg.Imaging.Backend == "native" {
		return imaging.NewNative()
	}
	return imaging.NewMagick(cfg.Imaging.MagickBinary, cfg.Imaging.Timeout)
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.Driver == "memory" {
		slog.Warn("Using in-memory storage; nothing survives a restart")
		return storage.NewMemory(), nil
	}
	return storage.OpenSQLite(ctx, cfg.Storage.DatabasePath())
}

func newPipeline(cfg *config.Config) (*compose.Pipeline, error) {
	return compose.New(newTool(cfg), cfg.Storage.WorkDir, cfg.Imaging.MaskCacheSize)
}

// newApp builds the workflow engine. client may be nil for commands that
// never reach a step talking to Telegram.
func newApp(ctx context.Context, cfg *config.Config, client chat.Client) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	library, err := assets.New(cfg.Storage.TemplatesDir, cfg.Storage.SourcesDir)
	if err != nil {
		store.Close()
		return nil, err
	}
	pipeline, err := newPipeline(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	s := steps.New(steps.Deps{
		Chat:     client,
		Store:    store,
		Library:  library,
		Composer: pipeline,
		History:  history.NewRecorder(store, cfg.Selection.HistoryCap, cfg.Selection.WeightFloor),
		Selector: selection.New(nil),
	}, steps.Settings{
		ChannelID:       cfg.Telegram.ChannelID,
		CreatorID:       cfg.Telegram.CreatorID,
		BackupChatID:    cfg.Telegram.BackupChatID,
		RecentFraction:  cfg.Selection.RecentFraction,
		TemplateWeight:  cfg.Selection.TemplateWeight,
		SourceWeight:    cfg.Selection.SourceWeight,
		Themes:          cfg.Selection.Themes,
		Location:        loc,
		BackupChunkSize: cfg.Backup.ChunkSize,
		WorkDir:         cfg.Storage.WorkDir,
	})

	return &app{
		cfg:      cfg,
		store:    store,
		library:  library,
		pipeline: pipeline,
		steps:    s,
		engine:   workflow.NewEngine(s.Registry(), cfg.MaxSteps),
		curator:  curation.New(store, library, downloader(client), cfg.Selection.SourceWeight),
	}, nil
}

// downloader keeps a missing client a nil interface
func downloader(client chat.Client) curation.Downloader {
	if client == nil {
		return nil
	}
	return client
}

func (a *app) Close() {
	a.pipeline.Close()
	if err := a.store.Close(); err != nil {
		slog.Error("Failed to close store", "err", err)
	}
}

// connect opens the Telegram client, failing early on missing credentials
func connect(cfg *config.Config) (*telegram.Client, error) {
	if err := cfg.RequireTelegram(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return telegram.New(cfg.Telegram.Token)
}
