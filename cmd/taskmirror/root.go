package main

import (
	"fmt"

	"github.com/kmorehouse/taskmirror/internal/backfill"
	"github.com/kmorehouse/taskmirror/internal/cache"
	"github.com/kmorehouse/taskmirror/internal/config"
	"github.com/kmorehouse/taskmirror/internal/engine"
	"github.com/kmorehouse/taskmirror/internal/logging"
	"github.com/kmorehouse/taskmirror/internal/remote"
	"github.com/kmorehouse/taskmirror/internal/settings"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "taskmirror",
	Short: "Local-first task synchronization client",
	Long: `taskmirror mirrors tasks between an on-device cache and the remote
backend: cache-first reads for instant display, remote confirmation for
authoritative state, and background refresh to pick up tasks produced by
the transcription and screenshot pipelines.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.taskmirror/config.yaml)")
}

// app bundles the wired components a command needs. Everything is
// constructed explicitly here and passed down; there are no package-level
// instances.
type app struct {
	cfg    *config.Config
	db     *cache.DB
	flags  *settings.Store
	remote *remote.Client
	eng    *engine.Engine
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if cfg.RemoteURL == "" {
		return nil, fmt.Errorf("remote_url is not configured (set it in the config file or TASKMIRROR_REMOTE_URL)")
	}

	logging.Setup(logging.Options{File: cfg.LogFile})

	ctx := cmd.Context()

	db, err := cache.Open(cfg.CachePath())
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	flags, err := settings.Open(cfg.SettingsPath(), logging.New("[settings] "))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	client, err := remote.New(remote.Config{
		BaseURL: cfg.RemoteURL,
		Token:   cfg.Token,
		Timeout: cfg.RequestTimeout,
		UserID:  cfg.UserID,
	})
	if err != nil {
		_ = flags.Close()
		_ = db.Close()
		return nil, err
	}

	eng := engine.New(db, client, engine.Config{
		PageSize:        cfg.PageSize,
		RefreshInterval: cfg.RefreshInterval,
		CreatedWindow:   cfg.CreatedWindow(),
		Actor:           cfg.UserID,
		Logger:          logging.New("[engine] "),
	})

	return &app{cfg: cfg, db: db, flags: flags, remote: client, eng: eng}, nil
}

func (a *app) close() {
	a.eng.Stop()
	_ = a.flags.Close()
	_ = a.db.Close()
}

func (a *app) backfillRunner() *backfill.Runner {
	return backfill.New(a.db, a.remote, a.flags, a.cfg.UserID, logging.New("[backfill] "))
}
