// Command heatplan runs the heat mitigation planning service: it builds the
// grid registry for an analysis area, restores any saved session, and serves
// the intervention API.
package main

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/avoin/heatplan/internal/api"
	"github.com/avoin/heatplan/internal/config"
	"github.com/avoin/heatplan/internal/grid"
	"github.com/avoin/heatplan/internal/gridio"
	"github.com/avoin/heatplan/internal/mitigation"
	"github.com/avoin/heatplan/internal/observability"
	"github.com/avoin/heatplan/internal/persistence"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		slog.Info(".env loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("heatplan starting",
		"reachability", cfg.Engine.Reachability,
		"max_reduction", cfg.Engine.MaxReduction,
		"min_reduction", cfg.Engine.MinReduction,
		"park_cooling_constant", cfg.Engine.ParkCoolingConstant,
		"grid_cell_area", humanize.Commaf(cfg.Engine.GridCellArea)+" m²",
	)

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Load or Restore Session ───────────────────────────────────────
	// A saved session carries baked-in park effects in its per-cell state;
	// restoring it preserves them. A fresh build starts every cell at its
	// baseline heat index.
	var session *mitigation.Session

	if id, err := db.LatestSessionID(); err == nil {
		session, err = db.LoadSession(id, cfg.Engine)
		if err != nil {
			slog.Error("failed to restore session", "session", id, "error", err)
			os.Exit(1)
		}
	} else if errors.Is(err, persistence.ErrNoSession) {
		slog.Info("no saved session, building registry from grid file", "path", cfg.GridFile)

		ff, err := gridio.Load(cfg.GridFile)
		if err != nil {
			slog.Error("failed to load grid file", "error", err)
			os.Exit(1)
		}

		reg := grid.BuildRegistry(ff.Features)
		if reg.Count() == 0 {
			slog.Error("grid file produced an empty registry", "path", cfg.GridFile)
			os.Exit(1)
		}
		session = mitigation.NewSession(reg, cfg.Engine)

		if err := db.SaveSession(session); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	} else {
		slog.Error("failed to query saved sessions", "error", err)
		os.Exit(1)
	}

	stats := session.Stats()
	slog.Info("session ready",
		"session", session.ID,
		"cells", humanize.Comma(int64(session.Registry().Count())),
		"cooling_centers", stats.CoolingCenters,
		"park_conversions", stats.ParkConversions,
	)

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("HEATPLAN_ADMIN_KEY not set — intervention endpoints will be disabled")
	}

	server := &api.Server{
		Session:  session,
		DB:       db,
		Metrics:  observability.NewMetrics(),
		Port:     cfg.HTTPPort,
		AdminKey: cfg.AdminKey,
		RelayKey: cfg.RelayKey,
	}
	server.Start()

	// ── Shutdown ──────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	if err := db.SaveSession(session); err != nil {
		slog.Error("final save failed", "error", err)
	}
	slog.Info("session saved, bye")
}
