package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/config"
	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/history"
	httpapi "github.com/Harshavardhan-K-AIDS/FlashBott/internal/http"
	. "github.com/Harshavardhan-K-AIDS/FlashBott/internal/logging"
)

// ServeCmd runs the HTTP relay until interrupted.
type ServeCmd struct {
	Listen    string `help:"Override http.listen."`
	NoHistory bool   `help:"Do not store or load chat history."`
	NoWatch   bool   `help:"Do not reload the config file on change."`
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, path, err := g.loadConfig()
	if err != nil {
		return err
	}
	if c.Listen != "" {
		cfg.HTTP.Listen = c.Listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg)
	if !cfg.HasCredential() {
		L_warn("no API key configured; every chat request will fail", "env", config.APIKeyEnv)
	}

	deps := httpapi.Deps{
		Chat:          a.orchestrator,
		Models:        a.resolver,
		HasCredential: cfg.HasCredential,
		Version:       version,
	}

	if !c.NoHistory {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer store.Close()
		deps.History = store

		pruner, err := history.NewPruner(store, cfg.History.PruneSchedule, cfg.History.RetentionDays)
		if err != nil {
			return err
		}
		if _, err := pruner.RunOnce(ctx); err != nil {
			L_warn("history: startup prune failed", "error", err)
		}
		pruner.Start()
		defer pruner.Stop()
	}

	srv := httpapi.NewServer(httpapi.ServerConfig{
		Listen:        cfg.HTTP.Listen,
		RatePerSecond: cfg.HTTP.RatePerSecond,
		Burst:         cfg.HTTP.Burst,
	}, deps)

	if path != "" && !c.NoWatch {
		w, err := config.NewWatcher(path, func(next *config.Config) {
			applyReload(a, srv, next, g)
		})
		if err != nil {
			L_warn("config: watcher unavailable", "error", err)
		} else if err := w.Start(ctx); err != nil {
			L_warn("config: watcher failed to start", "error", err)
		} else {
			defer w.Stop()
		}
	}

	if err := srv.Start(); err != nil {
		return err
	}
	L_info("flashbott ready", "version", version, "listen", cfg.HTTP.Listen, "candidates", len(a.resolver.Candidates()))

	<-ctx.Done()
	L_info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// applyReload pushes the hot-reloadable settings into the running server.
// The API key, listen address and history path need a restart.
func applyReload(a *app, srv *httpapi.Server, next *config.Config, g *Globals) {
	if !g.Debug && !g.Trace {
		SetLevel(ParseLevel(next.Log.Level))
	}
	a.resolver.SetCandidates(next.LLM.Candidates)
	srv.SetRateLimit(next.HTTP.RatePerSecond, next.HTTP.Burst)

	if next.LLM.APIKey != a.cfg.LLM.APIKey {
		L_warn("config: API key changed; restart to apply")
	}
	L_info("config: applied reload", "candidates", len(next.LLM.Candidates), "logLevel", next.Log.Level)
}
