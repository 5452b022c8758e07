package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/chat"
	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/config"
	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/history"
	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/llm"
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)  // Green
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true) // Red
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))            // Gray
	modelStyle = lipgloss.NewStyle().Width(28)
)

// AskCmd sends a single message from the command line.
type AskCmd struct {
	Message []string `arg:"" help:"Message to send."`
	User    string   `help:"Load and save history for this user id."`
}

func (c *AskCmd) Run(g *Globals) error {
	cfg, _, err := g.loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := newApp(cfg)
	message := strings.Join(c.Message, " ")

	var (
		store *history.Store
		msgs  []llm.Message
	)
	if c.User != "" {
		store, err = history.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer store.Close()
		if msgs, err = store.RecentMessages(ctx, c.User, history.MaxHistory); err != nil {
			return err
		}
	}

	resp := a.orchestrator.Handle(ctx, chat.Request{Message: message, History: msgs, UserID: c.User})
	if !resp.OK() {
		return errors.New(resp.Error)
	}
	fmt.Println(resp.Reply)

	if store != nil {
		return store.AppendExchange(ctx, c.User, message, resp.Reply)
	}
	return nil
}

// ModelsCmd groups model inspection commands.
type ModelsCmd struct {
	Probe ProbeCmd `cmd:"" help:"Probe every candidate model and report which respond."`
}

// ProbeCmd checks each candidate without touching the model cache.
type ProbeCmd struct {
	JSON bool `help:"Print results as JSON."`
}

func (c *ProbeCmd) Run(g *Globals) error {
	cfg, _, err := g.loadConfig()
	if err != nil {
		return err
	}
	if !cfg.HasCredential() {
		return fmt.Errorf("no API key configured (set %s or llm.apiKey)", config.APIKeyEnv)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results := newApp(cfg).resolver.ProbeAll(ctx)
	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	usable := 0
	for _, r := range results {
		status := okStyle.Render("ok  ")
		detail := dimStyle.Render(r.Elapsed.Round(time.Millisecond).String())
		if r.OK {
			usable++
		} else {
			status = failStyle.Render("fail")
			detail = dimStyle.Render(string(r.Category)) + " " + r.Error
		}
		fmt.Printf("%s %s %s\n", status, modelStyle.Render(r.Model), detail)
	}
	if usable == 0 {
		return errors.New("no candidate model is usable")
	}
	return nil
}

// ConfigCmd groups config file commands.
type ConfigCmd struct {
	Init ConfigInitCmd `cmd:"" help:"Write a default config file."`
	Show ConfigShowCmd `cmd:"" help:"Print the effective config (API key redacted)."`
}

// ConfigInitCmd writes the built-in defaults to disk.
type ConfigInitCmd struct {
	Path  string `type:"path" help:"Where to write (default: ~/.config/flashbott/flashbott.json)."`
	Force bool   `help:"Overwrite an existing file (the old one is kept as .bak)."`
}

func (c *ConfigInitCmd) Run() error {
	path := c.Path
	if path == "" {
		path = config.DefaultPath()
	}
	if _, err := os.Stat(path); err == nil && !c.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.BackupAndWriteJSON(path, config.Default(), config.DefaultBackupCount); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	fmt.Printf("set %s or llm.apiKey before running `flashbott serve`\n", config.APIKeyEnv)
	return nil
}

// ConfigShowCmd prints the merged configuration.
type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run(g *Globals) error {
	cfg, path, err := g.loadConfig()
	if err != nil {
		return err
	}
	if path == "" {
		path = "(defaults)"
	}
	fmt.Fprintf(os.Stderr, "# %s, key source: %s\n", path, keySource(cfg))
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg.Redacted())
}

func keySource(cfg *config.Config) string {
	if cfg.APIKeySource == "" {
		return "none"
	}
	return cfg.APIKeySource
}
