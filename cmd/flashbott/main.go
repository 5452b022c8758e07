package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/config"
	. "github.com/Harshavardhan-K-AIDS/FlashBott/internal/logging"
)

const version = "0.3.0"

// Globals are flags shared by every command.
type Globals struct {
	Config string `short:"c" type:"path" help:"Path to flashbott.json (default: ./flashbott.json, then ~/.config/flashbott/flashbott.json)."`
	Debug  bool   `short:"d" help:"Enable debug logging."`
	Trace  bool   `help:"Enable trace logging."`
}

// CLI is the flashbott command tree.
type CLI struct {
	Globals

	Serve     ServeCmd   `cmd:"" help:"Run the HTTP chat relay."`
	Ask       AskCmd     `cmd:"" help:"Send one message and print the reply."`
	Models    ModelsCmd  `cmd:"" help:"Inspect upstream models."`
	ConfigCmd ConfigCmd  `cmd:"" name:"config" help:"Manage the config file."`
	Version   VersionCmd `cmd:"" help:"Print version."`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("flashbott %s\n", version)
	return nil
}

// loadConfig loads the config and initializes logging from it.
func (g *Globals) loadConfig() (*config.Config, string, error) {
	cfg, path, err := config.Load(g.Config)
	if err != nil {
		return nil, "", err
	}

	level := ParseLevel(cfg.Log.Level)
	switch {
	case g.Trace:
		level = LevelTrace
	case g.Debug:
		level = LevelDebug
	}
	Init(&Config{
		Level:      level,
		TimeFormat: "15:04:05",
		ShowCaller: level >= LevelDebug,
		JSON:       cfg.Log.JSON,
	})

	if path != "" {
		L_debug("config loaded", "path", path)
	} else {
		L_debug("no config file found, using defaults")
	}
	return cfg, path, nil
}

func main() {
	Init(DefaultConfig())

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("flashbott"),
		kong.Description("Chat relay for Gemini models."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
