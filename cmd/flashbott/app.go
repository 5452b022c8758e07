package main

import (
	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/chat"
	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/config"
	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/llm"
)

// app is the chat core wired from config.
type app struct {
	cfg          *config.Config
	resolver     *llm.Resolver
	orchestrator *chat.Orchestrator
}

func newApp(cfg *config.Config) *app {
	upstream := llm.NewGeminiClient(llm.GeminiConfig{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		MaxTokens:      cfg.LLM.MaxTokens,
	})
	retrier := llm.NewRetrier()
	resolver := llm.NewResolver(upstream, cfg.LLM.Candidates,
		llm.WithProbePolicy(cfg.LLM.Probe.Policy()),
		llm.WithRetrier(retrier),
	)
	invoker := llm.NewInvoker(retrier, cfg.LLM.Generation.Policy())

	// the key is bound into the upstream client, so it is fixed for the process
	hasKey := cfg.HasCredential()
	return &app{
		cfg:          cfg,
		resolver:     resolver,
		orchestrator: chat.NewOrchestrator(resolver, invoker, func() bool { return hasKey }),
	}
}
