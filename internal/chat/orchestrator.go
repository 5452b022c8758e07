// Package chat turns one inbound chat request into exactly one reply or one
// classified error.
package chat

import (
	"context"
	"net/http"
	"strings"
	"time"

	. "github.com/Harshavardhan-K-AIDS/FlashBott/internal/logging"
	. "github.com/Harshavardhan-K-AIDS/FlashBott/internal/metrics"

	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/llm"
)

// Kind classifies a failed request. Upstream categories are carried over
// from llm.ErrorCategory.
type Kind string

const (
	KindNone         Kind = ""
	KindClientError  Kind = "client_error"
	KindConfigError  Kind = "config_error"
	KindOverloaded   Kind = Kind(llm.CategoryOverloaded)
	KindNotFound     Kind = Kind(llm.CategoryNotFound)
	KindUnauthorized Kind = Kind(llm.CategoryUnauthorized)
	KindForbidden    Kind = Kind(llm.CategoryForbidden)
	KindRateLimited  Kind = Kind(llm.CategoryRateLimited)
	KindUnknown      Kind = Kind(llm.CategoryUnknown)
)

const (
	msgMissingMessage    = "Message is required."
	msgMissingCredential = "The server is missing its AI service API key."
)

// State is where a request ended up (or currently is).
type State int

const (
	StateIdle State = iota
	StateResolvingModel
	StateInvoking
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolvingModel:
		return "resolving_model"
	case StateInvoking:
		return "invoking"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Request is one inbound chat message plus the caller-trimmed history.
type Request struct {
	Message string        `json:"message"`
	History []llm.Message `json:"history,omitempty"`
	UserID  string        `json:"-"`
}

// Response carries either Reply or Error. Kind is empty on success.
type Response struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`

	Kind  Kind   `json:"-"`
	State State  `json:"-"`
	Model string `json:"-"`
}

// OK reports whether the request produced a reply.
func (r Response) OK() bool {
	return r.State == StateSuccess
}

// HTTPStatus maps the response onto a status code.
func (r Response) HTTPStatus() int {
	switch {
	case r.OK():
		return http.StatusOK
	case r.Kind == KindClientError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ModelResolver finds a usable model.
type ModelResolver interface {
	Resolve(ctx context.Context) (llm.Model, string, error)
}

// ConversationInvoker sends a conversation to a model.
type ConversationInvoker interface {
	Invoke(ctx context.Context, model llm.Model, turns []llm.Turn) (string, error)
}

// Orchestrator runs the Idle -> ResolvingModel -> Invoking -> Success|Failed flow.
type Orchestrator struct {
	resolver      ModelResolver
	invoker       ConversationInvoker
	hasCredential func() bool
}

// NewOrchestrator wires the resolver and invoker. hasCredential is consulted
// on every request so a reloaded key takes effect without a restart.
func NewOrchestrator(resolver ModelResolver, invoker ConversationInvoker, hasCredential func() bool) *Orchestrator {
	if hasCredential == nil {
		hasCredential = func() bool { return true }
	}
	return &Orchestrator{resolver: resolver, invoker: invoker, hasCredential: hasCredential}
}

// Handle produces exactly one Response for req. It never panics on upstream
// failure; every failure is classified.
func (o *Orchestrator) Handle(ctx context.Context, req Request) Response {
	start := time.Now()
	defer MetricSince("chat", "request", start)

	if strings.TrimSpace(req.Message) == "" {
		return o.fail(StateIdle, KindClientError, msgMissingMessage, "")
	}
	if !o.hasCredential() {
		L_error("chat: no API key configured")
		return o.fail(StateIdle, KindConfigError, msgMissingCredential, "")
	}

	model, name, err := o.resolver.Resolve(ctx)
	if err != nil {
		category, msg := llm.FormatErrorForUser(err)
		L_error("chat: model resolution failed", "user", req.UserID, "category", category, "error", err)
		return o.fail(StateResolvingModel, Kind(category), msg, "")
	}

	turns := llm.BuildTurns(req.History, req.Message)
	reply, err := o.invoker.Invoke(ctx, model, turns)
	if err != nil {
		category, msg := llm.FormatErrorForUser(err)
		L_error("chat: generation failed", "user", req.UserID, "model", name, "category", category, "error", err)
		return o.fail(StateInvoking, Kind(category), msg, name)
	}

	MetricOutcome("chat", "outcome", "success")
	L_info("chat: reply sent", "user", req.UserID, "model", name, "historyLen", len(req.History), "elapsed", time.Since(start))
	return Response{Reply: reply, State: StateSuccess, Model: name}
}

// fail records a failed response. from is the state the failure happened in.
func (o *Orchestrator) fail(from State, kind Kind, msg, model string) Response {
	MetricOutcome("chat", "outcome", string(kind))
	L_debug("chat: request failed", "state", from, "kind", kind)
	return Response{Error: msg, Kind: kind, State: StateFailed, Model: model}
}
