package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/Harshavardhan-K-AIDS/FlashBott/internal/logging"
	. "github.com/Harshavardhan-K-AIDS/FlashBott/internal/metrics"
)

// NoReplyText replaces an empty upstream reply.
const NoReplyText = "I couldn't generate a reply."

const (
	pathChat      = "chat"
	pathSingle    = "single"
	pathFlattened = "flattened"
)

var errNoTurns = errors.New("llm: no turns to send")

// Invoker sends a conversation to a resolved model.
type Invoker struct {
	retrier *Retrier
	policy  RetryPolicy
}

// NewInvoker creates an invoker using policy for every upstream call.
func NewInvoker(retrier *Retrier, policy RetryPolicy) *Invoker {
	if retrier == nil {
		retrier = NewRetrier()
	}
	return &Invoker{retrier: retrier, policy: policy}
}

// Invoke sends turns to model and returns the reply text.
//
// The primary path opens a chat seeded with the prior turns and sends the
// last one; with no prior turns it is a single generation call. If the
// primary path fails for any reason, the conversation is flattened into one
// prompt and sent as a single generation call. Only the flattened path's
// error is returned when both fail.
func (inv *Invoker) Invoke(ctx context.Context, model Model, turns []Turn) (string, error) {
	if len(turns) == 0 {
		return "", errNoTurns
	}
	start := time.Now()
	defer MetricSince("llm", "invoke_time", start)

	prior, last := turns[:len(turns)-1], turns[len(turns)-1]

	primary := Strategy[string]{Name: pathSingle, Run: func(ctx context.Context) (string, error) {
		return inv.generate(ctx, model, last.Text)
	}}
	if len(prior) > 0 {
		primary = Strategy[string]{Name: pathChat, Run: func(ctx context.Context) (string, error) {
			session := model.StartChat(prior)
			return Retry(ctx, inv.retrier, inv.policy, "chat "+model.Name(), func(ctx context.Context) (string, error) {
				return session.SendMessage(ctx, last.Text)
			})
		}}
	}
	flattened := Strategy[string]{Name: pathFlattened, Run: func(ctx context.Context) (string, error) {
		return inv.generate(ctx, model, FlattenTurns(turns))
	}}

	text, path, err := FirstSuccess(ctx, []Strategy[string]{primary, flattened}, func(name string, err error) {
		if name != pathFlattened {
			L_warn("llm: primary path failed, falling back to flattened prompt",
				"model", model.Name(), "path", name, "error", err)
		}
	})
	if err != nil {
		MetricOutcome("llm", "invoke", "failed")
		return "", err
	}
	MetricOutcome("llm", "invoke", path)
	L_debug("llm: reply generated", "model", model.Name(), "path", path, "chars", len(text))
	return orNoReply(text), nil
}

func (inv *Invoker) generate(ctx context.Context, model Model, prompt string) (string, error) {
	return Retry(ctx, inv.retrier, inv.policy, "generate "+model.Name(), func(ctx context.Context) (string, error) {
		return model.GenerateContent(ctx, prompt)
	})
}

func orNoReply(text string) string {
	if strings.TrimSpace(text) == "" {
		return NoReplyText
	}
	return text
}
