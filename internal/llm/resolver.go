package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/Harshavardhan-K-AIDS/FlashBott/internal/logging"
	. "github.com/Harshavardhan-K-AIDS/FlashBott/internal/metrics"
)

// ProbePrompt is the minimal generation request used to check a model.
const ProbePrompt = "test"

// DefaultCandidates lists models in preference order.
var DefaultCandidates = []string{
	"gemini-2.0-flash",
	"gemini-1.5-flash",
	"gemini-1.5-pro",
	"gemini-1.5-flash-latest",
	"gemini-pro",
}

var errNoCandidates = errors.New("no model candidates configured")

// ModelCache remembers the last model name that passed a probe.
// It is shared by every request in the process.
type ModelCache struct {
	mu   sync.RWMutex
	name string
}

// Get returns the cached name, or "" when empty.
func (c *ModelCache) Get() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// Set records name as the working model.
func (c *ModelCache) Set(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
}

// Clear empties the cache.
func (c *ModelCache) Clear() {
	c.Set("")
}

// CompareAndClear empties the cache only if it still holds name, so a
// concurrent request that already cached a newer model is not undone.
func (c *ModelCache) CompareAndClear(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.name != name {
		return false
	}
	c.name = ""
	return true
}

// Resolver finds a usable model, preferring the cached one.
type Resolver struct {
	upstream    Upstream
	retrier     *Retrier
	probePolicy RetryPolicy
	cache       *ModelCache

	mu         sync.RWMutex
	candidates []string
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithModelCache shares cache with the resolver instead of a private one.
func WithModelCache(cache *ModelCache) ResolverOption {
	return func(r *Resolver) {
		r.cache = cache
	}
}

// WithProbePolicy overrides the retry policy used for probes.
func WithProbePolicy(policy RetryPolicy) ResolverOption {
	return func(r *Resolver) {
		r.probePolicy = policy
	}
}

// WithRetrier sets the retrier used for probes.
func WithRetrier(retrier *Retrier) ResolverOption {
	return func(r *Resolver) {
		r.retrier = retrier
	}
}

// NewResolver creates a resolver over upstream. Empty candidates fall back
// to DefaultCandidates.
func NewResolver(upstream Upstream, candidates []string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		upstream:    upstream,
		probePolicy: ProbePolicy,
	}
	r.SetCandidates(candidates)
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = &ModelCache{}
	}
	if r.retrier == nil {
		r.retrier = NewRetrier()
	}
	return r
}

// Candidates returns a copy of the current preference list.
func (r *Resolver) Candidates() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.candidates))
	copy(out, r.candidates)
	return out
}

// SetCandidates replaces the preference list. The cached model is kept; it is
// re-probed on the next Resolve like any other cached entry.
func (r *Resolver) SetCandidates(candidates []string) {
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}
	list := make([]string, len(candidates))
	copy(list, candidates)

	r.mu.Lock()
	r.candidates = list
	r.mu.Unlock()
}

// Cached returns the currently cached model name, or "".
func (r *Resolver) Cached() string {
	return r.cache.Get()
}

// Reset forgets the cached model.
func (r *Resolver) Reset() {
	r.cache.Clear()
}

func (r *Resolver) probe(ctx context.Context, m Model) error {
	_, err := Retry(ctx, r.retrier, r.probePolicy, "probe "+m.Name(), func(ctx context.Context) (string, error) {
		return m.GenerateContent(ctx, ProbePrompt)
	})
	return err
}

// Resolve returns a model that answered a probe, along with its name.
// The cached model is tried first; on failure it is cleared and the
// candidates are probed in order. The first success is cached.
func (r *Resolver) Resolve(ctx context.Context) (Model, string, error) {
	start := time.Now()
	defer MetricSince("llm", "resolve", start)

	candidates := r.Candidates()
	strategies := make([]Strategy[Model], 0, len(candidates)+1)

	if cached := r.cache.Get(); cached != "" {
		strategies = append(strategies, Strategy[Model]{
			Name: cached,
			Run: func(ctx context.Context) (Model, error) {
				m := r.upstream.Model(cached)
				if err := r.probe(ctx, m); err != nil {
					r.cache.CompareAndClear(cached)
					MetricMiss("llm", "model_cache")
					L_warn("llm: cached model failed probe, re-resolving", "model", cached, "error", err)
					return nil, err
				}
				MetricHit("llm", "model_cache")
				return m, nil
			},
		})
	} else {
		MetricMiss("llm", "model_cache")
	}

	for _, name := range candidates {
		strategies = append(strategies, Strategy[Model]{
			Name: name,
			Run: func(ctx context.Context) (Model, error) {
				m := r.upstream.Model(name)
				if err := r.probe(ctx, m); err != nil {
					return nil, err
				}
				r.cache.Set(name)
				L_info("llm: model resolved", "model", name)
				return m, nil
			},
		})
	}

	model, name, err := FirstSuccess(ctx, strategies, func(name string, err error) {
		if IsOverloadError(err) {
			L_warn("llm: model overloaded, trying next", "model", name, "error", err)
			return
		}
		L_warn("llm: model unavailable, trying next", "model", name, "error", err)
	})
	if err != nil {
		if errors.Is(err, ErrNoStrategies) {
			err = errNoCandidates
		}
		return nil, "", &ExhaustedError{Tried: candidates, Last: err}
	}
	return model, name, nil
}

// ProbeResult is the outcome of probing a single candidate.
type ProbeResult struct {
	Model    string        `json:"model"`
	OK       bool          `json:"ok"`
	Category ErrorCategory `json:"category,omitempty"`
	Error    string        `json:"error,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// ProbeAll probes every candidate without touching the cache.
func (r *Resolver) ProbeAll(ctx context.Context) []ProbeResult {
	candidates := r.Candidates()
	results := make([]ProbeResult, 0, len(candidates))
	for _, name := range candidates {
		start := time.Now()
		err := r.probe(ctx, r.upstream.Model(name))
		res := ProbeResult{Model: name, OK: err == nil, Elapsed: time.Since(start)}
		if err != nil {
			res.Category = Classify(err)
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results
}
