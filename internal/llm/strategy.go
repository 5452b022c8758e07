package llm

import (
	"context"
	"errors"
)

// ErrNoStrategies is returned by FirstSuccess when given nothing to try.
var ErrNoStrategies = errors.New("no strategies to try")

// Strategy is one named way of producing a T.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// FirstSuccess runs strategies in order and returns the first result that
// succeeds together with the winning strategy's name. onFail, when set,
// observes each failure before the next strategy runs. If every strategy
// fails, the last error is returned.
func FirstSuccess[T any](ctx context.Context, strategies []Strategy[T], onFail func(name string, err error)) (T, string, error) {
	var zero T
	lastErr := ErrNoStrategies

	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}
		result, err := s.Run(ctx)
		if err == nil {
			return result, s.Name, nil
		}
		lastErr = err
		if onFail != nil {
			onFail(s.Name, err)
		}
	}
	return zero, "", lastErr
}
