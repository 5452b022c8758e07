package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInvoker() (*Invoker, *recordingSleeper) {
	sleeper := &recordingSleeper{}
	return NewInvoker(NewRetrier(WithSleeper(sleeper.sleep)), GenerationPolicy), sleeper
}

func TestInvokeSingleTurn(t *testing.T) {
	m := &fakeModel{name: "m", reply: "Hello!"}
	inv, _ := newTestInvoker()

	reply, err := inv.Invoke(context.Background(), m, BuildTurns(nil, "hi"))
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply)
	assert.Equal(t, []string{"hi"}, m.prompts)
	assert.Empty(t, m.seeded)
}

func TestInvokeChatSeedsPriorTurns(t *testing.T) {
	m := &fakeModel{name: "m", reply: "Sunny."}
	inv, _ := newTestInvoker()
	history := []Message{
		{Sender: SenderUser, Text: "hello"},
		{Sender: SenderBot, Text: "hi"},
	}

	reply, err := inv.Invoke(context.Background(), m, BuildTurns(history, "weather?"))
	require.NoError(t, err)
	assert.Equal(t, "Sunny.", reply)
	require.Len(t, m.seeded, 1)
	assert.Equal(t, []Turn{{Role: RoleUser, Text: "hello"}, {Role: RoleModel, Text: "hi"}}, m.seeded[0])
	assert.Equal(t, []string{"weather?"}, m.sent)
	assert.Empty(t, m.prompts)
}

func TestInvokeChatRetriesOverload(t *testing.T) {
	m := &fakeModel{name: "m", reply: "ok", sendErr: []error{errOverloaded}}
	inv, sleeper := newTestInvoker()
	history := []Message{{Sender: SenderUser, Text: "a"}, {Sender: SenderBot, Text: "b"}}

	reply, err := inv.Invoke(context.Background(), m, BuildTurns(history, "c"))
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Equal(t, []string{"c", "c"}, m.sent)
	assert.Equal(t, []time.Duration{time.Second}, sleeper.recorded())
	assert.Empty(t, m.prompts)
}

func TestInvokeFallsBackToFlattenedPrompt(t *testing.T) {
	m := &fakeModel{name: "m", reply: "fallback reply", sendErr: []error{errors.New("chat mode unsupported")}}
	inv, _ := newTestInvoker()
	history := []Message{{Sender: SenderUser, Text: "hello"}, {Sender: SenderBot, Text: "hi"}}

	reply, err := inv.Invoke(context.Background(), m, BuildTurns(history, "again"))
	require.NoError(t, err)
	assert.Equal(t, "fallback reply", reply)
	assert.Equal(t, []string{"User: hello\nAssistant: hi\nUser: again"}, m.prompts)
}

func TestInvokeFlattenedFailurePropagates(t *testing.T) {
	flatErr := errors.New("error, status code: 429, message: rate limit")
	m := &fakeModel{
		name:        "m",
		sendErr:     []error{errors.New("session broken")},
		generateErr: []error{flatErr},
	}
	inv, _ := newTestInvoker()
	history := []Message{{Sender: SenderUser, Text: "a"}, {Sender: SenderBot, Text: "b"}}

	_, err := inv.Invoke(context.Background(), m, BuildTurns(history, "c"))
	assert.Same(t, flatErr, err)
	assert.Equal(t, CategoryRateLimited, Classify(err))
}

func TestInvokeEmptyReplyUsesPlaceholder(t *testing.T) {
	m := &fakeModel{name: "m", reply: "   "}
	inv, _ := newTestInvoker()

	reply, err := inv.Invoke(context.Background(), m, BuildTurns(nil, "hi"))
	require.NoError(t, err)
	assert.Equal(t, NoReplyText, reply)
}

func TestInvokeNoTurns(t *testing.T) {
	inv, _ := newTestInvoker()
	_, err := inv.Invoke(context.Background(), &fakeModel{name: "m"}, nil)
	assert.Error(t, err)
}
