package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeUpstream hands out scripted models. Unknown names fail with a 404.
type fakeUpstream struct {
	mu     sync.Mutex
	models map[string]*fakeModel
}

func newFakeUpstream(models ...*fakeModel) *fakeUpstream {
	u := &fakeUpstream{models: make(map[string]*fakeModel)}
	for _, m := range models {
		u.models[m.name] = m
	}
	return u
}

func (u *fakeUpstream) Model(name string) Model {
	u.mu.Lock()
	defer u.mu.Unlock()
	if m, ok := u.models[name]; ok {
		return m
	}
	m := &fakeModel{name: name, generateErr: []error{errors.New("404 models/" + name + " is not found")}}
	u.models[name] = m
	return m
}

// fakeModel replays generateErr / sendErr in order; once exhausted every call
// succeeds with reply. A nil entry means that call succeeds.
type fakeModel struct {
	name  string
	reply string

	mu          sync.Mutex
	generateErr []error
	sendErr     []error
	prompts     []string
	sent        []string
	seeded      [][]Turn
	generations int
}

func (m *fakeModel) Name() string { return m.name }

func (m *fakeModel) GenerateContent(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generations++
	m.prompts = append(m.prompts, prompt)
	if len(m.generateErr) > 0 {
		err := m.generateErr[0]
		m.generateErr = m.generateErr[1:]
		if err != nil {
			return "", err
		}
	}
	return m.reply, nil
}

func (m *fakeModel) StartChat(history []Turn) ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeded = append(m.seeded, history)
	return &fakeSession{model: m}
}

func (m *fakeModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generations
}

type fakeSession struct {
	model *fakeModel
}

func (s *fakeSession) SendMessage(_ context.Context, text string) (string, error) {
	m := s.model
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, text)
	if len(m.sendErr) > 0 {
		err := m.sendErr[0]
		m.sendErr = m.sendErr[1:]
		if err != nil {
			return "", err
		}
	}
	return m.reply, nil
}

// recordingSleeper collects requested delays instead of sleeping.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
}

func (s *recordingSleeper) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func repeatErr(err error, n int) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = err
	}
	return out
}
