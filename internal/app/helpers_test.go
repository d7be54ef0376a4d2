package app_test

import (
	"context"
	"sync"
	"time"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

// manualScheduler records timers and fires them only when a test asks.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

func (t *manualTimer) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped && !t.fired
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) app.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{delay: d, fn: f}
	s.timers = append(s.timers, t)
	return t
}

// fire runs the oldest active timer and reports whether one existed.
func (s *manualScheduler) fire() bool {
	s.mu.Lock()
	var next *manualTimer
	for _, t := range s.timers {
		if t.active() {
			next = t
			break
		}
	}
	s.mu.Unlock()
	if next == nil {
		return false
	}
	next.mu.Lock()
	next.fired = true
	next.mu.Unlock()
	next.fn()
	return true
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if t.active() {
			n++
		}
	}
	return n
}

func (s *manualScheduler) last() *manualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return nil
	}
	return s.timers[len(s.timers)-1]
}

type published struct {
	topic string
	event domain.Event
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []published
}

func (b *recordingBroadcaster) Publish(_ context.Context, topic string, event domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{topic: topic, event: event})
}

func (b *recordingBroadcaster) ofType(eventType string) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Event
	for _, p := range b.events {
		if p.event.Type == eventType {
			out = append(out, p.event)
		}
	}
	return out
}

func (b *recordingBroadcaster) onTopic(topic string) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Event
	for _, p := range b.events {
		if p.topic == topic {
			out = append(out, p.event)
		}
	}
	return out
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

type stubSource struct {
	mu        sync.Mutex
	questions []domain.Question
	err       error
	calls     int
	lastCount int
	lastMatch domain.Pattern
}

func (s *stubSource) Fetch(_ context.Context, filter domain.QuestionFilter, count int) ([]domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastCount = count
	s.lastMatch = filter.Pattern
	if s.err != nil {
		return nil, s.err
	}
	if count > len(s.questions) {
		count = len(s.questions)
	}
	return append([]domain.Question(nil), s.questions[:count]...), nil
}

func sampleQuestions(n int) []domain.Question {
	answers := []string{`"A"`, `{"0":"q","1":"p"}`, `["B","D"]`, `"C"`, `"D"`}
	out := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Question{
			ID:            "q" + string(rune('1'+i)),
			Type:          domain.TypeMCQ,
			Content:       []byte(`{"text":"question"}`),
			CorrectAnswer: domain.Answer(answers[i%len(answers)]),
		})
	}
	return out
}

type fixture struct {
	scheduler   *manualScheduler
	broadcaster *recordingBroadcaster
	source      *stubSource
	registry    *app.RoomRegistry
	driver      *app.SessionDriver
}

func newFixture(questions []domain.Question, opts ...app.RegistryOption) *fixture {
	f := &fixture{
		scheduler:   &manualScheduler{},
		broadcaster: &recordingBroadcaster{},
		source:      &stubSource{questions: questions},
	}
	opts = append([]app.RegistryOption{app.WithScheduler(f.scheduler)}, opts...)
	f.registry = app.NewRoomRegistry(f.source, f.broadcaster, opts...)
	f.driver = app.NewSessionDriver(f.registry, f.broadcaster)
	return f
}
