package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogSink writes posts and cancellations to a zerolog logger. It is the
// sink of the command-line daemon.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Post(_ context.Context, p Post) error {
	ev := s.logger.Info().
		Int32("notification_id", p.NotificationID).
		Str("channel", p.Channel.ID()).
		Bool("sound", p.Sound).
		Bool("vibrate", p.Vibrate).
		Str("title", p.Title)
	if p.Count > 1 {
		ev = ev.Int("count", p.Count)
	} else {
		ev = ev.Stringer("alert", p.Key)
	}
	ev.Msg("notification posted")
	return nil
}

func (s *LogSink) Cancel(_ context.Context, id int32) error {
	s.logger.Debug().Int32("notification_id", id).Msg("notification cancelled")
	return nil
}

// MemorySink keeps the notifications currently on screen.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MemorySink struct {
	mu    sync.Mutex
	shown map[int32]Post
	posts []Post
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{shown: map[int32]Post{}}
}

func (s *MemorySink) Post(_ context.Context, p Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown[p.NotificationID] = p
	s.posts = append(s.posts, p)
	return nil
}

func (s *MemorySink) Cancel(_ context.Context, id int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.shown, id)
	return nil
}

// Shown returns the post currently displayed under id.
func (s *MemorySink) Shown(id int32) (Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.shown[id]
	return p, ok
}

// Visible returns the number of notifications on screen.
func (s *MemorySink) Visible() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.shown)
}

// Posts returns every post in order, including replaced ones.
func (s *MemorySink) Posts() []Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Post(nil), s.posts...)
}

// TimerScheduler arms a single process timer. When it fires, one value is
// delivered on C. Scheduling again replaces the pending timer.
type TimerScheduler struct {
	mu    sync.Mutex
	timer *time.Timer
	at    int64
	now   func() time.Time
	c     chan struct{}
}

// NewTimerScheduler creates a disarmed TimerScheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{now: time.Now, c: make(chan struct{}, 1)}
}

// C receives a value each time the armed wake-up is reached.
func (s *TimerScheduler) C() <-chan struct{} {
	return s.c
}

func (s *TimerScheduler) Schedule(_ context.Context, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.at = at
	if at == 0 {
		return nil
	}
	d := time.UnixMilli(at).Sub(s.now())
	if d < 0 {
		d = 0
	}
	s.timer = time.AfterFunc(d, s.fire)
	return nil
}

func (s *TimerScheduler) fire() {
	select {
	case s.c <- struct{}{}:
	default:
	}
}

// Next returns the armed wake-up time, or 0.
func (s *TimerScheduler) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.at
}

// Stop disarms the timer.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.at = 0
}
