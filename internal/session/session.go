// Package session holds the recording state shared between the audio thread
// and its consumers: the armed flag, the captured samples and the episode
// metadata.
//
// The capture side only calls Write. Everything else is consumer API. Write
// never blocks for longer than one append when drop-on-contention is off, and
// never blocks at all when it is on.
package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petems/podrec/internal/metrics"
)

// ErrInvalidState is returned for operations that require a disarmed session.
var ErrInvalidState = errors.New("invalid session state")

// Format describes the interleaved layout of the buffered samples.
type Format struct {
	SampleRate float64
	Channels   int
}

// Episode is the display metadata of the recording.
type Episode struct {
	Title     string
	StartedAt time.Time
}

type Option func(*Session)

// WithDropOnContention makes Write drop a block instead of waiting when the
// buffer lock is held by a consumer.
func WithDropOnContention(drop bool) Option {
	return func(s *Session) { s.dropOnContention = drop }
}

// WithCapacity preallocates room for n samples.
func WithCapacity(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.samples = make([]float32, 0, n)
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// Session is the shared recording state. The zero value is not usable; call New.
type Session struct {
	armed   atomic.Bool
	dropped atomic.Uint64

	mu      sync.Mutex
	samples []float32

	// metaMu orders title changes against arming.
	metaMu  sync.Mutex
	episode Episode
	format  Format

	dropOnContention bool
	metrics          *metrics.Metrics
}

func New(opts ...Option) *Session {
	s := &Session{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Arm starts accepting blocks. Idempotent.
func (s *Session) Arm() {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	if s.armed.Swap(true) {
		return
	}
	s.episode.StartedAt = time.Now()
	s.metrics.SetArmed(true)
}

// Disarm stops accepting blocks. Idempotent. A block whose delivery already
// passed the armed check may still land after Disarm returns.
func (s *Session) Disarm() {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	if s.armed.Swap(false) {
		s.metrics.SetArmed(false)
	}
}

func (s *Session) IsArmed() bool {
	return s.armed.Load()
}

// Write appends block if the session is armed and reports whether it did.
// It is the sink the capture engine delivers into; the block is copied.
func (s *Session) Write(block []float32) bool {
	if len(block) == 0 || !s.armed.Load() {
		return false
	}

	if s.dropOnContention {
		if !s.mu.TryLock() {
			s.dropped.Add(1)
			s.metrics.BlockDropped(metrics.DropContention)
			return false
		}
	} else {
		s.mu.Lock()
	}

	// Checked again under the lock so Reset never races an append.
	if !s.armed.Load() {
		s.mu.Unlock()
		return false
	}
	s.samples = append(s.samples, block...)
	s.metrics.BlockAppended(len(block), len(s.samples))
	s.mu.Unlock()
	return true
}

// Snapshot returns a copy of the buffered samples. Only the slice header is
// read under the lock: appends write past its length and Reset drops the
// backing array instead of reusing it, so the copy runs without blocking the
// audio thread.
func (s *Session) Snapshot() []float32 {
	s.mu.Lock()
	view := s.samples[:len(s.samples):len(s.samples)]
	s.mu.Unlock()
	return slices.Clone(view)
}

// Len returns the number of buffered samples.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// Reset discards the buffer. It fails with ErrInvalidState while armed.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.armed.Load() {
		return fmt.Errorf("%w: disarm before reset", ErrInvalidState)
	}
	// Never truncate in place; snapshots may still be reading the old array.
	s.samples = nil
	s.dropped.Store(0)
	s.metrics.SetBuffered(0)
	return nil
}

// Dropped returns the number of blocks dropped on lock contention since the
// last reset.
func (s *Session) Dropped() uint64 {
	return s.dropped.Load()
}

// SetFormat records the layout of the stream feeding the session.
func (s *Session) SetFormat(f Format) {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	s.format = f
}

func (s *Session) Format() Format {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	return s.format
}

// Duration converts the buffered sample count to wall time. It is zero until
// a format is set.
func (s *Session) Duration() time.Duration {
	f := s.Format()
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := float64(s.Len() / f.Channels)
	return time.Duration(frames * float64(time.Second) / f.SampleRate)
}

func (s *Session) Episode() Episode {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	return s.episode
}

func (s *Session) Title() string {
	return s.Episode().Title
}

// SetTitle changes the episode title. It fails with ErrInvalidState while armed.
func (s *Session) SetTitle(title string) error {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	if s.armed.Load() {
		return fmt.Errorf("%w: cannot rename while recording", ErrInvalidState)
	}
	s.episode.Title = title
	return nil
}
