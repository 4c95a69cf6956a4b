package client

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

const DefaultTypingWindow = 1500 * time.Millisecond

// TypingSender emits typing.start or typing.stop toward receiverID.
type TypingSender interface {
	SendTyping(start bool, receiverID string) error
}

type timer interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) timer

// Debouncer turns a stream of input changes into one typing.start per burst
// and one typing.stop when the burst ends, the message is sent or the
// conversation changes.
type Debouncer struct {
	sender TypingSender
	window time.Duration
	after  afterFunc
	logger *slog.Logger

	mu     sync.Mutex
	target string
	timer  timer
	gen    uint64
}

type DebouncerOption func(*Debouncer)

func WithWindow(d time.Duration) DebouncerOption {
	return func(db *Debouncer) {
		if d > 0 {
			db.window = d
		}
	}
}

func WithDebouncerLogger(l *slog.Logger) DebouncerOption {
	return func(db *Debouncer) {
		if l != nil {
			db.logger = l
		}
	}
}

func withAfterFunc(f afterFunc) DebouncerOption {
	return func(db *Debouncer) { db.after = f }
}

func NewDebouncer(sender TypingSender, opts ...DebouncerOption) *Debouncer {
	d := &Debouncer{
		sender: sender,
		window: DefaultTypingWindow,
		after: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// InputChanged records a keystroke in the conversation with to.
func (d *Debouncer) InputChanged(to string) {
	to = strings.TrimSpace(to)
	if to == "" {
		return
	}
	d.mu.Lock()
	previous := d.target
	if previous == to {
		previous = ""
	}
	start := d.target != to
	if d.timer != nil {
		d.timer.Stop()
	}
	d.target = to
	d.gen++
	gen := d.gen
	d.timer = d.after(d.window, func() { d.expire(gen) })
	d.mu.Unlock()

	if previous != "" {
		d.emit(false, previous)
	}
	if start {
		d.emit(true, to)
	}
}

// Sent ends the burst toward to right away, if one is in flight.
func (d *Debouncer) Sent(to string) {
	d.mu.Lock()
	if d.target == "" || d.target != strings.TrimSpace(to) {
		d.mu.Unlock()
		return
	}
	target := d.reset()
	d.mu.Unlock()
	d.emit(false, target)
}

// Stop ends whatever burst is in flight.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	target := d.reset()
	d.mu.Unlock()
	if target != "" {
		d.emit(false, target)
	}
}

// Active returns the receiver of the burst in flight, or "".
func (d *Debouncer) Active() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.target
}

func (d *Debouncer) expire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.target == "" {
		d.mu.Unlock()
		return
	}
	target := d.target
	d.target = ""
	d.timer = nil
	d.mu.Unlock()
	d.emit(false, target)
}

// reset must be called with mu held.
func (d *Debouncer) reset() string {
	target := d.target
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.target = ""
	d.gen++
	return target
}

func (d *Debouncer) emit(start bool, to string) {
	if d.sender == nil {
		return
	}
	if err := d.sender.SendTyping(start, to); err != nil {
		d.logger.Debug("typing signal dropped", "receiver_id", to, "start", start, "error", err)
	}
}
