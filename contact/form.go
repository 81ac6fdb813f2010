// Package contact implements the contact form lifecycle and the relays that
// deliver a visitor's message.
package contact

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Zachkp/folio/errs"
)

// DefaultResetAfter is how long a success message stays before the form
// returns to idle.
const DefaultResetAfter = 5 * time.Second

// ErrBusy is returned when a submit is attempted while one is in flight.
var ErrBusy = errors.New("a message is already being sent")

// Status of the form.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Fields are the visitor's inputs.
type Fields struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Snapshot is the form state handed to rendering surfaces.
type Snapshot struct {
	Status Status `json:"status"`
	Fields Fields `json:"fields"`
	Error  string `json:"error,omitempty"`
}

// Disabled reports whether inputs should be disabled.
func (s Snapshot) Disabled() bool { return s.Status == StatusLoading }

// FormOption configures a Form.
type FormOption func(*Form)

// WithClock sets the clock used for the success reset.
func WithClock(c clockwork.Clock) FormOption { return func(f *Form) { f.clock = c } }

// WithResetAfter sets how long success is shown.
func WithResetAfter(d time.Duration) FormOption { return func(f *Form) { f.resetAfter = d } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) FormOption { return func(f *Form) { f.log = l } }

// WithObserver registers fn to receive every status transition.
func WithObserver(fn func(Snapshot)) FormOption {
	return func(f *Form) { f.observers = append(f.observers, fn) }
}

// Form is one visitor's contact form.
type Form struct {
	mu     sync.Mutex
	status Status
	fields Fields
	errMsg string
	reset  clockwork.Timer
	gen    uint64
	closed bool

	relay      Relay
	clock      clockwork.Clock
	resetAfter time.Duration
	log        *zap.Logger
	observers  []func(Snapshot)
}

// NewForm returns an idle form that delivers through relay.
func NewForm(relay Relay, opts ...FormOption) *Form {
	f := &Form{
		status:     StatusIdle,
		relay:      relay,
		clock:      clockwork.NewRealClock(),
		resetAfter: DefaultResetAfter,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Snapshot returns the current state.
func (f *Form) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Form) snapshotLocked() Snapshot {
	return Snapshot{Status: f.status, Fields: f.fields, Error: f.errMsg}
}

// Submit sends fields through the relay. It blocks until the relay answers.
// Relay failures end in StatusError and are not returned; the only error is
// ErrBusy when another submit is in flight.
func (f *Form) Submit(ctx context.Context, fields Fields) (Snapshot, error) {
	f.mu.Lock()
	if f.status == StatusLoading {
		snap := f.snapshotLocked()
		f.mu.Unlock()
		return snap, errs.Caller("contact.Submit", ErrBusy)
	}
	f.stopResetLocked()
	f.status = StatusLoading
	f.fields = fields
	f.errMsg = ""
	loading := f.snapshotLocked()
	f.mu.Unlock()
	f.notify(loading)

	err := f.relay.Send(ctx, Message{Name: fields.Name, Email: fields.Email, Body: fields.Message})

	f.mu.Lock()
	if err != nil {
		f.status = StatusError
		f.errMsg = userMessage(err)
		f.log.Warn("contact relay failed", zap.Error(err))
	} else {
		f.status = StatusSuccess
		f.fields = Fields{}
		if !f.closed {
			gen := f.gen
			f.reset = f.clock.AfterFunc(f.resetAfter, func() { f.resetToIdle(gen) })
		}
		f.log.Info("contact message relayed")
	}
	done := f.snapshotLocked()
	f.mu.Unlock()
	f.notify(done)
	return done, nil
}

// resetToIdle runs when the success timer of generation gen fires. A timer
// that fired after a newer submit began is ignored.
func (f *Form) resetToIdle(gen uint64) {
	f.mu.Lock()
	if gen != f.gen || f.status != StatusSuccess {
		f.mu.Unlock()
		return
	}
	f.status = StatusIdle
	f.reset = nil
	snap := f.snapshotLocked()
	f.mu.Unlock()
	f.notify(snap)
}

// Close cancels a pending reset. The form stays usable.
func (f *Form) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.stopResetLocked()
}

func (f *Form) stopResetLocked() {
	f.gen++
	if f.reset != nil {
		f.reset.Stop()
		f.reset = nil
	}
}

func (f *Form) notify(s Snapshot) {
	for _, obs := range f.observers {
		obs(s)
	}
}
