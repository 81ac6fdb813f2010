// Package carousel holds the project showcase state: which project is shown,
// through which device frame, and whether the fullscreen preview is open.
package carousel

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Zachkp/folio/errs"
)

// DefaultInterval between auto-advances.
const DefaultInterval = 8 * time.Second

var (
	ErrNoProjects          = errors.New("project list is empty")
	ErrMissingScreenshot   = errors.New("project is missing a device screenshot")
	ErrIndexOutOfRange     = errors.New("project index out of range")
	ErrUnknownDevice       = errors.New("unknown device")
	ErrNonPositiveInterval = errors.New("auto-advance interval must be positive")
)

// Device is a display context for a project screenshot.
type Device string

const (
	Desktop Device = "desktop"
	Tablet  Device = "tablet"
	Mobile  Device = "mobile"
)

// Devices lists the recognized devices in display order.
var Devices = []Device{Desktop, Tablet, Mobile}

// Valid reports whether d is one of Devices.
func (d Device) Valid() bool {
	switch d {
	case Desktop, Tablet, Mobile:
		return true
	}
	return false
}

// ParseDevice converts user input into a Device.
func ParseDevice(s string) (Device, error) {
	d := Device(s)
	if !d.Valid() {
		return "", errs.Caller("carousel.ParseDevice", ErrUnknownDevice).With("device", s)
	}
	return d, nil
}

// Project is one showcase entry. Projects are never mutated after load.
type Project struct {
	ID          int               `yaml:"id" json:"id"`
	Title       string            `yaml:"title" json:"title"`
	Description string            `yaml:"description" json:"description"`
	Screenshots map[Device]string `yaml:"screenshots" json:"screenshots"`
	Tech        []string          `yaml:"tech" json:"tech"`
	Features    []string          `yaml:"features" json:"features"`
	Color       string            `yaml:"color" json:"color"`
}

// Validate checks that every device has a screenshot.
func (p Project) Validate() error {
	for _, d := range Devices {
		if p.Screenshots[d] == "" {
			return errs.Config("carousel.Project", ErrMissingScreenshot).
				With("project", p.ID).With("device", string(d))
		}
	}
	return nil
}

// View is a snapshot of the controller handed to rendering surfaces.
type View struct {
	Index      int     `json:"index"`
	Count      int     `json:"count"`
	Project    Project `json:"project"`
	Device     Device  `json:"device"`
	Screenshot string  `json:"screenshot"`
	Fullscreen bool    `json:"fullscreen"`
}

// Position renders the 1-based counter, e.g. "02/06".
func (v View) Position() string {
	return fmt.Sprintf("%02d/%02d", v.Index+1, v.Count)
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock driving auto-advance.
func WithClock(c clockwork.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithInterval sets the auto-advance interval.
func WithInterval(d time.Duration) Option {
	return func(ctl *Controller) { ctl.interval = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(ctl *Controller) { ctl.log = l }
}

// WithObserver registers fn to receive the View after every state change.
// Observers run under the controller's lock, in transition order, and must
// not call back into the Controller.
func WithObserver(fn func(View)) Option {
	return func(ctl *Controller) { ctl.observers = append(ctl.observers, fn) }
}

// Controller owns the carousel state. All transitions are serialized, so the
// auto-advance timer and request handlers can call it concurrently.
type Controller struct {
	mu         sync.Mutex
	projects   []Project
	index      int
	device     Device
	fullscreen bool

	clock     clockwork.Clock
	interval  time.Duration
	log       *zap.Logger
	observers []func(View)

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// New builds a controller over projects, starting at the first project in the
// desktop view. An empty list or an incomplete project is a config error.
func New(projects []Project, opts ...Option) (*Controller, error) {
	if len(projects) == 0 {
		return nil, errs.Config("carousel.New", ErrNoProjects)
	}
	for _, p := range projects {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	c := &Controller{
		projects: append([]Project(nil), projects...),
		device:   Desktop,
		clock:    clockwork.NewRealClock(),
		interval: DefaultInterval,
		log:      zap.NewNop(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.interval <= 0 {
		return nil, errs.Config("carousel.New", ErrNonPositiveInterval).With("interval", c.interval.String())
	}
	return c, nil
}

// Start launches the auto-advance timer. Later calls do nothing.
func (c *Controller) Start() {
	c.startOnce.Do(func() {
		ticker := c.clock.NewTicker(c.interval)
		go c.autoAdvance(ticker)
	})
}

func (c *Controller) autoAdvance(ticker clockwork.Ticker) {
	defer close(c.done)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.Chan():
			c.Next()
		}
	}
}

// Close stops auto-advance. It is safe to call more than once, and before Start.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		started := true
		c.startOnce.Do(func() { started = false })
		if started {
			<-c.done
		}
		c.log.Debug("carousel closed")
	})
}

// Next moves to the following project, wrapping to the first.
func (c *Controller) Next() {
	c.mutate(func() { c.index = (c.index + 1) % len(c.projects) })
}

// Previous moves to the preceding project, wrapping to the last.
func (c *Controller) Previous() {
	n := len(c.projects)
	c.mutate(func() { c.index = (c.index - 1 + n) % n })
}

// SelectProject jumps to index. Out-of-range indexes leave state unchanged.
func (c *Controller) SelectProject(index int) error {
	if index < 0 || index >= len(c.projects) {
		return errs.Caller("carousel.SelectProject", ErrIndexOutOfRange).
			With("index", index).With("count", len(c.projects))
	}
	c.mutate(func() { c.index = index })
	return nil
}

// SelectDevice switches the device view. Unknown devices leave state unchanged.
func (c *Controller) SelectDevice(d Device) error {
	if !d.Valid() {
		return errs.Caller("carousel.SelectDevice", ErrUnknownDevice).With("device", string(d))
	}
	c.mutate(func() { c.device = d })
	return nil
}

// OpenFullscreen shows the fullscreen preview.
func (c *Controller) OpenFullscreen() {
	c.mutate(func() { c.fullscreen = true })
}

// CloseFullscreen hides the fullscreen preview.
func (c *Controller) CloseFullscreen() {
	c.mutate(func() { c.fullscreen = false })
}

// CurrentProject returns the active project.
func (c *Controller) CurrentProject() Project {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projects[c.index]
}

// CurrentScreenshot returns the active project's image for the active device.
func (c *Controller) CurrentScreenshot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projects[c.index].Screenshots[c.device]
}

// Projects returns the dataset in carousel order.
func (c *Controller) Projects() []Project {
	return append([]Project(nil), c.projects...)
}

// View returns a snapshot of the current state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	p := c.projects[c.index]
	return View{
		Index:      c.index,
		Count:      len(c.projects),
		Project:    p,
		Device:     c.device,
		Screenshot: p.Screenshots[c.device],
		Fullscreen: c.fullscreen,
	}
}

// mutate applies fn under the lock and notifies observers when state changed.
func (c *Controller) mutate(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	before := c.viewLocked()
	fn()
	after := c.viewLocked()

	if before.Index == after.Index && before.Device == after.Device && before.Fullscreen == after.Fullscreen {
		return
	}
	for _, obs := range c.observers {
		obs(after)
	}
}
