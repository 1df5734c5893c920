// Package notify keeps the undoable toasts raised by completions and expires
// them through the scheduler.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sandeepkv93/optixflow/internal/scheduler"
	"github.com/sandeepkv93/optixflow/internal/tasksync"
)

// DefaultWindow matches the toaster's default display time.
const DefaultWindow = 4 * time.Second

// KindToast tags scheduler events owned by the center.
const KindToast = "toast"

var ErrToastNotFound = errors.New("notify: toast not found")

type Toast struct {
	ID        string
	Title     string
	TaskID    string
	SubtaskID string
	Undo      *tasksync.Undo
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Scheduler is the timed-event engine the center expires toasts on.
type Scheduler interface {
	Schedule(ev scheduler.Event) error
	Cancel(id string) bool
	C() <-chan scheduler.Event
}

type Options struct {
	Window time.Duration
	Logger *slog.Logger
	Now    func() time.Time
	// Buffer sizes the expired-toast channel.
	Buffer int
}

type Center struct {
	sched  Scheduler
	window time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	toasts []Toast
	seq    int

	expired chan string
}

func NewCenter(sched Scheduler, opts Options) *Center {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 16
	}
	return &Center{
		sched:   sched,
		window:  opts.Window,
		logger:  opts.Logger,
		now:     opts.Now,
		expired: make(chan string, opts.Buffer),
	}
}

var _ tasksync.Notifier = (*Center)(nil)

// Notify raises a toast and schedules its expiry.
func (c *Center) Notify(n tasksync.Notification) {
	now := c.now()
	c.mu.Lock()
	c.seq++
	toast := Toast{
		ID:        fmt.Sprintf("toast-%d", c.seq),
		Title:     n.Title,
		TaskID:    n.TaskID,
		SubtaskID: n.SubtaskID,
		Undo:      n.Undo,
		CreatedAt: now,
		ExpiresAt: now.Add(c.window),
	}
	c.toasts = append(c.toasts, toast)
	c.mu.Unlock()

	err := c.sched.Schedule(scheduler.Event{ID: toast.ID, Kind: KindToast, TriggerAt: toast.ExpiresAt})
	if err != nil {
		c.logger.Warn("toast expiry not scheduled, expiring now", "toast", toast.ID, "err", err)
		c.Expire(toast.ID)
	}
}

// Run expires toasts as the scheduler reports them, until ctx is done or the
// scheduler stops.
func (c *Center) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.sched.C():
			if !ok {
				return
			}
			if ev.Kind == KindToast {
				c.Expire(ev.ID)
			}
		}
	}
}

// Expire removes the toast and disables its undo.
func (c *Center) Expire(id string) bool {
	toast, ok := c.take(id)
	if !ok {
		return false
	}
	toast.Undo.Expire()
	select {
	case c.expired <- id:
	default:
		c.logger.Debug("expired toast not delivered, consumer is slow", "toast", id)
	}
	return true
}

// Undo applies the toast's undo once and dismisses the toast.
func (c *Center) Undo(ctx context.Context, id string) (tasksync.Receipt, error) {
	toast, ok := c.take(id)
	if !ok {
		return tasksync.Receipt{}, fmt.Errorf("%w: %s", ErrToastNotFound, id)
	}
	c.sched.Cancel(id)
	rec, applied := toast.Undo.Apply(ctx)
	if !applied {
		return rec, tasksync.ErrUndoUnavailable
	}
	return rec, rec.Err
}

// Latest is the newest active toast.
func (c *Center) Latest() (Toast, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.toasts) == 0 {
		return Toast{}, false
	}
	return c.toasts[len(c.toasts)-1], true
}

// Active lists live toasts, oldest first.
func (c *Center) Active() []Toast {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Toast(nil), c.toasts...)
}

// C delivers ids of expired toasts.
func (c *Center) C() <-chan string {
	return c.expired
}

func (c *Center) take(id string) (Toast, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.toasts {
		if t.ID == id {
			c.toasts = append(c.toasts[:i:i], c.toasts[i+1:]...)
			return t, true
		}
	}
	return Toast{}, false
}
