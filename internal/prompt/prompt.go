// Package prompt renders the break reminder as a freedesktop desktop
// notification and reports back how the user made it go away.
package prompt

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/takefive/takefive/internal/schedule"
)

const (
	notifyDest      = "org.freedesktop.Notifications"
	notifyInterface = "org.freedesktop.Notifications"

	notificationClosed = notifyInterface + ".NotificationClosed"
	actionInvoked      = notifyInterface + ".ActionInvoked"

	postponeActionKey = "postpone"
)

var notifyPath = dbus.ObjectPath("/org/freedesktop/Notifications")

// NotificationClosed reason codes defined by the freedesktop protocol.
const (
	closeExpired   uint32 = 1
	closeDismissed uint32 = 2
	closeCalled    uint32 = 3
)

// Options configures the reminder notification.
type Options struct {
	Summary     string
	Body        string
	ActionLabel string

	// OnResult receives the close reason for each shown reminder. It runs
	// on the presenter's signal goroutine.
	OnResult func(schedule.CloseReason)
}

type caller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

type signalBus interface {
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
}

// DBusPresenter shows the break reminder through org.freedesktop.Notifications.
// Show and Close are called from the scheduler loop; close reports arrive on
// the session bus and are forwarded through Options.OnResult.
type DBusPresenter struct {
	bus  signalBus
	obj  caller
	opts Options
	log  *slog.Logger

	signals chan *dbus.Signal
	done    chan struct{}

	mu sync.Mutex
	// current is the visible notification, or zero.
	current uint32
	// closing is a notification we withdrew ourselves and whose close
	// signal is still in flight.
	closing uint32
	// resolved is a notification already reported through ActionInvoked;
	// the NotificationClosed that trails it must not be reported twice.
	resolved uint32
}

// NewDBusPresenter connects the presenter to the session notification service.
func NewDBusPresenter(conn *dbus.Conn, opts Options, log *slog.Logger) (*DBusPresenter, error) {
	return newDBusPresenter(conn, conn.Object(notifyDest, notifyPath), opts, log)
}

func newDBusPresenter(bus signalBus, obj caller, opts Options, log *slog.Logger) (*DBusPresenter, error) {
	if opts.ActionLabel == "" {
		opts.ActionLabel = "Postpone"
	}
	if log == nil {
		log = slog.Default()
	}

	var name, vendor, version, specVersion string
	call := obj.Call(notifyInterface+".GetServerInformation", 0)
	if err := call.Store(&name, &vendor, &version, &specVersion); err != nil {
		return nil, fmt.Errorf("probe notification service: %w", err)
	}

	if err := bus.AddMatchSignal(
		dbus.WithMatchObjectPath(notifyPath),
		dbus.WithMatchInterface(notifyInterface),
	); err != nil {
		return nil, fmt.Errorf("subscribe to notification signals: %w", err)
	}

	p := &DBusPresenter{
		bus:     bus,
		obj:     obj,
		opts:    opts,
		log:     log,
		signals: make(chan *dbus.Signal, 16),
		done:    make(chan struct{}),
	}
	bus.Signal(p.signals)
	go p.pump()

	p.log.Debug("prompt.connected", "server", name, "vendor", vendor)
	return p, nil
}

// Show raises the reminder notification. Showing while one is already visible
// is a no-op.
func (p *DBusPresenter) Show() error {
	p.mu.Lock()
	if p.current != 0 {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	actions := []string{postponeActionKey, p.opts.ActionLabel}
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(2)),
	}

	var id uint32
	call := p.obj.Call(notifyInterface+".Notify", 0,
		"takefive", uint32(0), "", p.opts.Summary, p.opts.Body,
		actions, hints, int32(0))
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("show notification: %w", err)
	}

	p.mu.Lock()
	p.current = id
	p.mu.Unlock()

	p.log.Debug("prompt.shown", "notification_id", id)
	return nil
}

// Close withdraws the visible notification, if any. The server confirms with
// a NotificationClosed signal which is reported as a programmatic close.
func (p *DBusPresenter) Close() error {
	p.mu.Lock()
	id := p.current
	p.current = 0
	if id != 0 {
		p.closing = id
	}
	p.mu.Unlock()

	if id == 0 {
		return nil
	}
	if err := p.obj.Call(notifyInterface+".CloseNotification", 0, id).Err; err != nil {
		return fmt.Errorf("close notification: %w", err)
	}
	return nil
}

// Stop tears down the signal subscription. Any visible notification is left
// to the scheduler, which withdraws it during shutdown before Stop runs.
func (p *DBusPresenter) Stop() {
	p.bus.RemoveSignal(p.signals)
	close(p.done)
	_ = p.bus.RemoveMatchSignal(
		dbus.WithMatchObjectPath(notifyPath),
		dbus.WithMatchInterface(notifyInterface),
	)
}

func (p *DBusPresenter) pump() {
	for {
		select {
		case <-p.done:
			return
		case sig, ok := <-p.signals:
			if !ok {
				return
			}
			p.dispatch(sig)
		}
	}
}

func (p *DBusPresenter) dispatch(sig *dbus.Signal) {
	if sig == nil {
		return
	}
	switch sig.Name {
	case actionInvoked:
		if len(sig.Body) != 2 {
			return
		}
		id, ok := sig.Body[0].(uint32)
		if !ok {
			return
		}
		key, ok := sig.Body[1].(string)
		if !ok {
			return
		}
		p.handleAction(id, key)
	case notificationClosed:
		if len(sig.Body) != 2 {
			return
		}
		id, ok := sig.Body[0].(uint32)
		if !ok {
			return
		}
		code, ok := sig.Body[1].(uint32)
		if !ok {
			return
		}
		p.handleClosed(id, code)
	}
}

func (p *DBusPresenter) handleAction(id uint32, key string) {
	p.mu.Lock()
	if id == 0 || id != p.current {
		p.mu.Unlock()
		return
	}
	p.current = 0
	// The server still emits NotificationClosed for the invoked
	// notification; mark it reported so that signal is swallowed.
	p.resolved = id
	p.mu.Unlock()

	p.log.Debug("prompt.action", "notification_id", id, "action", key)
	p.report(schedule.CloseActionInvoked)
}

func (p *DBusPresenter) handleClosed(id uint32, code uint32) {
	p.mu.Lock()
	switch {
	case id == 0:
		p.mu.Unlock()
		return
	case id == p.resolved:
		p.resolved = 0
		p.mu.Unlock()
		return
	case id == p.closing:
		p.closing = 0
		p.mu.Unlock()
		p.log.Debug("prompt.closed", "notification_id", id, "close_code", code)
		p.report(schedule.CloseProgrammatic)
		return
	case id == p.current:
		p.current = 0
		p.mu.Unlock()
		p.log.Debug("prompt.closed", "notification_id", id, "close_code", code)
		p.report(mapCloseCode(code))
		return
	}
	p.mu.Unlock()
}

func (p *DBusPresenter) report(reason schedule.CloseReason) {
	if p.opts.OnResult != nil {
		p.opts.OnResult(reason)
	}
}

// mapCloseCode translates a NotificationClosed reason code into a
// CloseReason. Expiry counts as a dismissal so the reminder is re-raised even
// on servers that time notifications out on their own.
func mapCloseCode(code uint32) schedule.CloseReason {
	switch code {
	case closeCalled:
		return schedule.CloseProgrammatic
	case closeDismissed, closeExpired:
		return schedule.CloseUserDismissed
	default:
		return schedule.CloseUserDismissed
	}
}
