package idle

import (
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	mutterDest      = "org.gnome.Mutter.IdleMonitor"
	mutterInterface = "org.gnome.Mutter.IdleMonitor"

	watchFired = mutterInterface + ".WatchFired"
)

var mutterPath = dbus.ObjectPath("/org/gnome/Mutter/IdleMonitor/Core")

// caller is the slice of dbus.BusObject the monitor needs.
type caller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// signalBus is the slice of *dbus.Conn the monitor needs for signal
// delivery.
type signalBus interface {
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
}

// DBusMonitor tracks user inactivity through the session's Mutter idle
// monitor. Idle and user-active watches are registered with the compositor,
// which fires a WatchFired signal per watch; no polling is involved.
type DBusMonitor struct {
	bus     signalBus
	obj     caller
	signals chan *dbus.Signal
	done    chan struct{}

	// watch ids are 1-based on the compositor side; 0 means unregistered.
	mu            sync.Mutex
	idleWatchID   uint32
	onIdleStart   func()
	activeWatchID uint32
	onActive      func()
}

// NewDBusMonitor connects to the Mutter idle monitor on conn. The
// GetIdletime round trip doubles as the availability probe: no Mutter on
// the bus, no monitor.
func NewDBusMonitor(conn *dbus.Conn) (*DBusMonitor, error) {
	return newDBusMonitor(conn, conn.Object(mutterDest, mutterPath))
}

func newDBusMonitor(bus signalBus, obj caller) (*DBusMonitor, error) {
	var idleMs uint64
	if err := obj.Call(mutterInterface+".GetIdletime", 0).Store(&idleMs); err != nil {
		return nil, fmt.Errorf("probe mutter idle monitor: %w", err)
	}

	if err := bus.AddMatchSignal(
		dbus.WithMatchObjectPath(mutterPath),
		dbus.WithMatchInterface(mutterInterface),
		dbus.WithMatchMember("WatchFired"),
	); err != nil {
		return nil, fmt.Errorf("subscribe to watch signals: %w", err)
	}

	m := &DBusMonitor{
		bus:     bus,
		obj:     obj,
		signals: make(chan *dbus.Signal, 16),
		done:    make(chan struct{}),
	}
	bus.Signal(m.signals)
	go m.pump()

	return m, nil
}

// WatchIdle registers a compositor watch that fires onIdleStart every time
// cumulative inactivity reaches threshold, once per idle episode. The
// callback runs on the monitor's signal goroutine.
func (m *DBusMonitor) WatchIdle(threshold time.Duration, onIdleStart func()) error {
	ms := uint64(threshold / time.Millisecond)
	if ms == 0 {
		ms = 1
	}

	var id uint32
	if err := m.obj.Call(mutterInterface+".AddIdleWatch", 0, ms).Store(&id); err != nil {
		return fmt.Errorf("add idle watch: %w", err)
	}

	m.mu.Lock()
	m.idleWatchID = id
	m.onIdleStart = onIdleStart
	m.mu.Unlock()

	return nil
}

// WatchActive registers a one-shot compositor watch for the next user
// input. Mutter removes the watch itself once it fires.
func (m *DBusMonitor) WatchActive(onActive func()) error {
	var id uint32
	if err := m.obj.Call(mutterInterface+".AddUserActiveWatch", 0).Store(&id); err != nil {
		return fmt.Errorf("add active watch: %w", err)
	}

	m.mu.Lock()
	m.activeWatchID = id
	m.onActive = onActive
	m.mu.Unlock()

	return nil
}

// Close tears down the signal subscription and removes any registered
// watches. Watch removal is best effort; the compositor drops watches with
// the connection anyway.
func (m *DBusMonitor) Close() error {
	m.mu.Lock()
	idleID := m.idleWatchID
	activeID := m.activeWatchID
	m.idleWatchID = 0
	m.activeWatchID = 0
	m.onIdleStart = nil
	m.onActive = nil
	m.mu.Unlock()

	m.bus.RemoveSignal(m.signals)
	close(m.done)
	_ = m.bus.RemoveMatchSignal(
		dbus.WithMatchObjectPath(mutterPath),
		dbus.WithMatchInterface(mutterInterface),
		dbus.WithMatchMember("WatchFired"),
	)

	if idleID != 0 {
		_ = m.obj.Call(mutterInterface+".RemoveWatch", 0, idleID).Err
	}
	if activeID != 0 {
		_ = m.obj.Call(mutterInterface+".RemoveWatch", 0, activeID).Err
	}

	return nil
}

func (m *DBusMonitor) pump() {
	for {
		select {
		case <-m.done:
			return
		case sig, ok := <-m.signals:
			if !ok {
				return
			}
			m.dispatch(sig)
		}
	}
}

func (m *DBusMonitor) dispatch(sig *dbus.Signal) {
	if sig == nil || sig.Name != watchFired || len(sig.Body) == 0 {
		return
	}
	id, ok := sig.Body[0].(uint32)
	if !ok || id == 0 {
		return
	}

	m.mu.Lock()
	var fn func()
	switch id {
	case m.idleWatchID:
		fn = m.onIdleStart
	case m.activeWatchID:
		fn = m.onActive
		m.onActive = nil
		m.activeWatchID = 0
	}
	m.mu.Unlock()

	if fn != nil {
		fn()
	}
}
