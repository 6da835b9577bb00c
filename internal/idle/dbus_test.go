package idle

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
)

func TestNewDBusMonitor_ProbeFailureSurfaces(t *testing.T) {
	obj := newFakeCaller()
	obj.reply[mutterInterface+".GetIdletime"] = &dbus.Call{Err: errors.New("name has no owner")}

	_, err := newDBusMonitor(&fakeSignalBus{}, obj)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "probe mutter idle monitor") {
		t.Fatalf("error = %q, want probe context", err)
	}
}

func TestNewDBusMonitor_SubscribeFailureSurfaces(t *testing.T) {
	bus := &fakeSignalBus{addErr: errors.New("match rejected")}

	_, err := newDBusMonitor(bus, newFakeCaller())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "subscribe to watch signals") {
		t.Fatalf("error = %q, want subscribe context", err)
	}
}

func TestDBusMonitor_IdleWatchFiresPerSignal(t *testing.T) {
	obj := newFakeCaller()
	bus := &fakeSignalBus{}
	m, err := newDBusMonitor(bus, obj)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}

	fired := make(chan string, 4)
	if err := m.WatchIdle(2*time.Second, func() { fired <- "idle" }); err != nil {
		t.Fatalf("watch idle: %v", err)
	}

	added := obj.find(mutterInterface + ".AddIdleWatch")
	if added == nil {
		t.Fatal("AddIdleWatch was never called")
	}
	if len(added.args) != 1 || added.args[0] != uint64(2000) {
		t.Fatalf("AddIdleWatch args = %v, want [2000]", added.args)
	}

	// The idle watch is persistent: one callback per episode, every episode.
	bus.emit(t, watchFiredSignal(7))
	waitFired(t, fired, "idle")
	bus.emit(t, watchFiredSignal(7))
	waitFired(t, fired, "idle")
}

func TestDBusMonitor_ActiveWatchFiresOnce(t *testing.T) {
	obj := newFakeCaller()
	bus := &fakeSignalBus{}
	m, err := newDBusMonitor(bus, obj)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}

	fired := make(chan string, 4)
	if err := m.WatchIdle(time.Second, func() { fired <- "idle" }); err != nil {
		t.Fatalf("watch idle: %v", err)
	}
	if err := m.WatchActive(func() { fired <- "active" }); err != nil {
		t.Fatalf("watch active: %v", err)
	}

	bus.emit(t, watchFiredSignal(9))
	waitFired(t, fired, "active")

	// A duplicate fire for the consumed watch is dropped; the idle signal
	// after it proves the duplicate was processed and ignored.
	bus.emit(t, watchFiredSignal(9))
	bus.emit(t, watchFiredSignal(7))
	waitFired(t, fired, "idle")
}

func TestDBusMonitor_IgnoresUnrelatedSignals(t *testing.T) {
	obj := newFakeCaller()
	bus := &fakeSignalBus{}
	m, err := newDBusMonitor(bus, obj)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}

	fired := make(chan string, 4)
	if err := m.WatchIdle(time.Second, func() { fired <- "idle" }); err != nil {
		t.Fatalf("watch idle: %v", err)
	}

	bus.emit(t, &dbus.Signal{Name: "org.freedesktop.DBus.NameAcquired", Body: []interface{}{uint32(7)}})
	bus.emit(t, watchFiredSignal(55))
	bus.emit(t, &dbus.Signal{Name: watchFired, Body: []interface{}{"seven"}})
	bus.emit(t, watchFiredSignal(7))

	waitFired(t, fired, "idle")
	select {
	case extra := <-fired:
		t.Fatalf("unexpected extra callback %q", extra)
	default:
	}
}

func TestDBusMonitor_SubMillisecondThresholdClamped(t *testing.T) {
	obj := newFakeCaller()
	m, err := newDBusMonitor(&fakeSignalBus{}, obj)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}

	if err := m.WatchIdle(100*time.Microsecond, func() {}); err != nil {
		t.Fatalf("watch idle: %v", err)
	}

	added := obj.find(mutterInterface + ".AddIdleWatch")
	if added == nil {
		t.Fatal("AddIdleWatch was never called")
	}
	if added.args[0] != uint64(1) {
		t.Fatalf("AddIdleWatch args = %v, want clamp to 1ms", added.args)
	}
}

func TestDBusMonitor_WatchRegistrationErrorsSurface(t *testing.T) {
	obj := newFakeCaller()
	obj.reply[mutterInterface+".AddIdleWatch"] = &dbus.Call{Err: errors.New("boom")}
	obj.reply[mutterInterface+".AddUserActiveWatch"] = &dbus.Call{Err: errors.New("boom")}

	m, err := newDBusMonitor(&fakeSignalBus{}, obj)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}

	if err := m.WatchIdle(time.Second, func() {}); err == nil || !strings.Contains(err.Error(), "add idle watch") {
		t.Fatalf("WatchIdle error = %v, want add idle watch context", err)
	}
	if err := m.WatchActive(func() {}); err == nil || !strings.Contains(err.Error(), "add active watch") {
		t.Fatalf("WatchActive error = %v, want add active watch context", err)
	}
}

func TestDBusMonitor_CloseRemovesWatchesAndSubscription(t *testing.T) {
	obj := newFakeCaller()
	bus := &fakeSignalBus{}
	m, err := newDBusMonitor(bus, obj)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}

	if err := m.WatchIdle(time.Second, func() {}); err != nil {
		t.Fatalf("watch idle: %v", err)
	}
	if err := m.WatchActive(func() {}); err != nil {
		t.Fatalf("watch active: %v", err)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !bus.signalRemoved {
		t.Fatal("signal channel was not deregistered")
	}
	if bus.matchRemoves != 1 {
		t.Fatalf("match removes = %d, want 1", bus.matchRemoves)
	}

	var removed []interface{}
	for _, call := range obj.snapshot() {
		if call.method == mutterInterface+".RemoveWatch" {
			removed = append(removed, call.args[0])
		}
	}
	if len(removed) != 2 {
		t.Fatalf("RemoveWatch calls = %v, want both watch ids", removed)
	}
}

// ─── fakes ───────────────────────────────────────────────────────────────────

type recordedCall struct {
	method string
	args   []interface{}
}

type fakeCaller struct {
	mu    sync.Mutex
	calls []recordedCall
	reply map[string]*dbus.Call
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{reply: map[string]*dbus.Call{
		mutterInterface + ".GetIdletime":        {Body: []interface{}{uint64(0)}},
		mutterInterface + ".AddIdleWatch":       {Body: []interface{}{uint32(7)}},
		mutterInterface + ".AddUserActiveWatch": {Body: []interface{}{uint32(9)}},
		mutterInterface + ".RemoveWatch":        {},
	}}
}

func (c *fakeCaller) Call(method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, recordedCall{method: method, args: args})
	if reply, ok := c.reply[method]; ok {
		return reply
	}
	return &dbus.Call{Err: fmt.Errorf("unexpected method %s", method)}
}

func (c *fakeCaller) find(method string) *recordedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.calls {
		if c.calls[i].method == method {
			return &c.calls[i]
		}
	}
	return nil
}

func (c *fakeCaller) snapshot() []recordedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]recordedCall(nil), c.calls...)
}

type fakeSignalBus struct {
	addErr        error
	matchAdds     int
	matchRemoves  int
	ch            chan<- *dbus.Signal
	signalRemoved bool
}

func (b *fakeSignalBus) AddMatchSignal(_ ...dbus.MatchOption) error {
	b.matchAdds++
	return b.addErr
}

func (b *fakeSignalBus) RemoveMatchSignal(_ ...dbus.MatchOption) error {
	b.matchRemoves++
	return nil
}

func (b *fakeSignalBus) Signal(ch chan<- *dbus.Signal) {
	b.ch = ch
}

func (b *fakeSignalBus) RemoveSignal(_ chan<- *dbus.Signal) {
	b.signalRemoved = true
}

func (b *fakeSignalBus) emit(t *testing.T, sig *dbus.Signal) {
	t.Helper()
	if b.ch == nil {
		t.Fatal("no signal channel registered")
	}
	b.ch <- sig
}

func watchFiredSignal(id uint32) *dbus.Signal {
	return &dbus.Signal{
		Path: mutterPath,
		Name: watchFired,
		Body: []interface{}{id},
	}
}

func waitFired(t *testing.T, fired <-chan string, want string) {
	t.Helper()
	select {
	case got := <-fired:
		if got != want {
			t.Fatalf("fired %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q callback", want)
	}
}
