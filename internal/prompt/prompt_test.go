package prompt

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/takefive/takefive/internal/schedule"
)

func TestNewDBusPresenter_ProbeFailureSurfaces(t *testing.T) {
	obj := newFakeCaller()
	obj.reply[notifyInterface+".GetServerInformation"] = &dbus.Call{Err: errors.New("name has no owner")}

	_, err := newDBusPresenter(&fakeSignalBus{}, obj, Options{}, slog.New(slog.DiscardHandler))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "probe notification service") {
		t.Fatalf("error = %q, want probe context", err)
	}
}

func TestNewDBusPresenter_SubscribeFailureSurfaces(t *testing.T) {
	bus := &fakeSignalBus{addErr: errors.New("match rejected")}

	_, err := newDBusPresenter(bus, newFakeCaller(), Options{}, slog.New(slog.DiscardHandler))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "subscribe to notification signals") {
		t.Fatalf("error = %q, want subscribe context", err)
	}
}

func TestDBusPresenter_ShowSendsUrgentNotification(t *testing.T) {
	h := newPresenterHarness(t, Options{
		Summary:     "Time for a break",
		Body:        "Step away from the screen for a few minutes.",
		ActionLabel: "Snooze",
	})

	if err := h.p.Show(); err != nil {
		t.Fatalf("show: %v", err)
	}

	call := h.obj.find(notifyInterface + ".Notify")
	if call == nil {
		t.Fatal("Notify was never called")
	}
	if got := call.args[0]; got != "takefive" {
		t.Fatalf("app name = %v, want takefive", got)
	}
	if got := call.args[3]; got != "Time for a break" {
		t.Fatalf("summary = %v", got)
	}
	wantActions := []string{"postpone", "Snooze"}
	if !reflect.DeepEqual(call.args[5], wantActions) {
		t.Fatalf("actions = %v, want %v", call.args[5], wantActions)
	}
	hints, ok := call.args[6].(map[string]dbus.Variant)
	if !ok {
		t.Fatalf("hints have type %T", call.args[6])
	}
	if urgency := hints["urgency"].Value(); urgency != byte(2) {
		t.Fatalf("urgency = %v, want critical", urgency)
	}
	if got := call.args[7]; got != int32(0) {
		t.Fatalf("expire timeout = %v, want 0", got)
	}

	// A second Show while the reminder is visible must not stack another
	// notification on top of it.
	if err := h.p.Show(); err != nil {
		t.Fatalf("second show: %v", err)
	}
	if n := h.obj.count(notifyInterface + ".Notify"); n != 1 {
		t.Fatalf("Notify calls = %d, want 1", n)
	}
}

func TestDBusPresenter_DefaultActionLabel(t *testing.T) {
	h := newPresenterHarness(t, Options{Summary: "Break"})

	if err := h.p.Show(); err != nil {
		t.Fatalf("show: %v", err)
	}

	call := h.obj.find(notifyInterface + ".Notify")
	if call == nil {
		t.Fatal("Notify was never called")
	}
	wantActions := []string{"postpone", "Postpone"}
	if !reflect.DeepEqual(call.args[5], wantActions) {
		t.Fatalf("actions = %v, want %v", call.args[5], wantActions)
	}
}

func TestDBusPresenter_DismissalReportsUserDismissed(t *testing.T) {
	h := newPresenterHarness(t, Options{Summary: "Break"})
	id := h.show()

	h.bus.emit(t, closedSignal(id, closeDismissed))
	h.waitReason(schedule.CloseUserDismissed)
}

func TestDBusPresenter_ServerExpiryCountsAsDismissal(t *testing.T) {
	h := newPresenterHarness(t, Options{Summary: "Break"})
	id := h.show()

	h.bus.emit(t, closedSignal(id, closeExpired))
	h.waitReason(schedule.CloseUserDismissed)
}

func TestDBusPresenter_UndefinedCloseCodeCountsAsDismissal(t *testing.T) {
	h := newPresenterHarness(t, Options{Summary: "Break"})
	id := h.show()

	h.bus.emit(t, closedSignal(id, 4))
	h.waitReason(schedule.CloseUserDismissed)
}

func TestDBusPresenter_ActionThenCloseReportsOnce(t *testing.T) {
	h := newPresenterHarness(t, Options{Summary: "Break"})
	id := h.show()

	h.bus.emit(t, actionSignal(id, postponeActionKey))
	h.waitReason(schedule.CloseActionInvoked)

	// Servers follow an invoked action with NotificationClosed for the
	// same id; that trailing signal must not produce a second report.
	h.bus.emit(t, closedSignal(id, closeCalled))

	next := h.show()
	h.bus.emit(t, closedSignal(next, closeDismissed))
	h.waitReason(schedule.CloseUserDismissed)
	h.expectNoMoreReports()
}

func TestDBusPresenter_CloseWithdrawsAndReportsProgrammatic(t *testing.T) {
	h := newPresenterHarness(t, Options{Summary: "Break"})
	id := h.show()

	if err := h.p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	call := h.obj.find(notifyInterface + ".CloseNotification")
	if call == nil {
		t.Fatal("CloseNotification was never called")
	}
	if got := call.args[0]; got != id {
		t.Fatalf("CloseNotification id = %v, want %d", got, id)
	}

	h.bus.emit(t, closedSignal(id, closeCalled))
	h.waitReason(schedule.CloseProgrammatic)

	// The notification is already gone, so another Close stays quiet.
	if err := h.p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if n := h.obj.count(notifyInterface + ".CloseNotification"); n != 1 {
		t.Fatalf("CloseNotification calls = %d, want 1", n)
	}
}

func TestDBusPresenter_CloseWithoutVisibleIsNoOp(t *testing.T) {
	h := newPresenterHarness(t, Options{Summary: "Break"})

	if err := h.p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if n := h.obj.count(notifyInterface + ".CloseNotification"); n != 0 {
		t.Fatalf("CloseNotification calls = %d, want 0", n)
	}
}

func TestDBusPresenter_IgnoresForeignNotifications(t *testing.T) {
	h := newPresenterHarness(t, Options{Summary: "Break"})
	id := h.show()

	h.bus.emit(t, closedSignal(9999, closeDismissed))
	h.bus.emit(t, actionSignal(9999, postponeActionKey))
	h.bus.emit(t, closedSignal(id, closeDismissed))

	h.waitReason(schedule.CloseUserDismissed)
	h.expectNoMoreReports()
}

func TestDBusPresenter_StopRemovesSubscription(t *testing.T) {
	h := newPresenterHarness(t, Options{Summary: "Break"})

	h.p.Stop()

	if !h.bus.signalRemoved {
		t.Fatal("signal channel was not deregistered")
	}
	if h.bus.matchRemoves != 1 {
		t.Fatalf("match removes = %d, want 1", h.bus.matchRemoves)
	}
}

// ─── harness and fakes ───────────────────────────────────────────────────────

type presenterHarness struct {
	t       *testing.T
	obj     *fakeCaller
	bus     *fakeSignalBus
	p       *DBusPresenter
	results chan schedule.CloseReason
}

func newPresenterHarness(t *testing.T, opts Options) *presenterHarness {
	t.Helper()
	h := &presenterHarness{
		t:       t,
		obj:     newFakeCaller(),
		bus:     &fakeSignalBus{},
		results: make(chan schedule.CloseReason, 4),
	}
	opts.OnResult = func(r schedule.CloseReason) { h.results <- r }
	p, err := newDBusPresenter(h.bus, h.obj, opts, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("new presenter: %v", err)
	}
	h.p = p
	return h
}

// show raises the reminder and returns the notification id the fake server
// assigned to it.
func (h *presenterHarness) show() uint32 {
	h.t.Helper()
	if err := h.p.Show(); err != nil {
		h.t.Fatalf("show: %v", err)
	}
	return h.obj.lastNotifyID()
}

func (h *presenterHarness) waitReason(want schedule.CloseReason) {
	h.t.Helper()
	select {
	case got := <-h.results:
		if got != want {
			h.t.Fatalf("reported %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		h.t.Fatalf("timed out waiting for %v report", want)
	}
}

func (h *presenterHarness) expectNoMoreReports() {
	h.t.Helper()
	select {
	case extra := <-h.results:
		h.t.Fatalf("unexpected extra report %v", extra)
	default:
	}
}

type recordedCall struct {
	method string
	args   []interface{}
}

type fakeCaller struct {
	mu     sync.Mutex
	calls  []recordedCall
	reply  map[string]*dbus.Call
	nextID uint32
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		nextID: 41,
		reply: map[string]*dbus.Call{
			notifyInterface + ".GetServerInformation": {Body: []interface{}{"fake-notifyd", "takefive-tests", "1.0", "1.2"}},
			notifyInterface + ".CloseNotification":    {},
		},
	}
}

func (c *fakeCaller) Call(method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, recordedCall{method: method, args: args})
	if reply, ok := c.reply[method]; ok {
		return reply
	}
	if method == notifyInterface+".Notify" {
		c.nextID++
		return &dbus.Call{Body: []interface{}{c.nextID}}
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

func (c *fakeCaller) count(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.method == method {
			n++
		}
	}
	return n
}

func (c *fakeCaller) lastNotifyID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextID
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

func closedSignal(id, code uint32) *dbus.Signal {
	return &dbus.Signal{Path: notifyPath, Name: notificationClosed, Body: []interface{}{id, code}}
}

func actionSignal(id uint32, key string) *dbus.Signal {
	return &dbus.Signal{Path: notifyPath, Name: actionInvoked, Body: []interface{}{id, key}}
}
