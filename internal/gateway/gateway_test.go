package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/verdancy/verdant-core/internal/infrastructure/mqtt"
)

// fakeBroker simulates the MQTT client and, optionally, a switch
// bridge that echoes commands back as state reports.
type fakeBroker struct {
	mu        sync.Mutex
	connected bool
	published []string // "topic payload"
	handler   mqtt.MessageHandler

	// echoAfter replays each command to the state topic after the
	// given number of commands have been dropped. 0 echoes every
	// command immediately.
	echoAfter int
	dropped   int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{connected: true}
}

func (b *fakeBroker) PublishString(topic string, payload string, _ byte, _ bool) error {
	b.mu.Lock()
	b.published = append(b.published, topic+" "+payload)
	handler := b.handler
	echo := false
	if strings.Contains(topic, "/command/switch/") {
		if b.dropped >= b.echoAfter {
			echo = true
		} else {
			b.dropped++
		}
	}
	b.mu.Unlock()

	if echo && handler != nil {
		ref := topic[strings.LastIndex(topic, "/")+1:]
		stateTopic := mqtt.Topics{}.SwitchState(ref)
		// The bridge replies asynchronously.
		go handler(stateTopic, []byte(payload)) //nolint:errcheck // test echo
	}
	return nil
}

func (b *fakeBroker) Subscribe(_ string, _ byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
	return nil
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) commandCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, p := range b.published {
		if strings.Contains(p, "/command/switch/") {
			n++
		}
	}
	return n
}

// mockAlerter records raised alerts.
type mockAlerter struct {
	mu        sync.Mutex
	warnings  []string
	criticals []string
}

func (m *mockAlerter) Warning(source, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnings = append(m.warnings, source+": "+message)
}

func (m *mockAlerter) Critical(source, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.criticals = append(m.criticals, source+": "+message)
}

func testOptions() Options {
	return Options{
		CommandTimeout: 100 * time.Millisecond,
		RetryAttempts:  3,
		RetryBaseDelay: 10 * time.Millisecond,
	}
}

// ─── Command delivery ───

func TestMQTTSwitcher_TurnOnConfirmed(t *testing.T) {
	broker := newFakeBroker()
	sw := NewMQTTSwitcher(broker, testOptions())
	if err := sw.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := sw.TurnOn(context.Background(), "valve-bed-1"); err != nil {
		t.Fatalf("TurnOn failed: %v", err)
	}

	on, known := sw.ObservedState("valve-bed-1")
	if !known || !on {
		t.Errorf("expected observed on, got on=%v known=%v", on, known)
	}
	if broker.commandCount() != 1 {
		t.Errorf("expected 1 command, got %d", broker.commandCount())
	}
}

func TestMQTTSwitcher_RetriesUntilConfirmed(t *testing.T) {
	broker := newFakeBroker()
	broker.echoAfter = 2 // first two commands vanish
	sw := NewMQTTSwitcher(broker, testOptions())
	if err := sw.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := sw.TurnOn(context.Background(), "valve-bed-1"); err != nil {
		t.Fatalf("expected third attempt to succeed: %v", err)
	}
	if broker.commandCount() != 3 {
		t.Errorf("expected 3 commands, got %d", broker.commandCount())
	}
}

func TestMQTTSwitcher_TurnOnExhaustedWarns(t *testing.T) {
	broker := newFakeBroker()
	broker.echoAfter = 100 // bridge never answers
	alerts := &mockAlerter{}
	sw := NewMQTTSwitcher(broker, testOptions())
	sw.SetAlerter(alerts)
	if err := sw.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	err := sw.TurnOn(context.Background(), "valve-bed-1")
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("expected ErrCommandFailed, got %v", err)
	}
	if broker.commandCount() != 3 {
		t.Errorf("expected 3 attempts, got %d", broker.commandCount())
	}
	if len(alerts.warnings) != 1 {
		t.Errorf("expected 1 warning alert, got %d", len(alerts.warnings))
	}
	if len(alerts.criticals) != 0 {
		t.Errorf("turn-on failure must not be critical, got %d", len(alerts.criticals))
	}
}

func TestMQTTSwitcher_TurnOffExhaustedCritical(t *testing.T) {
	broker := newFakeBroker()
	broker.echoAfter = 100
	alerts := &mockAlerter{}
	sw := NewMQTTSwitcher(broker, testOptions())
	sw.SetAlerter(alerts)
	if err := sw.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	err := sw.TurnOff(context.Background(), "valve-bed-1")
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("expected ErrCommandFailed, got %v", err)
	}
	if len(alerts.criticals) != 1 {
		t.Fatalf("expected 1 critical alert, got %d", len(alerts.criticals))
	}
	if !strings.Contains(alerts.criticals[0], "valve may be open") {
		t.Errorf("critical alert should flag a possibly open valve: %s", alerts.criticals[0])
	}
}

func TestMQTTSwitcher_NotConnected(t *testing.T) {
	broker := newFakeBroker()
	broker.connected = false
	sw := NewMQTTSwitcher(broker, testOptions())

	err := sw.TurnOn(context.Background(), "valve-bed-1")
	if !errors.Is(err, ErrCommandFailed) {
		t.Errorf("expected ErrCommandFailed, got %v", err)
	}
}

func TestMQTTSwitcher_ContextCancelled(t *testing.T) {
	broker := newFakeBroker()
	broker.echoAfter = 100
	sw := NewMQTTSwitcher(broker, testOptions())
	if err := sw.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sw.TurnOn(ctx, "valve-bed-1")
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestMQTTSwitcher_AlreadyInRequestedState(t *testing.T) {
	broker := newFakeBroker()
	broker.echoAfter = 100 // bridge silent: retained state won't re-report
	sw := NewMQTTSwitcher(broker, testOptions())
	if err := sw.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Retained report arrives before any command.
	if err := sw.handleState("verdant/state/switch/valve-bed-1", []byte("ON")); err != nil {
		t.Fatalf("handleState failed: %v", err)
	}

	if err := sw.TurnOn(context.Background(), "valve-bed-1"); err != nil {
		t.Errorf("commanding the current state should succeed: %v", err)
	}
}

// ─── State observation ───

func TestMQTTSwitcher_StateChangeCallback(t *testing.T) {
	broker := newFakeBroker()
	sw := NewMQTTSwitcher(broker, testOptions())

	var mu sync.Mutex
	var changes []string
	sw.SetOnStateChange(func(ref string, on bool) {
		mu.Lock()
		defer mu.Unlock()
		if on {
			changes = append(changes, ref+"=on")
		} else {
			changes = append(changes, ref+"=off")
		}
	})
	if err := sw.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sw.handleState("verdant/state/switch/valve-bed-1", []byte("ON"))  //nolint:errcheck
	sw.handleState("verdant/state/switch/valve-bed-1", []byte("ON"))  //nolint:errcheck // no change
	sw.handleState("verdant/state/switch/valve-bed-1", []byte("off")) //nolint:errcheck // case-insensitive

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 2 {
		t.Fatalf("expected 2 change callbacks, got %d: %v", len(changes), changes)
	}
	if changes[0] != "valve-bed-1=on" || changes[1] != "valve-bed-1=off" {
		t.Errorf("unexpected changes: %v", changes)
	}
}

func TestMQTTSwitcher_IgnoresGarbagePayload(t *testing.T) {
	sw := NewMQTTSwitcher(newFakeBroker(), testOptions())

	if err := sw.handleState("verdant/state/switch/valve-bed-1", []byte("banana")); err != nil {
		t.Fatalf("garbage payload should be dropped, not errored: %v", err)
	}
	if _, known := sw.ObservedState("valve-bed-1"); known {
		t.Error("garbage payload must not set observed state")
	}
}
