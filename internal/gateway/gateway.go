// Package gateway commands valve switches over MQTT and tracks their
// observed state.
//
// The core never talks to relay hardware directly. It publishes ON/OFF
// commands to verdant/command/switch/{ref} and treats the retained
// reports on verdant/state/switch/{ref} as the truth about valve
// position. A command counts as delivered only once the bridge echoes
// the requested state; undelivered commands are retried with
// exponential backoff and then surfaced as an error plus an alert.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/verdancy/verdant-core/internal/infrastructure/mqtt"
)

const (
	payloadOn  = "ON"
	payloadOff = "OFF"
)

// Switcher commands valves by switch_ref.
type Switcher interface {
	// TurnOn opens a valve and waits for confirmation.
	TurnOn(ctx context.Context, switchRef string) error

	// TurnOff closes a valve and waits for confirmation. An
	// unconfirmed turn-off raises a critical alert because the valve
	// may be physically open.
	TurnOff(ctx context.Context, switchRef string) error

	// ObservedState returns the last reported valve position.
	// known is false until the first state report arrives.
	ObservedState(switchRef string) (on bool, known bool)
}

// Broker is the MQTT client surface the gateway needs.
type Broker interface {
	PublishString(topic string, payload string, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Alerter receives delivery-failure alerts.
type Alerter interface {
	Warning(source, message string)
	Critical(source, message string)
}

// Logger defines the logging interface used by the gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopAlerter struct{}

func (noopAlerter) Warning(string, string)  {}
func (noopAlerter) Critical(string, string) {}

// Options tunes command delivery.
type Options struct {
	// CommandTimeout is the per-attempt confirmation deadline.
	CommandTimeout time.Duration

	// RetryAttempts is the total number of attempts per command.
	RetryAttempts int

	// RetryBaseDelay is the backoff before the second attempt; it
	// doubles on each further attempt.
	RetryBaseDelay time.Duration
}

// DefaultOptions returns the delivery settings used when none are
// configured.
func DefaultOptions() Options {
	return Options{
		CommandTimeout: 10 * time.Second,
		RetryAttempts:  3,
		RetryBaseDelay: 500 * time.Millisecond,
	}
}

// MQTTSwitcher implements Switcher over an MQTT broker.
type MQTTSwitcher struct {
	broker Broker
	topics mqtt.Topics
	opts   Options
	alerts Alerter
	logger Logger

	mu       sync.Mutex
	states   map[string]bool
	waiters  map[string]map[chan bool]struct{}
	onChange func(switchRef string, on bool)
}

// NewMQTTSwitcher creates a switcher over the given broker.
func NewMQTTSwitcher(broker Broker, opts Options) *MQTTSwitcher {
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultOptions().CommandTimeout
	}

	return &MQTTSwitcher{
		broker:  broker,
		opts:    opts,
		alerts:  noopAlerter{},
		logger:  noopLogger{},
		states:  make(map[string]bool),
		waiters: make(map[string]map[chan bool]struct{}),
	}
}

// SetLogger sets the logger for the switcher.
func (s *MQTTSwitcher) SetLogger(logger Logger) {
	s.logger = logger
}

// SetAlerter sets the alert sink for delivery failures.
func (s *MQTTSwitcher) SetAlerter(alerts Alerter) {
	s.alerts = alerts
}

// SetOnStateChange registers a callback invoked for every state report.
// Must be called before Start.
func (s *MQTTSwitcher) SetOnStateChange(fn func(switchRef string, on bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Start subscribes to all valve state reports. The state topics are
// retained, so the cache is warm as soon as the subscription lands.
func (s *MQTTSwitcher) Start() error {
	return s.broker.Subscribe(s.topics.AllSwitchStates(), 1, s.handleState)
}

// TurnOn opens a valve and waits for confirmation.
func (s *MQTTSwitcher) TurnOn(ctx context.Context, switchRef string) error {
	if err := s.command(ctx, switchRef, true); err != nil {
		s.alerts.Warning(switchRef, fmt.Sprintf("turn-on not confirmed: %v", err))
		return err
	}
	return nil
}

// TurnOff closes a valve and waits for confirmation.
func (s *MQTTSwitcher) TurnOff(ctx context.Context, switchRef string) error {
	if err := s.command(ctx, switchRef, false); err != nil {
		s.alerts.Critical(switchRef, fmt.Sprintf("turn-off not confirmed, valve may be open: %v", err))
		return err
	}
	return nil
}

// ObservedState returns the last reported valve position.
func (s *MQTTSwitcher) ObservedState(switchRef string) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	on, known := s.states[switchRef]
	return on, known
}

// command publishes repeatedly until the bridge confirms the state.
func (s *MQTTSwitcher) command(ctx context.Context, switchRef string, on bool) error {
	payload := payloadOff
	if on {
		payload = payloadOn
	}

	delay := s.opts.RetryBaseDelay
	var lastErr error

	for attempt := 1; attempt <= s.opts.RetryAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		lastErr = s.attempt(ctx, switchRef, payload, on)
		if lastErr == nil {
			if attempt > 1 {
				s.logger.Info("command confirmed after retry",
					"switch_ref", switchRef, "payload", payload, "attempt", attempt)
			}
			return nil
		}

		s.logger.Warn("command attempt failed",
			"switch_ref", switchRef,
			"payload", payload,
			"attempt", attempt,
			"error", lastErr)
	}

	return fmt.Errorf("%w: %s %s after %d attempts: %v",
		ErrCommandFailed, payload, switchRef, s.opts.RetryAttempts, lastErr)
}

// attempt publishes one command and waits for the state echo.
func (s *MQTTSwitcher) attempt(ctx context.Context, switchRef, payload string, on bool) error {
	if !s.broker.IsConnected() {
		return ErrNotConnected
	}

	ch := s.addWaiter(switchRef)
	defer s.removeWaiter(switchRef, ch)

	if err := s.broker.PublishString(s.topics.SwitchCommand(switchRef), payload, 1, false); err != nil {
		return fmt.Errorf("publishing command: %w", err)
	}

	// A bridge does not re-report a retained state it already holds.
	if cur, known := s.ObservedState(switchRef); known && cur == on {
		return nil
	}

	timer := time.NewTimer(s.opts.CommandTimeout)
	defer timer.Stop()

	for {
		select {
		case got := <-ch:
			if got == on {
				return nil
			}
		case <-timer.C:
			return ErrUnconfirmed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleState processes one report from verdant/state/switch/+.
func (s *MQTTSwitcher) handleState(topic string, payload []byte) error {
	switchRef := topic[strings.LastIndex(topic, "/")+1:]
	if switchRef == "" {
		return nil
	}

	var on bool
	switch strings.ToUpper(strings.TrimSpace(string(payload))) {
	case payloadOn:
		on = true
	case payloadOff:
		on = false
	default:
		s.logger.Warn("unrecognised state payload",
			"switch_ref", switchRef, "payload", string(payload))
		return nil
	}

	s.mu.Lock()
	prev, known := s.states[switchRef]
	s.states[switchRef] = on
	for ch := range s.waiters[switchRef] {
		select {
		case ch <- on:
		default:
		}
	}
	onChange := s.onChange
	s.mu.Unlock()

	if !known || prev != on {
		s.logger.Debug("valve state changed", "switch_ref", switchRef, "on", on)
		if onChange != nil {
			onChange(switchRef, on)
		}
	}

	return nil
}

func (s *MQTTSwitcher) addWaiter(switchRef string) chan bool {
	ch := make(chan bool, 4)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.waiters[switchRef] == nil {
		s.waiters[switchRef] = make(map[chan bool]struct{})
	}
	s.waiters[switchRef][ch] = struct{}{}
	return ch
}

func (s *MQTTSwitcher) removeWaiter(switchRef string, ch chan bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.waiters[switchRef], ch)
	if len(s.waiters[switchRef]) == 0 {
		delete(s.waiters, switchRef)
	}
}
