// Package alert publishes operator alerts over MQTT.
//
// Alerts are advisory: failure to publish one is logged and swallowed,
// never propagated, because the caller is usually already handling a
// worse problem (a valve that would not close).
package alert

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/verdancy/verdant-core/internal/infrastructure/mqtt"
)

// Severity classifies an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is the payload published to verdant/core/alert/{id}.
type Alert struct {
	ID       string   `json:"id"`
	Severity Severity `json:"severity"`
	// Source names what raised the alert, usually a switch_ref or
	// activation ID.
	Source  string    `json:"source"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Publisher is the broker surface the notifier needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// Logger defines the logging interface used by the Notifier.
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

// Notifier publishes alerts.
type Notifier struct {
	broker Publisher
	topics mqtt.Topics
	logger Logger
	now    func() time.Time
}

// NewNotifier creates a notifier over the given broker.
func NewNotifier(broker Publisher) *Notifier {
	return &Notifier{
		broker: broker,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the notifier.
func (n *Notifier) SetLogger(logger Logger) {
	n.logger = logger
}

// Info publishes an informational alert.
func (n *Notifier) Info(source, message string) {
	n.publish(SeverityInfo, source, message)
}

// Warning publishes a warning alert.
func (n *Notifier) Warning(source, message string) {
	n.publish(SeverityWarning, source, message)
}

// Critical publishes a critical alert. Critical alerts are retained so
// an operator dashboard that connects later still sees them.
func (n *Notifier) Critical(source, message string) {
	n.publish(SeverityCritical, source, message)
}

func (n *Notifier) publish(severity Severity, source, message string) {
	a := Alert{
		ID:       uuid.New().String(),
		Severity: severity,
		Source:   source,
		Message:  message,
		At:       n.now().UTC(),
	}

	n.logger.Warn("alert raised",
		"severity", string(severity),
		"source", source,
		"message", message)

	if !n.broker.IsConnected() {
		n.logger.Debug("broker offline, alert not published", "id", a.ID)
		return
	}

	payload, err := json.Marshal(a)
	if err != nil {
		n.logger.Error("failed to marshal alert", "error", err)
		return
	}

	retained := severity == SeverityCritical
	if err := n.broker.Publish(n.topics.CoreAlert(a.ID), payload, 1, retained); err != nil {
		n.logger.Error("failed to publish alert", "id", a.ID, "error", err)
	}
}
