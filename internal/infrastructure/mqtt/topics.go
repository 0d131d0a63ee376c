package mqtt

import "fmt"

// Topic prefixes for the Verdant MQTT namespace.
//
// Switch-bridge topics use the flat scheme: verdant/{category}/switch/{ref}
// where {ref} is the solenoid's switch_ref. State topics are published
// retained by the bridge so a reconnecting core immediately learns the
// last known valve position.
const (
	// TopicPrefix is the base for all switch-bridge topics.
	TopicPrefix = "verdant"

	// TopicPrefixCore is the base for topics published by the core itself.
	TopicPrefixCore = "verdant/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "verdant/system"
)

// Topics provides builders for Verdant MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.SwitchCommand("valve-bed-1")
//	// Returns: "verdant/command/switch/valve-bed-1"
type Topics struct{}

// SwitchCommand returns the topic for commands to a valve switch.
//
// Example: verdant/command/switch/valve-bed-1
func (Topics) SwitchCommand(ref string) string {
	return fmt.Sprintf("%s/command/switch/%s", TopicPrefix, ref)
}

// SwitchState returns the topic for retained state reports from a valve switch.
//
// Example: verdant/state/switch/valve-bed-1
func (Topics) SwitchState(ref string) string {
	return fmt.Sprintf("%s/state/switch/%s", TopicPrefix, ref)
}

// SwitchHealth returns the topic for switch-bridge health status.
//
// Example: verdant/health/switch
func (Topics) SwitchHealth() string {
	return fmt.Sprintf("%s/health/switch", TopicPrefix)
}

// CoreActivation returns the topic for activation lifecycle events.
//
// Example: verdant/core/activation/act-7f3a/state
func (Topics) CoreActivation(activationID string) string {
	return fmt.Sprintf("%s/activation/%s/state", TopicPrefixCore, activationID)
}

// CoreAlert returns the topic for alerts raised by the core.
//
// Example: verdant/core/alert/alert-valve-stuck
func (Topics) CoreAlert(alertID string) string {
	return fmt.Sprintf("%s/alert/%s", TopicPrefixCore, alertID)
}

// SystemStatus returns the core availability topic, also used for the LWT.
//
// Example: verdant/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllSwitchStates returns a pattern matching all valve state reports.
//
// Pattern: verdant/state/switch/+
func (Topics) AllSwitchStates() string {
	return fmt.Sprintf("%s/state/switch/+", TopicPrefix)
}

// AllCoreAlerts returns a pattern matching all alerts.
//
// Pattern: verdant/core/alert/+
func (Topics) AllCoreAlerts() string {
	return fmt.Sprintf("%s/alert/+", TopicPrefixCore)
}

// AllTopics returns a pattern matching all Verdant topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: verdant/#
func (Topics) AllTopics() string {
	return "verdant/#"
}
