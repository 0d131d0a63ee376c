package solenoid

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength      = 100
	maxSwitchRefLength = 64
	maxGroupMembers    = 64

	switchRefPattern = `^[a-z0-9]+(?:[-_][a-z0-9]+)*$`
)

var switchRefRegex = regexp.MustCompile(switchRefPattern)

// Validate performs comprehensive validation on a solenoid.
// Returns an error describing the first validation failure found.
func Validate(s *Solenoid) error {
	if s == nil {
		return ErrInvalid
	}

	if err := ValidateName(s.Name); err != nil {
		return err
	}

	if err := ValidateSwitchRef(s.SwitchRef); err != nil {
		return err
	}

	if s.ObservedState != "" && !validValveState(s.ObservedState) {
		return fmt.Errorf("%w: unknown valve state %q", ErrInvalid, s.ObservedState)
	}

	return nil
}

// ValidateName checks a solenoid or group name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateSwitchRef checks the MQTT address format.
// Refs must be lowercase alphanumeric with hyphen or underscore
// separators, e.g. "valve-bed-1".
func ValidateSwitchRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("%w: switch_ref is required", ErrInvalidSwitchRef)
	}
	if len(ref) > maxSwitchRefLength {
		return fmt.Errorf("%w: switch_ref exceeds %d characters", ErrInvalidSwitchRef, maxSwitchRefLength)
	}
	if !switchRefRegex.MatchString(ref) {
		return fmt.Errorf("%w: %q does not match %s", ErrInvalidSwitchRef, ref, switchRefPattern)
	}
	return nil
}

// ValidateGroup performs comprehensive validation on a group.
// Membership order must be explicit and duplicate-free: for sequential
// groups the order is the watering order.
func ValidateGroup(g *Group) error {
	if g == nil {
		return ErrInvalidGroup
	}

	if err := ValidateName(g.Name); err != nil {
		return err
	}

	if !validRunMode(g.Mode) {
		return fmt.Errorf("%w: unknown run mode %q", ErrInvalidGroup, g.Mode)
	}

	if len(g.Members) == 0 {
		return fmt.Errorf("%w: at least one member is required", ErrInvalidGroup)
	}
	if len(g.Members) > maxGroupMembers {
		return fmt.Errorf("%w: exceeds %d members", ErrInvalidGroup, maxGroupMembers)
	}

	seen := make(map[string]struct{}, len(g.Members))
	for _, m := range g.Members {
		if m.SolenoidID == "" {
			return fmt.Errorf("%w: member solenoid_id is required", ErrInvalidGroup)
		}
		if _, dup := seen[m.SolenoidID]; dup {
			return fmt.Errorf("%w: duplicate member %q", ErrInvalidGroup, m.SolenoidID)
		}
		seen[m.SolenoidID] = struct{}{}
	}

	return nil
}

func validValveState(s ValveState) bool {
	for _, v := range AllValveStates() {
		if s == v {
			return true
		}
	}
	return false
}

func validRunMode(m RunMode) bool {
	for _, v := range AllRunModes() {
		if m == v {
			return true
		}
	}
	return false
}

// CheckSequentialMembership enforces that a solenoid belongs to at
// most one sequential group. Called before creating or updating a
// sequential group; concurrent groups impose no such limit.
func CheckSequentialMembership(ctx context.Context, repo GroupRepository, g *Group) error {
	if g.Mode != RunModeSequential {
		return nil
	}

	for _, id := range g.MemberIDs() {
		existing, err := repo.ListContainingSolenoid(ctx, id)
		if err != nil {
			return fmt.Errorf("listing groups for member %s: %w", id, err)
		}
		for i := range existing {
			if existing[i].ID != g.ID && existing[i].Mode == RunModeSequential {
				return fmt.Errorf("%w: %s is in group %q", ErrSequentialConflict, id, existing[i].Name)
			}
		}
	}

	return nil
}

// GenerateID creates a new UUID for a solenoid or group.
func GenerateID() string {
	return uuid.New().String()
}
