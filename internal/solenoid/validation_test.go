package solenoid

import (
	"errors"
	"strings"
	"testing"
)

// ─── Solenoid Validation ─────────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		solenoid *Solenoid
		wantErr  error
	}{
		{
			name:     "valid solenoid",
			solenoid: &Solenoid{Name: "Bed 1", SwitchRef: "valve-bed-1"},
			wantErr:  nil,
		},
		{
			name:     "nil solenoid",
			solenoid: nil,
			wantErr:  ErrInvalid,
		},
		{
			name:     "missing name",
			solenoid: &Solenoid{SwitchRef: "valve-bed-1"},
			wantErr:  ErrInvalidName,
		},
		{
			name:     "name too long",
			solenoid: &Solenoid{Name: strings.Repeat("x", maxNameLength+1), SwitchRef: "valve-bed-1"},
			wantErr:  ErrInvalidName,
		},
		{
			name:     "missing switch_ref",
			solenoid: &Solenoid{Name: "Bed 1"},
			wantErr:  ErrInvalidSwitchRef,
		},
		{
			name:     "switch_ref with uppercase",
			solenoid: &Solenoid{Name: "Bed 1", SwitchRef: "Valve-Bed-1"},
			wantErr:  ErrInvalidSwitchRef,
		},
		{
			name:     "switch_ref with spaces",
			solenoid: &Solenoid{Name: "Bed 1", SwitchRef: "valve bed 1"},
			wantErr:  ErrInvalidSwitchRef,
		},
		{
			name:     "switch_ref with underscores",
			solenoid: &Solenoid{Name: "Bed 1", SwitchRef: "valve_bed_1"},
			wantErr:  nil,
		},
		{
			name:     "unknown observed state",
			solenoid: &Solenoid{Name: "Bed 1", SwitchRef: "valve-bed-1", ObservedState: "open"},
			wantErr:  ErrInvalid,
		},
		{
			name:     "known observed state",
			solenoid: &Solenoid{Name: "Bed 1", SwitchRef: "valve-bed-1", ObservedState: ValveStateOff},
			wantErr:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.solenoid)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// ─── Group Validation ────────────────────────────────────────────────────────

func TestValidateGroup(t *testing.T) {
	tests := []struct {
		name    string
		group   *Group
		wantErr error
	}{
		{
			name: "valid concurrent group",
			group: &Group{
				Name:    "Front Garden",
				Mode:    RunModeConcurrent,
				Members: []Member{{SolenoidID: "sol-1"}, {SolenoidID: "sol-2"}},
			},
			wantErr: nil,
		},
		{
			name: "valid sequential group",
			group: &Group{
				Name:    "Drip Lines",
				Mode:    RunModeSequential,
				Members: []Member{{SolenoidID: "sol-1"}},
			},
			wantErr: nil,
		},
		{
			name:    "nil group",
			group:   nil,
			wantErr: ErrInvalidGroup,
		},
		{
			name: "unknown run mode",
			group: &Group{
				Name:    "Front Garden",
				Mode:    "parallel",
				Members: []Member{{SolenoidID: "sol-1"}},
			},
			wantErr: ErrInvalidGroup,
		},
		{
			name: "no members",
			group: &Group{
				Name: "Front Garden",
				Mode: RunModeConcurrent,
			},
			wantErr: ErrInvalidGroup,
		},
		{
			name: "duplicate members",
			group: &Group{
				Name:    "Front Garden",
				Mode:    RunModeSequential,
				Members: []Member{{SolenoidID: "sol-1"}, {SolenoidID: "sol-1"}},
			},
			wantErr: ErrInvalidGroup,
		},
		{
			name: "member without id",
			group: &Group{
				Name:    "Front Garden",
				Mode:    RunModeConcurrent,
				Members: []Member{{}},
			},
			wantErr: ErrInvalidGroup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGroup(tt.group)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateGroup() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateGroup() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// ─── Deep Copy ───────────────────────────────────────────────────────────────

func TestSolenoidDeepCopy(t *testing.T) {
	s := &Solenoid{ID: "sol-1", Name: "Bed 1", SwitchRef: "valve-bed-1"}

	cpy := s.DeepCopy()
	cpy.Name = "Changed"

	if s.Name != "Bed 1" {
		t.Errorf("original mutated: Name = %q", s.Name)
	}
}

func TestGroupDeepCopy(t *testing.T) {
	g := &Group{
		ID:      "grp-1",
		Name:    "Front Garden",
		Mode:    RunModeSequential,
		Members: []Member{{SolenoidID: "sol-1", Position: 0}},
	}

	cpy := g.DeepCopy()
	cpy.Members[0].SolenoidID = "sol-other"

	if g.Members[0].SolenoidID != "sol-1" {
		t.Errorf("original member mutated: %q", g.Members[0].SolenoidID)
	}
}

func TestGenerateID(t *testing.T) {
	a := GenerateID()
	b := GenerateID()
	if a == b {
		t.Error("GenerateID() returned duplicate IDs")
	}
	if len(a) != 36 {
		t.Errorf("GenerateID() length = %d, want 36", len(a))
	}
}
