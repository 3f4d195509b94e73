// Package policy holds the static planning policies consumed by the
// replenishment engine: per-phase window presets and the inbound status
// code mapping.
package policy

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	apperrors "reliefgrid.io/reliefgrid/internal/pkg/errors"
)

// Phase is the operational phase of a response event.
type Phase string

// Operational phases, from most to least acute.
const (
	PhaseSurge      Phase = "SURGE"
	PhaseStabilized Phase = "STABILIZED"
	PhaseBaseline   Phase = "BASELINE"
)

// ParsePhase validates a raw phase string.
func ParsePhase(raw string) (Phase, error) {
	switch Phase(raw) {
	case PhaseSurge, PhaseStabilized, PhaseBaseline:
		return Phase(raw), nil
	default:
		return "", apperrors.BadRequest(apperrors.CodeInvalidPhase,
			fmt.Sprintf("unknown phase %q", raw))
	}
}

// PhaseWindows are the planning windows and freshness thresholds for one phase.
type PhaseWindows struct {
	DemandWindowHours    float64 `yaml:"demand_window_hours"`
	PlanningWindowHours  float64 `yaml:"planning_window_hours"`
	FreshMaxHours        float64 `yaml:"fresh_max_hours"`
	WarnMaxHours         float64 `yaml:"warn_max_hours"`
	ProcurementLeadHours float64 `yaml:"procurement_lead_hours"`
}

// WindowPolicy resolves phase → windows for one versioned preset.
type WindowPolicy struct {
	preset  string
	windows map[Phase]PhaseWindows
}

//go:embed presets.yaml
var presetsYAML []byte

type presetsFile struct {
	Presets map[string]map[Phase]PhaseWindows `yaml:"presets"`
}

// LoadWindowPolicy loads one of the versioned presets ("v1" or "v2").
func LoadWindowPolicy(preset string) (*WindowPolicy, error) {
	var file presetsFile
	if err := yaml.Unmarshal(presetsYAML, &file); err != nil {
		return nil, fmt.Errorf("parse embedded presets: %w", err)
	}

	windows, ok := file.Presets[preset]
	if !ok {
		return nil, fmt.Errorf("unknown window preset %q", preset)
	}
	for _, phase := range []Phase{PhaseSurge, PhaseStabilized, PhaseBaseline} {
		w, ok := windows[phase]
		if !ok {
			return nil, fmt.Errorf("preset %q is missing phase %s", preset, phase)
		}
		if w.DemandWindowHours <= 0 || w.PlanningWindowHours <= 0 {
			return nil, fmt.Errorf("preset %q phase %s has non-positive windows", preset, phase)
		}
	}

	return &WindowPolicy{preset: preset, windows: windows}, nil
}

// Preset returns the loaded preset version.
func (p *WindowPolicy) Preset() string { return p.preset }

// Windows returns the windows for a phase.
func (p *WindowPolicy) Windows(phase Phase) (PhaseWindows, error) {
	w, ok := p.windows[phase]
	if !ok {
		return PhaseWindows{}, apperrors.BadRequest(apperrors.CodeInvalidPhase,
			fmt.Sprintf("no windows configured for phase %q", phase))
	}
	return w, nil
}
