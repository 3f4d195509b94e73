package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePhase(t *testing.T) {
	for _, raw := range []string{"SURGE", "STABILIZED", "BASELINE"} {
		got, err := ParsePhase(raw)
		require.NoError(t, err)
		require.Equal(t, Phase(raw), got)
	}

	_, err := ParsePhase("PANIC")
	require.Error(t, err)
}

func TestLoadWindowPolicy(t *testing.T) {
	for _, preset := range []string{"v1", "v2"} {
		p, err := LoadWindowPolicy(preset)
		require.NoError(t, err, preset)
		require.Equal(t, preset, p.Preset())

		for _, phase := range []Phase{PhaseSurge, PhaseStabilized, PhaseBaseline} {
			w, err := p.Windows(phase)
			require.NoError(t, err)
			require.Greater(t, w.DemandWindowHours, 0.0)
			require.Greater(t, w.PlanningWindowHours, 0.0)
			require.Greater(t, w.WarnMaxHours, w.FreshMaxHours)
		}
	}

	_, err := LoadWindowPolicy("v9")
	require.Error(t, err)
}

func TestPresetsDiffer(t *testing.T) {
	v1, err := LoadWindowPolicy("v1")
	require.NoError(t, err)
	v2, err := LoadWindowPolicy("v2")
	require.NoError(t, err)

	w1, _ := v1.Windows(PhaseSurge)
	w2, _ := v2.Windows(PhaseSurge)
	require.NotEqual(t, w1, w2, "presets should carry distinct surge windows")
}
