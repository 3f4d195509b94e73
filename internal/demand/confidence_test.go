package demand

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSynthesizePriority(t *testing.T) {
	tests := []struct {
		name     string
		source   BurnRateSource
		warnings []string
		want     ConfidenceLevel
	}{
		{"clean", BurnSourceCalculated, nil, ConfidenceHigh},
		{"estimated burn wins low", BurnSourceCategoryFallback, []string{WarnBurnRateEstimated}, ConfidenceLow},
		{"db unavailable wins low", BurnSourceCalculated, []string{WarnDBUnavailable}, ConfidenceLow},
		{"source none wins low", BurnSourceNone, []string{WarnNoBurnRows}, ConfidenceLow},
		{"best effort inbound is medium", BurnSourceCalculated, []string{WarnInboundBestEffort}, ConfidenceMedium},
		{"procurement unavailable is medium", BurnSourceCalculated, []string{WarnProcurementUnavailable}, ConfidenceMedium},
		{"secondary source is medium", BurnSourceCalculated, []string{WarnBurnSecondarySource}, ConfidenceMedium},
		{"low beats medium", BurnSourceCalculated, []string{WarnInboundBestEffort, WarnDBUnavailable}, ConfidenceLow},
		{"unrelated warnings stay high", BurnSourceCalculated, []string{WarnNoBurnRows}, ConfidenceHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Synthesize(tt.source, tt.warnings)
			require.Equal(t, tt.want, got.Level)
		})
	}
}

func TestSynthesizeReasonsDedupedOrdered(t *testing.T) {
	got := Synthesize(BurnSourceNone, []string{
		WarnInboundBestEffort,
		WarnDBUnavailable,
		WarnInboundBestEffort, // duplicate
		WarnProcurementUnavailable,
	})

	require.Equal(t, ConfidenceLow, got.Level)
	require.Equal(t, []string{
		WarnInboundBestEffort,
		WarnDBUnavailable,
		WarnProcurementUnavailable,
		WarnBurnSourceNone,
	}, got.Reasons)
}
