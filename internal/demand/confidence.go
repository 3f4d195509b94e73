package demand

// Synthesize folds collected warning codes and the burn source into a
// confidence band. The priority order is deterministic: any low trigger wins
// over any medium trigger; otherwise the item is high confidence.
//
// Reasons mirror the triggering codes, deduplicated and order-preserving.
func Synthesize(source BurnRateSource, warnings []string) Confidence {
	lowTriggers := map[string]struct{}{
		WarnBurnRateEstimated: {},
		WarnDBUnavailable:     {},
	}
	mediumTriggers := map[string]struct{}{
		WarnInboundBestEffort:      {},
		WarnProcurementUnavailable: {},
		WarnBurnSecondarySource:    {},
	}

	var reasons []string
	seen := map[string]struct{}{}
	add := func(code string) {
		if _, dup := seen[code]; dup {
			return
		}
		seen[code] = struct{}{}
		reasons = append(reasons, code)
	}

	low, medium := false, false
	for _, w := range warnings {
		if _, ok := lowTriggers[w]; ok {
			low = true
			add(w)
		}
		if _, ok := mediumTriggers[w]; ok {
			medium = true
			add(w)
		}
	}
	if source == BurnSourceNone {
		low = true
		add(WarnBurnSourceNone)
	}

	switch {
	case low:
		return Confidence{Level: ConfidenceLow, Reasons: reasons}
	case medium:
		return Confidence{Level: ConfidenceMedium, Reasons: reasons}
	default:
		return Confidence{Level: ConfidenceHigh, Reasons: reasons}
	}
}
