package approval

import "strings"

// Appendix-C authority escalation thresholds.
const (
	// crossParishTransferLimit is the transfer quantity above which a
	// cross-parish movement needs escalated authority.
	crossParishTransferLimit = 500.0

	scopeCrossParish = "cross_parish"
)

// restrictedDonationFlags are the donation-restriction markers that require
// escalation whenever the line carries donation (horizon B) quantity.
var restrictedDonationFlags = map[string]struct{}{
	"restricted": {},
	"earmarked":  {},
}

// escalationRequired applies the Appendix-C rules over the list's lines.
func escalationRequired(lines []Line) bool {
	for _, l := range lines {
		if l.TransferQty > 0 &&
			strings.EqualFold(strings.TrimSpace(l.TransferScope), scopeCrossParish) &&
			l.TransferQty > crossParishTransferLimit {
			return true
		}
		if l.DonationQty > 0 {
			flag := strings.ToLower(strings.TrimSpace(l.DonationRestriction))
			if _, ok := restrictedDonationFlags[flag]; ok {
				return true
			}
		}
	}
	return false
}
