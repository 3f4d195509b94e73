package policy

import "strings"

// Default confirmed-inbound status codes, mirroring the legacy ledger's
// status vocabulary. Used when deployment configuration leaves a channel
// unconfigured; such mappings are flagged best-effort.
var (
	defaultConfirmedTransferCodes = []string{"APPROVED", "DISPATCHED", "IN_TRANSIT"}
	defaultConfirmedDonationCodes = []string{"CONFIRMED", "RECEIVED_PENDING_QC"}
)

// InboundMapper decides which pipeline status codes count as confirmed
// ("strict") inbound quantity per channel.
//
// The mapping is best-effort when a channel falls back to defaults or when
// a code is listed as both confirmed and speculative; consumers surface
// that as a warning and cap confidence at medium.
type InboundMapper struct {
	transfer   map[string]struct{}
	donation   map[string]struct{}
	bestEffort bool
}

// InboundMapping is the raw code configuration for the mapper.
type InboundMapping struct {
	ConfirmedTransferCodes []string
	ConfirmedDonationCodes []string
	SpeculativeCodes       []string
}

// NewInboundMapper builds the mapper once at startup.
func NewInboundMapper(m InboundMapping) *InboundMapper {
	mapper := &InboundMapper{
		transfer: map[string]struct{}{},
		donation: map[string]struct{}{},
	}

	transferCodes := m.ConfirmedTransferCodes
	if len(transferCodes) == 0 {
		transferCodes = defaultConfirmedTransferCodes
		mapper.bestEffort = true
	}
	donationCodes := m.ConfirmedDonationCodes
	if len(donationCodes) == 0 {
		donationCodes = defaultConfirmedDonationCodes
		mapper.bestEffort = true
	}

	speculative := map[string]struct{}{}
	for _, c := range m.SpeculativeCodes {
		speculative[normalizeCode(c)] = struct{}{}
	}

	for _, c := range transferCodes {
		code := normalizeCode(c)
		if _, ambiguous := speculative[code]; ambiguous {
			// Listed on both sides: treat as confirmed but flag the config.
			mapper.bestEffort = true
		}
		mapper.transfer[code] = struct{}{}
	}
	for _, c := range donationCodes {
		code := normalizeCode(c)
		if _, ambiguous := speculative[code]; ambiguous {
			mapper.bestEffort = true
		}
		mapper.donation[code] = struct{}{}
	}

	return mapper
}

// ConfirmedTransfer reports whether a transfer status code counts as
// confirmed inbound.
func (m *InboundMapper) ConfirmedTransfer(code string) bool {
	_, ok := m.transfer[normalizeCode(code)]
	return ok
}

// ConfirmedDonation reports whether a donation status code counts as
// confirmed inbound.
func (m *InboundMapper) ConfirmedDonation(code string) bool {
	_, ok := m.donation[normalizeCode(code)]
	return ok
}

// BestEffort reports whether any part of the mapping was resolved from
// defaults or ambiguous configuration.
func (m *InboundMapper) BestEffort() bool { return m.bestEffort }

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
