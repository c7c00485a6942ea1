// Package establish implements the Establish protocol (spec.md §4.F): the
// twelve-step exchange that creates a new zkChannels payment channel,
// ending with the customer holding an activated Ready state and the
// merchant holding a funded on-chain contract.
package establish

import "fmt"

// AbortKind is the peer-supplied reason carried by a protocol abort,
// matching the Establish-relevant members of spec.md §7's abort taxonomy.
type AbortKind int

const (
	AbortInvalidDeposit AbortKind = iota
	AbortInvalidClosingSignature
	AbortInvalidPayToken
	AbortFailedMerchantFunding
)

func (k AbortKind) String() string {
	switch k {
	case AbortInvalidDeposit:
		return "InvalidDeposit"
	case AbortInvalidClosingSignature:
		return "InvalidClosingSignature"
	case AbortInvalidPayToken:
		return "InvalidPayToken"
	case AbortFailedMerchantFunding:
		return "FailedMerchantFunding"
	default:
		return fmt.Sprintf("AbortKind(%d)", int(k))
	}
}

// ProtocolAbort is returned when the peer chose the abort branch of the
// session instead of continuing.
type ProtocolAbort struct {
	Kind   AbortKind
	Reason string
}

func (e *ProtocolAbort) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("establish: peer aborted: %s", e.Kind)
	}
	return fmt.Sprintf("establish: peer aborted: %s: %s", e.Kind, e.Reason)
}
