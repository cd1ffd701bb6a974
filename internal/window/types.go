package window

import "math/big"

// Reason explains an eligibility decision.
type Reason string

const (
	ReasonFirstInWindow   Reason = "first_in_window"
	ReasonPriceChange     Reason = "price_change"
	ReasonBeforeStart     Reason = "before_start"
	ReasonWindowClosed    Reason = "window_closed"
	ReasonAlreadyReported Reason = "already_reported"
	ReasonBelowThreshold  Reason = "below_threshold"
	ReasonNoPrice         Reason = "no_price"
	ReasonBadValue        Reason = "bad_stored_value"
)

// Decision is the evaluation of one feed at one time.
type Decision struct {
	Eligible       bool
	Reason         Reason
	TimeIntoWindow uint64
	ChangeBps      uint64   // set when the price was checked
	Reward         *big.Int // payable reward before the balance cap, nil when ineligible
}
