package enums

// CallbackOutcome records what the reconciler did with a callback delivery.
type CallbackOutcome string

const (
	// CallbackOutcomeReceived is the initial state before matching.
	CallbackOutcomeReceived CallbackOutcome = "received"
	// CallbackOutcomeApplied means this delivery performed the terminal transition.
	CallbackOutcomeApplied CallbackOutcome = "applied"
	// CallbackOutcomeDuplicate means the intent was already terminal.
	CallbackOutcomeDuplicate CallbackOutcome = "duplicate"
	// CallbackOutcomeParked means no intent carried the correlation ids yet.
	CallbackOutcomeParked CallbackOutcome = "parked"
	// CallbackOutcomeDrained means a parked delivery was applied after correlation attach.
	CallbackOutcomeDrained CallbackOutcome = "drained"
)

// String implements fmt.Stringer.
func (c CallbackOutcome) String() string {
	return string(c)
}

// IsPending reports whether the delivery still waits for an intent.
func (c CallbackOutcome) IsPending() bool {
	return c == CallbackOutcomeReceived || c == CallbackOutcomeParked
}
