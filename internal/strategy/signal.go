package strategy

// Action is the direction a signal recommends.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell || a == ActionHold
}

// Signal is the immutable outcome of one strategy evaluation.
// Evidence carries every numeric value that went into the decision, for
// auditability.
type Signal struct {
	Action     Action             `json:"action"`
	Confidence float64            `json:"confidence"` // 0.0 to 1.0
	Reason     string             `json:"reason"`
	Evidence   map[string]float64 `json:"evidence,omitempty"`
}
