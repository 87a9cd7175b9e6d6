package strategy

import (
	"fmt"
	"sort"
	"strings"
)

// Aggregate reduces a set of per-strategy signals into a single decision
// by confidence-weighted voting.
//
// Buy wins when its score beats the sell score and clears 0.5; Sell
// symmetrically. Equal scores always resolve to Hold. The combined
// reason tags each contributing strategy for traceability, in sorted
// strategy order so the output is deterministic.
func Aggregate(results map[string]Signal) Signal {
	if len(results) == 0 {
		return Signal{Action: ActionHold, Confidence: 0.0, Reason: "no signals"}
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	var buyScore, sellScore, totalConfidence float64
	reasons := make([]string, 0, len(names))
	for _, name := range names {
		sig := results[name]
		switch sig.Action {
		case ActionBuy:
			buyScore += sig.Confidence
		case ActionSell:
			sellScore += sig.Confidence
		}
		totalConfidence += sig.Confidence
		reasons = append(reasons, fmt.Sprintf("%s: %s", name, sig.Reason))
	}

	count := float64(len(results))
	switch {
	case buyScore > sellScore && buyScore > 0.5:
		return Signal{
			Action:     ActionBuy,
			Confidence: buyScore / count,
			Reason:     "buy consensus: " + strings.Join(reasons, "; "),
		}
	case sellScore > buyScore && sellScore > 0.5:
		return Signal{
			Action:     ActionSell,
			Confidence: sellScore / count,
			Reason:     "sell consensus: " + strings.Join(reasons, "; "),
		}
	default:
		return Signal{
			Action:     ActionHold,
			Confidence: totalConfidence / count,
			Reason:     "hold consensus: " + strings.Join(reasons, "; "),
		}
	}
}
