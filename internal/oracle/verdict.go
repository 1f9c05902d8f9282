package oracle

import "github.com/teemow/inboxsorter/internal/rules"

// Verdict is the classifier's answer for one message.
type Verdict struct {
	RuleName   string  `json:"rule_name"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	// Degraded is set when the verdict was not produced by the model, for
	// example because it was unreachable or its output could not be parsed.
	Degraded bool `json:"degraded,omitempty"`
}

// NoMatch returns a degraded "none" verdict carrying reason.
func NoMatch(reason string) Verdict {
	return Verdict{
		RuleName: rules.NoneVerdict,
		Reason:   reason,
		Degraded: true,
	}
}

// Matched reports whether the verdict names a rule.
func (v Verdict) Matched() bool {
	return v.RuleName != "" && v.RuleName != rules.NoneVerdict
}

func clamp(f float64) float64 {
	switch {
	case f != f: // NaN
		return 0
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
