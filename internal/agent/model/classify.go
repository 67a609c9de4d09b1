package model

// ConfidenceThreshold is the minimum classifier confidence required to act
// on a routing decision. Anything below it falls back to a clarifying
// question instead of guessing.
const ConfidenceThreshold = 0.8

// Classification is the top-level classifier's parsed verdict.
type Classification struct {
	Action             string         `json:"action"`
	Target             string         `json:"target"`
	Confidence         float64        `json:"confidence"`
	Params             map[string]any `json:"params"`
	ClarifyingQuestion string         `json:"clarifying_question"`
}

// ShouldRoute reports whether the verdict is confident enough to route.
func (c Classification) ShouldRoute() bool {
	return c.Action == "route" && c.Confidence >= ConfidenceThreshold
}

// RiskIntent is the risk router's parsed verdict. The risk router never
// gates on confidence; an unparseable verdict defaults to risk_knowledge.
type RiskIntent struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// ControlDecision is the control router's parsed verdict.
type ControlDecision struct {
	Action             string         `json:"action"`
	SubDomain          string         `json:"sub_domain"`
	Confidence         float64        `json:"confidence"`
	Reasoning          string         `json:"reasoning"`
	ClarifyingQuestion string         `json:"clarifying_question"`
	Parameters         map[string]any `json:"parameters"`
}

// ShouldRoute reports whether the control verdict clears the gate.
func (d ControlDecision) ShouldRoute() bool {
	return d.Action == "route" && d.Confidence >= ConfidenceThreshold
}
