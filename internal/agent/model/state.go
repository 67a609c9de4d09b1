package model

// Domain identifies which conversational domain owns the current turn.
type Domain string

const (
	DomainNone      Domain = ""
	DomainRisk      Domain = "risk"
	DomainControl   Domain = "control"
	DomainKnowledge Domain = "knowledge"
	DomainAudit     Domain = "audit"
	// DomainClarify terminates the turn with a clarifying question instead
	// of routing to a handler.
	DomainClarify Domain = "clarify"
)

// Route targets within the risk and control domains.
const (
	TargetRiskGeneration       = "risk_generation"
	TargetRiskRegister         = "risk_register"
	TargetMatrixRecommendation = "matrix_recommendation"
	TargetRiskKnowledge        = "risk_knowledge"

	TargetGenerateControl  = "generate_control"
	TargetControlLibrary   = "control_library"
	TargetControlKnowledge = "control_knowledge"
)

// Active-mode values recorded by routers and handlers. The stickiness guard
// reads these to decide whether a short follow-up stays in the same handler.
const (
	ModeRiskRouter           = "risk_node"
	ModeRiskGeneration       = "risk_generation_node"
	ModeRiskRegister         = "risk_register_node"
	ModeMatrixRecommendation = "matrix_recommendation_node"
	ModeRiskKnowledge        = "risk_knowledge_node"
	ModeControlRouter        = "control_node"
	ModeGenerateControl      = "generate_control_node"
	ModeControlLibrary       = "control_library_node"
	ModeControlKnowledge     = "control_knowledge_node"
	ModeKnowledge            = "knowledge_node"
	ModeAuditFacilitator     = "audit_facilitator"
)

// Route is the pending routing decision between graph steps. Exactly one
// route value exists per turn; it replaces the per-domain boolean flags so a
// stale flag from a previous turn cannot survive a new classification.
type Route struct {
	Domain   Domain
	Target   string
	Params   map[string]any
	Question string
}

// IsZero reports whether no routing decision has been made yet.
func (r Route) IsZero() bool {
	return r.Domain == DomainNone && r.Target == ""
}

// ClarifyRoute builds a terminal route that asks the user a question.
func ClarifyRoute(question string) Route {
	return Route{Domain: DomainClarify, Question: question}
}

// Exchange is one user/assistant turn in the transcript.
type Exchange struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// UserData is the immutable-per-turn identity and organisation context.
type UserData struct {
	UserID           string `json:"user_id"`
	OrganizationName string `json:"organization_name"`
	Location         string `json:"location"`
	Domain           string `json:"domain"`
}

// TurnInput is the public input for one conversation turn.
type TurnInput struct {
	SessionID string   `json:"session_id"`
	Message   string   `json:"message"`
	User      UserData `json:"user"`
}

// TurnState is the conversation envelope threaded through every graph node
// for one turn. Nodes receive it, mutate their own fields, and pass it on;
// the graph executes nodes sequentially so no additional locking is needed.
type TurnState struct {
	SessionID string
	Input     string
	// Output is the reply to return this turn. Empty means the turn is
	// still routing and a downstream handler is expected to produce it.
	Output string

	// History is the append-only transcript, most recent exchange last.
	History []Exchange
	// Context is the cross-turn scratchpad (generated artifacts, selected
	// matrix, audit progress snapshot). Keys are overwritten by handlers,
	// never globally cleared mid-session.
	Context map[string]any
	User    UserData

	// ActiveMode names the handler that last owned the conversation. Only
	// domain routers and sub-handlers set it; the top-level classifier
	// leaves it untouched.
	ActiveMode string

	// Route carries the pending routing decision between graph steps. It is
	// reset at the start of every turn before classification.
	Route Route
}

// NewTurnState builds the initial state for one turn on top of the restored
// session history and scratchpad.
func NewTurnState(in TurnInput, history []Exchange, context map[string]any, activeMode string) *TurnState {
	if context == nil {
		context = map[string]any{}
	}
	return &TurnState{
		SessionID:  in.SessionID,
		Input:      in.Message,
		History:    history,
		Context:    context,
		User:       in.User,
		ActiveMode: activeMode,
	}
}

// AppendTurn records the finished exchange for this turn's input.
func (s *TurnState) AppendTurn(assistant string) {
	s.History = append(s.History, Exchange{User: s.Input, Assistant: assistant})
}

// ResetRoute clears the routing decision. Terminal handlers call this so no
// stale target leaks into the next turn.
func (s *TurnState) ResetRoute() {
	s.Route = Route{}
}

// Finish sets the reply, appends the exchange and clears the route in one
// step. Every terminal handler goes through here (or replicates it exactly)
// so the history-append and route-hygiene invariants hold everywhere.
func (s *TurnState) Finish(output, activeMode string) {
	s.Output = output
	s.AppendTurn(output)
	s.ActiveMode = activeMode
	s.ResetRoute()
}

// SetContext writes a scratchpad key.
func (s *TurnState) SetContext(key string, value any) {
	if s.Context == nil {
		s.Context = map[string]any{}
	}
	s.Context[key] = value
}
