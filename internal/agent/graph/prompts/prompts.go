// Package prompts holds the system prompt templates for every classifier
// and handler. Templates are embedded at build time and filled with a plain
// string replacer; none of them need loops or conditionals.
package prompts

import (
	_ "embed"
	"strings"
)

// AwaitAnswerSentinel is the internal marker the audit facilitator emits
// when it wants the user to answer the current checklist item. It is
// stripped before display.
const AwaitAnswerSentinel = "[[AWAIT_ANSWER]]"

var (
	//go:embed template/orchestrator_classifier.txt
	orchestratorClassifier string
	//go:embed template/risk_intent_router.txt
	riskIntentRouter string
	//go:embed template/control_classifier.txt
	controlClassifier string
	//go:embed template/risk_generation_system.txt
	riskGenerationSystem string
	//go:embed template/risk_register_assistant.txt
	riskRegisterAssistant string
	//go:embed template/risk_knowledge_specialist.txt
	riskKnowledgeSpecialist string
	//go:embed template/matrix_recommendation.txt
	matrixRecommendation string
	//go:embed template/control_generation.txt
	controlGeneration string
	//go:embed template/control_library_assistant.txt
	controlLibraryAssistant string
	//go:embed template/control_knowledge_specialist.txt
	controlKnowledgeSpecialist string
	//go:embed template/knowledge_system.txt
	knowledgeSystem string
	//go:embed template/audit_facilitator_system.txt
	auditFacilitatorSystem string
)

// OrgVars is the organisation context most prompts are parameterized by.
type OrgVars struct {
	OrganizationName string
	Location         string
	Domain           string
}

func (v OrgVars) replacer(extra ...string) *strings.Replacer {
	pairs := append([]string{
		"{organization_name}", orDefault(v.OrganizationName, "the organization"),
		"{location}", orDefault(v.Location, "unspecified"),
		"{domain}", orDefault(v.Domain, "general business"),
	}, extra...)
	return strings.NewReplacer(pairs...)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// OrchestratorClassifier renders the top-level intent classifier prompt.
func OrchestratorClassifier(v OrgVars) string {
	return v.replacer().Replace(orchestratorClassifier)
}

// RiskIntentRouter renders the risk sub-domain router prompt.
func RiskIntentRouter(v OrgVars) string {
	return v.replacer().Replace(riskIntentRouter)
}

// ControlClassifier renders the control sub-domain router prompt.
func ControlClassifier(v OrgVars) string {
	return v.replacer().Replace(controlClassifier)
}

// RiskGeneration renders the risk generation system prompt with the
// organisation's risk profiles inlined.
func RiskGeneration(v OrgVars, profiles string) string {
	return v.replacer(
		"{risk_profiles}", orDefault(profiles, "No risk profiles recorded yet."),
	).Replace(riskGenerationSystem)
}

// RiskRegister renders the risk register assistant prompt.
func RiskRegister(v OrgVars) string {
	return v.replacer().Replace(riskRegisterAssistant)
}

// RiskKnowledge renders the risk knowledge specialist prompt.
func RiskKnowledge(v OrgVars) string {
	return v.replacer().Replace(riskKnowledgeSpecialist)
}

// MatrixRecommendation renders the matrix recommendation prompt.
func MatrixRecommendation(v OrgVars) string {
	return v.replacer().Replace(matrixRecommendation)
}

// ControlGeneration renders the control generation prompt for the given
// scoping mode and its parameter summary.
func ControlGeneration(v OrgVars, mode, scope string) string {
	return v.replacer(
		"{generation_mode}", orDefault(mode, "all"),
		"{generation_scope}", orDefault(scope, "the full risk register"),
	).Replace(controlGeneration)
}

// ControlLibrary renders the control library assistant prompt.
func ControlLibrary(v OrgVars) string {
	return v.replacer().Replace(controlLibraryAssistant)
}

// ControlKnowledge renders the control knowledge specialist prompt.
func ControlKnowledge(v OrgVars) string {
	return v.replacer().Replace(controlKnowledgeSpecialist)
}

// Knowledge renders the general compliance knowledge prompt.
func Knowledge(v OrgVars) string {
	return v.replacer().Replace(knowledgeSystem)
}

// AuditVars parameterizes the audit facilitator prompt with the progress
// computed this turn.
type AuditVars struct {
	Org           OrgVars
	Phase         string
	ClauseSummary string
	AnnexSummary  string
	NextReference string
	NextTitle     string
	NextDesc      string
}

// AuditFacilitator renders the audit facilitator system prompt.
func AuditFacilitator(v AuditVars) string {
	return v.Org.replacer(
		"{phase}", v.Phase,
		"{clause_summary}", v.ClauseSummary,
		"{annex_summary}", v.AnnexSummary,
		"{next_reference}", orDefault(v.NextReference, "none"),
		"{next_title}", orDefault(v.NextTitle, "none"),
		"{next_description}", orDefault(v.NextDesc, "none"),
		"{await_sentinel}", AwaitAnswerSentinel,
	).Replace(auditFacilitatorSystem)
}
