// Package parsers repairs and decodes model JSON output. Model replies are
// untrusted text: they arrive fenced, prefixed with prose, or truncated, so
// every decode goes through the same repair ladder before a typed parse.
package parsers

import (
	"encoding/json"
	"strings"

	"github.com/riskpilot-core/server/internal/agent/model"
	"github.com/riskpilot-core/server/pkg/logger"
)

// maxPayload caps how much model output the repair ladder will scan. Larger
// replies are truncated before parsing rather than rejected.
const maxPayload = 64 * 1024

// StripFences removes a surrounding markdown code fence, with or without a
// language tag, and trims whitespace.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		head := strings.TrimSpace(s[:idx])
		// Drop a language tag like "json" on the fence line.
		if head == "" || !strings.ContainsAny(head, "{}[]") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ExtractObject returns the widest {...} slice of raw, scanning from the
// first '{' to the last '}'. Empty string means no object was found.
func ExtractObject(raw string) string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

// ExtractArray returns the widest [...] slice of raw.
func ExtractArray(raw string) string {
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

// Unmarshal decodes raw into v after running the repair ladder: strip
// fences, direct parse, then widest-object extraction. It returns false when
// nothing decodable remains; callers substitute their safe default.
func Unmarshal(raw string, v any) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logx.Warn().Interface("panic", r).Msg("json repair panicked")
			ok = false
		}
	}()

	if len(raw) > maxPayload {
		raw = raw[:maxPayload]
	}
	s := StripFences(raw)
	if s == "" {
		return false
	}
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return true
	}
	if obj := ExtractObject(s); obj != "" {
		if err := json.Unmarshal([]byte(obj), v); err == nil {
			return true
		}
	}
	if arr := ExtractArray(s); arr != "" {
		if err := json.Unmarshal([]byte(arr), v); err == nil {
			return true
		}
	}
	logx.Warn().Str("payload", truncateForLog(s)).Msg("unparseable model json")
	return false
}

func truncateForLog(s string) string {
	const n = 200
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ParseClassification decodes the top-level classifier verdict. Anything
// unusable degrades to a clarify verdict so the turn never routes blind.
func ParseClassification(raw string) model.Classification {
	var c model.Classification
	if !Unmarshal(raw, &c) || c.Action == "" {
		return model.Classification{
			Action:             "clarify",
			Confidence:         0,
			ClarifyingQuestion: "Could you tell me a bit more about what you'd like to do? I can help with risks, controls, audits, or general compliance questions.",
		}
	}
	if c.Params == nil {
		c.Params = map[string]any{}
	}
	return c
}

// ParseRiskIntent decodes the risk router verdict, defaulting to the
// knowledge specialist when the reply is unusable.
func ParseRiskIntent(raw string) model.RiskIntent {
	var r model.RiskIntent
	if !Unmarshal(raw, &r) || r.Intent == "" {
		return model.RiskIntent{Intent: "risk_knowledge", Confidence: 0}
	}
	return r
}

// ParseControlDecision decodes the control router verdict. Unusable replies
// degrade to a clarify verdict the same way the top-level classifier does.
func ParseControlDecision(raw string) model.ControlDecision {
	var d model.ControlDecision
	if !Unmarshal(raw, &d) || d.Action == "" {
		return model.ControlDecision{
			Action:             "clarify",
			Confidence:         0,
			ClarifyingQuestion: "Could you clarify what you'd like to do with controls? I can generate controls, look them up in your library, or answer questions about them.",
		}
	}
	if d.Parameters == nil {
		d.Parameters = map[string]any{}
	}
	return d
}
