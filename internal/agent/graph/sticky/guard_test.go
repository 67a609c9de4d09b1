package sticky

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordGuard(t *testing.T) {
	g := NewKeywordGuard([]string{"risk_register_node", "risk_generation_node"})

	cases := []struct {
		name  string
		mode  string
		input string
		want  bool
	}{
		{"keyword in sticky mode", "risk_register_node", "filter by category", true},
		{"keyword uppercase", "risk_register_node", "ONLY high severity please", true},
		{"no keyword", "risk_register_node", "what is iso 27001", false},
		{"non-sticky mode", "knowledge_node", "filter by category", false},
		{"empty mode", "", "sort them", false},
		{"too long", "risk_generation_node", "add " + strings.Repeat("x", 80), false},
		{"exactly at limit", "risk_generation_node", "add " + strings.Repeat("x", 76), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, g.IsFollowUp(tc.mode, tc.input))
		})
	}
}
