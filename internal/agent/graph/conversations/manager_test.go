package conversations

import (
	"fmt"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskpilot-core/server/internal/agent/model"
)

func TestBuildMessagesSystemFirst(t *testing.T) {
	history := []model.Exchange{{User: "hi", Assistant: "hello"}}
	msgs := BuildMessages("you are helpful", history, 5, "what next")

	require.Len(t, msgs, 4)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Equal(t, schema.Assistant, msgs[2].Role)
	assert.Equal(t, "what next", msgs[3].Content)
}

func TestBuildMessagesWindowsHistory(t *testing.T) {
	var history []model.Exchange
	for i := 0; i < 9; i++ {
		history = append(history, model.Exchange{
			User:      fmt.Sprintf("u%d", i),
			Assistant: fmt.Sprintf("a%d", i),
		})
	}
	msgs := BuildMessages("sys", history, 5, "now")

	require.Len(t, msgs, 12)
	assert.Equal(t, "u4", msgs[1].Content, "oldest exchanges are dropped")
	assert.Equal(t, "a8", msgs[10].Content)
}

func TestBuildMessagesEmptyHistory(t *testing.T) {
	msgs := BuildMessages("sys", nil, 5, "first message")
	require.Len(t, msgs, 2)
	assert.Equal(t, "first message", msgs[1].Content)
}
