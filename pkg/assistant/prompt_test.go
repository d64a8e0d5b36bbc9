package assistant

import (
	"strings"
	"testing"

	"github.com/Abraxas-365/finai/pkg/ai/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPromptOmitsEmptySections(t *testing.T) {
	doc := BuildPrompt("What's my buying power?", "No conversation history.", ContextBundle{
		AccountInfo: "Buying Power: $3,000.50",
		StockInfo:   "  \n ",
	})

	require.Len(t, doc.Context, 1)
	assert.True(t, doc.Has("ACCOUNT INFORMATION:"))
	assert.False(t, doc.Has("STOCK PRICE INFORMATION:"))

	text := doc.Text()
	assert.NotContains(t, text, "SEC 10-K CONTEXT:")
	assert.NotContains(t, text, "PORTFOLIO POSITIONS:")
	assert.Contains(t, text, "ACCOUNT INFORMATION:\nBuying Power: $3,000.50")
}

func TestBuildPromptSectionOrder(t *testing.T) {
	doc := BuildPrompt("q", "User Query 1: hi\nAssistant Response 1: hello", ContextBundle{
		SECContext:  "sec",
		AccountInfo: "acct",
		Positions:   "pos",
		StockInfo:   "price",
	})
	text := doc.Text()

	order := []string{
		"<|system|>",
		"You are a helpful financial assistant.",
		"SEC 10-K CONTEXT:\nsec",
		"ACCOUNT INFORMATION:\nacct",
		"PORTFOLIO POSITIONS:\npos",
		"STOCK PRICE INFORMATION:\nprice",
		"When responding to the user:",
		"- Clearly indicate when information is not available",
		"</|system|>",
		"CONVERSATION HISTORY:\nUser Query 1: hi",
		"<|user|>\nq\n</|user|>",
		"<|assistant|>",
	}
	last := -1
	for _, part := range order {
		i := strings.Index(text, part)
		require.GreaterOrEqual(t, i, 0, part)
		assert.Greater(t, i, last, part)
		last = i
	}
}

func TestBuildPromptIsDeterministic(t *testing.T) {
	bundle := ContextBundle{SECContext: "Context 1:\nRisk factors", StockInfo: "Symbol: AAPL"}
	a := BuildPrompt("risks?", "No conversation history.", bundle)
	b := BuildPrompt("risks?", "No conversation history.", bundle)

	assert.Equal(t, a.Text(), b.Text())
	assert.Equal(t, a.Messages(), b.Messages())
}

func TestPromptMessages(t *testing.T) {
	doc := BuildPrompt("  price of AMZN?  ", "User Query 1: hi\nAssistant Response 1: hello", ContextBundle{StockInfo: "Symbol: AMZN"})
	msgs := doc.Messages()

	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "STOCK PRICE INFORMATION:\nSymbol: AMZN")
	assert.True(t, strings.HasSuffix(msgs[0].Content, "CONVERSATION HISTORY:\nUser Query 1: hi\nAssistant Response 1: hello"))
	assert.Equal(t, llm.NewUserMessage("price of AMZN?"), msgs[1])
}

func TestPromptWithoutHistory(t *testing.T) {
	doc := BuildPrompt("q", "", ContextBundle{})
	assert.NotContains(t, doc.Text(), "CONVERSATION HISTORY:")
	assert.Empty(t, doc.Context)
}
