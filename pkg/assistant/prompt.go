package assistant

import (
	"strings"

	"github.com/Abraxas-365/finai/pkg/ai/llm"
)

const preamble = "You are a helpful financial assistant. Provide your best advice and information to assist the user with their financial questions."

var guidelines = []string{
	"Provide concise and accurate information",
	"Base your answers on the data provided",
	"Clearly indicate when information is not available",
	"Maintain a professional, helpful tone",
}

// contextLabels maps every category to its heading
var contextLabels = map[Category]string{
	CategorySECContext:  "SEC 10-K CONTEXT:",
	CategoryAccountInfo: "ACCOUNT INFORMATION:",
	CategoryPositions:   "PORTFOLIO POSITIONS:",
	CategoryStockInfo:   "STOCK PRICE INFORMATION:",
}

const historyLabel = "CONVERSATION HISTORY:"

// Section is a labeled block of the prompt
type Section struct {
	Label   string
	Content string
}

func (s Section) String() string {
	return s.Label + "\n" + s.Content
}

// PromptDocument is the prompt of one turn. Context only holds the non-empty
// slots of the bundle.
type PromptDocument struct {
	Context []Section
	History string
	Query   string
}

// BuildPrompt assembles the prompt for query. It has no side effects and the
// same inputs always give the same document.
func BuildPrompt(query, history string, bundle ContextBundle) PromptDocument {
	doc := PromptDocument{
		History: strings.TrimSpace(history),
		Query:   strings.TrimSpace(query),
	}
	for _, c := range Categories {
		content := strings.TrimSpace(bundle.Get(c))
		if content == "" {
			continue
		}
		doc.Context = append(doc.Context, Section{Label: contextLabels[c], Content: content})
	}
	return doc
}

// Has reports whether the document carries a section with label
func (p PromptDocument) Has(label string) bool {
	for _, s := range p.Context {
		if s.Label == label {
			return true
		}
	}
	return false
}

// System renders the instructions and the context sections
func (p PromptDocument) System() string {
	blocks := make([]string, 0, len(p.Context)+2)
	blocks = append(blocks, preamble)
	for _, s := range p.Context {
		blocks = append(blocks, s.String())
	}

	var g strings.Builder
	g.WriteString("When responding to the user:")
	for _, line := range guidelines {
		g.WriteString("\n- ")
		g.WriteString(line)
	}
	blocks = append(blocks, g.String())

	return strings.Join(blocks, "\n\n")
}

func (p PromptDocument) historyBlock() string {
	if p.History == "" {
		return ""
	}
	return historyLabel + "\n" + p.History
}

// Text renders the whole document as a single completion prompt
func (p PromptDocument) Text() string {
	var sb strings.Builder
	sb.WriteString("<|system|>\n")
	sb.WriteString(p.System())
	sb.WriteString("\n</|system|>\n\n")
	if h := p.historyBlock(); h != "" {
		sb.WriteString(h)
		sb.WriteString("\n\n")
	}
	sb.WriteString("<|user|>\n")
	sb.WriteString(p.Query)
	sb.WriteString("\n</|user|>\n\n<|assistant|>\n")
	return sb.String()
}

// Messages renders the document for chat models: the system message carries
// the instructions, the context and the history, the user message is the
// query
func (p PromptDocument) Messages() []llm.Message {
	system := p.System()
	if h := p.historyBlock(); h != "" {
		system += "\n\n" + h
	}
	return []llm.Message{
		llm.NewSystemMessage(system),
		llm.NewUserMessage(p.Query),
	}
}
