package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Abraxas-365/finai/pkg/ai/llm"
	"github.com/Abraxas-365/finai/pkg/logx"
)

const classificationPrompt = `You are a financial query classifier. Analyze the following user query and classify it based on what information is required to answer it.

%sUSER QUERY: %s

Respond with a JSON object containing the following classifications (true/false):
1. requires_10k: Does the query require information from SEC 10-K filings?
2. requires_account_info: Does the query ask about the user's account information (balance, buying power, etc.)?
3. requires_positions: Does the query ask about the user's portfolio positions or holdings?
4. requires_stock_price: Does the query ask about current stock prices or market data?
5. tickers: List the stock ticker symbols relevant to the current query, mentioned or implied in the query or the conversation history. Include both explicit tickers (e.g., "AAPL") and implied ones (e.g., "Apple's stock" implies "AAPL"). Do not repeat tickers from the history that the current query no longer refers to.

IMPORTANT: Only respond with the JSON object, nothing else. Format should be exactly:
{"requires_10k": true/false, "requires_account_info": true/false, "requires_positions": true/false, "requires_stock_price": true/false, "tickers": ["TICKER1", "TICKER2"]}`

var (
	tickerPattern  = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)
	literalTickers = regexp.MustCompile(`\b[A-Z]{1,5}\b`)
)

// stopWords are uppercase tokens that are almost never tickers
var stopWords = map[string]struct{}{
	"I": {}, "A": {}, "AN": {}, "THE": {}, "AT": {}, "OF": {}, "IN": {}, "ON": {}, "TO": {}, "FOR": {},
	"AND": {}, "OR": {}, "BY": {}, "IS": {}, "BE": {}, "ARE": {}, "WAS": {}, "WERE": {},
	"CEO": {}, "CFO": {}, "CTO": {}, "USA": {}, "UK": {}, "EU": {}, "GDP": {}, "SEC": {}, "IPO": {},
	"AI": {}, "ML": {}, "API": {}, "CIO": {}, "COO": {}, "ESG": {}, "ETF": {}, "ROI": {}, "KPI": {}, "YOY": {},
}

// LLMClassifier asks the language model for a Classification
type LLMClassifier struct {
	client          *llm.Client
	literalFallback bool
}

// NewLLMClassifier builds a classifier. With literalFallback, a reply that
// asks for prices or filings without naming a ticker gets the uppercase
// symbols written in the query itself.
func NewLLMClassifier(client *llm.Client, literalFallback bool) *LLMClassifier {
	return &LLMClassifier{client: client, literalFallback: literalFallback}
}

// ClassificationPrompt renders the instruction sent to the model
func ClassificationPrompt(query, history string) string {
	historyBlock := ""
	if h := strings.TrimSpace(history); h != "" {
		historyBlock = "CONVERSATION HISTORY:\n" + h + "\n\n"
	}
	return fmt.Sprintf(classificationPrompt, historyBlock, query)
}

func (c *LLMClassifier) Classify(ctx context.Context, query, history string) (Classification, error) {
	reply, err := c.client.Generate(ctx,
		[]llm.Message{llm.NewUserMessage(ClassificationPrompt(query, history))},
		llm.WithDeterministic(),
		llm.WithJSONMode(),
	)
	if err != nil {
		return Classification{}, err
	}

	result, err := ParseClassification(reply)
	if err != nil {
		return Classification{}, err
	}

	if c.literalFallback && len(result.Tickers) == 0 && (result.RequiresStockPrice || result.Requires10K) {
		result.Tickers = ExtractTickers(query)
		if len(result.Tickers) > 0 {
			logx.WithFields(logx.Fields{"tickers": result.Tickers}).Debug("Classifier named no ticker, using symbols from the query")
		}
	}
	return result, nil
}

// rawClassification detects missing keys
type rawClassification struct {
	Requires10K         *bool     `json:"requires_10k"`
	RequiresAccountInfo *bool     `json:"requires_account_info"`
	RequiresPositions   *bool     `json:"requires_positions"`
	RequiresStockPrice  *bool     `json:"requires_stock_price"`
	Tickers             *[]string `json:"tickers"`
}

// ParseClassification validates a classifier reply. The reply must be a
// single JSON object with exactly the five classification keys, optionally
// inside a markdown code fence.
func ParseClassification(reply string) (Classification, error) {
	body := stripCodeFence(reply)

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()

	var raw rawClassification
	if err := dec.Decode(&raw); err != nil {
		return Classification{}, parseError(reply, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Classification{}, parseError(reply, errors.New("unexpected data after the JSON object"))
	}

	var missing []string
	if raw.Requires10K == nil {
		missing = append(missing, "requires_10k")
	}
	if raw.RequiresAccountInfo == nil {
		missing = append(missing, "requires_account_info")
	}
	if raw.RequiresPositions == nil {
		missing = append(missing, "requires_positions")
	}
	if raw.RequiresStockPrice == nil {
		missing = append(missing, "requires_stock_price")
	}
	if raw.Tickers == nil {
		missing = append(missing, "tickers")
	}
	if len(missing) > 0 {
		return Classification{}, parseError(reply, fmt.Errorf("missing keys: %s", strings.Join(missing, ", ")))
	}

	return Classification{
		Requires10K:         *raw.Requires10K,
		RequiresAccountInfo: *raw.RequiresAccountInfo,
		RequiresPositions:   *raw.RequiresPositions,
		RequiresStockPrice:  *raw.RequiresStockPrice,
		Tickers:             NormalizeTickers(*raw.Tickers),
	}, nil
}

// replyExcerptRunes bounds the reply kept in a parse error
const replyExcerptRunes = 200

func parseError(reply string, cause error) error {
	excerpt := reply
	if utf8.RuneCountInString(excerpt) > replyExcerptRunes {
		excerpt = string([]rune(excerpt)[:replyExcerptRunes])
	}
	return ErrRegistry.NewWithCause(ErrClassificationParse, cause).WithDetail("reply", excerpt)
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// NormalizeTickers upper-cases symbols, drops anything that does not look
// like a ticker and removes duplicates keeping the first occurrence
func NormalizeTickers(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		t = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "$")))
		if !tickerPattern.MatchString(t) {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ExtractTickers returns the 1 to 5 letter uppercase words of text that are
// not common abbreviations, in order of appearance
func ExtractTickers(text string) []string {
	var found []string
	for _, m := range literalTickers.FindAllString(text, -1) {
		if _, stop := stopWords[m]; stop {
			continue
		}
		found = append(found, m)
	}
	return NormalizeTickers(found)
}
