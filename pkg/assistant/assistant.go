// Package assistant answers financial questions: it classifies a query,
// fetches the context the classification asks for, assembles a prompt and
// generates the answer.
package assistant

import (
	"net/http"
	"time"

	"github.com/Abraxas-365/finai/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("ASSISTANT")

var (
	ErrClassificationParse = ErrRegistry.Register("CLASSIFICATION_PARSE", errx.TypeValidation, http.StatusUnprocessableEntity, "Could not parse the query classification")
	ErrEmptyQuery          = ErrRegistry.Register("EMPTY_QUERY", errx.TypeValidation, http.StatusBadRequest, "Query must not be empty")
)

// Classification is the decision about which context a query needs
type Classification struct {
	Requires10K         bool     `json:"requires_10k"`
	RequiresAccountInfo bool     `json:"requires_account_info"`
	RequiresPositions   bool     `json:"requires_positions"`
	RequiresStockPrice  bool     `json:"requires_stock_price"`
	Tickers             []string `json:"tickers"`
}

// DefaultClassification requests no context at all. It is used whenever the
// classifier cannot produce a decision.
func DefaultClassification() Classification {
	return Classification{Tickers: []string{}}
}

// Category names a slot of the ContextBundle
type Category string

const (
	CategorySECContext  Category = "sec_context"
	CategoryAccountInfo Category = "account_info"
	CategoryPositions   Category = "positions"
	CategoryStockInfo   Category = "stock_info"
)

// Categories lists the slots in prompt order
var Categories = []Category{CategorySECContext, CategoryAccountInfo, CategoryPositions, CategoryStockInfo}

// ContextBundle holds the rendered context of one turn. A slot is empty when
// its category was not requested and holds an inline error when the fetch
// failed.
type ContextBundle struct {
	SECContext  string `json:"sec_context"`
	AccountInfo string `json:"account_info"`
	Positions   string `json:"positions"`
	StockInfo   string `json:"stock_info"`
}

// Get returns the slot of category c
func (b ContextBundle) Get(c Category) string {
	switch c {
	case CategorySECContext:
		return b.SECContext
	case CategoryAccountInfo:
		return b.AccountInfo
	case CategoryPositions:
		return b.Positions
	case CategoryStockInfo:
		return b.StockInfo
	default:
		return ""
	}
}

// Stage is a step of a turn
type Stage string

const (
	StageReceived         Stage = "RECEIVED"
	StageClassifying      Stage = "CLASSIFYING"
	StageResolvingContext Stage = "RESOLVING_CONTEXT"
	StagePrompting        Stage = "PROMPTING"
	StageGenerating       Stage = "GENERATING"
	StageRecorded         Stage = "RECORDED"
)

// StageTiming records how long a turn spent in a stage
type StageTiming struct {
	Stage    Stage         `json:"stage"`
	Duration time.Duration `json:"duration_ns"`
}

// Result is a completed turn
type Result struct {
	Answer         string         `json:"answer"`
	Classification Classification `json:"classification"`
	Context        ContextBundle  `json:"context"`
	Prompt         PromptDocument `json:"-"`
	Stages         []StageTiming  `json:"stages"`
}
