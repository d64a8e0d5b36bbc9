// Package filing retrieves SEC annual reports and searches them by meaning.
package filing

import (
	"net/http"
	"strings"

	"github.com/Abraxas-365/finai/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("FILING")

var (
	ErrRetrieval   = ErrRegistry.Register("RETRIEVAL_ERROR", errx.TypeExternal, http.StatusBadGateway, "Filing retrieval failed")
	ErrRateLimited = ErrRegistry.Register("RATE_LIMITED", errx.TypeExternal, http.StatusTooManyRequests, "Filing API rate limit exceeded")
	ErrNotFound    = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "No filing found")
	ErrNoContent   = ErrRegistry.Register("NO_CONTENT", errx.TypeExternal, http.StatusBadGateway, "Could not extract any content from the 10-K filing")
)

// FormAnnualReport is the form type searched by default
const FormAnnualReport = "10-K"

// Sections are the 10-K items extracted, in document order
var Sections = []string{
	"1", "1A", "1B", "2", "3", "4", "5", "6", "7", "7A",
	"8", "9", "9A", "9B", "10", "11", "12", "13", "14", "15",
}

// Filing is the metadata of one filing
type Filing struct {
	AccessionNo         string `json:"accessionNo"`
	CIK                 string `json:"cik"`
	Ticker              string `json:"ticker"`
	CompanyName         string `json:"companyName"`
	FormType            string `json:"formType"`
	FiledAt             string `json:"filedAt"`
	PeriodOfReport      string `json:"periodOfReport"`
	LinkToFilingDetails string `json:"linkToFilingDetails"`
}

// Key identifies the index built from this filing
func (f *Filing) Key() IndexKey {
	return IndexKey{Ticker: strings.ToUpper(f.Ticker), AccessionNo: f.AccessionNo}
}

// Header renders the one line summary put above retrieved passages
func (f *Filing) Header(ticker string) string {
	return "Filing Information: " + orNA(f.CompanyName) + " (" + strings.ToUpper(ticker) + "), " +
		orNA(f.FormType) + ", Filed: " + orNA(f.FiledAt) + ", Period: " + orNA(f.PeriodOfReport)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// IndexKey addresses the chunks of one filing in a VectorStore
type IndexKey struct {
	Ticker      string
	AccessionNo string
}

func (k IndexKey) String() string {
	return k.Ticker + "/" + k.AccessionNo
}

// Chunk is a passage of a filing with its embedding
type Chunk struct {
	ID       string
	Position int
	Text     string
	Vector   []float32
}

// Match is a chunk returned by a similarity search
type Match struct {
	Chunk Chunk
	Score float64
}
