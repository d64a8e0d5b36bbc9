package filinginfra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Abraxas-365/finai/pkg/errx"
	"github.com/Abraxas-365/finai/pkg/filing"
	"github.com/Abraxas-365/finai/pkg/logx"
	"github.com/patrickmn/go-cache"
)

const maxErrorBody = 512

// SECAPIConfig configures the sec-api.io client
type SECAPIConfig struct {
	APIKey   string
	BaseURL  string
	CacheTTL time.Duration
	Timeout  time.Duration
	// Sections overrides the 10-K items extracted
	Sections []string
}

// SECAPIClient finds filings with the sec-api.io query API and extracts
// their text item by item with the extractor API
type SECAPIClient struct {
	cfg        SECAPIConfig
	httpClient *http.Client
	filings    *cache.Cache
}

func NewSECAPIClient(cfg SECAPIConfig) *SECAPIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.sec-api.io"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 12 * time.Hour
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.Sections) == 0 {
		cfg.Sections = filing.Sections
	}
	return &SECAPIClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		filings:    cache.New(cfg.CacheTTL, 10*time.Minute),
	}
}

type queryRequest struct {
	Query struct {
		QueryString struct {
			Query string `json:"query"`
		} `json:"query_string"`
	} `json:"query"`
	From string           `json:"from"`
	Size string           `json:"size"`
	Sort []map[string]any `json:"sort"`
}

type queryResponse struct {
	Filings []filing.Filing `json:"filings"`
}

// LatestFiling returns the most recent filing of formType for ticker.
// Results are cached for CacheTTL.
func (c *SECAPIClient) LatestFiling(ctx context.Context, ticker, formType string) (*filing.Filing, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if formType == "" {
		formType = filing.FormAnnualReport
	}

	cacheKey := fmt.Sprintf("%s_%s_latest", ticker, formType)
	if cached, ok := c.filings.Get(cacheKey); ok {
		f := cached.(filing.Filing)
		return &f, nil
	}

	var req queryRequest
	req.Query.QueryString.Query = fmt.Sprintf(`ticker:%s AND formType:"%s"`, ticker, formType)
	req.From = "0"
	req.Size = "1"
	req.Sort = []map[string]any{{"filedAt": map[string]string{"order": "desc"}}}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errx.Wrap(err, "failed to encode filing query", errx.TypeInternal)
	}

	endpoint := c.cfg.BaseURL + "?token=" + url.QueryEscape(c.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errx.Wrap(err, "failed to build filing query", errx.TypeInternal)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	data, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	var resp queryResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, filing.ErrRegistry.NewWithCause(filing.ErrRetrieval, fmt.Errorf("failed to decode filing query response: %w", err))
	}
	if len(resp.Filings) == 0 {
		return nil, filing.ErrRegistry.NewWithMessage(filing.ErrNotFound, fmt.Sprintf("No %s filings found for %s", formType, ticker)).
			WithDetail("ticker", ticker)
	}

	f := resp.Filings[0]
	if f.Ticker == "" {
		f.Ticker = ticker
	}
	c.filings.SetDefault(cacheKey, f)

	logx.WithFields(logx.Fields{
		"ticker":    ticker,
		"accession": f.AccessionNo,
		"filed_at":  f.FiledAt,
	}).Info("Found latest filing")

	return &f, nil
}

// FilingText extracts the configured items one request at a time and joins
// them. Items that fail are skipped, but a rate limit aborts the extraction
// since every following request would fail the same way.
func (c *SECAPIClient) FilingText(ctx context.Context, f *filing.Filing) (string, error) {
	docURL := filingURL(f)
	log := logx.WithFields(logx.Fields{"ticker": f.Ticker, "accession": f.AccessionNo})

	parts := make([]string, 0, len(c.cfg.Sections))
	for _, section := range c.cfg.Sections {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := c.section(ctx, docURL, section)
		if err != nil {
			if errx.CodeOf(err) == string(filing.ErrRateLimited) {
				return "", err
			}
			log.Warnf("Skipping item %s: %v", section, err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}

	if len(parts) == 0 {
		return "", filing.ErrRegistry.New(filing.ErrNoContent).WithDetail("ticker", f.Ticker)
	}

	log.Infof("Extracted %d of %d items", len(parts), len(c.cfg.Sections))
	return strings.Join(parts, "\n\n"), nil
}

func (c *SECAPIClient) section(ctx context.Context, docURL, item string) (string, error) {
	q := url.Values{}
	q.Set("url", docURL)
	q.Set("item", item)
	q.Set("type", "text")
	q.Set("token", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/extractor?"+q.Encode(), nil)
	if err != nil {
		return "", errx.Wrap(err, "failed to build extractor request", errx.TypeInternal)
	}

	data, err := c.do(req)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *SECAPIClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, filing.ErrRegistry.NewWithCause(filing.ErrRetrieval, redactToken(err, c.cfg.APIKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, filing.ErrRegistry.New(filing.ErrRateLimited).WithDetail("status", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		cause := fmt.Errorf("sec-api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		return nil, filing.ErrRegistry.NewWithCause(filing.ErrRetrieval, cause).WithDetail("status", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, filing.ErrRegistry.NewWithCause(filing.ErrRetrieval, err)
	}
	return data, nil
}

// filingURL is the document the extractor reads items from
func filingURL(f *filing.Filing) string {
	if f.LinkToFilingDetails != "" {
		return f.LinkToFilingDetails
	}
	accession := strings.ReplaceAll(f.AccessionNo, "-", "")
	return fmt.Sprintf("https://www.sec.gov/Archives/edgar/data/%s/%s/index.json", f.CIK, accession)
}

// redactToken keeps the API key out of transport errors, which quote the URL
func redactToken(err error, token string) error {
	if token == "" {
		return err
	}
	msg := err.Error()
	redacted := strings.ReplaceAll(strings.ReplaceAll(msg, url.QueryEscape(token), "REDACTED"), token, "REDACTED")
	if redacted == msg {
		return err
	}
	return errors.New(redacted)
}

var _ filing.Source = (*SECAPIClient)(nil)
