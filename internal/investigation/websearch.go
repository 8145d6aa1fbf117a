package investigation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/anacreon-labs/factledger/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrInvestigationUnavailable = errors.New("investigation unavailable")

const (
	defaultDuckDuckGoURL = "https://api.duckduckgo.com/"
	defaultTimeout       = 8 * time.Second
	maxRelatedTopics     = 5
	maxResponseBytes     = 1 << 20
	userAgent            = "factledger/1.0 (+https://github.com/anacreon-labs/factledger)"
)

type ClientConfig struct {
	Timeout time.Duration
	// RPS caps outbound requests. Zero or less disables the limiter.
	RPS  float64
	Lang string
	// Endpoint overrides, used by tests.
	DuckDuckGoURL string
	WikipediaURL  string
}

// Client queries DuckDuckGo Instant Answer and falls back to the Wikipedia
// REST summary endpoint.
type Client struct {
	httpClient    *http.Client
	limiter       *rate.Limiter
	timeout       time.Duration
	duckDuckGoURL string
	wikipediaURL  string
	logger        *zap.Logger
}

func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	lang := cfg.Lang
	if lang == "" {
		lang = "pt"
	}
	ddg := cfg.DuckDuckGoURL
	if ddg == "" {
		ddg = defaultDuckDuckGoURL
	}
	wiki := cfg.WikipediaURL
	if wiki == "" {
		wiki = fmt.Sprintf("https://%s.wikipedia.org", lang)
	}

	limit := rate.Inf
	burst := 1
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}

	return &Client{
		httpClient:    &http.Client{},
		limiter:       rate.NewLimiter(limit, burst),
		timeout:       timeout,
		duckDuckGoURL: ddg,
		wikipediaURL:  strings.TrimRight(wiki, "/"),
		logger:        logger,
	}
}

// Close drops idle keep-alive connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

type duckDuckGoResponse struct {
	Heading        string `json:"Heading"`
	Abstract       string `json:"Abstract"`
	AbstractText   string `json:"AbstractText"`
	AbstractSource string `json:"AbstractSource"`
	AbstractURL    string `json:"AbstractURL"`
	Definition     string `json:"Definition"`
	RelatedTopics  []struct {
		Text   string `json:"Text"`
		Result string `json:"Result"`
	} `json:"RelatedTopics"`
}

type wikipediaSummary struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Extract     string `json:"extract"`
	ExtractHTML string `json:"extract_html"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

// Search returns whatever the first source with content says about query.
// A result with Success=false means both sources answered but had nothing;
// an error wrapping ErrInvestigationUnavailable means neither could be
// reached within the timeout.
func (c *Client) Search(ctx context.Context, query string) (*domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return &domain.SearchResult{Query: query, Error: "empty query", FetchedAt: time.Now().UTC()}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ddgResult, ddgErr := c.searchDuckDuckGo(ctx, query)
	if ddgErr == nil && ddgResult.Success {
		return ddgResult, nil
	}
	if ddgErr != nil {
		c.logger.Warn("duckduckgo search failed", zap.String("query", query), zap.Error(ddgErr))
	}

	wikiResult, wikiErr := c.searchWikipedia(ctx, query)
	if wikiErr == nil && wikiResult.Success {
		return wikiResult, nil
	}
	if wikiErr != nil {
		c.logger.Warn("wikipedia search failed", zap.String("query", query), zap.Error(wikiErr))
	}

	if ddgErr != nil && wikiErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvestigationUnavailable, wikiErr)
	}
	return &domain.SearchResult{
		Query:     query,
		Error:     "no information found",
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (c *Client) searchDuckDuckGo(ctx context.Context, query string) (*domain.SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "0")
	params.Set("skip_disambig", "1")

	var resp duckDuckGoResponse
	found, err := c.getJSON(ctx, c.duckDuckGoURL+"?"+params.Encode(), &resp)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}

	result := &domain.SearchResult{Query: query, FetchedAt: time.Now().UTC()}
	if !found {
		return result, nil
	}

	summary := PlainText(resp.Abstract)
	if summary == "" {
		summary = strings.TrimSpace(resp.AbstractText)
	}
	result.Summary = summary
	result.Definition = PlainText(resp.Definition)
	result.Title = resp.Heading
	result.SourceName = resp.AbstractSource
	if result.SourceName == "" {
		result.SourceName = "DuckDuckGo"
	}
	result.SourceURL = resp.AbstractURL

	for _, topic := range resp.RelatedTopics {
		text := strings.TrimSpace(topic.Text)
		if text == "" {
			text = PlainText(topic.Result)
		}
		if text == "" {
			continue
		}
		result.RelatedInfo = append(result.RelatedInfo, text)
		if len(result.RelatedInfo) == maxRelatedTopics {
			break
		}
	}

	result.Success = result.Summary != "" || result.Definition != ""
	return result, nil
}

func (c *Client) searchWikipedia(ctx context.Context, query string) (*domain.SearchResult, error) {
	title := url.PathEscape(strings.ReplaceAll(query, " ", "_"))
	var resp wikipediaSummary
	found, err := c.getJSON(ctx, c.wikipediaURL+"/api/rest_v1/page/summary/"+title, &resp)
	if err != nil {
		return nil, fmt.Errorf("wikipedia: %w", err)
	}

	result := &domain.SearchResult{Query: query, FetchedAt: time.Now().UTC()}
	if !found || resp.Type == "disambiguation" {
		return result, nil
	}

	summary := PlainText(resp.ExtractHTML)
	if summary == "" {
		summary = strings.TrimSpace(resp.Extract)
	}
	result.Summary = summary
	result.Title = resp.Title
	result.SourceName = "Wikipedia"
	result.SourceURL = resp.ContentURLs.Desktop.Page
	result.Success = summary != ""
	return result, nil
}

// getJSON reports found=false for a 404 so a missing page is not mistaken
// for an outage.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return false, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("unmarshal response: %w", err)
	}
	return true, nil
}

var (
	mdImage    = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLink     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdEmphasis = regexp.MustCompile("[*_`#>]+")
	spaces     = regexp.MustCompile(`\s+`)
)

// PlainText converts an HTML fragment to a single line of text.
func PlainText(html string) string {
	html = strings.TrimSpace(html)
	if html == "" {
		return ""
	}
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		md = html
	}
	md = mdImage.ReplaceAllString(md, "")
	md = mdLink.ReplaceAllString(md, "$1")
	md = mdEmphasis.ReplaceAllString(md, "")
	md = strings.ReplaceAll(md, `\`, "")
	return strings.TrimSpace(spaces.ReplaceAllString(md, " "))
}
