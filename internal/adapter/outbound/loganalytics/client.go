// Package loganalytics implements the external query capability against
// the Azure Log Analytics REST API.
package loganalytics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/observelabs/logsearch-mcp/configs"
	"github.com/observelabs/logsearch-mcp/internal/domain"
)

const (
	defaultTokenURLFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	defaultQueryURLFormat = "https://api.loganalytics.io/v1/workspaces/%s/query"
	tokenScope            = "https://api.loganalytics.io/.default"

	// tokenExpirySkew renews the cached token slightly before the issuer
	// says it expires.
	tokenExpirySkew = 60 * time.Second
)

// Client implements usecase.QueryExecutor using standard net/http. Every
// failure it returns is a query-kind error: the wrapped cause is for the
// operational log only and is never disclosed to callers.
type Client struct {
	httpClient   *http.Client
	logger       *slog.Logger
	clientID     string
	clientSecret string
	tokenURL     string
	queryURL     string
	queryTimeout time.Duration

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	now         func() time.Time
}

// New creates a Client from the validated configuration.
func New(httpClient *http.Client, cfg *configs.Config, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient:   httpClient,
		logger:       logger.With("component", "loganalytics_client"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		tokenURL:     fmt.Sprintf(defaultTokenURLFormat, cfg.TenantID),
		queryURL:     fmt.Sprintf(defaultQueryURLFormat, cfg.WorkspaceID),
		queryTimeout: cfg.QueryTimeout,
		now:          time.Now,
	}
}

type queryRequest struct {
	Query    string `json:"query"`
	Timespan string `json:"timespan"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Execute runs one bounded, timestamped query for the validated request
// and returns the tabular result. The search term has already passed the
// validation gate, so embedding it in the query template is safe.
func (c *Client) Execute(ctx context.Context, req *domain.SearchRequest) (*domain.QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	log := c.logger.With(slog.Int("limit", req.Limit), slog.String("timespan", req.Duration))

	token, err := c.accessToken(ctx)
	if err != nil {
		log.Error("Failed to acquire access token.", slog.Any("error", err))
		return nil, domain.NewQueryError("failed to acquire access token", err)
	}

	body, err := json.Marshal(queryRequest{
		Query:    fmt.Sprintf("search %q | take %d", req.SearchTerm, req.Limit),
		Timespan: req.Duration,
	})
	if err != nil {
		return nil, domain.NewQueryError("failed to encode query request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.queryURL, strings.NewReader(string(body)))
	if err != nil {
		return nil, domain.NewQueryError("failed to create query request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	log.Debug("Executing log-analytics query.")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Error("Query request failed.", slog.Any("error", err))
		return nil, domain.NewQueryError("query request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewQueryError("failed to read query response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Error bodies echo the failing query, and with it the search
		// term; neither the log sink nor the wrapped cause may carry
		// that body.
		log.Error("Query returned non-success status.",
			slog.Int("status_code", resp.StatusCode),
		)
		return nil, domain.NewQueryError("query failed",
			fmt.Errorf("HTTP %d from query endpoint", resp.StatusCode))
	}

	var result domain.QueryResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		log.Error("Failed to decode query response.", slog.Any("error", err))
		return nil, domain.NewQueryError("malformed query response", err)
	}

	log.Debug("Query completed.", slog.Int("rows", result.RowCount()))
	return &result, nil
}

// accessToken returns a cached client-credentials token, fetching a fresh
// one when the cache is empty or near expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"scope":         {tokenScope},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token endpoint returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token response contained no access token")
	}

	c.token = tr.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenExpirySkew)
	c.logger.Debug("Acquired access token.", slog.Int("expires_in", tr.ExpiresIn))
	return c.token, nil
}
