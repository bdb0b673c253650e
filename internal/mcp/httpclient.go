package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ibarani/fitforge/internal/models"
	"github.com/ibarani/fitforge/internal/storage"
)

// HTTPClient implements DataSource by calling the FitForge REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// data lives on the remote server. The server resolves the user from the
// bearer token, so the userID arguments are ignored.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL. token is
// sent as a bearer token when non-empty.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, v any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("httpclient: create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httpclient: read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("httpclient: %s: %w", path, storage.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("httpclient: decode %s: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) Templates(ctx context.Context) ([]models.WorkoutTemplate, error) {
	var tpls []models.WorkoutTemplate
	if err := c.get(ctx, "/api/v1/templates", nil, &tpls); err != nil {
		return nil, err
	}
	return tpls, nil
}

func (c *HTTPClient) CurrentCycle(ctx context.Context, _ string) (models.CycleState, error) {
	var st models.CycleState
	err := c.get(ctx, "/api/v1/cycles/current", nil, &st)
	return st, err
}

func (c *HTTPClient) CycleHistory(ctx context.Context, _ string, from, to int) ([]models.CycleArchive, error) {
	params := url.Values{}
	if from > 0 {
		params.Set("from", strconv.Itoa(from))
	}
	if to > 0 {
		params.Set("to", strconv.Itoa(to))
	}
	var archives []models.CycleArchive
	if err := c.get(ctx, "/api/v1/cycles", params, &archives); err != nil {
		return nil, err
	}
	return archives, nil
}

func (c *HTTPClient) Workouts(ctx context.Context, _ string, from, to string, limit int) ([]models.WorkoutSession, error) {
	params := url.Values{}
	if from != "" {
		params.Set("from", from)
		if to != "" {
			params.Set("to", to)
		}
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var ws []models.WorkoutSession
	if err := c.get(ctx, "/api/v1/workouts", params, &ws); err != nil {
		return nil, err
	}
	return ws, nil
}

func (c *HTTPClient) Analysis(ctx context.Context, userID string, cycleNumber int) (models.AnalysisResult, error) {
	if cycleNumber <= 0 {
		archives, err := c.CycleHistory(ctx, userID, 0, 0)
		if err != nil {
			return models.AnalysisResult{}, err
		}
		if len(archives) == 0 {
			return models.AnalysisResult{}, fmt.Errorf("httpclient: no closed cycles: %w", storage.ErrNotFound)
		}
		cycleNumber = archives[len(archives)-1].Number
	}
	var res models.AnalysisResult
	err := c.get(ctx, "/api/v1/analysis/"+strconv.Itoa(cycleNumber), nil, &res)
	return res, err
}

func (c *HTTPClient) Suggestion(ctx context.Context, _ string, exercise string) (models.Suggestion, error) {
	var sg models.Suggestion
	err := c.get(ctx, "/api/v1/suggestions/"+url.PathEscape(exercise), nil, &sg)
	return sg, err
}
