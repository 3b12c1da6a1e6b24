package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// WorkflowResponse — снимок workflow из API.
type WorkflowResponse struct {
	WorkflowID  string           `json:"workflow_id"`
	SourceID    string           `json:"source_id"`
	Source      string           `json:"source"`
	Status      string           `json:"status"`
	CurrentNode string           `json:"current_node"`
	RiskScore   *float64         `json:"risk_score,omitempty"`
	Results     map[string]any   `json:"results,omitempty"`
	Errors      []map[string]any `json:"errors,omitempty"`
	RetryCounts map[string]int   `json:"retry_counts,omitempty"`
	Review      *ReviewBlock     `json:"review,omitempty"`
	CreatedAt   string           `json:"created_at"`
	UpdatedAt   string           `json:"updated_at"`
}

// ReviewBlock — блок review в снимке workflow.
type ReviewBlock struct {
	RequestedAt string `json:"requested_at"`
	Decision    string `json:"decision,omitempty"`
	DecidedBy   string `json:"decided_by,omitempty"`
	Feedback    string `json:"feedback,omitempty"`
	ClaimedBy   string `json:"claimed_by,omitempty"`
	LeaseUntil  string `json:"lease_until,omitempty"`
}

// ReviewTaskResponse — review-задача из API.
type ReviewTaskResponse struct {
	WorkflowID  string  `json:"workflow_id"`
	SourceID    string  `json:"source_id"`
	Source      string  `json:"source"`
	RiskScore   float64 `json:"risk_score"`
	RequestedAt string  `json:"requested_at"`
	ClaimedBy   string  `json:"claimed_by,omitempty"`
	LeaseUntil  string  `json:"lease_until,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент операторского API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Workflows ---

// GetWorkflow возвращает снимок workflow.
func (c *Client) GetWorkflow(id string) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.get("/api/v1/workflows/"+id, &wf)
	return &wf, err
}

// CancelWorkflow отменяет workflow.
func (c *Client) CancelWorkflow(id string) error {
	return c.post("/api/v1/workflows/"+id+"/cancel", nil, nil)
}

// --- Reviews ---

// ListReviews возвращает страницу review-задач.
func (c *Client) ListReviews(offset, limit int) ([]ReviewTaskResponse, error) {
	params := url.Values{}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var tasks []ReviewTaskResponse
	err := c.list("/api/v1/reviews", params, &tasks)
	return tasks, err
}

// ClaimReview берёт аренду на решение.
func (c *Client) ClaimReview(id, operator string) (string, error) {
	body := map[string]string{"operator": operator}
	var resp struct {
		LeaseToken string `json:"lease_token"`
	}
	if err := c.post("/api/v1/reviews/"+id+"/claim", body, &resp); err != nil {
		return "", err
	}
	return resp.LeaseToken, nil
}

// DecideReview отправляет решение оператора.
func (c *Client) DecideReview(id, leaseToken, decision, feedback string) error {
	body := map[string]string{
		"lease_token": leaseToken,
		"decision":    decision,
		"feedback":    feedback,
	}
	return c.post("/api/v1/reviews/"+id+"/decide", body, nil)
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
