package moldlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal moldline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// Allocation is one scheduled order.
type Allocation struct {
	OrderID   string `json:"orderId"`
	MoldID    string `json:"moldId"`
	MoldName  string `json:"moldName"`
	WorkDay   string `json:"workDay"`
	Product   string `json:"product"`
	HeavyFill bool   `json:"heavyFill"`
	LOPAdjust bool   `json:"lopAdjust"`
	LOPLength string `json:"lopLength,omitempty"`
	Priority  int    `json:"priority"`
	RunID     string `json:"runId"`
}

type Failures struct {
	NoCompatibleMold  []string `json:"no_compatible_mold"`
	CapacityExhausted []string `json:"capacity_exhausted"`
}

// Analytics summarizes a schedule run.
type Analytics struct {
	TotalOrders       int            `json:"totalOrders"`
	ScheduledOrders   int            `json:"scheduledOrders"`
	UnscheduledOrders int            `json:"unscheduledOrders"`
	Efficiency        float64        `json:"efficiency"`
	WorkDays          int            `json:"workDays"`
	DailyCapacity     int            `json:"dailyCapacity"`
	CapacityHint      *int           `json:"capacityHint,omitempty"`
	HintOverridden    bool           `json:"hintOverridden"`
	MaterialBreakdown map[string]int `json:"materialBreakdown"`
	MoldUtilization   map[string]int `json:"moldUtilization"`
	Failures          Failures       `json:"failures"`
	Warnings          []string       `json:"warnings,omitempty"`
}

type GenerateRequest struct {
	MaxOrdersPerDay *int   `json:"maxOrdersPerDay,omitempty"`
	ScheduleDays    int    `json:"scheduleDays"`
	StartDate       string `json:"startDate,omitempty"`
}

type GenerateResponse struct {
	RunID       string       `json:"runId"`
	Allocations []Allocation `json:"allocations"`
	Analytics   Analytics    `json:"analytics"`
}

type Run struct {
	ID            string    `json:"id"`
	Scope         string    `json:"scope"`
	StartDate     string    `json:"startDate"`
	Days          int       `json:"days"`
	CapacityHint  *int      `json:"capacityHint,omitempty"`
	DailyCapacity int       `json:"dailyCapacity"`
	ActorID       string    `json:"actorId"`
	Report        Analytics `json:"report"`
	CreatedAt     string    `json:"createdAt"`
}

type Order struct {
	ID        string         `json:"id"`
	Product   string         `json:"product"`
	OrderDate string         `json:"order_date"`
	DueDate   string         `json:"due_date,omitempty"`
	Stage     string         `json:"stage"`
	Features  map[string]any `json:"features,omitempty"`
	UpdatedAt string         `json:"updated_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// GenerateSchedule triggers a schedule run.
func (c *Client) GenerateSchedule(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	var resp GenerateResponse
	err := c.do(ctx, http.MethodPost, "v1/schedule/generate", req, &resp)
	return resp, err
}

// Schedule returns persisted allocations between from and to (inclusive,
// either may be empty).
func (c *Client) Schedule(ctx context.Context, from, to string) ([]Allocation, error) {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	endpoint := "v1/schedule"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Allocations []Allocation `json:"allocations"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Allocations, err
}

// Runs returns recent schedule runs, newest first.
func (c *Client) Runs(ctx context.Context, limit int) ([]Run, error) {
	endpoint := "v1/schedule/runs"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Run
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Backlog returns orders not yet in production.
func (c *Client) Backlog(ctx context.Context) ([]Order, error) {
	var resp []Order
	err := c.do(ctx, http.MethodGet, "v1/orders/backlog", nil, &resp)
	return resp, err
}

// AdvanceOrders moves orders to their next pipeline stage.
func (c *Client) AdvanceOrders(ctx context.Context, orderIDs ...string) ([]Order, error) {
	var resp []Order
	err := c.do(ctx, http.MethodPost, "v1/orders/advance", map[string]any{"order_ids": orderIDs}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
