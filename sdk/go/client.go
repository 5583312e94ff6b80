package pocbesdk

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
)

// Client is a minimal POCBE HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Validator is a registered reviewer.
type Validator struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	StakeRef  string `json:"stake_ref,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Validation is one validator's review of a task.
type Validation struct {
	ID          string `json:"id"`
	ValidatorID string `json:"validator_id"`
	TaskID      string `json:"task_id"`
	Status      string `json:"status"`
	Comment     string `json:"comment,omitempty"`
	RewardRef   string `json:"reward_ref,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// Dispute is a challenge against a validation.
type Dispute struct {
	ID              string  `json:"id"`
	UserID          string  `json:"user_id"`
	ValidationID    string  `json:"validation_id"`
	Comment         string  `json:"comment"`
	Status          string  `json:"status"`
	AdminID         *string `json:"admin_id,omitempty"`
	ResponseComment string  `json:"response_comment,omitempty"`
	ResolvedBy      *string `json:"resolved_by,omitempty"`
	ResolvedAt      *string `json:"resolved_at,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

// Timer is an armed deadline held by the server.
type Timer struct {
	ValidationID string `json:"validation_id"`
	Kind         string `json:"kind"`
	Deadline     string `json:"deadline"`
}

// APIError wraps non-2xx responses. Code is the error envelope code when the
// body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// ValidationFilters narrow ListValidations.
type ValidationFilters struct {
	Status      string
	TaskID      string
	ValidatorID string
	Limit       int
}

// RegisterValidator registers identity (wallet or user id) as a validator.
// An empty identity registers the caller.
func (c *Client) RegisterValidator(ctx context.Context, identity, stakeRef string) (Validator, error) {
	body := map[string]any{}
	if identity != "" {
		body["identity"] = identity
	}
	if stakeRef != "" {
		body["stake_ref"] = stakeRef
	}
	var resp Validator
	err := c.do(ctx, http.MethodPost, "validators", body, &resp)
	return resp, err
}

// ListValidators returns every validator ordered by id.
func (c *Client) ListValidators(ctx context.Context) ([]Validator, error) {
	var resp struct {
		Items []Validator `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "validators", nil, &resp)
	return resp.Items, err
}

// CreateValidation assigns a validator to a task.
func (c *Client) CreateValidation(ctx context.Context, taskID string) (Validation, error) {
	var resp Validation
	err := c.do(ctx, http.MethodPost, "validations", map[string]any{"task_id": taskID}, &resp)
	return resp, err
}

// GetValidation fetches a validation by id.
func (c *Client) GetValidation(ctx context.Context, id string) (Validation, error) {
	var resp Validation
	err := c.do(ctx, http.MethodGet, "validations/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListValidations lists validations matching f.
func (c *Client) ListValidations(ctx context.Context, f ValidationFilters) ([]Validation, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.TaskID != "" {
		q.Set("task_id", f.TaskID)
	}
	if f.ValidatorID != "" {
		q.Set("validator_id", f.ValidatorID)
	}
	if f.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", f.Limit))
	}
	endpoint := "validations"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Validation `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// ConfirmValidation confirms a pending validation as its assigned validator.
func (c *Client) ConfirmValidation(ctx context.Context, id, comment, rewardRef string) (Validation, error) {
	body := map[string]any{"comment": comment, "reward_ref": rewardRef}
	var resp Validation
	err := c.do(ctx, http.MethodPatch, "validations/"+url.PathEscape(id)+"/confirm", body, &resp)
	return resp, err
}

// FileDispute disputes a validation. adminID is optional.
func (c *Client) FileDispute(ctx context.Context, validationID, comment, adminID string) (Dispute, error) {
	body := map[string]any{"validation_id": validationID, "comment": comment}
	if adminID != "" {
		body["admin_id"] = adminID
	}
	var resp Dispute
	err := c.do(ctx, http.MethodPost, "disputes", body, &resp)
	return resp, err
}

// GetDispute fetches a dispute by id.
func (c *Client) GetDispute(ctx context.Context, id string) (Dispute, error) {
	var resp Dispute
	err := c.do(ctx, http.MethodGet, "disputes/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ResolveDispute approves or rejects a dispute. Admin only.
func (c *Client) ResolveDispute(ctx context.Context, id string, approve bool, comment string) (Dispute, error) {
	body := map[string]any{"approve": approve, "comment": comment}
	var resp Dispute
	err := c.do(ctx, http.MethodPatch, "disputes/"+url.PathEscape(id)+"/resolve", body, &resp)
	return resp, err
}

// ListDisputed lists reported validations. Admin only.
func (c *Client) ListDisputed(ctx context.Context) ([]Validation, error) {
	var resp struct {
		Items []Validation `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "admin/validations/disputed", nil, &resp)
	return resp.Items, err
}

// Timers lists the deadlines the server currently holds. Admin only.
func (c *Client) Timers(ctx context.Context) ([]Timer, error) {
	var resp struct {
		Items []Timer `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "admin/timers", nil, &resp)
	return resp.Items, err
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
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
