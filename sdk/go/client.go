package welfareflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Welfareflow HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base path,
// e.g. http://localhost:8080/v1.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// FormField is one entry of a form section.
type FormField struct {
	Label string `json:"label,omitempty"`
	Name  string `json:"name"`
	Value any    `json:"value"`
	File  string `json:"File,omitempty"`
}

// Player is one step of an application's workflow (partial).
type Player struct {
	PlayerID    int    `json:"playerId"`
	Designation string `json:"designation"`
	AccessLevel string `json:"accessLevel"`
	AccessCode  int    `json:"accessCode"`
	Status      string `json:"status"`
}

// Application represents the API application model (partial).
type Application struct {
	ReferenceNumber string                 `json:"referenceNumber"`
	ServiceID       int                    `json:"serviceId"`
	ApplicantName   string                 `json:"applicantName"`
	FormDetails     map[string][]FormField `json:"formDetails"`
	WorkFlow        []Player               `json:"workFlow"`
	CurrentPlayer   int                    `json:"currentPlayer"`
	Status          string                 `json:"status"`
	EditableFields  []string               `json:"editableFields,omitempty"`
	Version         int                    `json:"version"`
}

// ActionDetails carries the action-specific inputs.
type ActionDetails struct {
	EditableFields     []string `json:"editableFields,omitempty"`
	SignedDocumentPath string   `json:"signedDocumentPath,omitempty"`
	TargetAccessCode   int      `json:"targetAccessCode,omitempty"`
}

// ActionResponse is the envelope returned by the actions endpoint, on success
// and on workflow failures alike.
type ActionResponse struct {
	Status            bool   `json:"status"`
	Response          string `json:"response"`
	ReferenceNumber   string `json:"referenceNumber,omitempty"`
	CurrentPlayer     int    `json:"currentPlayer"`
	ApplicationStatus string `json:"applicationStatus,omitempty"`
}

// Table is a listing or history page.
type Table struct {
	Data         []map[string]any `json:"data"`
	PoolData     []map[string]any `json:"poolData,omitempty"`
	Columns      []Column         `json:"columns"`
	TotalRecords int              `json:"totalRecords"`
	CanSanction  bool             `json:"canSanction,omitempty"`
}

type Column struct {
	Key    string `json:"accessorKey"`
	Header string `json:"header"`
}

// ListOptions shapes a listing, export or history request.
type ListOptions struct {
	Status    string
	DataType  string
	Scope     string
	PageIndex int
	PageSize  int
	Columns   []string
	Hidden    []string
}

// ValidationResult is the outcome of a field check.
type ValidationResult struct {
	IsValid      bool              `json:"isValid"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
}

// Report is a downloaded export.
type Report struct {
	Body        []byte
	ContentType string
	Filename    string
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Submit files a new application. An empty ref lets the server generate one.
func (c *Client) Submit(ctx context.Context, serviceID int, ref string, form map[string][]FormField, remarks string) (Application, error) {
	body := map[string]any{
		"serviceId":       serviceID,
		"referenceNumber": ref,
		"formDetails":     form,
		"remarks":         remarks,
	}
	var resp Application
	err := c.do(ctx, http.MethodPost, "applications", body, &resp)
	return resp, err
}

// Application fetches an application by reference number.
func (c *Client) Application(ctx context.Context, ref string) (Application, error) {
	var resp Application
	err := c.do(ctx, http.MethodGet, "applications/"+url.PathEscape(ref), nil, &resp)
	return resp, err
}

// Resubmit sends citizen corrections after a return to citizen.
func (c *Client) Resubmit(ctx context.Context, ref string, fields map[string]any, remarks string) (Application, error) {
	body := map[string]any{"fields": fields, "remarks": remarks}
	var resp Application
	err := c.do(ctx, http.MethodPost, "applications/"+url.PathEscape(ref)+"/resubmit", body, &resp)
	return resp, err
}

// TakeAction performs a workflow action. A rejected action returns both the
// decoded envelope (Status false) and an *APIError.
func (c *Client) TakeAction(ctx context.Context, ref, action, remarks string, details ActionDetails) (ActionResponse, error) {
	body := map[string]any{
		"action":            action,
		"remarks":           remarks,
		"additionalDetails": details,
	}
	var resp ActionResponse
	err := c.do(ctx, http.MethodPost, "applications/"+url.PathEscape(ref)+"/actions", body, &resp)
	if apiErr, ok := err.(*APIError); ok {
		_ = json.Unmarshal([]byte(apiErr.Body), &resp)
	}
	return resp, err
}

// ListApplications returns the caller's applications for a service.
func (c *Client) ListApplications(ctx context.Context, serviceID int, opts ListOptions) (Table, error) {
	var resp Table
	endpoint := fmt.Sprintf("services/%d/applications%s", serviceID, opts.listingQuery(nil))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Counts returns per-status totals for the caller.
func (c *Client) Counts(ctx context.Context, serviceID int) (map[string]int, error) {
	resp := map[string]int{}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("services/%d/counts", serviceID), nil, &resp)
	return resp, err
}

// History returns the audit trail of an application.
func (c *Client) History(ctx context.Context, ref string, opts ListOptions) (Table, error) {
	q := url.Values{}
	if opts.Scope != "" {
		q.Set("scope", opts.Scope)
		q.Set("page", strconv.Itoa(opts.PageIndex))
		q.Set("size", strconv.Itoa(opts.PageSize))
	}
	setList(q, "columns", opts.Columns)
	setList(q, "hidden", opts.Hidden)
	var resp Table
	err := c.do(ctx, http.MethodGet, "applications/"+url.PathEscape(ref)+"/history"+encode(q), nil, &resp)
	return resp, err
}

// Export downloads the caller's listing as csv, excel or pdf.
func (c *Client) Export(ctx context.Context, serviceID int, format string, opts ListOptions) (Report, error) {
	q := url.Values{}
	q.Set("format", format)
	endpoint := fmt.Sprintf("services/%d/applications/export%s", serviceID, opts.listingQuery(q))
	resp, err := c.send(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Report{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Body: data, ContentType: resp.Header.Get("Content-Type")}
	if _, name, ok := strings.Cut(resp.Header.Get("Content-Disposition"), "filename="); ok {
		rep.Filename = strings.Trim(name, `"`)
	}
	return rep, nil
}

// AddToPool parks an application aside for the caller.
func (c *Client) AddToPool(ctx context.Context, serviceID int, ref string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("services/%d/pool/%s", serviceID, url.PathEscape(ref)), nil, nil)
}

// RemoveFromPool returns a pooled application to the main list.
func (c *Client) RemoveFromPool(ctx context.Context, serviceID int, ref string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("services/%d/pool/%s", serviceID, url.PathEscape(ref)), nil, nil)
}

// Validate runs a field validator (ifsc, account-number, mobile-number,
// email, aadhaar, file-signature).
func (c *Client) Validate(ctx context.Context, kind, value, ref string, content []byte) (ValidationResult, error) {
	body := map[string]any{"value": value}
	if ref != "" {
		body["referenceNumber"] = ref
	}
	if len(content) > 0 {
		body["content"] = content
	}
	var resp ValidationResult
	err := c.do(ctx, http.MethodPost, "validate/"+url.PathEscape(kind), body, &resp)
	return resp, err
}

func (o ListOptions) listingQuery(q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	if o.Status != "" {
		q.Set("status", o.Status)
	}
	if o.DataType != "" {
		q.Set("data_type", o.DataType)
	}
	if o.Scope != "" {
		q.Set("scope", o.Scope)
		q.Set("page_index", strconv.Itoa(o.PageIndex))
		q.Set("page_size", strconv.Itoa(o.PageSize))
	}
	setList(q, "columns", o.Columns)
	setList(q, "hidden", o.Hidden)
	return encode(q)
}

func setList(q url.Values, key string, vals []string) {
	if len(vals) > 0 {
		q.Set(key, strings.Join(vals, ","))
	}
}

func encode(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	resp, err := c.send(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
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
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return resp, nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
