package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/why-xn/infradesk/internal/alerts"
	"github.com/why-xn/infradesk/internal/models"
	"github.com/why-xn/infradesk/internal/reporting"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// LoginResponse is the token pair returned by /auth/login and /auth/refresh.
type LoginResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	ExpiresIn    int64            `json:"expires_in"`
	Operator     *models.Operator `json:"operator,omitempty"`
}

// NotificationsResponse is the body of /api/v1/notifications.
type NotificationsResponse struct {
	Notifications []alerts.Notification `json:"notifications"`
	Counts        alerts.Counts         `json:"counts"`
	Total         int                   `json:"total"`
}

// AuditLogsResponse is one page of /api/v1/audit-logs.
type AuditLogsResponse struct {
	AuditLogs []*models.AuditLog `json:"audit_logs"`
	Total     int                `json:"total"`
	Page      int                `json:"page"`
	PerPage   int                `json:"per_page"`
}

// CentralClient talks to the infradesk server API.
type CentralClient struct {
	baseURL      string
	token        string
	refreshToken string
	httpClient   *http.Client

	// onRefresh is called with the new pair after a transparent token refresh.
	onRefresh func(access, refresh string)
}

// NewCentralClient creates a client with the default timeout.
func NewCentralClient(baseURL string) *CentralClient {
	return NewCentralClientWithTimeout(baseURL, defaultTimeout)
}

func NewCentralClientWithTimeout(baseURL string, timeout time.Duration) *CentralClient {
	return &CentralClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetToken sets the bearer token sent with API requests.
func (c *CentralClient) SetToken(token string) {
	c.token = token
}

// SetRefreshToken enables a single refresh-and-retry when a request is
// rejected with 401. fn receives the rotated pair.
func (c *CentralClient) SetRefreshToken(token string, fn func(access, refresh string)) {
	c.refreshToken = token
	c.onRefresh = fn
}

// Login exchanges credentials for a token pair.
func (c *CentralClient) Login(email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.send(http.MethodPost, "/auth/login", body, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh rotates the refresh token.
func (c *CentralClient) Refresh(refreshToken string) (*LoginResponse, error) {
	var resp LoginResponse
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.send(http.MethodPost, "/auth/refresh", body, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout revokes refreshToken on the server.
func (c *CentralClient) Logout(refreshToken string) error {
	body := map[string]string{"refresh_token": refreshToken}
	return c.send(http.MethodPost, "/auth/logout", body, nil, false)
}

// CheckHealth returns nil when the server and its store are healthy.
func (c *CentralClient) CheckHealth() error {
	return c.send(http.MethodGet, "/health", nil, nil, false)
}

func (c *CentralClient) Me() (*models.Operator, error) {
	var op models.Operator
	if err := c.Get("/api/v1/me", nil, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

func (c *CentralClient) Dashboard() (*reporting.Dashboard, error) {
	var d reporting.Dashboard
	if err := c.Get("/api/v1/dashboard", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *CentralClient) Notifications(query url.Values) (*NotificationsResponse, error) {
	var resp NotificationsResponse
	if err := c.Get("/api/v1/notifications", query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *CentralClient) AuditLogs(query url.Values) (*AuditLogsResponse, error) {
	var resp AuditLogsResponse
	if err := c.Get("/api/v1/audit-logs", query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *CentralClient) ListCustomers() ([]*models.Customer, error) {
	var resp struct {
		Customers []*models.Customer `json:"customers"`
	}
	if err := c.Get("/api/v1/customers", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Customers, nil
}

func (c *CentralClient) GetCustomer(id string) (*models.Customer, error) {
	var cust models.Customer
	if err := c.Get("/api/v1/customers/"+url.PathEscape(id), nil, &cust); err != nil {
		return nil, err
	}
	return &cust, nil
}

func (c *CentralClient) ListClusters() ([]*models.Cluster, error) {
	var resp struct {
		Clusters []*models.Cluster `json:"clusters"`
	}
	if err := c.Get("/api/v1/clusters", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Clusters, nil
}

func (c *CentralClient) ListNodes(clusterID string) ([]*models.Node, error) {
	var query url.Values
	if clusterID != "" {
		query = url.Values{"cluster_id": {clusterID}}
	}
	var resp struct {
		Nodes []*models.Node `json:"nodes"`
	}
	if err := c.Get("/api/v1/nodes", query, &resp); err != nil {
		return nil, err
	}
	return resp.Nodes, nil
}

func (c *CentralClient) ListVMs(query url.Values) ([]*models.VM, error) {
	var resp struct {
		VMs []*models.VM `json:"vms"`
	}
	if err := c.Get("/api/v1/vms", query, &resp); err != nil {
		return nil, err
	}
	return resp.VMs, nil
}

func (c *CentralClient) GetVM(id string) (*models.VM, error) {
	var vm models.VM
	if err := c.Get("/api/v1/vms/"+url.PathEscape(id), nil, &vm); err != nil {
		return nil, err
	}
	return &vm, nil
}

func (c *CentralClient) DeleteVM(id string) error {
	return c.send(http.MethodDelete, "/api/v1/vms/"+url.PathEscape(id), nil, nil, true)
}

// Get decodes the JSON body of an authenticated GET into out.
func (c *CentralClient) Get(path string, query url.Values, out any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.send(http.MethodGet, path, nil, out, true)
}

// Patch sends fields as a JSON merge body and decodes the response into out.
func (c *CentralClient) Patch(path string, fields map[string]any, out any) error {
	return c.send(http.MethodPatch, path, fields, out, true)
}

// Download returns the raw body of an authenticated GET, used for CSV files.
func (c *CentralClient) Download(path string) ([]byte, error) {
	return c.raw(func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	}, true)
}

// ImportPreview uploads a CSV file as multipart form data and returns the
// parsed preview.
func (c *CentralClient) ImportPreview(entity, filename string, content []byte) (*reporting.ImportPreview, error) {
	build := func() (*http.Request, error) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(content); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}
		req, err := http.NewRequest(http.MethodPost,
			c.baseURL+"/api/v1/import/"+url.PathEscape(entity)+"/preview", &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	}
	body, err := c.raw(build, true)
	if err != nil {
		return nil, err
	}
	var preview reporting.ImportPreview
	if err := json.Unmarshal(body, &preview); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &preview, nil
}

func (c *CentralClient) send(method, path string, in, out any, authed bool) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}
	body, err := c.raw(func() (*http.Request, error) {
		var r io.Reader
		if payload != nil {
			r = bytes.NewReader(payload)
		}
		req, err := http.NewRequest(method, c.baseURL+path, r)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}, authed)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// raw performs the request built by build. An authenticated request that
// gets 401 is retried once after a token refresh, so build must return a
// fresh request each call.
func (c *CentralClient) raw(build func() (*http.Request, error), authed bool) ([]byte, error) {
	body, status, err := c.roundTrip(build, authed)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized && authed && c.refreshToken != "" {
		if rerr := c.refresh(); rerr == nil {
			body, status, err = c.roundTrip(build, authed)
			if err != nil {
				return nil, err
			}
		}
	}
	if status < 200 || status >= 300 {
		return nil, &APIError{StatusCode: status, Message: errorMessage(body)}
	}
	return body, nil
}

func (c *CentralClient) roundTrip(build func() (*http.Request, error), authed bool) ([]byte, int, error) {
	req, err := build()
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	if authed && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("connecting to server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *CentralClient) refresh() error {
	resp, err := c.Refresh(c.refreshToken)
	if err != nil {
		return err
	}
	c.token, c.refreshToken = resp.AccessToken, resp.RefreshToken
	if c.onRefresh != nil {
		c.onRefresh(resp.AccessToken, resp.RefreshToken)
	}
	return nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
