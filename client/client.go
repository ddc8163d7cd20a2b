package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/medigo-health/medigo_api/dto"
	"github.com/medigo-health/medigo_api/model"
	"github.com/medigo-health/medigo_api/shared"
)

// ErrReauthRequired is returned once the refresh token itself has been
// rejected. The caller must log in again; the client has already dropped
// its credentials.
var ErrReauthRequired = errors.New("authentication expired, login required")

// APIError is a non-2xx response decoded from the server's error shape.
type APIError struct {
	Status     int
	Message    string `json:"error"`
	Detail     string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
	Blocked    bool   `json:"blocked"`
}

func (e *APIError) Error() string {
	if e.Detail != "" && e.Detail != e.Message {
		return fmt.Sprintf("api error %d: %s: %s", e.Status, e.Message, e.Detail)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

type credentials struct {
	accessToken  string
	refreshToken string
	sessionID    string
}

// Client is the API client for the gateway. It owns the token pair and
// transparently refreshes an expired access token: a request that bounces
// with 401 triggers one refresh (shared across all concurrent requests via
// the coordinator) and is replayed exactly once.
type Client struct {
	baseURL    string
	httpClient *http.Client

	credMu sync.RWMutex
	creds  credentials

	refresher refreshCoordinator
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) setCredentials(resp *dto.LoginResponse) {
	c.credMu.Lock()
	c.creds = credentials{
		accessToken:  resp.AccessToken,
		refreshToken: resp.RefreshToken,
		sessionID:    resp.SessionID,
	}
	c.credMu.Unlock()
}

func (c *Client) clearCredentials() {
	c.credMu.Lock()
	c.creds = credentials{}
	c.credMu.Unlock()
}

func (c *Client) snapshot() credentials {
	c.credMu.RLock()
	defer c.credMu.RUnlock()
	return c.creds
}

// authExempt paths never participate in refresh; a 401 from them is final.
func authExempt(path string) bool {
	switch path {
	case "/api/v1/register", "/api/v1/login", "/api/v1/refresh":
		return true
	}
	return strings.HasPrefix(path, "/api/v1/password/")
}

// do issues the request with current credentials attached. On a 401 from a
// protected endpoint it waits for a (possibly shared) token refresh, then
// replays the request once with the fresh token. A request is never
// replayed twice.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && !authExempt(path) {
		drain(resp)

		if err := c.refresher.do(c.refresh); err != nil {
			return err
		}

		// Retried once with the renewed token; whatever comes back is final.
		resp, err = c.send(ctx, method, path, body)
		if err != nil {
			return err
		}
	}

	return decodeResponse(resp, out)
}

func (c *Client) send(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := sonic.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	creds := c.snapshot()
	if creds.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+creds.accessToken)
	}
	if creds.sessionID != "" {
		req.Header.Set(shared.SessionHeader, creds.sessionID)
	}

	return c.httpClient.Do(req)
}

// refresh renews the token pair. Failure handling splits on who failed:
// a transport error (server unreachable, connection dropped) says nothing
// about the refresh token, so credentials are kept and the raw error is
// surfaced for the caller to retry; any response from the server — a non-2xx
// status or an undecodable body — is an authoritative rejection, so all
// credentials are dropped and every waiter gets ErrReauthRequired.
func (c *Client) refresh() error {
	creds := c.snapshot()
	if creds.refreshToken == "" {
		c.clearCredentials()
		return ErrReauthRequired
	}

	resp, err := c.send(context.Background(), http.MethodPost, "/api/v1/refresh",
		dto.RefreshTokenRequest{RefreshToken: creds.refreshToken})
	if err != nil {
		return err
	}

	var renewed dto.LoginResponse
	if err := decodeResponse(resp, &renewed); err != nil {
		c.clearCredentials()
		return ErrReauthRequired
	}

	// Refresh rotates tokens but not the session.
	if renewed.SessionID == "" {
		renewed.SessionID = creds.sessionID
	}
	c.setCredentials(&renewed)
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

// decodeResponse unwraps the {code, message, data} envelope on success and
// maps any error status onto APIError.
func decodeResponse(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = sonic.Unmarshal(raw, apiErr)
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := sonic.Unmarshal(raw, &envelope); err != nil {
		return err
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	return sonic.Unmarshal(envelope.Data, out)
}

// ==================== API METHODS ====================

func (c *Client) Register(ctx context.Context, req dto.RegisterRequest) (*dto.RegisterResponse, error) {
	var resp dto.RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*dto.LoginResponse, error) {
	var resp dto.LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/login", dto.LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	c.setCredentials(&resp)
	return &resp, nil
}

func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/v1/logout", nil, nil)
	c.clearCredentials()
	return err
}

func (c *Client) ListMedicines(ctx context.Context, category, search string) ([]model.Medicine, error) {
	path := "/api/v1/medicines"
	q := make([]string, 0, 2)
	if category != "" {
		q = append(q, "category="+category)
	}
	if search != "" {
		q = append(q, "search="+search)
	}
	if len(q) > 0 {
		path += "?" + strings.Join(q, "&")
	}

	var medicines []model.Medicine
	if err := c.do(ctx, http.MethodGet, path, nil, &medicines); err != nil {
		return nil, err
	}
	return medicines, nil
}

func (c *Client) ListSessions(ctx context.Context) (*dto.SessionListResponse, error) {
	var resp dto.SessionListResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CreateOrder(ctx context.Context, req dto.CreateOrderRequest) (*model.Order, error) {
	var order model.Order
	if err := c.do(ctx, http.MethodPost, "/api/v1/orders", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}
