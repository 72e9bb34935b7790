package droidrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the DroidRelay REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Account is the masked view of a droid account returned by the API.
type Account struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	APIKeys              []string  `json:"apiKeys"`
	AuthenticationMethod string    `json:"authenticationMethod"`
	EndpointType         string    `json:"endpointType"`
	IsActive             bool      `json:"isActive"`
	Priority             int       `json:"priority"`
	Schedulable          bool      `json:"schedulable"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// APIError represents a non-2xx response.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("droidrelay api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("droidrelay api error (%d): %s", e.StatusCode, e.Message)
}

// NotFound reports whether the error is a 404 from the API.
func (e *APIError) NotFound() bool {
	return e != nil && e.StatusCode == http.StatusNotFound
}

// NewClient instantiates a client for the DroidRelay API. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Health calls the liveness probe and returns the reported status.
func (c *Client) Health(ctx context.Context) (string, error) {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/healthz", &body); err != nil {
		return "", err
	}
	return body.Status, nil
}

// ListAccounts returns every droid account with masked credentials.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if err := c.get(ctx, "/api/v1/droid/accounts", &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// GetAccount fetches a single account by identifier.
func (c *Client) GetAccount(ctx context.Context, id string) (Account, error) {
	var account Account
	if err := c.get(ctx, "/api/v1/droid/accounts/"+url.PathEscape(id), &account); err != nil {
		return Account{}, err
	}
	return account, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
