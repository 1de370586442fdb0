package smartthings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eivy/smartthings-weather/oauth"
)

const (
	// DefaultBaseURL is the SmartThings REST API root.
	DefaultBaseURL = "https://api.smartthings.com/v1"
	// DefaultTimeout bounds every API request.
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 4 << 10
	maxPages     = 50
)

// TokenSource supplies the bearer token for each request.
// *oauth.Manager satisfies it.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticToken is a fixed personal access token.
type StaticToken string

// AccessToken implements TokenSource.
func (t StaticToken) AccessToken(context.Context) (string, error) {
	if t == "" {
		return "", oauth.ErrNotAuthorized
	}
	return string(t), nil
}

// RequestObserver is told about every API response.
type RequestObserver interface {
	ObserveRequest(endpoint string, status int, duration time.Duration, header http.Header)
}

// Client talks to the SmartThings API.
type Client struct {
	baseURL  string
	tokens   TokenSource
	client   *http.Client
	log      logrus.FieldLogger
	observer RequestObserver
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(cl *Client) { cl.log = l }
}

// WithObserver registers a RequestObserver.
func WithObserver(o RequestObserver) Option {
	return func(cl *Client) { cl.observer = o }
}

// NewClient returns a client for baseURL, DefaultBaseURL when empty.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		client:  &http.Client{Timeout: DefaultTimeout},
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("component", "smartthings")
	return c
}

// ListDevices returns every device visible to the token, following
// pagination links.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	next := c.baseURL + "/devices"
	for page := 0; next != ""; page++ {
		if page == maxPages {
			return nil, &APIError{Endpoint: "devices", Err: fmt.Errorf("more than %d pages", maxPages)}
		}
		var list deviceList
		if err := c.get(ctx, "devices", next, &list); err != nil {
			return nil, err
		}
		for _, d := range list.Items {
			devices = append(devices, d.device())
		}
		next = ""
		if list.Links.Next != nil {
			next = list.Links.Next.Href
		}
	}
	c.log.WithField("count", len(devices)).Debug("devices listed")
	return devices, nil
}

// DeviceStatus returns the status of the device's main component.
func (c *Client) DeviceStatus(ctx context.Context, deviceID string) (Status, error) {
	if deviceID == "" {
		return nil, errors.New("device id is required")
	}
	var status Status
	u := c.baseURL + "/devices/" + url.PathEscape(deviceID) + "/components/main/status"
	if err := c.get(ctx, "device_status", u, &status); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *Client) get(ctx context.Context, endpoint, u string, out interface{}) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &APIError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.WithError(err).WithField("endpoint", endpoint).Warn("request failed")
		if c.observer != nil {
			c.observer.ObserveRequest(endpoint, 0, time.Since(start), nil)
		}
		return &APIError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()
	if c.observer != nil {
		c.observer.ObserveRequest(endpoint, resp.StatusCode, time.Since(start), resp.Header)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"status":   resp.StatusCode,
		}).Warn("unexpected response")
		return &APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
