// Package forecast fetches hourly temperature and precipitation forecasts
// from Open-Meteo.
package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBaseURL is the public Open-Meteo API.
	DefaultBaseURL = "https://api.open-meteo.com"
	// DefaultTimeout bounds every forecast request.
	DefaultTimeout = 30 * time.Second

	hoursShown  = 24
	parallelism = 4
)

// Location is a named point to forecast.
type Location struct {
	Name      string  `yaml:"Name" json:"name"`
	Latitude  float64 `yaml:"Latitude" json:"latitude"`
	Longitude float64 `yaml:"Longitude" json:"longitude"`
}

// DefaultLocations are used when none are configured.
var DefaultLocations = []Location{
	{Name: "Polanka Hallera", Latitude: 49.995, Longitude: 19.902},
	{Name: "Kraków", Latitude: 50.067, Longitude: 19.912},
}

// Hour is one hourly forecast step. Time is local to the location.
type Hour struct {
	Time          string   `json:"time"`
	Temperature   *float64 `json:"temperature"`
	Precipitation *float64 `json:"precipitation"`
}

// Forecast is the next day of hourly data for one location.
type Forecast struct {
	Location Location `json:"location"`
	Timezone string   `json:"timezone"`
	Hours    []Hour   `json:"hours"`
}

// Error is returned when a forecast cannot be fetched. StatusCode is zero
// for transport failures.
type Error struct {
	Location   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("forecast for %s: HTTP %d", e.Location, e.StatusCode)
	}
	return fmt.Sprintf("forecast for %s: %v", e.Location, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client is an Open-Meteo client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Log        logrus.FieldLogger
}

// NewClient returns a client for the public API.
func NewClient(log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		Log:        log.WithField("component", "forecast"),
	}
}

type response struct {
	Timezone string `json:"timezone"`
	Hourly   struct {
		Time          []string   `json:"time"`
		Temperature   []*float64 `json:"temperature_2m"`
		Precipitation []*float64 `json:"precipitation"`
	} `json:"hourly"`
}

// Fetch returns up to 24 hours of forecast for loc.
func (c *Client) Fetch(ctx context.Context, loc Location) (*Forecast, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	q.Set("hourly", "temperature_2m,precipitation")
	q.Set("forecast_days", "1")
	q.Set("timezone", "auto")
	u := strings.TrimRight(c.BaseURL, "/") + "/v1/forecast?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &Error{Location: loc.Name, Err: err}
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &Error{Location: loc.Name, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Location: loc.Name, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &Error{Location: loc.Name, Err: fmt.Errorf("decode forecast: %w", err)}
	}

	f := &Forecast{Location: loc, Timezone: body.Timezone}
	for i, t := range body.Hourly.Time {
		if i == hoursShown {
			break
		}
		h := Hour{Time: t}
		if i < len(body.Hourly.Temperature) {
			h.Temperature = body.Hourly.Temperature[i]
		}
		if i < len(body.Hourly.Precipitation) {
			h.Precipitation = body.Hourly.Precipitation[i]
		}
		f.Hours = append(f.Hours, h)
	}
	return f, nil
}

// FetchAll fetches every location concurrently. The result is index
// aligned with locs; a location that failed is nil and logged.
func (c *Client) FetchAll(ctx context.Context, locs []Location) []*Forecast {
	out := make([]*Forecast, len(locs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, loc := range locs {
		i, loc := i, loc
		g.Go(func() error {
			f, err := c.Fetch(ctx, loc)
			if err != nil {
				c.Log.WithError(err).WithField("location", loc.Name).Warn("forecast unavailable")
				return nil
			}
			out[i] = f
			return nil
		})
	}
	_ = g.Wait()
	return out
}
