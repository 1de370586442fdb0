package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "smartthings_weather"
)

type Collector struct {
	mu             sync.RWMutex
	sensors        map[string]*sensorState
	apiMetrics     *APIMetrics
	authorized     float64
	skippedPolls   float64
	lastUpdateTime time.Time
	now            func() time.Time

	// Prometheus metric descriptors
	apiRequestTotalDesc       *prometheus.Desc
	apiRequestDurationDesc    *prometheus.Desc
	apiRateLimitLimitDesc     *prometheus.Desc
	apiRateLimitRemainingDesc *prometheus.Desc
	apiRateLimitResetDesc     *prometheus.Desc
	tokenRequestTotalDesc     *prometheus.Desc
	httpRequestTotalDesc      *prometheus.Desc
	httpRequestDurationDesc   *prometheus.Desc
	authorizedDesc            *prometheus.Desc
	skippedPollsDesc          *prometheus.Desc
	lastUpdateTimestampDesc   *prometheus.Desc
}

// APIMetrics holds the counters observed from API and HTTP traffic.
type APIMetrics struct {
	RequestCount    map[requestKey]float64
	RequestDuration map[string]float64 // key: endpoint
	TokenRequests   map[requestKey]float64
	HTTPCount       map[requestKey]float64
	HTTPDuration    map[string]float64 // key: route
	RateLimitLimit  float64
	RateLimitRemain float64
	RateLimitReset  float64
}

// requestKey is a pair of label values, e.g. endpoint and status.
type requestKey struct {
	name   string
	result string
}

func NewCollector() *Collector {
	return &Collector{
		sensors: make(map[string]*sensorState),
		apiMetrics: &APIMetrics{
			RequestCount:    make(map[requestKey]float64),
			RequestDuration: make(map[string]float64),
			TokenRequests:   make(map[requestKey]float64),
			HTTPCount:       make(map[requestKey]float64),
			HTTPDuration:    make(map[string]float64),
		},
		now: time.Now,

		apiRequestTotalDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "api", "requests_total"),
			"Total number of SmartThings API requests",
			[]string{"endpoint", "status"}, nil,
		),
		apiRequestDurationDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "api", "request_duration_seconds"),
			"Duration of the last SmartThings API request in seconds",
			[]string{"endpoint"}, nil,
		),
		apiRateLimitLimitDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "api", "rate_limit_limit"),
			"API rate limit maximum",
			nil, nil,
		),
		apiRateLimitRemainingDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "api", "rate_limit_remaining"),
			"API rate limit remaining",
			nil, nil,
		),
		apiRateLimitResetDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "api", "rate_limit_reset_seconds"),
			"Seconds until the API rate limit window resets",
			nil, nil,
		),
		tokenRequestTotalDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "oauth", "token_requests_total"),
			"Total number of token endpoint requests",
			[]string{"grant", "result"}, nil,
		),
		httpRequestTotalDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "http", "requests_total"),
			"Total number of requests served, by route and status code",
			[]string{"route", "code"}, nil,
		),
		httpRequestDurationDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "http", "request_duration_seconds"),
			"Duration of the last request served per route in seconds",
			[]string{"route"}, nil,
		),
		authorizedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "oauth", "authorized"),
			"Whether a credential is stored (1 = yes, 0 = no)",
			nil, nil,
		),
		skippedPollsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "skipped_polls_total"),
			"Polls skipped because the previous one was still running",
			nil, nil,
		),
		lastUpdateTimestampDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "last_update_timestamp"),
			"Timestamp of the last sensor update",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	describeSensors(ch)
	ch <- c.apiRequestTotalDesc
	ch <- c.apiRequestDurationDesc
	ch <- c.apiRateLimitLimitDesc
	ch <- c.apiRateLimitRemainingDesc
	ch <- c.apiRateLimitResetDesc
	ch <- c.tokenRequestTotalDesc
	ch <- c.httpRequestTotalDesc
	ch <- c.httpRequestDurationDesc
	ch <- c.authorizedDesc
	ch <- c.skippedPollsDesc
	ch <- c.lastUpdateTimestampDesc
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, s := range c.sensors {
		s.collect(ch)
	}

	for key, count := range c.apiMetrics.RequestCount {
		ch <- prometheus.MustNewConstMetric(c.apiRequestTotalDesc, prometheus.CounterValue, count, key.name, key.result)
	}
	for endpoint, duration := range c.apiMetrics.RequestDuration {
		ch <- prometheus.MustNewConstMetric(c.apiRequestDurationDesc, prometheus.GaugeValue, duration, endpoint)
	}
	for key, count := range c.apiMetrics.TokenRequests {
		ch <- prometheus.MustNewConstMetric(c.tokenRequestTotalDesc, prometheus.CounterValue, count, key.name, key.result)
	}
	for key, count := range c.apiMetrics.HTTPCount {
		ch <- prometheus.MustNewConstMetric(c.httpRequestTotalDesc, prometheus.CounterValue, count, key.name, key.result)
	}
	for route, duration := range c.apiMetrics.HTTPDuration {
		ch <- prometheus.MustNewConstMetric(c.httpRequestDurationDesc, prometheus.GaugeValue, duration, route)
	}

	ch <- prometheus.MustNewConstMetric(c.apiRateLimitLimitDesc, prometheus.GaugeValue, c.apiMetrics.RateLimitLimit)
	ch <- prometheus.MustNewConstMetric(c.apiRateLimitRemainingDesc, prometheus.GaugeValue, c.apiMetrics.RateLimitRemain)
	ch <- prometheus.MustNewConstMetric(c.apiRateLimitResetDesc, prometheus.GaugeValue, c.apiMetrics.RateLimitReset)
	ch <- prometheus.MustNewConstMetric(c.authorizedDesc, prometheus.GaugeValue, c.authorized)
	ch <- prometheus.MustNewConstMetric(c.skippedPollsDesc, prometheus.CounterValue, c.skippedPolls)

	var last float64
	if !c.lastUpdateTime.IsZero() {
		last = float64(c.lastUpdateTime.Unix())
	}
	ch <- prometheus.MustNewConstMetric(c.lastUpdateTimestampDesc, prometheus.GaugeValue, last)
}

// ObserveRequest records a SmartThings API response. A zero status means
// the request failed before a response arrived.
func (c *Collector) ObserveRequest(endpoint string, status int, duration time.Duration, header http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := "error"
	if status != 0 {
		result = strconv.Itoa(status)
	}
	c.apiMetrics.RequestCount[requestKey{endpoint, result}]++
	c.apiMetrics.RequestDuration[endpoint] = duration.Seconds()

	if rateLimit := ParseRateLimitHeaders(header); rateLimit != nil {
		c.apiMetrics.RateLimitLimit = float64(rateLimit.Limit)
		c.apiMetrics.RateLimitRemain = float64(rateLimit.Remaining)
		c.apiMetrics.RateLimitReset = rateLimit.Reset.Seconds()
	}
}

// ObserveTokenRequest records a token endpoint request.
func (c *Collector) ObserveTokenRequest(grant string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := "success"
	if err != nil {
		result = "failure"
	}
	c.apiMetrics.TokenRequests[requestKey{grant, result}]++
}

// ObserveHTTP records a request served by the web surface.
func (c *Collector) ObserveHTTP(route string, statusCode int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.apiMetrics.HTTPCount[requestKey{route, strconv.Itoa(statusCode)}]++
	c.apiMetrics.HTTPDuration[route] = duration.Seconds()
}

// SetAuthorized records whether a credential is stored.
func (c *Collector) SetAuthorized(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authorized = 0
	if ok {
		c.authorized = 1
	}
}

// PollSkipped counts a poll tick dropped because the previous one was
// still running.
func (c *Collector) PollSkipped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skippedPolls++
}

// RateLimitInfo is the API rate limit window reported with a response.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	Reset     time.Duration
}
