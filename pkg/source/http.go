package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/feedagg/pkg/feed"
	"github.com/Sternrassler/feedagg/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Operation labels used in metrics, logs and errors.
const (
	OpFetchPage  = "fetch_page"
	OpFetchMedia = "fetch_media"
	OpFetchOwner = "fetch_owner"
)

// JSONPlaceholderURL is the public upstream the feed was originally built against.
const JSONPlaceholderURL = "https://jsonplaceholder.typicode.com"

// Prometheus metrics for upstream calls.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_upstream_requests_total",
		Help: "Total upstream requests by operation and status",
	}, []string{"operation", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feed_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by operation",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"operation"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// Config holds the HTTP source configuration.
type Config struct {
	// BaseURL of the upstream, e.g. "https://jsonplaceholder.typicode.com".
	BaseURL string

	// User-Agent header sent with every request (required).
	UserAgent string

	// Timeout applied by the HTTP client to every single call.
	Timeout time.Duration

	// PostsPath is the page collection path.
	PostsPath string
	// MediaPath is the per-record media path; must contain one %d for the record id.
	MediaPath string
	// OwnerPath is the per-owner path; must contain one %d for the owner id.
	OwnerPath string

	// Query parameter names carrying the cursor.
	StartParam string
	LimitParam string
}

// DefaultConfig returns a configuration for the feedagg aggregation server
// (see pkg/server) reachable at baseURL.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:    baseURL,
		UserAgent:  userAgent,
		Timeout:    15 * time.Second,
		PostsPath:  "/api/v1/posts",
		MediaPath:  "/api/v1/posts/%d/images",
		OwnerPath:  "/api/v1/users/%d",
		StartParam: "start",
		LimitParam: "limit",
	}
}

// JSONPlaceholderConfig returns a configuration for the public
// jsonplaceholder API, where a post's media is the photo album with the same id.
func JSONPlaceholderConfig(userAgent string) Config {
	return Config{
		BaseURL:    JSONPlaceholderURL,
		UserAgent:  userAgent,
		Timeout:    15 * time.Second,
		PostsPath:  "/posts",
		MediaPath:  "/albums/%d/photos",
		OwnerPath:  "/users/%d",
		StartParam: "_start",
		LimitParam: "_limit",
	}
}

// HTTPSource implements Source over a JSON HTTP API.
type HTTPSource struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// New creates a new HTTP source.
func New(cfg Config) (*HTTPSource, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.PostsPath == "" {
		return nil, fmt.Errorf("posts path is required")
	}

	if strings.Count(cfg.MediaPath, "%d") != 1 {
		return nil, fmt.Errorf("media path must contain exactly one %%d (got %q)", cfg.MediaPath)
	}

	if strings.Count(cfg.OwnerPath, "%d") != 1 {
		return nil, fmt.Errorf("owner path must contain exactly one %%d (got %q)", cfg.OwnerPath)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.StartParam == "" {
		cfg.StartParam = "start"
	}
	if cfg.LimitParam == "" {
		cfg.LimitParam = "limit"
	}

	return &HTTPSource{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: base,
		config:  cfg,
		logger:  logging.NewLogger(logging.ComponentSource),
	}, nil
}

// FetchPage fetches one page of base records.
func (s *HTTPSource) FetchPage(ctx context.Context, cursor feed.Cursor) ([]feed.Record, error) {
	if err := cursor.Validate(); err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}

	query := url.Values{}
	query.Set(s.config.StartParam, strconv.Itoa(cursor.Start))
	query.Set(s.config.LimitParam, strconv.Itoa(cursor.Limit))

	var records []feed.Record
	if err := s.getJSON(ctx, OpFetchPage, s.endpoint(s.config.PostsPath, query), &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []feed.Record{}
	}

	s.logger.Debug().
		Stringer("cursor", cursor).
		Int("records", len(records)).
		Msg("Fetched page")

	return records, nil
}

// FetchMedia fetches the media of one record. Only the url field of each
// upstream item is kept.
func (s *HTTPSource) FetchMedia(ctx context.Context, recordID int) ([]feed.MediaItem, error) {
	var items []feed.MediaItem
	path := fmt.Sprintf(s.config.MediaPath, recordID)
	if err := s.getJSON(ctx, OpFetchMedia, s.endpoint(path, nil), &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []feed.MediaItem{}
	}
	return items, nil
}

// FetchOwner fetches one owner profile. A 404 becomes a *NotFoundError.
func (s *HTTPSource) FetchOwner(ctx context.Context, ownerID int) (feed.Owner, error) {
	var owner feed.Owner
	path := fmt.Sprintf(s.config.OwnerPath, ownerID)
	if err := s.getJSON(ctx, OpFetchOwner, s.endpoint(path, nil), &owner); err != nil {
		if te, ok := err.(*TransportError); ok && te.StatusCode == http.StatusNotFound {
			return feed.Owner{}, &NotFoundError{Resource: ResourceOwner, ID: ownerID, Err: te}
		}
		return feed.Owner{}, err
	}
	return owner, nil
}

// endpoint joins the base URL with path and query.
func (s *HTTPSource) endpoint(path string, query url.Values) string {
	u := *s.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// getJSON performs a single GET and decodes a 2xx JSON body into v.
func (s *HTTPSource) getJSON(ctx context.Context, op, rawURL string, v any) error {
	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(op).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		upstreamErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		upstreamRequestsTotal.WithLabelValues(op, "network_error").Inc()
		s.logger.Warn().Err(err).Str("operation", op).Str("url", rawURL).Msg("Upstream request failed")
		return &TransportError{Operation: op, URL: rawURL, Class: ErrorClassNetwork, Err: err}
	}
	defer resp.Body.Close()

	upstreamRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		class := classifyStatus(resp.StatusCode)
		upstreamErrorsTotal.WithLabelValues(string(class)).Inc()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		s.logger.Warn().
			Str("operation", op).
			Str("url", rawURL).
			Int("status_code", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Upstream request error")

		return &TransportError{Operation: op, URL: rawURL, StatusCode: resp.StatusCode, Class: class}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		upstreamErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return &TransportError{
			Operation:  op,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Class:      ErrorClassDecode,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}

	return nil
}
