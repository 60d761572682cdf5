package inat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/lifelight/internal/metrics"
)

const (
	DefaultBaseURL = "https://api.inaturalist.org/v2"

	// PerPage is the fixed page size for observation syncs; 200 is the
	// maximum the API allows.
	PerPage = 200

	defaultTimeout = 30 * time.Second
)

// fieldSpec enumerates the wire fields Normalize expects. Requesting a fixed
// projection keeps responses small and the parser honest.
const fieldSpec = "id,description,geojson,private_geojson,taxon_geoprivacy," +
	"taxon.id,taxon.name,taxon.preferred_common_name," +
	"time_observed_at,updated_at,uri,uuid,user.id,user.login,user.name"

// Client fetches pages of observations from the iNaturalist API.
type Client struct {
	baseURL string
	client  *http.Client

	// retry intervals, overridable in tests
	retryInitial time.Duration
	retryMax     time.Duration
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:      baseURL,
		client:       &http.Client{Timeout: defaultTimeout},
		retryInitial: 500 * time.Millisecond,
		retryMax:     2 * time.Minute,
	}
}

// Query describes one observations-search request: a fixed account, records
// updated at or after Since, newest-first.
type Query struct {
	Login string
	Since time.Time
}

// BuildQuery returns the query for records of login updated at or after the
// given watermark. The watermark is inclusive: the boundary record is
// re-fetched and idempotently overwritten.
func BuildQuery(login string, since time.Time) Query {
	return Query{Login: login, Since: since}
}

func (c *Client) pageURL(q Query, page int) string {
	params := url.Values{}
	params.Set("fields", fieldSpec)
	params.Set("user_login", q.Login)
	params.Set("updated_since", q.Since.UTC().Format(time.RFC3339))
	params.Set("order_by", "updated_at")
	params.Set("order", "desc")
	params.Set("per_page", strconv.Itoa(PerPage))
	params.Set("page", strconv.Itoa(page))
	return c.baseURL + "/observations?" + params.Encode()
}

// FetchPage issues a single page request. Rate-limit responses are retried
// with exponential backoff; any other failure is returned immediately, non-2xx
// as a *RequestError.
func (c *Client) FetchPage(ctx context.Context, q Query, page int) (*ResultPage, error) {
	reqURL := c.pageURL(q, page)

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("fetch page %d: %w", page, err))
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("rate limited: status %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(&RequestError{
				Status:     resp.StatusCode,
				StatusText: resp.Status,
				Body:       string(b),
			})
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInitial
	bo.MaxElapsedTime = c.retryMax
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		metrics.PageFetchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	var result ResultPage
	if err := json.Unmarshal(body, &result); err != nil {
		metrics.PageFetchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("unmarshal page %d: %w", page, err)
	}

	metrics.PageFetchesTotal.WithLabelValues("ok").Inc()
	return &result, nil
}

// Pager yields pages one at a time; each page is fetched only when Next is
// called, so commits naturally backpressure the fetch. A Pager is for a single
// pass: create a fresh one per sync cycle.
type Pager struct {
	client *Client
	query  Query
	page   int
	total  int
	done   bool
}

// Pages starts a lazy page sequence for the query, beginning at page 1.
func (c *Client) Pages(q Query) *Pager {
	return &Pager{client: c, query: q}
}

// Next fetches and returns the next page, or (nil, nil) when the sequence is
// exhausted. total_results may drift between requests as the remote changes;
// at worst that costs an extra or missing tail page, which the inclusive
// watermark absorbs on the next cycle.
func (p *Pager) Next(ctx context.Context) (*ResultPage, error) {
	if p.done {
		return nil, nil
	}

	p.page++
	result, err := p.client.FetchPage(ctx, p.query, p.page)
	if err != nil {
		p.done = true
		return nil, err
	}

	p.total = result.TotalResults
	perPage := result.PerPage
	if perPage <= 0 {
		perPage = PerPage
	}
	if p.page*perPage >= p.total {
		p.done = true
	}
	return result, nil
}
