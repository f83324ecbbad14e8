// Package errata reads advisories, products and people from the Errata
// Tool REST API.
package errata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/provenance-updater/internal/config"
	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/observability"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
)

// Lookup is what the advisory handler needs from the release tool.
type Lookup interface {
	GetAdvisory(ctx context.Context, id string) (*AdvisoryDetail, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
	GetPerson(ctx context.Context, id int64) (*Person, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
	metrics    *observability.Metrics
}

var _ Lookup = (*Client)(nil)

func New(cfg config.ErrataConfig, log *logger.Logger, metrics *observability.Metrics) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("errata: url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Transport: tr, Timeout: timeout},
		log:        log.With("client", "Errata"),
		metrics:    metrics,
	}, nil
}

// WithHTTPClient swaps the transport, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) GetAdvisory(ctx context.Context, id string) (*AdvisoryDetail, error) {
	var raw advisoryResponse
	if err := c.get(ctx, "GetAdvisory", "/api/v1/erratum/"+url.PathEscape(id), &raw); err != nil {
		return nil, err
	}
	return raw.detail(id)
}

func (c *Client) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var raw productResponse
	if err := c.get(ctx, "GetProduct", fmt.Sprintf("/api/v1/products/%d", id), &raw); err != nil {
		return nil, err
	}
	return &Product{
		ID:        raw.Data.ID,
		Name:      strings.TrimSpace(raw.Data.Attributes.Name),
		ShortName: strings.TrimSpace(raw.Data.Attributes.ShortName),
	}, nil
}

func (c *Client) GetPerson(ctx context.Context, id int64) (*Person, error) {
	var p Person
	if err := c.get(ctx, "GetPerson", fmt.Sprintf("/api/v1/user/%d", id), &p); err != nil {
		return nil, err
	}
	p.LoginName = strings.TrimSpace(p.LoginName)
	if p.LoginName == "" {
		return nil, domain.NotFound("errata.GetPerson", "user %d has no login name", id)
	}
	return &p, nil
}

func (c *Client) get(ctx context.Context, method, path string, out any) error {
	op := "errata." + method
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return domain.Wrap(domain.CodeInternal, op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream("errata", method, "error")
		return domain.Unavailable(op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		c.metrics.ObserveUpstream("errata", method, "error")
		return domain.Unavailable(op, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.metrics.ObserveUpstream("errata", method, "not_found")
		return domain.NotFound(op, "%s", path)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		c.metrics.ObserveUpstream("errata", method, "unavailable")
		return domain.Unavailable(op, &HTTPError{Status: resp.StatusCode, Body: snippet(body)})
	case resp.StatusCode >= 300:
		c.metrics.ObserveUpstream("errata", method, "rejected")
		c.log.Warn("errata request rejected", "path", path, "status", resp.StatusCode)
		return domain.NewError(domain.CodeUpstreamUnavailable, op, "unexpected response", &HTTPError{Status: resp.StatusCode, Body: snippet(body)})
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		c.metrics.ObserveUpstream("errata", method, "decode_error")
		return domain.Unavailable(op, fmt.Errorf("decode response: %w", err))
	}
	c.metrics.ObserveUpstream("errata", method, "ok")
	return nil
}

type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
