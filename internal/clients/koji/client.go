package koji

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kolo/xmlrpc"

	"github.com/yungbote/provenance-updater/internal/config"
	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/observability"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
)

// Client calls the Koji hub over XML-RPC.
type Client struct {
	rpc     *xmlrpc.Client
	log     *logger.Logger
	metrics *observability.Metrics
}

var _ Resolver = (*Client)(nil)

func NewClient(cfg config.KojiConfig, log *logger.Logger, metrics *observability.Metrics) (*Client, error) {
	return newClient(cfg, &http.Transport{Proxy: http.ProxyFromEnvironment, ResponseHeaderTimeout: cfg.Timeout}, log, metrics)
}

func newClient(cfg config.KojiConfig, transport http.RoundTripper, log *logger.Logger, metrics *observability.Metrics) (*Client, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, fmt.Errorf("koji: url required")
	}
	rpc, err := xmlrpc.NewClient(url, transport)
	if err != nil {
		return nil, fmt.Errorf("koji: init client: %w", err)
	}
	return &Client{rpc: rpc, log: log.With("client", "Koji"), metrics: metrics}, nil
}

func (c *Client) Close() error { return c.rpc.Close() }

func (c *Client) Resolve(ctx context.Context, ref domain.BuildLookup) (*domain.BuildRecord, error) {
	switch {
	case ref.Inline != nil:
		cp := *ref.Inline
		return &cp, nil
	case ref.ID != 0:
		return c.getBuild(ctx, ref.ID)
	case ref.NVR != "":
		return c.getBuild(ctx, ref.NVR)
	case ref.TaskID != 0:
		id, err := c.TaskBuildID(ctx, ref.TaskID)
		if err != nil {
			return nil, err
		}
		return c.getBuild(ctx, id)
	default:
		return nil, domain.Malformed("koji.resolve", "empty build reference")
	}
}

// TaskBuildID returns the first build produced by a task.
func (c *Client) TaskBuildID(ctx context.Context, taskID int64) (int64, error) {
	var reply map[string]any
	if err := c.call(ctx, "getTaskResult", []any{taskID}, &reply); err != nil {
		return 0, err
	}
	builds, _ := reply["koji_builds"].([]any)
	if len(builds) == 0 {
		return 0, domain.NotFound("koji.getTaskResult", "task %d produced no build", taskID)
	}
	id, ok := Int64(builds[0])
	if !ok {
		return 0, domain.NotFound("koji.getTaskResult", "task %d returned unusable build id %v", taskID, builds[0])
	}
	return id, nil
}

func (c *Client) ModuleComponents(ctx context.Context, tag string) ([]domain.BuildRecord, error) {
	var reply []any
	if err := c.call(ctx, "listTaggedRPMS", []any{tag}, &reply); err != nil {
		return nil, err
	}
	if len(reply) < 2 {
		return nil, nil
	}
	raw, _ := reply[1].([]any)
	out := make([]domain.BuildRecord, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		r, err := ParseRecord(m, c.log)
		if err != nil {
			c.log.Warn("skipping unparsable component build", "tag", tag, "error", err)
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (c *Client) getBuild(ctx context.Context, ref any) (*domain.BuildRecord, error) {
	var reply map[string]any
	if err := c.call(ctx, "getBuild", []any{ref}, &reply); err != nil {
		return nil, err
	}
	if len(reply) == 0 {
		return nil, domain.NotFound("koji.getBuild", "build %v", ref)
	}
	r, err := ParseRecord(reply, c.log)
	if err != nil {
		return nil, domain.NewError(domain.CodeUpstreamUnavailable, "koji.getBuild", err.Error(), err)
	}
	return r, nil
}

// call runs one XML-RPC request. The library has no context support, so a
// cancelled context abandons the in-flight request.
func (c *Client) call(ctx context.Context, method string, args []any, reply any) error {
	op := "koji." + method
	done := make(chan error, 1)
	go func() { done <- c.rpc.Call(method, args, reply) }()

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-done:
	}
	if err == nil {
		c.metrics.ObserveUpstream("koji", method, "ok")
		return nil
	}

	var fault xmlrpc.FaultError
	if errors.As(err, &fault) {
		c.metrics.ObserveUpstream("koji", method, "fault")
		return domain.NewError(domain.CodeNotFound, op, fault.String, err)
	}
	c.metrics.ObserveUpstream("koji", method, "error")
	c.log.Warn("koji call failed", "method", method, "error", err)
	return domain.Unavailable(op, err)
}
