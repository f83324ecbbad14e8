package errata

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/provenance-updater/internal/config"
	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestClient(t *testing.T, rt roundTripperFunc) *Client {
	t.Helper()
	c, err := New(config.ErrataConfig{URL: "http://errata.example.com/", Timeout: time.Second}, logger.NewNop(), nil)
	require.NoError(t, err)
	return c.WithHTTPClient(&http.Client{Transport: rt})
}

const erratumBody = `{
  "errata": {
    "rhsa": {
      "id": 34983,
      "fulladvisory": "RHSA-2018:2187-01",
      "synopsis": "Important: kernel security update",
      "status": "SHIPPED_LIVE",
      "content_types": ["rpm", "docker"],
      "security_impact": "Important",
      "security_sla": "2018-07-20T00:00:00Z",
      "product_id": 16,
      "reporter_id": 3001,
      "assigned_to_id": 3002,
      "created_at": "2018-07-04T17:31:29Z",
      "issue_date": "2018-07-04T17:31:29Z",
      "status_updated_at": "2018-07-10T14:22:51Z",
      "actual_ship_date": null
    }
  },
  "bugs": {"bugs": [{"bug": {"id": 1580380}}, {"bug": {"id": 1593084}}]}
}`

func TestGetAdvisory(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/api/v1/erratum/34983", req.URL.Path)
		return respond(http.StatusOK, erratumBody), nil
	})
	d, err := c.GetAdvisory(context.Background(), "34983")
	require.NoError(t, err)

	assert.Equal(t, "RHSA", d.Type)
	assert.Equal(t, "RHSA-2018:2187-01", d.FullAdvisory)
	assert.Equal(t, []string{"rpm", "docker"}, d.ContentTypes)
	assert.Equal(t, int64(16), d.ProductID)
	assert.Equal(t, int64(3001), d.ReporterID)
	assert.Equal(t, int64(3002), d.AssignedToID)
	assert.Equal(t, []string{"1580380", "1593084"}, d.BugIDs)
	assert.Equal(t, "2018-07-10T14:22:51Z", d.Times["status_time"])
	assert.NotContains(t, d.Times, "actual_ship_date")
}

func TestGetProductAndPerson(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/api/v1/products/16":
			return respond(http.StatusOK, `{"data": {"id": 16, "attributes": {"name": "Red Hat Enterprise Linux", "short_name": "RHEL"}}}`), nil
		case "/api/v1/user/3001":
			return respond(http.StatusOK, `{"id": 3001, "login_name": "tbrady@redhat.com", "realname": "Tom Brady"}`), nil
		case "/api/v1/user/3003":
			return respond(http.StatusOK, `{"id": 3003}`), nil
		}
		return respond(http.StatusNotFound, `{}`), nil
	})
	ctx := context.Background()

	p, err := c.GetProduct(ctx, 16)
	require.NoError(t, err)
	assert.Equal(t, "RHEL", p.ShortName)
	assert.Equal(t, "Red Hat Enterprise Linux", p.Name)

	u, err := c.GetPerson(ctx, 3001)
	require.NoError(t, err)
	assert.Equal(t, "tbrady@redhat.com", u.LoginName)

	_, err = c.GetPerson(ctx, 3003)
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		rt   roundTripperFunc
		code domain.ErrorCode
	}{
		{"not found", func(*http.Request) (*http.Response, error) { return respond(http.StatusNotFound, ""), nil }, domain.CodeNotFound},
		{"server error", func(*http.Request) (*http.Response, error) { return respond(http.StatusBadGateway, "oops"), nil }, domain.CodeUpstreamUnavailable},
		{"transport", func(*http.Request) (*http.Response, error) { return nil, errors.New("dial tcp: refused") }, domain.CodeUpstreamUnavailable},
		{"bad json", func(*http.Request) (*http.Response, error) { return respond(http.StatusOK, "{"), nil }, domain.CodeUpstreamUnavailable},
		{"empty errata", func(*http.Request) (*http.Response, error) { return respond(http.StatusOK, `{"errata": {}}`), nil }, domain.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newTestClient(t, tc.rt).GetAdvisory(context.Background(), "1")
			require.Error(t, err)
			assert.Equal(t, tc.code, domain.CodeOf(err), "err=%v", err)
		})
	}
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(config.ErrataConfig{}, logger.NewNop(), nil)
	require.Error(t, err)
}
