// Package handlers turns bus notifications from the build pipeline into
// provenance graph writes, one handler per event family.
package handlers

import (
	"fmt"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/yungbote/provenance-updater/internal/clients/errata"
	"github.com/yungbote/provenance-updater/internal/clients/koji"
	"github.com/yungbote/provenance-updater/internal/config"
	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
	"github.com/yungbote/provenance-updater/internal/reconcile"
	"github.com/yungbote/provenance-updater/internal/router"
)

// Deps are the collaborators shared by every handler.
type Deps struct {
	Engine   *reconcile.Engine
	Builds   koji.Resolver
	Errata   errata.Lookup
	Topics   config.TopicsConfig
	Identity config.IdentityConfig
	Log      *logger.Logger
}

func (d Deps) validate() error {
	switch {
	case d.Engine == nil:
		return fmt.Errorf("handlers: missing reconcile engine")
	case d.Builds == nil:
		return fmt.Errorf("handlers: missing build resolver")
	case d.Errata == nil:
		return fmt.Errorf("handlers: missing errata lookup")
	case d.Log == nil:
		return fmt.Errorf("handlers: missing logger")
	}
	return nil
}

// Register installs every handler on r in dispatch order.
func Register(r *router.Router, deps Deps) error {
	hs, err := All(deps)
	if err != nil {
		return err
	}
	for _, h := range hs {
		if err := r.Register(h); err != nil {
			return err
		}
	}
	return nil
}

// All builds the handlers in registration order.
func All(deps Deps) ([]router.Handler, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	return []router.Handler{
		NewDistGit(deps),
		NewFreshmaker(deps),
		NewErrata(deps),
		NewKoji(deps),
		NewBugzilla(deps),
	}, nil
}

// topicSet matches "<prefix><suffix>" topics for a fixed set of suffixes.
type topicSet struct {
	prefix   string
	suffixes mapset.Set[string]
}

func newTopicSet(prefix string, suffixes ...string) topicSet {
	return topicSet{prefix: prefix, suffixes: mapset.NewSet(suffixes...)}
}

// suffix returns the matched suffix of topic.
func (t topicSet) suffix(topic string) (string, bool) {
	if !strings.HasPrefix(topic, t.prefix) {
		return "", false
	}
	s := strings.TrimPrefix(topic, t.prefix)
	return s, t.suffixes.Contains(s)
}

func (t topicSet) has(topic string) bool {
	_, ok := t.suffix(topic)
	return ok
}

// person derives the Person node for an email address or login. Addresses in
// the employee domain are keyed by their local part.
func (d Deps) person(address string) (domain.Person, bool) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return domain.Person{}, false
	}
	local, host, found := strings.Cut(address, "@")
	if !found {
		p := domain.Person{Username: address}
		if d.Identity.EmailDomain != "" {
			p.Email = address + "@" + d.Identity.EmailDomain
		}
		return p, true
	}
	if local == "" {
		return domain.Person{}, false
	}
	if host == d.Identity.EmailDomain {
		return domain.Person{Username: local, Email: address}, true
	}
	return domain.Person{Username: address, Email: address}, true
}

// decode unmarshals the message body, reporting failures as malformed.
func decode(op string, msg router.Message, v any) error {
	if err := msg.Decode(v); err != nil {
		return domain.Malformed(op, "decode %s: %v", msg.Topic, err)
	}
	return nil
}

// requireHeaders returns the named headers or a malformed error naming the
// first missing one.
func requireHeaders(op string, msg router.Message, names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, n := range names {
		v := msg.Header(n)
		if v == "" {
			return nil, domain.Malformed(op, "header %q is required", n)
		}
		out[n] = v
	}
	return out, nil
}

// timeField parses an optional upstream timestamp. Unparsable values are
// logged and dropped rather than failing the message.
func timeField(log *logger.Logger, field string, v any) *time.Time {
	t, err := domain.ParseTimestamp(v)
	if err != nil {
		log.Warn("dropping unparsable timestamp", "field", field, "value", v, "error", err)
		return nil
	}
	return t
}
