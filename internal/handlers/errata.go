package handlers

import (
	"context"
	"strings"

	"github.com/yungbote/provenance-updater/internal/classify"
	"github.com/yungbote/provenance-updater/internal/clients/errata"
	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
	"github.com/yungbote/provenance-updater/internal/reconcile"
	"github.com/yungbote/provenance-updater/internal/router"
)

const (
	topicActivityStatus = "errata.activity.status"
	topicBuildsAdded    = "errata.builds.added"
	topicBuildsRemoved  = "errata.builds.removed"
)

// Errata records advisories and the builds attached to them.
type Errata struct {
	Deps
	topics topicSet
	log    *logger.Logger
}

func NewErrata(deps Deps) *Errata {
	return &Errata{
		Deps:   deps,
		topics: newTopicSet(deps.Topics.Prefix, topicActivityStatus, topicBuildsAdded, topicBuildsRemoved),
		log:    deps.Log.With("handler", "errata"),
	}
}

func (h *Errata) Name() string { return "errata" }

func (h *Errata) CanHandle(topic string) bool { return h.topics.has(topic) }

func (h *Errata) Handle(ctx context.Context, msg router.Message) error {
	suffix, _ := h.topics.suffix(msg.Topic)
	switch suffix {
	case topicActivityStatus:
		return h.activityStatus(ctx, msg)
	case topicBuildsAdded:
		return h.buildsChanged(ctx, msg, true)
	case topicBuildsRemoved:
		return h.buildsChanged(ctx, msg, false)
	default:
		return domain.Unroutable(msg.Topic)
	}
}

// embargoed reports whether the message describes an advisory that is not
// public yet. Such messages carry a redacted synopsis.
func embargoed(msg router.Message) bool {
	return msg.Header("synopsis") == domain.RedactedName
}

type activityBody struct {
	FullAdvisory string `json:"fulladvisory"`
	Product      string `json:"product"`
	To           string `json:"to"`
}

// advisoryFacts is everything fetched for a public advisory before the
// first write.
type advisoryFacts struct {
	advisory domain.Advisory
	reporter *domain.Person
	assignee *domain.Person
	bugs     []string
}

func (h *Errata) activityStatus(ctx context.Context, msg router.Message) error {
	const op = "errata.activity_status"
	hdr, err := requireHeaders(op, msg, "errata_id")
	if err != nil {
		return err
	}
	id := hdr["errata_id"]
	var body activityBody
	if err := decode(op, msg, &body); err != nil {
		return err
	}

	if embargoed(msg) {
		return h.recordEmbargoed(ctx, id)
	}

	facts, err := h.fetchAdvisory(ctx, id, msg, body)
	if err != nil {
		return err
	}
	a := facts.advisory
	e := h.Engine

	if _, err := e.CreateOrCorrect(ctx, reconcile.Spec(a.Kind.Label(), a.Ref(), a.Props())); err != nil {
		return err
	}
	if a.Kind == domain.AdvisoryPlain {
		if err := e.Demote(ctx, a.Ref(), domain.LabelContainerAdvisory); err != nil {
			return err
		}
	}
	for _, link := range []struct {
		rel    domain.RelType
		person *domain.Person
	}{
		{domain.RelReportedBy, facts.reporter},
		{domain.RelAssignedTo, facts.assignee},
	} {
		if link.person == nil {
			continue
		}
		p := *link.person
		if _, err := e.CreateOrCorrect(ctx, reconcile.Spec(domain.LabelPerson, p.Ref(), p.Props())); err != nil {
			return err
		}
		if err := e.ConnectExclusive(ctx, a.Ref(), link.rel, p.Ref()); err != nil {
			return err
		}
	}
	for _, bugID := range facts.bugs {
		bug := domain.BugRef(bugID)
		if err := e.Stub(ctx, domain.LabelBug, bug.Key); err != nil {
			return err
		}
		if err := e.ConnectIfAbsent(ctx, a.Ref(), domain.RelAttachedBug, bug, nil); err != nil {
			return err
		}
	}

	h.log.Debug("advisory recorded", "advisory", a.ID, "name", a.Name, "state", a.State, "container", a.Kind == domain.AdvisoryContainer)
	return nil
}

// recordEmbargoed writes the key and the redacted placeholder name, unless
// the advisory is already known.
func (h *Errata) recordEmbargoed(ctx context.Context, id string) error {
	ref := domain.AdvisoryRef(id)
	existing, err := h.Engine.Find(ctx, domain.LabelAdvisory, ref)
	if err != nil {
		return err
	}
	if existing != nil {
		h.log.Debug("embargoed advisory already recorded", "advisory", id)
		return nil
	}
	_, err = h.Engine.CreateOrCorrect(ctx, reconcile.Spec(domain.LabelAdvisory, ref, domain.Props{
		"advisory_name": domain.RedactedName,
	}))
	return err
}

func (h *Errata) fetchAdvisory(ctx context.Context, id string, msg router.Message, body activityBody) (*advisoryFacts, error) {
	detail, err := h.Errata.GetAdvisory(ctx, id)
	if err != nil {
		return nil, err
	}

	a := domain.Advisory{
		ID:               id,
		Kind:             classify.AdvisoryKindOf(detail.ContentTypes),
		Name:             firstNonBlank(body.FullAdvisory, detail.FullAdvisory),
		ContentTypes:     detail.ContentTypes,
		ProductShortName: body.Product,
		SecurityImpact:   detail.SecurityImpact,
		SecuritySLA:      timeField(h.log, "security_sla", detail.SecuritySLA),
		State:            firstNonBlank(body.To, detail.Status),
		Synopsis:         firstNonBlank(detail.Synopsis, msg.Header("synopsis")),
		Type:             strings.ToUpper(firstNonBlank(detail.Type, msg.Header("type"))),
		ActualShipDate:   timeField(h.log, "actual_ship_date", detail.Times["actual_ship_date"]),
		CreatedAt:        timeField(h.log, "created_at", detail.Times["created_at"]),
		IssueDate:        timeField(h.log, "issue_date", detail.Times["issue_date"]),
		ReleaseDate:      timeField(h.log, "release_date", detail.Times["release_date"]),
		StatusTime:       timeField(h.log, "status_time", detail.Times["status_time"]),
		UpdateDate:       timeField(h.log, "update_date", detail.Times["update_date"]),
	}

	if detail.ProductID > 0 {
		product, err := h.Errata.GetProduct(ctx, detail.ProductID)
		switch {
		case err == nil:
			a.ProductName = product.Name
			a.ProductShortName = firstNonBlank(product.ShortName, a.ProductShortName)
		case domain.IsCode(err, domain.CodeNotFound):
			h.log.Warn("advisory product not found", "advisory", id, "product_id", detail.ProductID)
		default:
			return nil, err
		}
	}

	facts := &advisoryFacts{advisory: a, bugs: detail.BugIDs}
	if facts.reporter, err = h.lookupPerson(ctx, id, "reporter", detail.ReporterID); err != nil {
		return nil, err
	}
	if facts.assignee, err = h.lookupPerson(ctx, id, "assignee", detail.AssignedToID); err != nil {
		return nil, err
	}
	return facts, nil
}

func (h *Errata) lookupPerson(ctx context.Context, advisoryID, role string, userID int64) (*domain.Person, error) {
	if userID <= 0 {
		return nil, nil
	}
	u, err := h.Errata.GetPerson(ctx, userID)
	if err != nil {
		if domain.IsCode(err, domain.CodeNotFound) {
			h.log.Warn("advisory person not found", "advisory", advisoryID, "role", role, "user_id", userID)
			return nil, nil
		}
		return nil, err
	}
	p, ok := h.person(loginOf(u))
	if !ok {
		h.log.Warn("advisory person has no login", "advisory", advisoryID, "role", role, "user_id", userID)
		return nil, nil
	}
	return &p, nil
}

func loginOf(u *errata.Person) string {
	if u == nil {
		return ""
	}
	return u.LoginName
}

type buildsChangedBody struct {
	When any `json:"when"`
}

// buildsChanged attaches or detaches one build. The attach time comes from
// the "when" header, falling back to the body.
func (h *Errata) buildsChanged(ctx context.Context, msg router.Message, added bool) error {
	op := "errata.builds_removed"
	if added {
		op = "errata.builds_added"
	}
	hdr, err := requireHeaders(op, msg, "errata_id", "brew_build")
	if err != nil {
		return err
	}
	if embargoed(msg) {
		h.log.Debug("ignoring embargoed build change", "advisory", hdr["errata_id"], "nvr", hdr["brew_build"])
		return nil
	}
	var body buildsChangedBody
	if len(msg.Body) > 0 {
		if err := decode(op, msg, &body); err != nil {
			return err
		}
	}
	when := msg.Headers["when"]
	if when == nil {
		when = body.When
	}
	attached := timeField(h.log, "time_attached", when)

	rec, err := h.Builds.Resolve(ctx, domain.LookupByNVR(hdr["brew_build"]))
	if err != nil {
		if !added && domain.IsCode(err, domain.CodeNotFound) {
			h.log.Warn("removed build is unknown", "advisory", hdr["errata_id"], "nvr", hdr["brew_build"])
			return nil
		}
		return err
	}
	advisory := domain.AdvisoryRef(hdr["errata_id"])
	build := domain.BuildRef(rec.ID)

	if !added {
		return h.Engine.Disconnect(ctx, advisory, domain.RelAttachedBuild, build)
	}
	if _, err := h.writeBuild(ctx, *rec, classify.BuildKindOf(*rec)); err != nil {
		return err
	}
	if err := h.Engine.Stub(ctx, domain.LabelAdvisory, advisory.Key); err != nil {
		return err
	}
	if attached == nil {
		// Keep any attach time already recorded.
		return h.Engine.ConnectIfAbsent(ctx, advisory, domain.RelAttachedBuild, build, nil)
	}
	return h.Engine.ConnectOrReplace(ctx, advisory, domain.RelAttachedBuild, build, domain.Props{
		"time_attached": domain.FormatTime(attached),
	})
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
