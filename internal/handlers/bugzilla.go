package handlers

import (
	"context"
	"strconv"

	"github.com/yungbote/provenance-updater/internal/clients/koji"
	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
	"github.com/yungbote/provenance-updater/internal/reconcile"
	"github.com/yungbote/provenance-updater/internal/router"
)

// Bugzilla fills Bug nodes, including the stubs created from commit
// messages and advisories.
type Bugzilla struct {
	Deps
	topics topicSet
	log    *logger.Logger
}

func NewBugzilla(deps Deps) *Bugzilla {
	return &Bugzilla{
		Deps:   deps,
		topics: newTopicSet(deps.Topics.Prefix, "bugzilla.bug.create", "bugzilla.bug.modify"),
		log:    deps.Log.With("handler", "bugzilla"),
	}
}

func (h *Bugzilla) Name() string { return "bugzilla" }

func (h *Bugzilla) CanHandle(topic string) bool { return h.topics.has(topic) }

type named struct {
	Name string `json:"name"`
}

type account struct {
	Login string `json:"login"`
}

type bugzillaBody struct {
	Bug struct {
		ID              any      `json:"id"`
		CreationTime    any      `json:"creation_time"`
		LastChangeTime  any      `json:"last_change_time"`
		Priority        string   `json:"priority"`
		Product         named    `json:"product"`
		Version         named    `json:"version"`
		Resolution      string   `json:"resolution"`
		Severity        string   `json:"severity"`
		Summary         string   `json:"summary"`
		Status          named    `json:"status"`
		TargetMilestone named    `json:"target_milestone"`
		AssignedTo      *account `json:"assigned_to"`
		QAContact       *account `json:"qa_contact"`
		Reporter        *account `json:"reporter"`
	} `json:"bug"`
}

func (h *Bugzilla) Handle(ctx context.Context, msg router.Message) error {
	const op = "bugzilla.bug"
	var body bugzillaBody
	if err := decode(op, msg, &body); err != nil {
		return err
	}
	b := body.Bug
	id, ok := koji.Int64(b.ID)
	if !ok || id <= 0 {
		return domain.Malformed(op, "bug id is required")
	}
	bug := domain.Bug{
		ID:               strconv.FormatInt(id, 10),
		CreationTime:     timeField(h.log, "creation_time", b.CreationTime),
		ModifiedTime:     timeField(h.log, "last_change_time", b.LastChangeTime),
		Priority:         b.Priority,
		ProductName:      b.Product.Name,
		ProductVersion:   b.Version.Name,
		Resolution:       b.Resolution,
		Severity:         b.Severity,
		ShortDescription: b.Summary,
		Status:           b.Status.Name,
		TargetMilestone:  b.TargetMilestone.Name,
	}

	type role struct {
		rel    domain.RelType
		person domain.Person
	}
	var people []role
	for _, r := range []struct {
		rel domain.RelType
		acc *account
	}{
		{domain.RelAssignedTo, b.AssignedTo},
		{domain.RelQAContact, b.QAContact},
		{domain.RelReportedBy, b.Reporter},
	} {
		if r.acc == nil {
			continue
		}
		if p, ok := h.person(r.acc.Login); ok {
			people = append(people, role{rel: r.rel, person: p})
		}
	}

	e := h.Engine
	if _, err := e.CreateOrCorrect(ctx, reconcile.Spec(domain.LabelBug, bug.Ref(), bug.Props())); err != nil {
		return err
	}
	for _, r := range people {
		if _, err := e.CreateOrCorrect(ctx, reconcile.Spec(domain.LabelPerson, r.person.Ref(), r.person.Props())); err != nil {
			return err
		}
		if err := e.ConnectExclusive(ctx, bug.Ref(), r.rel, r.person.Ref()); err != nil {
			return err
		}
	}
	h.log.Debug("bug recorded", "bug", bug.ID, "status", bug.Status)
	return nil
}
