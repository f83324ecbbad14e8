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

const (
	topicEventStateChanged = "freshmaker.event.state.changed"
	topicBuildStateChanged = "freshmaker.build.state.changed"
)

// Freshmaker records rebuild events, their per-image rebuild attempts and
// the container builds those attempts produced.
type Freshmaker struct {
	Deps
	topics topicSet
	log    *logger.Logger
}

func NewFreshmaker(deps Deps) *Freshmaker {
	return &Freshmaker{
		Deps:   deps,
		topics: newTopicSet(deps.Topics.Prefix, topicEventStateChanged, topicBuildStateChanged),
		log:    deps.Log.With("handler", "freshmaker"),
	}
}

func (h *Freshmaker) Name() string { return "freshmaker" }

func (h *Freshmaker) CanHandle(topic string) bool { return h.topics.has(topic) }

type freshmakerEvent struct {
	ID          any                 `json:"id"`
	EventTypeID any                 `json:"event_type_id"`
	MessageID   string              `json:"message_id"`
	SearchKey   string              `json:"search_key"`
	State       any                 `json:"state"`
	StateName   string              `json:"state_name"`
	StateReason string              `json:"state_reason"`
	URL         string              `json:"url"`
	DryRun      bool                `json:"dry_run"`
	TimeCreated any                 `json:"time_created"`
	TimeDone    any                 `json:"time_done"`
	Builds      []freshmakerAttempt `json:"builds"`
}

type freshmakerAttempt struct {
	ID            any    `json:"id"`
	EventID       any    `json:"event_id"`
	BuildID       any    `json:"build_id"`
	Name          string `json:"name"`
	OriginalNVR   string `json:"original_nvr"`
	RebuiltNVR    string `json:"rebuilt_nvr"`
	Type          any    `json:"type"`
	TypeName      string `json:"type_name"`
	State         any    `json:"state"`
	StateName     string `json:"state_name"`
	StateReason   string `json:"state_reason"`
	URL           string `json:"url"`
	DepOn         any    `json:"dep_on"`
	TimeSubmitted any    `json:"time_submitted"`
	TimeCompleted any    `json:"time_completed"`
}

// attemptKojiState maps a rebuild attempt state to the Koji build state of
// the build it produced.
var attemptKojiState = map[int64]int64{
	domain.RebuildRequestBuilding: domain.BuildStateBuilding,
	domain.RebuildRequestDone:     domain.BuildStateComplete,
	domain.RebuildRequestFailed:   domain.BuildStateFailed,
}

func (h *Freshmaker) Handle(ctx context.Context, msg router.Message) error {
	suffix, _ := h.topics.suffix(msg.Topic)
	switch suffix {
	case topicEventStateChanged:
		return h.eventChanged(ctx, msg)
	case topicBuildStateChanged:
		return h.attemptChanged(ctx, msg)
	default:
		return domain.Unroutable(msg.Topic)
	}
}

func (h *Freshmaker) eventChanged(ctx context.Context, msg router.Message) error {
	const op = "freshmaker.event"
	var body freshmakerEvent
	if err := decode(op, msg, &body); err != nil {
		return err
	}
	event, err := h.parseEvent(op, body)
	if err != nil {
		return err
	}
	if event.DryRun {
		h.log.Info("skipping dry-run rebuild event", "event", event.ID)
		return nil
	}
	attempts := make([]domain.RebuildRequest, 0, len(body.Builds))
	for i, b := range body.Builds {
		a, err := h.parseAttempt(op, b)
		if err != nil {
			return domain.Malformed(op, "builds[%d]: %v", i, err)
		}
		attempts = append(attempts, a)
	}
	outputs, err := h.resolveOutputs(ctx, attempts)
	if err != nil {
		return err
	}

	if err := h.writeEvent(ctx, event, body.SearchKey); err != nil {
		return err
	}
	for i, a := range attempts {
		ref := event.Ref()
		if err := h.writeAttempt(ctx, &ref, a, outputs[i]); err != nil {
			return err
		}
	}
	h.log.Debug("rebuild event recorded", "event", event.ID, "state", event.StateName, "attempts", len(attempts))
	return nil
}

func (h *Freshmaker) attemptChanged(ctx context.Context, msg router.Message) error {
	const op = "freshmaker.build"
	var body freshmakerAttempt
	if err := decode(op, msg, &body); err != nil {
		return err
	}
	a, err := h.parseAttempt(op, body)
	if err != nil {
		return domain.Malformed(op, "%v", err)
	}
	var eventRef *domain.NodeRef
	if id := koji.String(body.EventID); id != "" {
		ref := domain.RebuildEventRef(id)
		eventRef = &ref
	}
	outputs, err := h.resolveOutputs(ctx, []domain.RebuildRequest{a})
	if err != nil {
		return err
	}

	if eventRef != nil {
		if err := h.Engine.Stub(ctx, domain.LabelRebuildEvent, eventRef.Key); err != nil {
			return err
		}
	}
	return h.writeAttempt(ctx, eventRef, a, outputs[0])
}

func (h *Freshmaker) parseEvent(op string, body freshmakerEvent) (domain.RebuildEvent, error) {
	id := koji.String(body.ID)
	if id == "" {
		return domain.RebuildEvent{}, domain.Malformed(op, "event id is required")
	}
	e := domain.RebuildEvent{
		ID:          id,
		StateName:   body.StateName,
		StateReason: body.StateReason,
		MessageID:   body.MessageID,
		URL:         body.URL,
		DryRun:      body.DryRun,
		TimeCreated: timeField(h.log, "time_created", body.TimeCreated),
		TimeDone:    timeField(h.log, "time_done", body.TimeDone),
	}
	if v, ok := koji.Int64(body.EventTypeID); ok {
		e.Type = &v
	}
	if v, ok := koji.Int64(body.State); ok {
		e.State = &v
	}
	return e, nil
}

func (h *Freshmaker) parseAttempt(op string, b freshmakerAttempt) (domain.RebuildRequest, error) {
	id := koji.String(b.ID)
	if id == "" {
		return domain.RebuildRequest{}, domain.Malformed(op, "attempt id is required")
	}
	r := domain.RebuildRequest{
		ID:            id,
		Name:          b.Name,
		OriginalNVR:   b.OriginalNVR,
		RebuiltNVR:    b.RebuiltNVR,
		TypeName:      b.TypeName,
		StateName:     b.StateName,
		StateReason:   b.StateReason,
		URL:           b.URL,
		DepOn:         depOn(b.DepOn),
		TimeSubmitted: timeField(h.log, "time_submitted", b.TimeSubmitted),
		TimeCompleted: timeField(h.log, "time_completed", b.TimeCompleted),
	}
	if v, ok := koji.Int64(b.BuildID); ok && v > 0 {
		r.BuildRefID = &v
	}
	if v, ok := koji.Int64(b.Type); ok {
		r.Type = &v
	}
	if v, ok := koji.Int64(b.State); ok {
		r.State = &v
	}
	return r, nil
}

// depOn renders the attempt an attempt waits on, which Freshmaker reports
// either as a name or as a nested object.
func depOn(v any) string {
	if m, ok := v.(map[string]any); ok {
		if name := koji.String(m["name"]); name != "" {
			return name
		}
		return koji.String(m["id"])
	}
	return koji.String(v)
}

// resolveOutputs looks up the build behind every finished attempt. Attempts
// that are unfinished, have no task yet or whose task produced no build get a
// nil entry.
func (h *Freshmaker) resolveOutputs(ctx context.Context, attempts []domain.RebuildRequest) ([]*domain.BuildRecord, error) {
	out := make([]*domain.BuildRecord, len(attempts))
	for i, a := range attempts {
		if !a.Finished() || a.BuildRefID == nil {
			continue
		}
		rec, err := h.Builds.Resolve(ctx, domain.LookupByTask(*a.BuildRefID))
		if err != nil {
			if domain.IsCode(err, domain.CodeNotFound) {
				h.log.Warn("rebuild attempt has no build", "attempt", a.ID, "task", *a.BuildRefID, "error", err)
				continue
			}
			return nil, err
		}
		if rec.State == nil {
			if s, ok := attemptKojiState[*a.State]; ok {
				rec.State = &s
			}
		}
		if rec.Extra == nil && a.OriginalNVR != "" {
			rec.Extra = map[string]any{"image": map[string]any{"original_nvr": a.OriginalNVR}}
		}
		out[i] = rec
	}
	return out, nil
}

func (h *Freshmaker) writeEvent(ctx context.Context, event domain.RebuildEvent, searchKey string) error {
	if _, err := h.Engine.CreateOrCorrect(ctx, reconcile.Spec(domain.LabelRebuildEvent, event.Ref(), event.Props())); err != nil {
		return err
	}
	// Only advisory-triggered events carry a numeric search key.
	if _, err := strconv.ParseInt(searchKey, 10, 64); err != nil {
		return nil
	}
	advisory := domain.AdvisoryRef(searchKey)
	if err := h.Engine.Stub(ctx, domain.LabelAdvisory, advisory.Key); err != nil {
		return err
	}
	return h.Engine.ConnectExclusive(ctx, event.Ref(), domain.RelTriggeredBy, advisory)
}

// writeAttempt stores the attempt and the build it produced. The event edges
// are only written when the owning event is known.
func (h *Freshmaker) writeAttempt(ctx context.Context, event *domain.NodeRef, a domain.RebuildRequest, output *domain.BuildRecord) error {
	e := h.Engine
	if _, err := e.CreateOrCorrect(ctx, reconcile.Spec(domain.LabelRebuildRequest, a.Ref(), a.Props())); err != nil {
		return err
	}
	if event != nil {
		if err := e.ConnectIfAbsent(ctx, *event, domain.RelRequested, a.Ref(), nil); err != nil {
			return err
		}
	}
	if output == nil {
		return nil
	}
	build, err := h.writeBuild(ctx, *output, domain.BuildContainer)
	if err != nil {
		return err
	}
	if err := e.ConnectExclusive(ctx, a.Ref(), domain.RelProduced, build.Ref()); err != nil {
		return err
	}
	if event == nil {
		return nil
	}
	return e.ConnectIfAbsent(ctx, *event, domain.RelTriggered, build.Ref(), nil)
}
