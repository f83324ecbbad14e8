package handlers

import (
	"context"
	"strings"

	"github.com/yungbote/provenance-updater/internal/classify"
	"github.com/yungbote/provenance-updater/internal/clients/koji"
	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
	"github.com/yungbote/provenance-updater/internal/reconcile"
	"github.com/yungbote/provenance-updater/internal/router"
)

const (
	topicBuildTag   = "brew.build.tag"
	topicBuildUntag = "brew.build.untag"
)

// Koji records build state changes and tag membership.
type Koji struct {
	Deps
	builds topicSet
	tags   topicSet
	log    *logger.Logger
}

func NewKoji(deps Deps) *Koji {
	return &Koji{
		Deps: deps,
		builds: newTopicSet(deps.Topics.Prefix,
			"brew.build.building",
			"brew.build.complete",
			"brew.build.failed",
			"brew.build.canceled",
			"brew.build.deleted",
		),
		tags: newTopicSet(deps.Topics.Prefix, topicBuildTag, topicBuildUntag),
		log:  deps.Log.With("handler", "koji"),
	}
}

func (h *Koji) Name() string { return "koji" }

func (h *Koji) CanHandle(topic string) bool {
	return h.builds.has(topic) || h.tags.has(topic)
}

func (h *Koji) Handle(ctx context.Context, msg router.Message) error {
	if suffix, ok := h.tags.suffix(msg.Topic); ok {
		return h.handleTag(ctx, msg, suffix == topicBuildUntag)
	}
	return h.handleBuild(ctx, msg)
}

type kojiBuildBody struct {
	Info map[string]any `json:"info"`
	New  any            `json:"new"`
}

func (h *Koji) handleBuild(ctx context.Context, msg router.Message) error {
	const op = "koji.build"
	var body kojiBuildBody
	if err := decode(op, msg, &body); err != nil {
		return err
	}
	rec, err := koji.ParseRecord(body.Info, h.log)
	if err != nil {
		return domain.Malformed(op, "%v", err)
	}
	// The inline info can lag behind the transition the message announces.
	if state, ok := koji.Int64(body.New); ok {
		rec.State = &state
	}

	resolved, err := h.Builds.Resolve(ctx, domain.LookupInline(*rec))
	if err != nil {
		return err
	}
	kind := classify.BuildKindOf(*resolved)

	var components []domain.BuildRecord
	if kind == domain.BuildModule {
		if info := classify.Module(*resolved); info != nil && info.ContentTag != "" {
			components, err = h.Builds.ModuleComponents(ctx, info.ContentTag)
			if err != nil && !domain.IsCode(err, domain.CodeNotFound) {
				return err
			}
			if err != nil {
				h.log.Warn("module content tag not found", "build", resolved.ID, "tag", info.ContentTag)
			}
		}
	}

	build, err := h.writeBuild(ctx, *resolved, kind)
	if err != nil {
		return err
	}
	for _, c := range components {
		comp := buildFrom(c, domain.BuildPlain)
		if _, err := h.Engine.CreateOrCorrect(ctx, reconcile.Spec(domain.LabelBuild, comp.Ref(), comp.Props())); err != nil {
			return err
		}
		if err := h.Engine.ConnectIfAbsent(ctx, build.Ref(), domain.RelHasComponent, comp.Ref(), nil); err != nil {
			return err
		}
	}

	h.log.Debug("build recorded",
		"build", build.ID,
		"nvr", resolved.NVR(),
		"kind", kind.String(),
		"components", len(components),
	)
	return nil
}

type kojiTagBody struct {
	BuildID any    `json:"build_id"`
	TagID   any    `json:"tag_id"`
	Tag     string `json:"tag"`
}

func (h *Koji) handleTag(ctx context.Context, msg router.Message, untag bool) error {
	const op = "koji.tag"
	var body kojiTagBody
	if err := decode(op, msg, &body); err != nil {
		return err
	}
	buildID, ok := koji.Int64(body.BuildID)
	if !ok || buildID <= 0 {
		return domain.Malformed(op, "build_id is required")
	}
	tagID, ok := koji.Int64(body.TagID)
	if !ok || tagID <= 0 {
		return domain.Malformed(op, "tag_id is required")
	}
	tag := domain.Tag{ID: tagID, Name: strings.TrimSpace(body.Tag)}
	build := domain.BuildRef(buildID)

	if _, err := h.Engine.CreateOrCorrect(ctx, reconcile.Spec(domain.LabelTag, tag.Ref(), tag.Props())); err != nil {
		return err
	}
	if untag {
		return h.Engine.Disconnect(ctx, build, domain.RelTagged, tag.Ref())
	}
	if err := h.Engine.Stub(ctx, domain.LabelBuild, build.Key); err != nil {
		return err
	}
	return h.Engine.ConnectIfAbsent(ctx, build, domain.RelTagged, tag.Ref(), nil)
}
