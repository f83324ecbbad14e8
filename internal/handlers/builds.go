package handlers

import (
	"context"
	"regexp"
	"strings"

	"github.com/yungbote/provenance-updater/internal/classify"
	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/reconcile"
)

// commitSuffix matches the "#<sha1>" suffix of a Koji source URL.
var commitSuffix = regexp.MustCompile(`#([0-9a-fA-F]{40})$`)

// CommitHash returns the lower-cased commit hash a build source URL points
// at, or "".
func CommitHash(source string) string {
	m := commitSuffix.FindStringSubmatch(source)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// buildFrom maps a resolved record onto the Build entity of kind.
func buildFrom(r domain.BuildRecord, kind domain.BuildKind) domain.Build {
	b := domain.Build{
		ID:             r.ID,
		Kind:           kind,
		Name:           r.PackageName,
		Version:        r.Version,
		Release:        r.Release,
		Epoch:          r.Epoch,
		State:          r.State,
		StartTime:      r.StartTime,
		CreationTime:   r.CreationTime,
		CompletionTime: r.CompletionTime,
		Extra:          r.Extra,
	}
	switch kind {
	case domain.BuildContainer:
		b.OriginalNVR = classify.OriginalNVR(r)
		b.Operator = domain.BoolPtr(classify.IsOperatorImage(r))
	case domain.BuildModule:
		if info := classify.Module(r); info != nil {
			b.ModuleName = info.Name
			b.ModuleStream = info.Stream
			b.ModuleVersion = info.Version
			b.Context = info.Context
			b.MBSID = info.MBSID
		}
	}
	return b
}

// writeBuild create-or-corrects the Build node for r under kind, connects
// its owner and, when the source URL pins one, its commit.
func (d Deps) writeBuild(ctx context.Context, r domain.BuildRecord, kind domain.BuildKind) (domain.Build, error) {
	b := buildFrom(r, kind)
	if _, err := d.Engine.CreateOrCorrect(ctx, reconcile.Spec(kind.Label(), b.Ref(), b.Props())); err != nil {
		return b, err
	}

	if owner, ok := d.person(r.OwnerName); ok {
		if _, err := d.Engine.CreateOrCorrect(ctx, reconcile.Spec(domain.LabelPerson, owner.Ref(), owner.Props())); err != nil {
			return b, err
		}
		if err := d.Engine.ConnectExclusive(ctx, b.Ref(), domain.RelOwnedBy, owner.Ref()); err != nil {
			return b, err
		}
	}

	if hash := CommitHash(r.Source); hash != "" {
		commit := domain.CommitRef(hash)
		if err := d.Engine.Stub(ctx, domain.LabelSourceCommit, commit.Key); err != nil {
			return b, err
		}
		if err := d.Engine.ConnectExclusive(ctx, b.Ref(), domain.RelHasCommit, commit); err != nil {
			return b, err
		}
	}
	return b, nil
}
