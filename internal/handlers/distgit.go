package handlers

import (
	"context"
	"strings"

	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
	"github.com/yungbote/provenance-updater/internal/reconcile"
	"github.com/yungbote/provenance-updater/internal/router"
)

// DistGit records commits pushed to the packaging repositories.
type DistGit struct {
	Deps
	topics topicSet
	log    *logger.Logger
}

func NewDistGit(deps Deps) *DistGit {
	return &DistGit{
		Deps:   deps,
		topics: newTopicSet(deps.Topics.Prefix, "distgit.commit"),
		log:    deps.Log.With("handler", "distgit"),
	}
}

func (h *DistGit) Name() string { return "distgit" }

func (h *DistGit) CanHandle(topic string) bool { return h.topics.has(topic) }

type distGitBody struct {
	Message    string `json:"message"`
	AuthorDate any    `json:"author_date"`
	CommitDate any    `json:"commit_date"`
}

func (h *DistGit) Handle(ctx context.Context, msg router.Message) error {
	const op = "distgit.commit"
	hdr, err := requireHeaders(op, msg, "namespace", "repo", "branch", "email", "rev")
	if err != nil {
		return err
	}
	var body distGitBody
	if err := decode(op, msg, &body); err != nil {
		return err
	}
	author, ok := h.person(hdr["email"])
	if !ok {
		return domain.Malformed(op, "unusable author email %q", hdr["email"])
	}

	repo := domain.SourceRepo{Namespace: hdr["namespace"], Name: hdr["repo"]}
	branch := domain.SourceBranch{RepoNamespace: repo.Namespace, RepoName: repo.Name, Name: hdr["branch"]}
	commit := domain.SourceCommit{
		Hash:       strings.ToLower(hdr["rev"]),
		Message:    body.Message,
		AuthorDate: timeField(h.log, "author_date", body.AuthorDate),
		CommitDate: timeField(h.log, "commit_date", body.CommitDate),
	}
	refs := ParseBugRefs(body.Message)

	e := h.Engine
	if err := e.Stub(ctx, domain.LabelSourceRepo, repo.Ref().Key); err != nil {
		return err
	}
	if err := e.Stub(ctx, domain.LabelSourceBranch, branch.Ref().Key); err != nil {
		return err
	}
	if err := e.ConnectIfAbsent(ctx, branch.Ref(), domain.RelBranchOf, repo.Ref(), nil); err != nil {
		return err
	}
	if _, err := e.CreateOrCorrect(ctx, reconcile.Spec(domain.LabelPerson, author.Ref(), author.Props())); err != nil {
		return err
	}
	if _, err := e.CreateOrCorrect(ctx, reconcile.Spec(domain.LabelSourceCommit, commit.Ref(), commit.Props())); err != nil {
		return err
	}
	if err := e.ConnectExclusive(ctx, commit.Ref(), domain.RelAuthoredBy, author.Ref()); err != nil {
		return err
	}
	if err := e.ConnectIfAbsent(ctx, commit.Ref(), domain.RelInRepo, repo.Ref(), nil); err != nil {
		return err
	}
	if err := e.ConnectIfAbsent(ctx, commit.Ref(), domain.RelOnBranch, branch.Ref(), nil); err != nil {
		return err
	}

	for _, link := range []struct {
		rel domain.RelType
		ids []string
	}{
		{domain.RelResolves, refs.Resolves},
		{domain.RelRelatesTo, refs.Related},
		{domain.RelReverts, refs.Reverted},
	} {
		for _, id := range link.ids {
			bug := domain.BugRef(id)
			if err := e.Stub(ctx, domain.LabelBug, bug.Key); err != nil {
				return err
			}
			if err := e.ConnectIfAbsent(ctx, commit.Ref(), link.rel, bug, nil); err != nil {
				return err
			}
		}
	}

	h.log.Debug("commit recorded",
		"repo", repo.Namespace+"/"+repo.Name,
		"branch", branch.Name,
		"commit", commit.Hash,
		"bugs", len(refs.Resolves)+len(refs.Related)+len(refs.Reverted),
	)
	return nil
}
