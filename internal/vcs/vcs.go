// Package vcs records agent work in a local git repository.
//
// Each agent output with code artifacts can be written into the working tree
// and committed with a message naming the agent role and task. Workflows may
// run on their own branch and be tagged when they complete.
package vcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/logging"
)

const (
	defaultAuthorName  = "agentflow"
	defaultAuthorEmail = "agentflow@localhost"

	// StatusManualResolution is the only conflict resolution offered.
	StatusManualResolution = "manual_resolution_required"
)

// ErrUnsafePath is returned for artifact paths outside the repository.
var ErrUnsafePath = errors.New("artifact path escapes repository")

// Repo wraps a git repository.
type Repo struct {
	root   string
	repo   *git.Repository
	name   string
	email  string
	logger *logging.Logger
	now    func() time.Time
}

// Option configures a Repo.
type Option func(*Repo)

// WithAuthor sets the commit and tag author. Empty values keep the default.
func WithAuthor(name, email string) Option {
	return func(r *Repo) {
		if name != "" {
			r.name = name
		}
		if email != "" {
			r.email = email
		}
	}
}

// WithLogger sets the repository logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Repo) { r.logger = l.Named("vcs") }
}

// Open opens the repository at path, initialising one when none exists.
func Open(path string, opts ...Option) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	repo, err := git.PlainOpen(abs)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(abs, false)
	}
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", abs, err)
	}
	r := &Repo{
		root:   abs,
		repo:   repo,
		name:   defaultAuthorName,
		email:  defaultAuthorEmail,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Root returns the absolute path of the working tree.
func (r *Repo) Root() string { return r.root }

func (r *Repo) signature() *object.Signature {
	return &object.Signature{Name: r.name, Email: r.email, When: r.now()}
}

// CommitMessage formats the message CommitChanges records.
func CommitMessage(role core.AgentRole, taskID, message string) string {
	return fmt.Sprintf("[%s] %s\n\nTask: %s", role, message, taskID)
}

// CommitChanges stages every change in the working tree and commits it.
// It returns the commit hash, or "" when there was nothing to commit.
func (r *Repo) CommitChanges(ctx context.Context, role core.AgentRole, taskID, message string) (string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("staging changes: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("status: %w", err)
	}
	if status.IsClean() {
		r.logger.Debug(ctx, "nothing to commit", zap.String("task_id", taskID))
		return "", nil
	}

	hash, err := wt.Commit(CommitMessage(role, taskID, message), &git.CommitOptions{Author: r.signature()})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	r.logger.Info(ctx, "changes committed",
		zap.String("commit", hash.String()),
		zap.String("agent_role", string(role)),
		zap.String("task_id", taskID))
	return hash.String(), nil
}

// BranchName returns the branch a workflow runs on.
func BranchName(workflowID string) string {
	return "workflow/" + workflowID
}

// CreateBranch creates and checks out the workflow branch. An existing
// branch is checked out instead. In a repository without commits HEAD is
// pointed at the new branch.
func (r *Repo) CreateBranch(ctx context.Context, workflowID string) (string, error) {
	name := BranchName(workflowID)
	ref := plumbing.NewBranchReferenceName(name)

	if _, err := r.repo.Head(); errors.Is(err, plumbing.ErrReferenceNotFound) {
		if err := r.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, ref)); err != nil {
			return "", fmt.Errorf("pointing HEAD at %s: %w", name, err)
		}
		return name, nil
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree: %w", err)
	}
	_, lookupErr := r.repo.Reference(ref, false)
	create := errors.Is(lookupErr, plumbing.ErrReferenceNotFound)
	if err := wt.Checkout(&git.CheckoutOptions{Branch: ref, Create: create, Keep: true}); err != nil {
		return "", fmt.Errorf("checkout %s: %w", name, err)
	}
	r.logger.Info(ctx, "branch checked out", zap.String("branch", name), zap.Bool("created", create))
	return name, nil
}

// TagName returns the tag a completed workflow is released under.
func TagName(workflowID string) string {
	return "release/" + workflowID
}

// TagRelease creates an annotated tag for workflowID at HEAD. An existing
// tag is left alone.
func (r *Repo) TagRelease(ctx context.Context, workflowID string, metadata map[string]any) error {
	head, err := r.repo.Head()
	if err != nil {
		return fmt.Errorf("resolving HEAD: %w", err)
	}
	msg := "Release from workflow " + workflowID
	if len(metadata) > 0 {
		md, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal tag metadata: %w", err)
		}
		msg += "\n\nMetadata: " + string(md)
	}
	_, err = r.repo.CreateTag(TagName(workflowID), head.Hash(), &git.CreateTagOptions{
		Tagger:  r.signature(),
		Message: msg,
	})
	if errors.Is(err, git.ErrTagExists) {
		r.logger.Debug(ctx, "tag already exists", zap.String("tag", TagName(workflowID)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("creating tag: %w", err)
	}
	return nil
}

// ConflictReport describes conflicts that need a human.
type ConflictReport struct {
	Status    string   `json:"status"`
	Conflicts []string `json:"conflicts"`
	Message   string   `json:"message"`
}

// HandleConflict reports conflicting files for manual resolution.
func (r *Repo) HandleConflict(files []string) ConflictReport {
	return ConflictReport{
		Status:    StatusManualResolution,
		Conflicts: append([]string{}, files...),
		Message:   "Please resolve conflicts manually",
	}
}

// RepoStatus summarises the working tree.
type RepoStatus struct {
	Branch    string   `json:"branch"`
	Modified  []string `json:"modified"`
	Untracked []string `json:"untracked"`
	Commits   int      `json:"commits"`
}

// Status reports the current branch, changed files and commit count.
func (r *Repo) Status() (RepoStatus, error) {
	out := RepoStatus{Modified: []string{}, Untracked: []string{}}

	headRef, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return out, fmt.Errorf("reading HEAD: %w", err)
	}
	if headRef.Type() == plumbing.SymbolicReference {
		out.Branch = headRef.Target().Short()
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return out, fmt.Errorf("worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return out, fmt.Errorf("status: %w", err)
	}
	for path, fs := range status {
		switch {
		case fs.Worktree == git.Untracked:
			out.Untracked = append(out.Untracked, path)
		case fs.Worktree != git.Unmodified:
			out.Modified = append(out.Modified, path)
		}
	}
	sort.Strings(out.Modified)
	sort.Strings(out.Untracked)

	head, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("resolving HEAD: %w", err)
	}
	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return out, fmt.Errorf("log: %w", err)
	}
	err = iter.ForEach(func(*object.Commit) error {
		out.Commits++
		return nil
	})
	return out, err
}

// WriteArtifacts writes every artifact with a path into the working tree and
// returns the relative paths written.
func (r *Repo) WriteArtifacts(artifacts []core.Artifact) ([]string, error) {
	written := []string{}
	for _, a := range artifacts {
		if a.Path == "" {
			continue
		}
		rel := filepath.Clean(filepath.FromSlash(a.Path))
		if !filepath.IsLocal(rel) {
			return written, fmt.Errorf("%w: %s", ErrUnsafePath, a.Path)
		}
		full := filepath.Join(r.root, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return written, fmt.Errorf("creating directory for %s: %w", a.Path, err)
		}
		content := a.Content
		if content != "" && content[len(content)-1] != '\n' {
			content += "\n"
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return written, fmt.Errorf("writing %s: %w", a.Path, err)
		}
		written = append(written, filepath.ToSlash(rel))
	}
	return written, nil
}
