package gitsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/starford/inkwell/internal/apperr"
)

// PullResult summarizes a pull.
type PullResult struct {
	// LocalChanged is true when local commits existed that the remote lacked.
	LocalChanged bool
	// LocalUpdated is true when remote commits were applied to the working tree.
	LocalUpdated bool
	Ahead        int
	Behind       int
}

// Repo is the git repository rooted at the note directory.
type Repo struct {
	cfg    Config
	creds  CredentialProvider
	logger *slog.Logger
	now    func() time.Time
	gitBin string
}

// Option configures a Repo.
type Option func(*Repo)

// WithClock overrides the clock used for commit timestamps and messages.
func WithClock(now func() time.Time) Option {
	return func(r *Repo) { r.now = now }
}

// WithGitBinary sets the git executable used for three-way merges.
func WithGitBinary(path string) Option {
	return func(r *Repo) { r.gitBin = path }
}

// New returns a Repo for cfg. creds may be nil for anonymous access.
func New(cfg Config, creds CredentialProvider, logger *slog.Logger, opts ...Option) *Repo {
	if creds == nil {
		creds = StaticCredentials{Type: AuthNone}
	}
	r := &Repo{
		cfg:    cfg.withDefaults(),
		creds:  creds,
		logger: logger,
		now:    time.Now,
		gitBin: "git",
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Dir returns the working tree root.
func (r *Repo) Dir() string { return r.cfg.Dir }

// HasRemote reports whether a remote URL is configured.
func (r *Repo) HasRemote() bool { return r.cfg.RemoteURL != "" }

// HasRepository reports whether the note directory contains a .git directory.
func (r *Repo) HasRepository() bool {
	info, err := os.Stat(filepath.Join(r.cfg.Dir, git.GitDirName))
	return err == nil && info.IsDir()
}

func (r *Repo) branchRef() plumbing.ReferenceName {
	return plumbing.NewBranchReferenceName(r.cfg.Branch)
}

func (r *Repo) remoteRef() plumbing.ReferenceName {
	return plumbing.NewRemoteReferenceName(r.cfg.RemoteName, r.cfg.Branch)
}

func (r *Repo) open() (*git.Repository, error) {
	repo, err := git.PlainOpen(r.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("gitsync: open %s: %w", r.cfg.Dir, err)
	}
	return repo, nil
}

func (r *Repo) auth(ctx context.Context) (transport.AuthMethod, error) {
	c, err := r.creds.Credentials(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCredential, "gitsync.credentials", err)
	}
	m, err := c.authMethod()
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCredential, "gitsync.credentials", err)
	}
	return m, nil
}

func (r *Repo) signature() *object.Signature {
	return &object.Signature{Name: r.cfg.UserName, Email: r.cfg.UserEmail, When: r.now()}
}

// Init makes sure a repository exists at the note directory. Without one, a
// configured remote is cloned into a temporary sibling directory that is then
// renamed into place; with no remote a fresh repository is initialised on the
// configured branch. An existing repository gets its remote URL aligned with
// the configuration.
func (r *Repo) Init(ctx context.Context) error {
	if r.HasRepository() {
		return r.ensureRemote()
	}
	if r.HasRemote() {
		return r.clone(ctx)
	}
	return r.initLocal()
}

func (r *Repo) initLocal() error {
	if err := os.MkdirAll(r.cfg.Dir, 0o755); err != nil {
		return apperr.Persistence("gitsync.init", err)
	}
	_, err := git.PlainInitWithOptions(r.cfg.Dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: r.branchRef()},
	})
	if err != nil {
		return apperr.Persistence("gitsync.init", err)
	}
	r.logger.Info("gitsync: initialised repository", slog.String("dir", r.cfg.Dir), slog.String("branch", r.cfg.Branch))
	if r.HasRemote() {
		return r.ensureRemote()
	}
	return nil
}

func (r *Repo) clone(ctx context.Context) error {
	empty, err := dirEmptyOrMissing(r.cfg.Dir)
	if err != nil {
		return apperr.Persistence("gitsync.clone", err)
	}
	if !empty {
		return apperr.Precondition("gitsync.clone", fmt.Sprintf("%s is not empty and has no repository; refusing to clone over it", r.cfg.Dir))
	}

	parent := filepath.Dir(r.cfg.Dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return apperr.Persistence("gitsync.clone", err)
	}
	tmp, err := os.MkdirTemp(parent, ".inkwell-clone-*")
	if err != nil {
		return apperr.Persistence("gitsync.clone", err)
	}
	defer os.RemoveAll(tmp) //nolint:errcheck // gone after a successful rename

	auth, err := r.auth(ctx)
	if err != nil {
		return err
	}
	_, err = git.PlainCloneContext(ctx, tmp, false, &git.CloneOptions{
		URL:             r.cfg.RemoteURL,
		Auth:            auth,
		RemoteName:      r.cfg.RemoteName,
		ReferenceName:   r.branchRef(),
		SingleBranch:    true,
		InsecureSkipTLS: r.cfg.InsecureSkipTLS,
	})
	if errors.Is(err, transport.ErrEmptyRemoteRepository) {
		r.logger.Info("gitsync: remote is empty, initialising locally", slog.String("remote", r.cfg.RemoteURL))
		return r.initLocal()
	}
	if err != nil {
		return classify("gitsync.clone", err)
	}

	if err := os.Remove(r.cfg.Dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperr.Persistence("gitsync.clone", err)
	}
	if err := os.Rename(tmp, r.cfg.Dir); err != nil {
		return apperr.Persistence("gitsync.clone", err)
	}
	r.logger.Info("gitsync: cloned remote", slog.String("remote", r.cfg.RemoteURL), slog.String("dir", r.cfg.Dir))
	return nil
}

func (r *Repo) ensureRemote() error {
	if !r.HasRemote() {
		return nil
	}
	repo, err := r.open()
	if err != nil {
		return apperr.Persistence("gitsync.remote", err)
	}
	rem, err := repo.Remote(r.cfg.RemoteName)
	switch {
	case errors.Is(err, git.ErrRemoteNotFound):
	case err != nil:
		return apperr.Persistence("gitsync.remote", err)
	default:
		urls := rem.Config().URLs
		if len(urls) == 1 && urls[0] == r.cfg.RemoteURL {
			return nil
		}
		if err := repo.DeleteRemote(r.cfg.RemoteName); err != nil {
			return apperr.Persistence("gitsync.remote", err)
		}
	}
	_, err = repo.CreateRemote(&config.RemoteConfig{
		Name: r.cfg.RemoteName,
		URLs: []string{r.cfg.RemoteURL},
	})
	if err != nil {
		return apperr.Persistence("gitsync.remote", err)
	}
	r.logger.Info("gitsync: remote configured", slog.String("name", r.cfg.RemoteName), slog.String("url", r.cfg.RemoteURL))
	return nil
}

// AddAll stages every working tree change, deletions included, and returns
// the number of staged paths.
func (r *Repo) AddAll(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	repo, err := r.open()
	if err != nil {
		return 0, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return 0, fmt.Errorf("gitsync: worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return 0, fmt.Errorf("gitsync: add: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return 0, fmt.Errorf("gitsync: status: %w", err)
	}
	for path, st := range status {
		if st.Worktree == git.Deleted {
			if _, err := wt.Remove(path); err != nil {
				return 0, fmt.Errorf("gitsync: stage removal of %s: %w", path, err)
			}
		}
	}
	if status, err = wt.Status(); err != nil {
		return 0, fmt.Errorf("gitsync: status: %w", err)
	}
	return stagedCount(status), nil
}

func stagedCount(status git.Status) int {
	n := 0
	for _, st := range status {
		if st.Staging != git.Unmodified && st.Staging != git.Untracked {
			n++
		}
	}
	return n
}

// Commit records the staged changes. It returns the empty hash and no error
// when nothing is staged.
func (r *Repo) Commit(ctx context.Context) (plumbing.Hash, error) {
	if err := ctx.Err(); err != nil {
		return plumbing.ZeroHash, err
	}
	repo, err := r.open()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("gitsync: worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("gitsync: status: %w", err)
	}
	if stagedCount(status) == 0 {
		return plumbing.ZeroHash, nil
	}
	sig := r.signature()
	hash, err := wt.Commit(ArchiveMessage(sig.When), &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("gitsync: commit: %w", err)
	}
	r.logger.Info("gitsync: committed", slog.String("hash", hash.String()))
	return hash, nil
}

// Pull fetches the remote branch and integrates it. A branch that is only
// behind is fast-forwarded; diverged histories are merged and a merge that
// leaves unmerged paths is aborted with *apperr.MergeConflictError.
func (r *Repo) Pull(ctx context.Context) (PullResult, error) {
	var res PullResult
	if !r.HasRemote() {
		return res, nil
	}
	repo, err := r.open()
	if err != nil {
		return res, err
	}
	if err := r.fetch(ctx, repo); err != nil {
		return res, err
	}

	local, err := refHash(repo, r.branchRef())
	if err != nil {
		return res, err
	}
	remote, err := refHash(repo, r.remoteRef())
	if err != nil {
		return res, err
	}

	switch {
	case remote.IsZero():
		// Nothing on the remote branch yet.
		if !local.IsZero() {
			set, err := reachable(repo, local)
			if err != nil {
				return res, err
			}
			res.Ahead = len(set)
			res.LocalChanged = true
		}
		return res, nil
	case local.IsZero():
		set, err := reachable(repo, remote)
		if err != nil {
			return res, err
		}
		res.Behind = len(set)
	default:
		res.Ahead, res.Behind, err = aheadBehind(repo, local, remote)
		if err != nil {
			return res, err
		}
	}
	res.LocalChanged = res.Ahead > 0

	r.logger.Debug("gitsync: fetched",
		slog.Int("ahead", res.Ahead),
		slog.Int("behind", res.Behind))

	if res.Behind == 0 {
		return res, nil
	}
	if res.Ahead == 0 {
		if err := r.fastForward(repo, remote); err != nil {
			return res, err
		}
	} else if err := r.merge(ctx); err != nil {
		return res, err
	}
	res.LocalUpdated = true
	return res, nil
}

func (r *Repo) fetch(ctx context.Context, repo *git.Repository) error {
	auth, err := r.auth(ctx)
	if err != nil {
		return err
	}
	spec := config.RefSpec(fmt.Sprintf("+%s:%s", r.branchRef(), r.remoteRef()))
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName:      r.cfg.RemoteName,
		RefSpecs:        []config.RefSpec{spec},
		Auth:            auth,
		InsecureSkipTLS: r.cfg.InsecureSkipTLS,
	})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		return nil
	case errors.Is(err, transport.ErrEmptyRemoteRepository), errors.Is(err, git.NoMatchingRefSpecError{}):
		// Remote has no commits on the branch yet.
		return nil
	default:
		return classify("gitsync.fetch", err)
	}
}

func (r *Repo) fastForward(repo *git.Repository, to plumbing.Hash) error {
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("gitsync: worktree: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(r.branchRef(), to)); err != nil {
		return fmt.Errorf("gitsync: update %s: %w", r.branchRef(), err)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: to, Mode: git.HardReset}); err != nil {
		return fmt.Errorf("gitsync: fast-forward: %w", err)
	}
	r.logger.Info("gitsync: fast-forwarded", slog.String("to", to.String()))
	return nil
}

// Push sends the local branch to the remote. Failures are returned as is;
// nothing is retried.
func (r *Repo) Push(ctx context.Context) error {
	if !r.HasRemote() {
		return nil
	}
	repo, err := r.open()
	if err != nil {
		return err
	}
	local, err := refHash(repo, r.branchRef())
	if err != nil {
		return err
	}
	if local.IsZero() {
		return nil
	}
	auth, err := r.auth(ctx)
	if err != nil {
		return err
	}
	spec := config.RefSpec(fmt.Sprintf("%s:%s", r.branchRef(), r.branchRef()))
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName:      r.cfg.RemoteName,
		RefSpecs:        []config.RefSpec{spec},
		Auth:            auth,
		InsecureSkipTLS: r.cfg.InsecureSkipTLS,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		return classify("gitsync.push", err)
	}
	r.logger.Info("gitsync: pushed", slog.String("branch", r.cfg.Branch))
	return nil
}

// Head returns the commit at the tip of the local branch, or nil before the
// first commit.
func (r *Repo) Head() (*object.Commit, error) {
	repo, err := r.open()
	if err != nil {
		return nil, err
	}
	h, err := refHash(repo, r.branchRef())
	if err != nil || h.IsZero() {
		return nil, err
	}
	return repo.CommitObject(h)
}

func refHash(repo *git.Repository, name plumbing.ReferenceName) (plumbing.Hash, error) {
	ref, err := repo.Reference(name, true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, nil
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("gitsync: resolve %s: %w", name, err)
	}
	return ref.Hash(), nil
}

func reachable(repo *git.Repository, from plumbing.Hash) (map[plumbing.Hash]struct{}, error) {
	c, err := repo.CommitObject(from)
	if err != nil {
		return nil, fmt.Errorf("gitsync: load commit %s: %w", from, err)
	}
	set := make(map[plumbing.Hash]struct{})
	err = object.NewCommitPreorderIter(c, nil, nil).ForEach(func(c *object.Commit) error {
		set[c.Hash] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gitsync: walk history: %w", err)
	}
	return set, nil
}

func aheadBehind(repo *git.Repository, local, remote plumbing.Hash) (ahead, behind int, err error) {
	if local == remote {
		return 0, 0, nil
	}
	l, err := reachable(repo, local)
	if err != nil {
		return 0, 0, err
	}
	rm, err := reachable(repo, remote)
	if err != nil {
		return 0, 0, err
	}
	for h := range l {
		if _, ok := rm[h]; !ok {
			ahead++
		}
	}
	for h := range rm {
		if _, ok := l[h]; !ok {
			behind++
		}
	}
	return ahead, behind, nil
}

func dirEmptyOrMissing(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
