// Package syncer sequences the archive, pull, push and reload steps of a
// sync run against a git-backed note directory.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/starford/inkwell/internal/apperr"
	"github.com/starford/inkwell/internal/gitsync"
)

// State is a step of a sync run.
type State string

const (
	Idle          State = "idle"
	Archiving     State = "archiving"
	Pulling       State = "pulling"
	Pushing       State = "pushing"
	Reloading     State = "reloading"
	ConflictAbort State = "conflict-abort"
)

// Run kinds.
const (
	KindSync    = "sync"
	KindArchive = "archive"
)

// Repo is the git surface a sync run needs.
type Repo interface {
	HasRemote() bool
	AddAll(ctx context.Context) (int, error)
	Commit(ctx context.Context) (plumbing.Hash, error)
	Pull(ctx context.Context) (gitsync.PullResult, error)
	Push(ctx context.Context) error
}

// Reloader asks the owner of the live tree to reload the index.
type Reloader func(ctx context.Context) error

// Report describes one finished run.
type Report struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Staged       int       `json:"staged"`
	Commit       string    `json:"commit,omitempty"`
	LocalChanged bool      `json:"local_changed"`
	LocalUpdated bool      `json:"local_updated"`
	Ahead        int       `json:"ahead"`
	Behind       int       `json:"behind"`
	Pushed       bool      `json:"pushed"`
	Reloaded     bool      `json:"reloaded"`
	Conflict     []string  `json:"conflict,omitempty"`
	Error        string    `json:"error,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
}

// Status is the current state plus persisted history.
type Status struct {
	State       State   `json:"state"`
	LocalOnly   bool    `json:"local_only"`
	LastAttempt *Report `json:"last_attempt,omitempty"`
	LastSuccess *Report `json:"last_success,omitempty"`
}

// Orchestrator runs sync protocols. At most one run is in flight.
type Orchestrator struct {
	repo     Repo
	logger   *slog.Logger
	timeout  time.Duration
	history  *History
	reload   Reloader
	observer func(State)
	now      func() time.Time

	sem *semaphore.Weighted

	mu    sync.RWMutex
	state State
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTimeout bounds each git step.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithHistory persists reports.
func WithHistory(h *History) Option {
	return func(o *Orchestrator) { o.history = h }
}

// WithReloader sets the reload step.
func WithReloader(r Reloader) Option {
	return func(o *Orchestrator) { o.reload = r }
}

// WithObserver is called on every state transition.
func WithObserver(fn func(State)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New returns an Orchestrator driving repo.
func New(repo Repo, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repo:    repo,
		logger:  slog.Default(),
		timeout: 60 * time.Second,
		now:     time.Now,
		sem:     semaphore.NewWeighted(1),
		state:   Idle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current step.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Status returns the current step and the persisted history.
func (o *Orchestrator) Status() (Status, error) {
	st := Status{State: o.State(), LocalOnly: !o.repo.HasRemote()}
	if o.history == nil {
		return st, nil
	}
	var err error
	if st.LastAttempt, err = o.history.LastAttempt(); err != nil {
		return st, err
	}
	if st.LastSuccess, err = o.history.LastSuccess(); err != nil {
		return st, err
	}
	return st, nil
}

// History returns up to n recent reports, newest first.
func (o *Orchestrator) History(n int) ([]Report, error) {
	if o.history == nil {
		return nil, nil
	}
	return o.history.Recent(n)
}

// Sync runs archive, pull, push and reload. A merge conflict aborts the run
// before push. A failed push still reloads when the pull updated the working
// tree. Without a remote, pull and push are skipped.
func (o *Orchestrator) Sync(ctx context.Context) (Report, error) {
	return o.run(ctx, KindSync, func(ctx context.Context, rep *Report) error {
		if err := o.archive(ctx, rep); err != nil {
			return err
		}
		if o.repo.HasRemote() {
			o.setState(Pulling)
			res, err := o.step(ctx, func(ctx context.Context) (gitsync.PullResult, error) {
				return o.repo.Pull(ctx)
			})
			rep.LocalChanged, rep.LocalUpdated = res.LocalChanged, res.LocalUpdated
			rep.Ahead, rep.Behind = res.Ahead, res.Behind
			if err != nil {
				var mc *apperr.MergeConflictError
				if errors.As(err, &mc) {
					rep.Conflict = mc.Files
					o.setState(ConflictAbort)
				}
				return err
			}

			o.setState(Pushing)
			if _, err := o.step(ctx, func(ctx context.Context) (gitsync.PullResult, error) {
				return gitsync.PullResult{}, o.repo.Push(ctx)
			}); err != nil {
				// The merge already changed the working tree.
				if rep.LocalUpdated {
					if rerr := o.reloadTree(ctx, rep); rerr != nil {
						return errors.Join(err, rerr)
					}
				}
				return err
			}
			rep.Pushed = true
		}
		return o.reloadTree(ctx, rep)
	})
}

func (o *Orchestrator) reloadTree(ctx context.Context, rep *Report) error {
	if o.reload == nil {
		return nil
	}
	o.setState(Reloading)
	if err := o.reload(ctx); err != nil {
		return fmt.Errorf("syncer: reload: %w", err)
	}
	rep.Reloaded = true
	return nil
}

// Archive stages and commits local changes only.
func (o *Orchestrator) Archive(ctx context.Context) (Report, error) {
	return o.run(ctx, KindArchive, o.archive)
}

func (o *Orchestrator) archive(ctx context.Context, rep *Report) error {
	o.setState(Archiving)
	staged, err := o.repo.AddAll(ctx)
	if err != nil {
		return err
	}
	rep.Staged = staged
	hash, err := o.repo.Commit(ctx)
	if err != nil {
		return err
	}
	if !hash.IsZero() {
		rep.Commit = hash.String()
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, kind string, fn func(context.Context, *Report) error) (Report, error) {
	if !o.sem.TryAcquire(1) {
		return Report{}, apperr.Wrap(apperr.ErrSyncInProgress, "syncer."+kind, fmt.Errorf("state %s", o.State()))
	}
	defer o.sem.Release(1)

	rep := Report{ID: uuid.NewString(), Kind: kind, StartedAt: o.now().UTC()}
	o.logger.Info("syncer: start", slog.String("kind", kind), slog.String("id", rep.ID))

	err := fn(ctx, &rep)
	rep.FinishedAt = o.now().UTC()
	if err != nil {
		rep.Error = err.Error()
		rep.ErrorKind = apperr.KindName(err)
		o.logger.Error("syncer: failed",
			slog.String("kind", kind),
			slog.String("id", rep.ID),
			slog.String("state", string(o.State())),
			slog.String("error", err.Error()),
		)
	} else {
		o.logger.Info("syncer: done",
			slog.String("kind", kind),
			slog.String("id", rep.ID),
			slog.Int("staged", rep.Staged),
			slog.Bool("pushed", rep.Pushed),
		)
	}
	o.setState(Idle)

	if o.history != nil {
		if herr := o.history.Record(rep); herr != nil {
			o.logger.Warn("syncer: record history", slog.String("error", herr.Error()))
		}
	}
	return rep, err
}

// step runs a network operation under the per-step timeout.
func (o *Orchestrator) step(ctx context.Context, fn func(context.Context) (gitsync.PullResult, error)) (gitsync.PullResult, error) {
	sctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	res, err := fn(sctx)
	if err != nil && errors.Is(sctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = apperr.Wrap(apperr.ErrTimedOut, "syncer", err)
	}
	return res, err
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	if o.observer != nil {
		o.observer(s)
	}
}
