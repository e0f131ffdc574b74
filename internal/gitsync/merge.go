package gitsync

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/starford/inkwell/internal/apperr"
)

// merge runs a three-way merge of the remote tracking branch with the git
// executable. go-git only supports fast-forward merges.
func (r *Repo) merge(ctx context.Context) error {
	bin, err := exec.LookPath(r.gitBin)
	if err != nil {
		return fmt.Errorf("gitsync: histories diverged and no git executable is available to merge: %w", err)
	}
	when := r.now()
	out, err := r.runGit(ctx, bin, "merge", "--no-edit", "--no-ff", "-m", mergeMessage(when), r.remoteRef().String())
	if err == nil {
		r.logger.Info("gitsync: merged remote changes", slog.String("ref", r.remoteRef().String()))
		return nil
	}
	if ctx.Err() != nil {
		_, _ = r.runGit(context.Background(), bin, "merge", "--abort")
		return apperr.Wrap(apperr.ErrTimedOut, "gitsync.merge", ctx.Err())
	}

	files, uerr := r.unmergedPaths(ctx, bin)
	if _, aerr := r.runGit(ctx, bin, "merge", "--abort"); aerr != nil {
		r.logger.Warn("gitsync: merge --abort failed", slog.String("error", aerr.Error()))
	}
	if uerr == nil && len(files) > 0 {
		r.logger.Warn("gitsync: merge conflict", slog.Any("files", files))
		return &apperr.MergeConflictError{Files: files}
	}
	return fmt.Errorf("gitsync: merge: %w\n%s", err, out)
}

// unmergedPaths lists paths left with conflict markers by a failed merge.
func (r *Repo) unmergedPaths(ctx context.Context, bin string) ([]string, error) {
	out, err := r.runGit(ctx, bin, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

func (r *Repo) runGit(ctx context.Context, bin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = r.cfg.Dir
	when := r.now().Format("2006-01-02T15:04:05-0700")
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME="+r.cfg.UserName,
		"GIT_AUTHOR_EMAIL="+r.cfg.UserEmail,
		"GIT_AUTHOR_DATE="+when,
		"GIT_COMMITTER_NAME="+r.cfg.UserName,
		"GIT_COMMITTER_EMAIL="+r.cfg.UserEmail,
		"GIT_COMMITTER_DATE="+when,
		"GIT_TERMINAL_PROMPT=0",
	)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return strings.TrimSpace(buf.String()), err
}
