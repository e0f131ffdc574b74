package gitsync

import (
	"context"
	"errors"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/starford/inkwell/internal/apperr"
)

// classify maps a go-git network error onto the engine's error kinds.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.ErrTimedOut, op, err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrInvalidAuthMethod),
		strings.Contains(err.Error(), "unable to authenticate"),
		strings.Contains(err.Error(), "knownhosts"):
		return apperr.Wrap(apperr.ErrCredential, op, err)
	case errors.Is(err, git.ErrNonFastForwardUpdate),
		strings.Contains(err.Error(), "non-fast-forward"):
		return &apperr.Error{Kind: apperr.ErrPrecondition, Op: op, Msg: "remote has commits that are not merged locally; sync again", Err: err}
	default:
		return apperr.Wrap(apperr.ErrNetwork, op, err)
	}
}
