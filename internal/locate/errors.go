package locate

import (
	"errors"

	"github.com/cea-hpc/phobos/internal/layout"
	"github.com/cea-hpc/phobos/internal/metrics"
)

// Locate error kinds. All of them are fatal for the call; callers are
// expected to retry the whole locate after a short delay since most causes
// are transient contention.
var (
	// ErrInvalidLayout: the redundancy shape cannot be split.
	ErrInvalidLayout = layout.ErrInvalidLayout
	// ErrSelfHostUnknown: no focus host was given and ours could not be determined.
	ErrSelfHostUnknown = errors.New("cannot determine own host name")
	// ErrSplitDark: every extent of a split failed its medium query.
	ErrSplitDark = errors.New("no extent of split could be queried")
	// ErrSplitUnreachable: no host can read any extent left in a split.
	ErrSplitUnreachable = errors.New("split unreachable")
	// ErrNoViableHost: no host can read enough extents of every split.
	ErrNoViableHost = errors.New("no host has access to every split")
	// ErrNoHostSelected: host scoring produced no candidate.
	ErrNoHostSelected = errors.New("no host selected")
	// ErrInsufficientLeases: the chosen host could not lock enough extents.
	ErrInsufficientLeases = errors.New("not enough leases")
)

// resultLabel maps a locate outcome to its metrics label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, ErrInvalidLayout):
		return metrics.ResultInvalidLayout
	case errors.Is(err, ErrSelfHostUnknown):
		return metrics.ResultSelfHostUnknown
	case errors.Is(err, ErrSplitDark):
		return metrics.ResultSplitDark
	case errors.Is(err, ErrSplitUnreachable):
		return metrics.ResultSplitUnreachable
	case errors.Is(err, ErrNoViableHost):
		return metrics.ResultNoViableHost
	case errors.Is(err, ErrNoHostSelected):
		return metrics.ResultNoHostSelected
	case errors.Is(err, ErrInsufficientLeases):
		return metrics.ResultInsufficientLeases
	default:
		return "error"
	}
}
