package pipeline

import (
	"errors"

	"github.com/keithhendry/dotty/internal/config"
	"github.com/keithhendry/dotty/internal/release"
	"github.com/keithhendry/dotty/internal/relerr"
)

// Exit codes returned by the dotty-release CLI.
const (
	// ExitSuccess means the release was published. A failed formula update
	// still exits with ExitSuccess.
	ExitSuccess = 0

	// ExitFailure is any pipeline failure not covered below.
	ExitFailure = 1

	// ExitConfigError means the configuration could not be loaded or validated.
	ExitConfigError = 2

	// ExitDuplicate means the version was already tagged or released.
	ExitDuplicate = 3

	// ExitNotTriggered means the event did not ask for a release.
	ExitNotTriggered = 4
)

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, relerr.ErrNotTriggered):
		return ExitNotTriggered
	case errors.Is(err, relerr.ErrDuplicateTag), errors.Is(err, release.ErrAlreadyReleased):
		return ExitDuplicate
	case errors.Is(err, config.ErrInvalid):
		return ExitConfigError
	default:
		return ExitFailure
	}
}

// ExitCode returns the process exit code for the run.
func (r *Report) ExitCode() int { return ExitCode(r.Err) }
