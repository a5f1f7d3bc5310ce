package cmd

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/xHumanityRO/forumsearch/internal/errors"
)

// printError writes err in the CLI error format.
func printError(w io.Writer, err error) {
	var se *errors.SearchError
	if stderrors.As(err, &se) {
		_, _ = fmt.Fprint(w, errors.FormatForCLI(err))
		return
	}
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
}

// errDaemonNotRunning is returned by commands that need the daemon.
var errDaemonNotRunning = errors.New(errors.ErrCodeIndexUnavailable, "daemon is not running", nil).
	WithSuggestion("Start it with 'forumsearch serve'")
