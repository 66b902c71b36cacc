package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/relay"
)

// ErrRunFailed is returned when a run completes but a step did not pass.
var ErrRunFailed = errors.New("relay run did not pass")

// RunOptions controls how a run is reported.
type RunOptions struct {
	JSON bool
	// Render formats markdown for a terminal. Nil prints it raw.
	Render func(string) (string, error)
}

// Run executes the configured plan and writes the report to w.
// The report is written even when the run stops early.
func Run(ctx context.Context, w io.Writer, r *relay.Relay, opts RunOptions) error {
	report, runErr := r.Run(ctx)
	if report != nil {
		if err := writeReport(w, report, opts); err != nil {
			return errors.Join(runErr, err)
		}
	}
	if runErr != nil {
		return runErr
	}
	if !report.OK() {
		return fmt.Errorf("%w: %d failed step(s)", ErrRunFailed, len(report.Failed()))
	}
	return nil
}

func writeReport(w io.Writer, report interface {
	JSON() ([]byte, error)
	Markdown() string
}, opts RunOptions) error {
	if opts.JSON {
		data, err := report.JSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	out := report.Markdown()
	if opts.Render != nil {
		rendered, err := opts.Render(out)
		if err == nil {
			out = rendered
		}
	}
	_, err := fmt.Fprint(w, out)
	return err
}
