package cmd

import (
	"fmt"
	"io"

	"github.com/KaramelBytes/airlens-cli/internal/render"
	"github.com/KaramelBytes/airlens-cli/internal/utils"
)

// reportedError is a failure whose output has already been written to
// stdout. Execute exits 1 without printing it again.
type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func reported(err error) error { return &reportedError{err: err} }

// printLines writes the two-line result: web path, then description.
func printLines(w io.Writer, webPath, description string) {
	fmt.Fprintln(w, webPath)
	fmt.Fprintln(w, description)
}

// errorArtifact renders msg as an error image and returns its web path,
// or the static fallback when even that fails.
func errorArtifact(rc *render.Context, msg string) string {
	a, err := render.ErrorImage(rc, msg)
	if err != nil {
		logger.Error("error image failed", "err", err)
		return render.FallbackErrorPath
	}
	return a.WebPath
}

func printJSON(w io.Writer, v any) error {
	b, err := utils.PrettyJSON(v)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
