package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/naka-gawa/bitbucket-pipeline-report/internal/domain"
)

// Stdout is the path that selects standard output instead of a file.
const Stdout = "-"

// OutputWriteError reports an output that could not be written. Aggregated
// results are unaffected by it.
type OutputWriteError struct {
	Path string
	Err  error
}

func (e *OutputWriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *OutputWriteError) Unwrap() error {
	return e.Err
}

// WriteFile replaces the file at path with the output of write.
// Path "-" sends the output to stdout instead.
func WriteFile(path string, stdout io.Writer, write func(io.Writer) error) error {
	if path == Stdout {
		if err := write(stdout); err != nil {
			return &OutputWriteError{Path: "stdout", Err: err}
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return &OutputWriteError{Path: path, Err: err}
	}
	if err := write(f); err != nil {
		f.Close()
		return &OutputWriteError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &OutputWriteError{Path: path, Err: err}
	}
	return nil
}

// WriteJSON dumps the enriched repositories as indented JSON.
func WriteJSON(w io.Writer, repos []*domain.Repository) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(repos)
}
