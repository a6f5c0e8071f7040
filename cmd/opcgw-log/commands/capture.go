package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/log"
)

// Stdin names standard input as the capture path.
const Stdin = "-"

// openCapture opens path, or standard input for Stdin.
func openCapture(path string, filter log.Filter) (*log.Reader, error) {
	if path == Stdin {
		return log.NewStreamReader(os.Stdin, filter), nil
	}
	r, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return r, nil
}

// forEach calls fn for every event of r. A capture cut off mid-event ends
// the walk with truncated set and no error.
func forEach(r *log.Reader, fn func(log.Event) error) (truncated bool, err error) {
	for {
		event, err := r.Next()
		switch {
		case err == io.EOF:
			return false, nil
		case errors.Is(err, log.ErrTruncated):
			return true, nil
		case err != nil:
			return false, fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(event); err != nil {
			return false, err
		}
	}
}
