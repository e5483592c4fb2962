// SPDX-License-Identifier: GPL-3.0-or-later

package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
)

// Files pools the trace files of a scenario and closes
// them in a single operation.
//
// The zero value is ready to use.
type Files struct {
	// handles contains the [io.Closer] to close.
	handles []io.Closer

	// paths contains the created file paths in creation order.
	paths []string
}

// Create creates the named file, creating the parent directory
// when needed, and adds it to the pool.
func (f *Files) Create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("trace: cannot create directory: %w", err)
	}
	fp, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("trace: cannot create file: %w", err)
	}
	f.Add(fp)
	f.paths = append(f.paths, path)
	return fp, nil
}

// CreateBuffered is like [*Files.Create] but returns a buffered
// writer that is flushed when the pool is closed.
func (f *Files) CreateBuffered(path string) (*bufio.Writer, error) {
	fp, err := f.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(fp)
	f.Add(flusher{bw})
	return bw, nil
}

// flusher adapts a [*bufio.Writer] to [io.Closer].
type flusher struct {
	w *bufio.Writer
}

// Close implements [io.Closer].
func (fl flusher) Close() error {
	return fl.w.Flush()
}

// Add adds a given [io.Closer] to the pool.
func (f *Files) Add(c io.Closer) {
	f.handles = append(f.handles, c)
}

// Paths returns the paths of the files created so far.
func (f *Files) Paths() []string {
	return slices.Clone(f.paths)
}

// Close closes all the [io.Closer] inside the pool iterating in
// backward order, so writers wrapping a file are flushed before the
// file itself is closed. The returned error is the join of all the
// errors that occurred when closing.
func (f *Files) Close() error {
	handles := f.handles
	f.handles = nil
	var errv []error
	for _, c := range slices.Backward(handles) {
		if err := c.Close(); err != nil {
			errv = append(errv, err)
		}
	}
	return errors.Join(errv...)
}
