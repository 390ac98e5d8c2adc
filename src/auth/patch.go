// Package auth performs scoped, reversible credential injection into
// ecosystem-native configuration files. A task that needs registry
// credentials on disk wraps its backend call in WithInjectedAuth; the
// target file is patched before the call and restored byte-for-byte
// (or removed, if it did not exist) on every exit path.
package auth

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Patch records a file's state prior to a scoped write so it can be
// restored exactly. A Patch is owned by the injection that created it
// and is consumed by a single Restore call.
type Patch struct {
	path    string
	content []byte
	mode    fs.FileMode
	existed bool

	// removeDirs lists directories created for the patched file,
	// deepest first, removed again if the file did not exist.
	removeDirs []string
}

// RestoreError reports a failed restoration of a patched file. It is
// a configuration-integrity failure, not a task failure: the original
// content could not be put back, so credentials may remain on disk.
type RestoreError struct {
	Path string
	Err  error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("auth: restoring %s: %v", e.Path, e.Err)
}

func (e *RestoreError) Unwrap() error { return e.Err }

// Capture snapshots the current content of path, or its absence.
func Capture(path string) (*Patch, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		content, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil, fmt.Errorf("auth: capturing %s: %w", path, rerr)
		}
		return &Patch{path: path, content: content, mode: info.Mode().Perm(), existed: true}, nil
	case os.IsNotExist(err):
		return &Patch{path: path, mode: 0o600}, nil
	default:
		return nil, fmt.Errorf("auth: capturing %s: %w", path, err)
	}
}

// Existed reports whether the file was present when captured.
func (p *Patch) Existed() bool { return p.existed }

// Content returns the captured bytes (nil if the file was absent).
func (p *Patch) Content() []byte { return p.content }

// Write replaces the file's content, creating parent directories as
// needed. Directories created here are torn down again by Restore
// when the file did not originally exist.
func (p *Patch) Write(content []byte) error {
	dir := filepath.Dir(p.path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		created, mkErr := mkdirAllTracked(dir)
		if mkErr != nil {
			return fmt.Errorf("auth: preparing %s: %w", p.path, mkErr)
		}
		p.removeDirs = created
	}
	mode := p.mode
	if !p.existed {
		// New files holding credentials are owner-only.
		mode = 0o600
	}
	if err := os.WriteFile(p.path, content, mode); err != nil {
		return fmt.Errorf("auth: writing %s: %w", p.path, err)
	}
	return nil
}

// Restore puts the file back to its captured state: original bytes
// and mode if it existed, removal otherwise.
func (p *Patch) Restore() error {
	if p.existed {
		if err := os.WriteFile(p.path, p.content, p.mode); err != nil {
			return &RestoreError{Path: p.path, Err: err}
		}
		return nil
	}

	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return &RestoreError{Path: p.path, Err: err}
	}
	for _, dir := range p.removeDirs {
		// Best effort: only empty directories we created are removed.
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

// mkdirAllTracked creates dir and any missing parents, returning the
// created directories deepest-first.
func mkdirAllTracked(dir string) ([]string, error) {
	var missing []string
	for d := dir; ; d = filepath.Dir(d) {
		if _, err := os.Stat(d); err == nil {
			break
		}
		missing = append(missing, d)
		if parent := filepath.Dir(d); parent == d {
			break
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return missing, nil
}
