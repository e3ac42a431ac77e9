// Package classpath resolves binary class names to .class byte streams
// across an ordered list of directories and ZIP archives (spec §4.B),
// grounded on the teacher's JmodClassLoader/UserClassLoader
// (daimatz-gojvm/pkg/vm/classloader.go, since removed from this tree once
// its logic was folded in here) and on archive/zip exactly as the teacher
// uses it for .jmod containers.
package classpath

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Delimiter separates class-path entries in the string form accepted by
// Append (spec §6: "a delimited list ... single character, implementation-
// chosen, documented to the embedder"). ':' mirrors the host JVM's own
// classpath convention on Unix.
const Delimiter = ":"

// entry is one resolved class-path location: a directory or a ZIP archive.
type entry interface {
	// lookup returns the raw .class bytes for binaryName, or (nil, false)
	// on a miss — never an error; misses are not failures until every
	// entry has been tried (spec §4.B: "misses produce ClassNotFound").
	lookup(binaryName string) ([]byte, bool)
	close() error
}

type dirEntry struct{ root string }

func (d *dirEntry) lookup(binaryName string) ([]byte, bool) {
	path := filepath.Join(d.root, filepath.FromSlash(binaryName)+".class")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (d *dirEntry) close() error { return nil }

type archiveEntry struct {
	path string
	zr   *zip.ReadCloser
}

func (a *archiveEntry) lookup(binaryName string) ([]byte, bool) {
	internal := binaryName + ".class"
	for _, f := range a.zr.File {
		if f.Name == internal || strings.TrimPrefix(f.Name, "classes/") == internal {
			rc, err := f.Open()
			if err != nil {
				return nil, false
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				return nil, false
			}
			return data, true
		}
	}
	return nil, false
}

func (a *archiveEntry) close() error { return a.zr.Close() }

// ClassNotFoundError reports a class-path-wide lookup miss (spec §7
// Structural taxonomy: ClassNotFound).
type ClassNotFoundError struct {
	BinaryName string
}

func (e *ClassNotFoundError) Error() string {
	return fmt.Sprintf("ClassNotFound: %s", e.BinaryName)
}

// ClassPath is an ordered, append-only list of lookup locations.
type ClassPath struct {
	entries []entry
}

// New creates an empty class path.
func New() *ClassPath { return &ClassPath{} }

// Append parses a delimited class-path string and adds each entry, in
// order, to the end of the search path. A malformed entry (a path that is
// neither a readable directory nor a valid ZIP archive) is reported
// immediately — spec §6: "Invalid entries produce a parse error at
// append_class_path time" — rather than deferred to first lookup.
func (cp *ClassPath) Append(pathList string) error {
	if pathList == "" {
		return nil
	}
	for _, raw := range strings.Split(pathList, Delimiter) {
		if raw == "" {
			continue
		}
		if err := cp.appendOne(raw); err != nil {
			return errors.Wrapf(err, "appending class-path entry %q", raw)
		}
	}
	return nil
}

func (cp *ClassPath) appendOne(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(err, "stat")
	}
	if info.IsDir() {
		cp.entries = append(cp.entries, &dirEntry{root: path})
		return nil
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		return errors.Wrap(err, "opening as zip/jmod archive")
	}
	cp.entries = append(cp.entries, &archiveEntry{path: path, zr: zr})
	return nil
}

// Lookup searches every entry in order and returns the raw bytes of the
// first match, or a *ClassNotFoundError.
func (cp *ClassPath) Lookup(binaryName string) ([]byte, error) {
	for _, e := range cp.entries {
		if data, ok := e.lookup(binaryName); ok {
			return data, nil
		}
	}
	return nil, &ClassNotFoundError{BinaryName: binaryName}
}

// Close releases any open archive handles.
func (cp *ClassPath) Close() error {
	var firstErr error
	for _, e := range cp.entries {
		if err := e.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
