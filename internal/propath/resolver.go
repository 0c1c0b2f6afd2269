// Package propath locates compiled listing files under a listing root the way
// the runtime searches its PROPATH: by file stem, ignoring directories and
// case, accepting numbered extension variants such as .p2 or .cls1.
package propath

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"profcov/internal/logging"
)

// DefaultExtensions are the listing extensions searched when none are given.
var DefaultExtensions = []string{"p", "py", "w", "cls"}

// Resolver maps a source name reported by the profiler to a listing file.
type Resolver interface {
	// Resolve returns the path of the first matching file. A name with no
	// match is not an error: ok is false.
	Resolve(ctx context.Context, name string) (path string, ok bool, err error)
}

// WalkResolver searches Root in lexical order on every call.
type WalkResolver struct {
	Root       string
	Extensions []string // lower-case, without dot; DefaultExtensions when empty
}

// NewWalkResolver returns a resolver over root. Extensions are lower-cased.
func NewWalkResolver(root string, extensions []string) *WalkResolver {
	exts := make([]string, 0, len(extensions))
	for _, e := range extensions {
		exts = append(exts, strings.ToLower(strings.TrimPrefix(e, ".")))
	}
	return &WalkResolver{Root: root, Extensions: exts}
}

// Resolve implements Resolver.
func (w *WalkResolver) Resolve(ctx context.Context, name string) (string, bool, error) {
	if _, err := os.Stat(w.Root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.ResolveDebug("listing root %s does not exist", w.Root)
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to stat listing root %s: %w", w.Root, err)
	}

	want := Stem(name)
	var found string

	err := filepath.WalkDir(w.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !w.qualifies(d.Name()) {
			return nil
		}
		if fileStem(d.Name()) != want {
			return nil
		}
		found = path
		return fs.SkipAll
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to search listing root %s for %s: %w", w.Root, name, err)
	}

	if found == "" {
		logging.ResolveDebug("no listing for %s under %s", name, w.Root)
		return "", false, nil
	}
	logging.ResolveDebug("resolved %s to %s", name, found)
	return found, true, nil
}

// qualifies reports whether a file name carries one of the listing
// extensions, optionally followed by digits.
func (w *WalkResolver) qualifies(base string) bool {
	ext := Extension(base)
	if ext == "" {
		return false
	}
	ext = strings.ToLower(ext[1:])

	exts := w.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	for _, e := range exts {
		if rest, ok := strings.CutPrefix(ext, e); ok && digits(rest) {
			return true
		}
	}
	return false
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Extension returns the text from the last dot of base, including the dot.
// A leading dot does not start an extension.
func Extension(base string) string {
	i := strings.LastIndexByte(base, '.')
	if i <= 0 {
		return ""
	}
	return base[i:]
}

// Stem returns the lower-cased last path segment of name up to its first
// dot. Backslashes count as separators.
func Stem(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return fileStem(name)
}

func fileStem(base string) string {
	stem, _, _ := strings.Cut(strings.ToLower(base), ".")
	return stem
}
