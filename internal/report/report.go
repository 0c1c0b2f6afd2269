// Package report writes consolidated coverage in the supported output
// formats. The XML format is the generic test coverage format read by
// SonarQube; the others carry the same model.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"profcov/internal/logging"
)

// Version is the coverage format version written to every report.
const Version = 1

// ErrUnknownFormat is returned for an output format name that is not
// supported.
var ErrUnknownFormat = errors.New("unknown report format")

// Report is the consolidated coverage of one run.
type Report struct {
	Version int    `json:"version" yaml:"version"`
	Files   []File `json:"files" yaml:"files"`
}

// File is the coverage of one original source file.
type File struct {
	Path  string `json:"path" yaml:"path"`
	Lines []Line `json:"lines" yaml:"lines"`
}

// Line is the coverage state of one original line.
type Line struct {
	Number  int  `json:"lineNumber" yaml:"lineNumber"`
	Covered bool `json:"covered" yaml:"covered"`
}

// New returns a report over files.
func New(files []File) *Report {
	if files == nil {
		files = []File{}
	}
	return &Report{Version: Version, Files: files}
}

// Format names an output format.
type Format string

const (
	FormatXML    Format = "xml"
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
	FormatSQLite Format = "sqlite"
)

// ParseFormat validates a format name. Matching is case-insensitive.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatXML, FormatJSON, FormatYAML, FormatSQLite:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// FormatFor picks the format of an output file: the explicit name when
// given, else the one implied by the file extension, else XML.
func FormatFor(name, output string) (Format, error) {
	if name != "" {
		return ParseFormat(name)
	}
	switch strings.ToLower(filepath.Ext(output)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, nil
	}
	return FormatXML, nil
}

// Writer encodes a report to a stream.
type Writer interface {
	Write(w io.Writer, r *Report) error
}

// NewWriter returns the stream writer of a format. SQLite output needs a
// file and has no stream writer; use WriteFile.
func NewWriter(f Format) (Writer, error) {
	switch f {
	case FormatXML:
		return XMLWriter{}, nil
	case FormatJSON:
		return JSONWriter{Indent: "  "}, nil
	case FormatYAML:
		return YAMLWriter{Indent: 2}, nil
	case FormatSQLite:
		return nil, fmt.Errorf("%w: %s has no stream writer", ErrUnknownFormat, f)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// WriteFile writes r to path in format f, replacing any existing file.
func WriteFile(path string, f Format, r *Report) error {
	if f == FormatSQLite {
		if err := writeSQLite(path, r); err != nil {
			return fmt.Errorf("failed to write report %s: %w", path, err)
		}
		logging.Report("wrote %d files to %s (%s)", len(r.Files), path, f)
		return nil
	}

	w, err := NewWriter(f)
	if err != nil {
		return err
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", path, err)
	}
	defer out.Close()

	buf := bufio.NewWriter(out)
	if err := w.Write(buf, r); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close report %s: %w", path, err)
	}

	logging.Report("wrote %d files to %s (%s)", len(r.Files), path, f)
	return nil
}
