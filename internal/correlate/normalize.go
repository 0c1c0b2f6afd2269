package correlate

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"profcov/internal/logging"
	"profcov/internal/profiler"
	"profcov/internal/propath"
	"profcov/internal/report"
)

// includePattern matches include file names, which are emitted as written.
var includePattern = regexp.MustCompile(`\.i[0-9]*$`)

// Normalize turns cov into report files. Source identifiers are rewritten to
// the path of the physical source: a class name gets directories for its
// dots, other names take the extension of their listing. Identifiers that
// normalize to the same path are merged into the first one in identifier
// order.
func (c *Correlator) Normalize(ctx context.Context, cov *Coverage) ([]report.File, error) {
	var files []report.File
	index := make(map[string]int)

	for _, id := range cov.Sources() {
		path, err := c.outputPath(ctx, id)
		if err != nil {
			return nil, err
		}

		i, seen := index[path]
		if !seen {
			i = len(files)
			index[path] = i
			files = append(files, report.File{Path: path})
		} else {
			logging.Correlate("%s normalizes to %s, merging", id, path)
		}
		files[i].Lines = mergeLines(files[i].Lines, cov.Lines(id))
	}
	return files, nil
}

func (c *Correlator) outputPath(ctx context.Context, id string) (string, error) {
	out := id
	if !includePattern.MatchString(id) {
		listingPath, ok, err := c.resolve(ctx, id)
		if err != nil {
			return "", err
		}
		if ok {
			out = withExtension(id, propath.Extension(filepath.Base(listingPath)))
		}
	}
	out = c.prefix + strings.ReplaceAll(out, "\\", "/")
	if out != id {
		logging.CorrelateDebug("normalized %s to %s", id, out)
	}
	return out, nil
}

// withExtension gives id the extension ext. Class names (.cls) become
// paths: com.acme.Sample is written com/acme/Sample.cls.
func withExtension(id, ext string) string {
	if strings.EqualFold(ext, ".cls") {
		base := id
		if strings.EqualFold(propath.Extension(base), ext) {
			base = base[:len(base)-len(ext)]
		}
		return strings.ReplaceAll(base, ".", "/") + ext
	}

	dir := strings.LastIndexAny(id, `/\`)
	if dot := strings.LastIndexByte(id, '.'); dot > dir+1 {
		return id[:dot] + ext
	}
	return id + ext
}

// mergeLines ORs b into a. Both are in ascending line order and so is the
// result.
func mergeLines(a []report.Line, b []profiler.LineCoverage) []report.Line {
	out := make([]report.Line, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i].Number < b[j].Line):
			out = append(out, a[i])
			i++
		case i == len(a) || b[j].Line < a[i].Number:
			out = append(out, report.Line{Number: b[j].Line, Covered: b[j].Covered})
			j++
		default:
			out = append(out, report.Line{Number: a[i].Number, Covered: a[i].Covered || b[j].Covered})
			i++
			j++
		}
	}
	return out
}
