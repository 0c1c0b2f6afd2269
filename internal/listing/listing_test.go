package listing

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// row renders one listing row in LayoutV1. Zero source and block numbers are
// left blank the way the compiler prints them.
func row(src, line, block int, content string) string {
	blank := func(n int, width int) string {
		if n == 0 {
			return strings.Repeat(" ", width)
		}
		return fmt.Sprintf("%*d", width, n)
	}
	return fmt.Sprintf("%s %4d %s %s", blank(src, 2), line, blank(block, 3), content)
}

func listingText(rows ...string) string {
	header := []string{
		"c:\\work\\main.p                        10/17/2026 09:00:00   PROGRESS(R) Page 1",
		"",
		"{} Line Blk",
		"-- ---- ---",
	}
	return strings.Join(append(header, rows...), "\n") + "\n"
}

// mainListing is main.p including lib/util.i between preprocessed lines 4 and 6.
func mainListing() string {
	return listingText(
		row(0, 1, 0, "DEFINE VARIABLE i AS INTEGER NO-UNDO."),
		row(0, 2, 0, "i = 1."),
		row(0, 3, 0, "{lib/util.i}"),
		row(1, 2, 0, "DEFINE VARIABLE j AS INTEGER NO-UNDO."),
		row(1, 3, 0, `MESSAGE "util".`),
		row(1, 4, 0, "j = 2."),
		row(0, 5, 0, "IF i > 0 THEN DO:"),
		row(0, 6, 1, "i = i + 1."),
		row(0, 7, 0, "END."),
		row(0, 8, 0, "DISPLAY i."),
	)
}

func parseString(t *testing.T, name, text string) *File {
	t.Helper()
	f, err := ParseReader(name, strings.NewReader(text))
	require.NoError(t, err)
	return f
}

func TestParseReader_IncludeAttribution(t *testing.T) {
	f := parseString(t, "main.p", mainListing())

	require.Equal(t, 10, f.Len())

	want := []struct {
		source string
		line   int
	}{
		{"main.p", 1},
		{"main.p", 2},
		{"main.p", 3},
		{"lib/util.i", 2},
		{"lib/util.i", 3},
		{"lib/util.i", 4},
		{"main.p", 5},
		{"main.p", 6},
		{"main.p", 7},
		{"main.p", 8},
	}
	for i, w := range want {
		n := i + 1
		assert.Equal(t, w.source, f.OriginalSource(n), "source of line %d", n)
		assert.Equal(t, w.line, f.OriginalLine(n), "original line of %d", n)
	}

	assert.True(t, f.IsInclude(5))
	assert.False(t, f.IsInclude(10))
	assert.Equal(t, 1, f.Stats().Includes)
	assert.Equal(t, 0, f.Stats().Dropped)
}

func TestParseReader_RecordFields(t *testing.T) {
	f := parseString(t, "main.p", mainListing())

	got, ok := f.Record(8)
	require.True(t, ok)
	want := Record{
		PreprocessedLine: 8,
		OriginalLine:     6,
		SourceNumber:     0,
		BlockNumber:      1,
		SourceID:         "main.p",
		Content:          "i = i + 1.",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Record(8) mismatch (-want +got):\n%s", diff)
	}

	for i, r := range f.Records() {
		assert.Equal(t, i+1, r.PreprocessedLine)
	}
}

func TestParseReader_MultiLineDirectiveDropsContinuation(t *testing.T) {
	text := listingText(
		row(0, 1, 0, "DEFINE VARIABLE k AS INTEGER NO-UNDO."),
		row(0, 2, 0, `{inc/args.i &name="k"`),
		row(0, 3, 0, "            &size=2}"),
		row(1, 1, 0, "k = 2."),
		row(0, 4, 0, "DISPLAY k."),
	)
	f := parseString(t, "prog.p", text)

	// The continuation row of the directive is discarded.
	require.Equal(t, 4, f.Len())
	assert.Equal(t, 1, f.Stats().Dropped)

	assert.Equal(t, 2, f.OriginalLine(2))
	assert.Equal(t, "prog.p", f.OriginalSource(2))
	assert.Equal(t, "inc/args.i", f.OriginalSource(3))
	assert.Equal(t, 1, f.OriginalLine(3))
	assert.Equal(t, "prog.p", f.OriginalSource(4))
	assert.Equal(t, 4, f.OriginalLine(4))
}

func TestParseReader_NestedIncludes(t *testing.T) {
	text := listingText(
		row(0, 1, 0, "{lib/outer.i}"),
		row(1, 1, 0, "ASSIGN x = 1."),
		row(1, 2, 0, "{lib/inner.i}"),
		row(2, 1, 0, "ASSIGN y = 2."),
		row(1, 3, 0, "ASSIGN z = 3."),
		row(0, 2, 0, "QUIT."),
	)
	f := parseString(t, "nest.p", text)

	require.Equal(t, 6, f.Len())
	assert.Equal(t, "nest.p", f.OriginalSource(1))
	assert.Equal(t, "lib/outer.i", f.OriginalSource(2))
	assert.Equal(t, "lib/outer.i", f.OriginalSource(3))
	assert.Equal(t, "lib/inner.i", f.OriginalSource(4))
	assert.Equal(t, "lib/outer.i", f.OriginalSource(5))
	assert.Equal(t, "nest.p", f.OriginalSource(6))
	assert.Equal(t, 2, f.Stats().Includes)
}

func TestParseReader_ArgumentReferenceIsNotAnInclude(t *testing.T) {
	text := listingText(
		row(0, 1, 0, "{&table/name}"),
		row(1, 1, 0, "ASSIGN x = 1."),
		row(0, 2, 0, "QUIT."),
	)
	f := parseString(t, "args.p", text)

	// Nothing was pushed, so the include row keeps the logical name and the
	// later pop is a no-op.
	assert.Equal(t, "args.p", f.OriginalSource(2))
	assert.Equal(t, "args.p", f.OriginalSource(3))
	assert.Equal(t, 0, f.Stats().Includes)
}

func TestParseReader_UnbalancedDirectiveFallsBack(t *testing.T) {
	text := listingText(
		row(0, 1, 0, "MESSAGE 1."),
		row(1, 1, 0, "MESSAGE 2."),
		row(0, 2, 0, "MESSAGE 3."),
	)
	f := parseString(t, "plain.p", text)

	require.Equal(t, 3, f.Len())
	for n := 1; n <= 3; n++ {
		assert.Equal(t, "plain.p", f.OriginalSource(n))
	}
}

func TestParseReader_PreprocessingFilters(t *testing.T) {
	text := strings.Join([]string{
		"no leading space is a header",
		" ",
		"  {} Line Blk",
		row(0, 1, 0, "MESSAGE 1."),
		row(0, 2, 0, "MESSAGE 2."),
		"\f",
		row(0, 3, 0, "MESSAGE 3."),
	}, "\r\n")
	f := parseString(t, "ff.p", text)

	require.Equal(t, 2, f.Len())
	assert.Equal(t, "MESSAGE 2.", f.Records()[1].Content)
}

func TestParseReader_MalformedColumnsSkipped(t *testing.T) {
	text := listingText(
		row(0, 1, 0, "MESSAGE 1."),
		" xx    2     MESSAGE bad.",
		"       3 abc MESSAGE bad.",
		row(0, 4, 0, "MESSAGE 4."),
	)
	f := parseString(t, "bad.p", text)

	require.Equal(t, 2, f.Len())
	assert.Equal(t, 4, f.OriginalLine(2))
	assert.Equal(t, 2, f.Stats().Malformed)
}

func TestParseReader_ShortRows(t *testing.T) {
	f := parseString(t, "short.p", listingText("    12"))

	require.Equal(t, 1, f.Len())
	assert.Equal(t, 12, f.OriginalLine(1))
	assert.Equal(t, "", f.Records()[0].Content)
	assert.False(t, f.IsLineValid(1))
}

func TestAccessorsOutOfRange(t *testing.T) {
	f := parseString(t, "main.p", mainListing())

	for _, n := range []int{-1, 0, 11, 1000} {
		assert.Equal(t, 0, f.OriginalLine(n))
		assert.Equal(t, "", f.OriginalSource(n))
		assert.False(t, f.IsInclude(n))
		assert.False(t, f.IsLineValid(n))
		_, ok := f.Record(n)
		assert.False(t, ok)
	}
}

func TestIsLineValid(t *testing.T) {
	f := parseString(t, "main.p", mainListing())

	assert.True(t, f.IsLineValid(1))
	assert.True(t, f.IsLineValid(7), "IF ... THEN DO: is a conditional opener")
	assert.False(t, f.IsLineValid(9), "END. closes a block")
	assert.True(t, f.IsLineValid(10))
}

func TestValidContent(t *testing.T) {
	tests := []struct {
		content string
		want    bool
	}{
		{"", false},
		{"END.", false},
		{"end procedure.", false},
		{"ENDKEY-handler = 1.", false},
		{"DO:", false},
		{"repeat: do:", false},
		{"IF x THEN DO:", true},
		{"else if y then do:", true},
		{"FOR EACH customer NO-LOCK:", true},
		{"x = 1.", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidContent(tt.content), "%q", tt.content)
	}
}

func TestIncludeNames(t *testing.T) {
	pad := strings.Repeat(" ", LayoutV1.ContentStart)
	tests := []struct {
		directive string
		want      []string
	}{
		{pad + "{lib/util.i}", []string{"lib/util.i"}},
		{pad + "RUN x. {lib/a.i {lib/b.i}}", []string{"lib/a.i", "lib/b.i"}},
		{pad + "{util.i}", nil},
		{pad + "{&arg/x}", nil},
		{pad + "no braces here", nil},
		{"short", nil},
	}
	for _, tt := range tests {
		got := includeNames(tt.directive, LayoutV1.ContentStart)
		assert.Equal(t, tt.want, got, tt.directive)
	}
}

func TestParse_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.p")
	require.NoError(t, os.WriteFile(path, []byte(mainListing()), 0644))

	f, err := Parse("main.p", path)
	require.NoError(t, err)
	assert.Equal(t, path, f.Path())
	assert.Equal(t, "main.p", f.Name())
	assert.Equal(t, 8, f.OriginalLine(10))
}

func TestParse_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.p")
	_, err := Parse("missing.p", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}
