package propath

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, root string, rel ...string) {
	t.Helper()
	for _, r := range rel {
		path := filepath.Join(root, filepath.FromSlash(r))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, nil, 0644))
	}
}

func TestWalkResolver_Resolve(t *testing.T) {
	root := t.TempDir()
	touch(t, root,
		"a/Main.p",
		"b/util.i",
		"c/com/acme/Sample.cls",
		"d/report.w2",
		"e/notes.txt",
		"e/gen.py",
	)
	r := NewWalkResolver(root, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"main.p", "a/Main.p", true},
		{"MAIN", "a/Main.p", true},
		{`src\app\main.p`, "a/Main.p", true},
		{"com/acme/Sample", "c/com/acme/Sample.cls", true},
		{"report.p", "d/report.w2", true},
		{"gen", "e/gen.py", true},
		{"util.i", "", false},          // .i is not a listing extension
		{"notes", "", false},           // neither is .txt
		{"com.acme.Sample", "", false}, // stem is "com"
	}
	for _, tt := range tests {
		got, ok, err := r.Resolve(ctx, tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		if tt.ok {
			assert.Equal(t, filepath.Join(root, filepath.FromSlash(tt.want)), got, tt.name)
		}
	}
}

func TestWalkResolver_FirstMatchInLexicalOrder(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "z/dup.p", "a/dup.w", "m/dup.cls")

	got, ok, err := NewWalkResolver(root, nil).Resolve(context.Background(), "dup")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "a", "dup.w"), got)
}

func TestWalkResolver_CustomExtensions(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "x/prog.p", "x/prog.lst")

	got, ok, err := NewWalkResolver(root, []string{".LST"}).Resolve(context.Background(), "prog")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "x", "prog.lst"), got)
}

func TestWalkResolver_MissingRoot(t *testing.T) {
	r := NewWalkResolver(filepath.Join(t.TempDir(), "nope"), nil)
	_, ok, err := r.Resolve(context.Background(), "main.p")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWalkResolver_CanceledContext(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "main.p")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewWalkResolver(root, nil).Resolve(ctx, "main.p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".p", Extension("main.p"))
	assert.Equal(t, ".cls", Extension("a.b.cls"))
	assert.Equal(t, "", Extension(".hidden"))
	assert.Equal(t, "", Extension("noext"))
}

func TestStem(t *testing.T) {
	assert.Equal(t, "main", Stem("main.p"))
	assert.Equal(t, "util", Stem(`lib\util.i`))
	assert.Equal(t, "sample", Stem("com/acme/Sample.cls"))
	assert.Equal(t, "com", Stem("com.acme.Sample"))
}

type countingResolver struct {
	calls int
	paths map[string]string
	err   error
}

func (c *countingResolver) Resolve(_ context.Context, name string) (string, bool, error) {
	c.calls++
	if c.err != nil {
		return "", false, c.err
	}
	p, ok := c.paths[name]
	return p, ok, nil
}

func TestCached_CachesHitsAndMisses(t *testing.T) {
	next := &countingResolver{paths: map[string]string{"main.p": "/l/main.p"}}
	c, err := NewCached(next, 8)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, ok, err := c.Resolve(ctx, "main.p")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "/l/main.p", p)

		_, ok, err = c.Resolve(ctx, "gone.p")
		require.NoError(t, err)
		assert.False(t, ok)
	}

	assert.Equal(t, 2, next.calls)
	hits, misses := c.Stats()
	assert.Equal(t, 4, hits)
	assert.Equal(t, 2, misses)

	c.Purge()
	_, _, err = c.Resolve(ctx, "main.p")
	require.NoError(t, err)
	assert.Equal(t, 3, next.calls)
}

func TestCached_ErrorsNotCached(t *testing.T) {
	next := &countingResolver{err: errors.New("disk on fire")}
	c, err := NewCached(next, 8)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, _, err := c.Resolve(context.Background(), "main.p")
		require.Error(t, err)
	}
	assert.Equal(t, 2, next.calls)
}

func TestNewCached_InvalidSize(t *testing.T) {
	_, err := NewCached(&countingResolver{}, 0)
	assert.Error(t, err)
}
