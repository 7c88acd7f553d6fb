package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp(t *testing.T) {
	ts := time.Date(2025, 3, 9, 14, 5, 7, 0, time.UTC)
	assert.Equal(t, "20250309_140507", Timestamp(ts))
}

func TestStorePath(t *testing.T) {
	s := NewStore("outputs")
	assert.Equal(t, filepath.Join("outputs", "foodie_analysis_20250309_140507.json"),
		s.Path("foodie", "analysis", "20250309_140507"))
}

func TestStoreSaveAndRead(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.EnsureDir())

	path, err := s.Save("foodie", "analysis", "20250309_140507", map[string]string{"analysis": "likes ramen"})
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, s.Read(path, &got))
	assert.Equal(t, "likes ramen", got["analysis"])
}

func TestStoreSaveOverwrites(t *testing.T) {
	s := NewStore(t.TempDir())

	_, err := s.Save("foodie", "analysis", "ts", map[string]int{"v": 1})
	require.NoError(t, err)
	path, err := s.Save("foodie", "analysis", "ts", map[string]int{"v": 2})
	require.NoError(t, err)

	var got map[string]int
	require.NoError(t, s.Read(path, &got))
	assert.Equal(t, 2, got["v"])
}

func TestStoreEnsureDirCreatesNested(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, NewStore(root).EnsureDir())

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestStoreReadNotFound(t *testing.T) {
	s := NewStore(t.TempDir())
	var v map[string]any
	assert.Error(t, s.Read(filepath.Join(s.Root(), "missing.json"), &v))
}

func TestStoreReadPathTraversal(t *testing.T) {
	s := NewStore(t.TempDir())
	var v map[string]any
	err := s.Read(filepath.Join(s.Root(), "..", "..", "etc", "passwd"), &v)
	assert.ErrorIs(t, err, ErrPathOutsideRoot)
}

func TestStoreJoin(t *testing.T) {
	s := NewStore(t.TempDir())

	p, err := s.Join("analysis_output.json")
	require.NoError(t, err)
	assert.Equal(t, "analysis_output.json", filepath.Base(p))

	// Leading traversal is cleaned away and stays under the root.
	p, err = s.Join("../../escape.json")
	require.NoError(t, err)
	abs, _ := filepath.Abs(s.Root())
	assert.Equal(t, filepath.Join(abs, "escape.json"), p)
}

func TestStoreSub(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	sub, err := s.Sub(filepath.Join(root, "runs"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "runs"), sub.Root())

	same, err := s.Sub("")
	require.NoError(t, err)
	assert.Equal(t, s, same)

	_, err = s.Sub(filepath.Dir(root))
	assert.ErrorIs(t, err, ErrPathOutsideRoot)
}

func TestStoreSubRelativeUnderRoot(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	sub, err := s.Sub("alice")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "alice"), sub.Root())

	sub, err = s.Sub("runs/alice")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "runs", "alice"), sub.Root())

	sub, err = s.Sub("../../alice")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "alice"), sub.Root())

	sub, err = s.Sub(".")
	require.NoError(t, err)
	assert.Equal(t, root, sub.Root())
}
