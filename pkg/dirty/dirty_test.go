package dirty

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_IsDirty(t *testing.T) {
	tracker := New()
	h := Hash([]byte("x = 1\n"), []byte("mermaid"))

	assert.True(t, tracker.IsDirty("a.py", h), "new file is dirty")

	tracker.Record("a.py", h, "out/a.mmd")
	assert.False(t, tracker.IsDirty("a.py", h))
	assert.True(t, tracker.IsDirty("a.py", Hash([]byte("x = 2\n"), []byte("mermaid"))))

	out, ok := tracker.Output("a.py")
	assert.True(t, ok)
	assert.Equal(t, "out/a.mmd", out)

	_, ok = tracker.Output("b.py")
	assert.False(t, ok)
}

func TestHash(t *testing.T) {
	src := []byte("x = 1\n")
	assert.Equal(t, Hash(src, []byte("dot")), Hash(src, []byte("dot")))
	assert.NotEqual(t, Hash(src, []byte("dot")), Hash(src, []byte("svg")))
	assert.NotEqual(t, Hash(src), Hash([]byte("x = 2\n")))
}

func TestTracker_Prune(t *testing.T) {
	var buf bytes.Buffer
	seed := New()
	seed.Record("kept.py", "h1", "out/kept.mmd")
	seed.Record("gone.py", "h2", "out/gone.mmd")
	require.NoError(t, seed.Save(&buf))

	tracker := New()
	require.NoError(t, tracker.Load(&buf))
	assert.Equal(t, 2, tracker.Len())

	tracker.IsDirty("kept.py", "h1")
	stale := tracker.Prune()
	assert.Equal(t, []string{"out/gone.mmd"}, stale)
	assert.Equal(t, 1, tracker.Len())
}

func TestTracker_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", ManifestFile)

	tracker, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0, tracker.Len())

	tracker.Record("b.py", "hb", "b.mmd")
	tracker.Record("a.py", "ha", "a.mmd")
	require.NoError(t, tracker.SaveFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Less(t, bytes.Index(data, []byte(`"a.py"`)), bytes.Index(data, []byte(`"b.py"`)))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
	assert.False(t, loaded.IsDirty("a.py", "ha"))
}

func TestTracker_LoadOtherVersion(t *testing.T) {
	tracker := New()
	err := tracker.Load(bytes.NewBufferString(`{"version": 99, "files": [{"path": "a.py", "hash": "h", "output": "a.mmd"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 0, tracker.Len())
	assert.True(t, tracker.IsDirty("a.py", "h"))
}

func TestTracker_LoadGarbage(t *testing.T) {
	assert.Error(t, New().Load(bytes.NewBufferString("not json")))

	path := filepath.Join(t.TempDir(), ManifestFile)
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestTracker_Concurrent(t *testing.T) {
	tracker := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := filepath.Join("pkg", string(rune('a'+i%26))+".py")
			if tracker.IsDirty(path, "h") {
				tracker.Record(path, "h", path+".mmd")
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 26, tracker.Len())
}
