// Package dirty tracks which sources changed since their diagrams were
// last written, so directory renders can skip unchanged files.
package dirty

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/l3aro/codeflow/pkg/cache"
)

// ManifestFile is the manifest name written into an output directory.
const ManifestFile = ".cflow-manifest.json"

const manifestVersion = 1

// fileState is the recorded render of one source.
type fileState struct {
	Path       string `json:"path"`
	Hash       string `json:"hash"`
	Output     string `json:"output"`
	RenderedAt int64  `json:"rendered_at"` // Unix timestamp
}

// manifest is the on-disk JSON structure.
type manifest struct {
	Version int         `json:"version"`
	Files   []fileState `json:"files"`
}

// Tracker maps source paths to the hash they were last rendered from.
// It is safe for concurrent use.
type Tracker struct {
	mu    sync.RWMutex
	files map[string]fileState
	seen  map[string]bool
}

var _ cache.Persister = (*Tracker)(nil)

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{
		files: make(map[string]fileState),
		seen:  make(map[string]bool),
	}
}

// Hash fingerprints a source together with everything else that shapes
// its diagram (format, options).
func Hash(src []byte, salt ...[]byte) string {
	return cache.Key(append([][]byte{src}, salt...)...)
}

// IsDirty reports whether path must be rendered again: it is new, its hash
// changed, or it was never recorded with an output. Every path asked about
// counts as seen for Prune.
func (t *Tracker) IsDirty(path, hash string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seen[path] = true
	state, ok := t.files[path]
	return !ok || state.Hash != hash || state.Output == ""
}

// Record notes that path was rendered from hash into output.
func (t *Tracker) Record(path, hash, output string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seen[path] = true
	t.files[path] = fileState{
		Path:       path,
		Hash:       hash,
		Output:     output,
		RenderedAt: time.Now().Unix(),
	}
}

// Output returns where path was last rendered to.
func (t *Tracker) Output(path string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.files[path]
	return state.Output, ok && state.Output != ""
}

// Prune drops sources not seen since the Tracker was loaded and returns
// their outputs so the caller can delete them.
func (t *Tracker) Prune() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var stale []string
	for path, state := range t.files {
		if t.seen[path] {
			continue
		}
		if state.Output != "" {
			stale = append(stale, state.Output)
		}
		delete(t.files, path)
	}
	sort.Strings(stale)
	return stale
}

// Len returns the number of tracked sources.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.files)
}

// Save writes the manifest as JSON, sorted by path.
func (t *Tracker) Save(w io.Writer) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	files := make([]fileState, 0, len(t.files))
	for _, state := range t.files {
		files = append(files, state)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(manifest{Version: manifestVersion, Files: files}); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return nil
}

// Load replaces the tracked state with a manifest read from r. A manifest
// from another version is ignored, which forces a full render.
func (t *Tracker) Load(r io.Reader) error {
	var data manifest
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode manifest: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.files = make(map[string]fileState, len(data.Files))
	t.seen = make(map[string]bool)
	if data.Version != manifestVersion {
		return nil
	}
	for _, state := range data.Files {
		t.files[state.Path] = state
	}
	return nil
}

// LoadFile reads the manifest at path. A missing file yields an empty
// Tracker.
func LoadFile(path string) (*Tracker, error) {
	t := New()
	if err := cache.LoadFromFile(t, path); err != nil {
		return nil, err
	}
	return t, nil
}

// SaveFile atomically writes the manifest to path.
func (t *Tracker) SaveFile(path string) error {
	return cache.PersistToFile(t, path)
}
