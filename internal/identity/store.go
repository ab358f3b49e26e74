// Package identity holds the named reference faces loaded from a directory of
// images, one file per person with the file stem as the name.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/recognizer"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidFace is returned when a registration image has no usable face.
	ErrInvalidFace = errors.New("invalid face image")
	// ErrDuplicateName is returned when registering an existing name without overwrite.
	ErrDuplicateName = errors.New("identity already exists")
	// ErrNotFound is returned for names that are not in the store.
	ErrNotFound = errors.New("identity not found")
)

// imageExtensions are the reference file types, matched case-insensitively.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Entry is one reference face. In embedding mode Embedding holds the encoded
// face, in image mode it is nil and Path is compared on demand.
type Entry struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"-"`
}

// HasEmbedding reports whether the entry carries a precomputed embedding.
func (e Entry) HasEmbedding() bool {
	return len(e.Embedding) > 0
}

// ReadImage returns the reference image bytes.
func (e Entry) ReadImage() ([]byte, error) {
	data, err := os.ReadFile(e.Path) //nolint:gosec // path comes from the reference directory listing
	if err != nil {
		return nil, fmt.Errorf("reading reference image for %s: %w", e.Name, err)
	}
	return data, nil
}

// Option configures a Store.
type Option func(*Store)

// WithMode selects config.ModeEmbedding (default) or config.ModeImage.
func WithMode(mode string) Option {
	return func(s *Store) { s.mode = mode }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Store) { s.log = log }
}

// WithCache keeps reference embeddings in a cache keyed by image content.
func WithCache(cache database.ReferenceCache) Option {
	return func(s *Store) { s.cache = cache }
}

// WithIndex rebuilds the HNSW index after every change of the entry set.
func WithIndex(index *database.HNSWIndex) Option {
	return func(s *Store) { s.index = index }
}

// WithOnChange registers a callback receiving the entry count after every change.
func WithOnChange(fn func(count int)) Option {
	return func(s *Store) { s.onChange = fn }
}

// Store is the set of known identities. Readers get immutable snapshots, a
// reload builds the new set without blocking them and swaps it in at once.
type Store struct {
	dir        string
	capability recognizer.Capability
	mode       string
	log        logrus.FieldLogger
	cache      database.ReferenceCache
	index      *database.HNSWIndex
	onChange   func(count int)

	// writeMu serializes Reload, Register and Delete.
	writeMu sync.Mutex

	mu      sync.RWMutex
	entries []Entry
	byName  map[string]int
}

// NewStore creates an empty store over dir. Call Load to read the directory.
func NewStore(dir string, capability recognizer.Capability, opts ...Option) *Store {
	s := &Store{
		dir:        dir,
		capability: capability,
		mode:       config.ModeEmbedding,
		log:        logrus.StandardLogger(),
		byName:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("component", "identity")
	return s
}

// Dir returns the reference directory.
func (s *Store) Dir() string {
	return s.dir
}

// Mode returns the descriptor mode.
func (s *Store) Mode() string {
	return s.mode
}

// Load reads the reference directory. It is the same as Reload.
func (s *Store) Load(ctx context.Context) error {
	return s.Reload(ctx)
}

// Reload re-reads the reference directory and atomically replaces the entry set.
// Files without a detectable face are dropped with a warning. A missing
// directory is an empty store.
func (s *Store) Reload(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	files, err := s.listFiles()
	if err != nil {
		return err
	}

	entries := make([]Entry, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("reloading identities: %w", err)
		}
		entry, err := s.loadEntry(ctx, f.name, f.path)
		if err != nil {
			s.log.WithError(err).WithField("name", f.name).Warn("Skipping reference image")
			continue
		}
		entries = append(entries, entry)
	}

	s.swap(entries)
	s.log.WithField("count", len(entries)).Info("Loaded identities")
	return nil
}

type referenceFile struct {
	name string
	path string
}

// listFiles returns one file per name in lexical filename order. Names are
// the sanitized stems, so "Jiří.jpg" in NFD form or "Ann Lee .png" load as
// "Jiří" and "Ann Lee". When several files share a name the later filename
// wins and keeps the first one's position.
func (s *Store) listFiles() ([]referenceFile, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading reference directory: %w", err)
	}

	var files []referenceFile
	seen := make(map[string]int)
	for _, de := range dirEntries {
		if de.IsDir() || !isImageFile(de.Name()) {
			continue
		}
		name, err := nameOf(de.Name())
		if err != nil {
			s.log.WithError(err).WithField("file", de.Name()).Warn("Ignoring reference file with an unusable name")
			continue
		}
		f := referenceFile{name: name, path: filepath.Join(s.dir, de.Name())}
		if i, ok := seen[name]; ok {
			s.log.WithFields(logrus.Fields{"name": name, "kept": de.Name(), "dropped": filepath.Base(files[i].path)}).
				Warn("Duplicate reference name")
			files[i] = f
			continue
		}
		seen[name] = len(files)
		files = append(files, f)
	}
	return files, nil
}

// loadEntry builds the entry for one reference file.
func (s *Store) loadEntry(ctx context.Context, name, path string) (Entry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the reference directory listing
	if err != nil {
		return Entry{}, fmt.Errorf("reading %s: %w", path, err)
	}
	entry := Entry{Name: name, Path: path, ContentHash: contentHash(data)}
	if s.mode == config.ModeImage {
		return entry, nil
	}

	if s.cache != nil {
		ref, err := s.cache.GetReference(ctx, name, entry.ContentHash)
		if err != nil {
			s.log.WithError(err).WithField("name", name).Warn("Reference cache lookup failed")
		} else if ref != nil && len(ref.Embedding) > 0 {
			entry.Embedding = ref.Embedding
			return entry, nil
		}
	}

	embedding, err := s.encode(ctx, data)
	if err != nil {
		return Entry{}, err
	}
	entry.Embedding = embedding
	s.saveToCache(ctx, entry)
	return entry, nil
}

// encode returns the embedding of the most confident face in the image.
func (s *Store) encode(ctx context.Context, data []byte) ([]float32, error) {
	detections, err := s.capability.DetectAndEncode(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("encoding face: %w", err)
	}
	best := -1
	for i, d := range detections {
		if len(d.Embedding) == 0 {
			continue
		}
		if best < 0 || d.Score > detections[best].Score {
			best = i
		}
	}
	if best < 0 {
		return nil, recognizer.ErrNoFaceDetected
	}
	return detections[best].Embedding, nil
}

func (s *Store) saveToCache(ctx context.Context, entry Entry) {
	if s.cache == nil || !entry.HasEmbedding() {
		return
	}
	ref := database.StoredReference{
		Name:        entry.Name,
		ContentHash: entry.ContentHash,
		Embedding:   entry.Embedding,
		Dim:         len(entry.Embedding),
	}
	if err := s.cache.SaveReference(ctx, ref); err != nil {
		s.log.WithError(err).WithField("name", entry.Name).Warn("Failed to cache reference embedding")
	}
}

// swap installs a new entry set. Callers hold writeMu.
func (s *Store) swap(entries []Entry) {
	byName := make(map[string]int, len(entries))
	for i, e := range entries {
		byName[e.Name] = i
	}

	s.mu.Lock()
	s.entries = entries
	s.byName = byName
	s.mu.Unlock()

	s.rebuildIndex(entries)
	if s.onChange != nil {
		s.onChange(len(entries))
	}
}

func (s *Store) rebuildIndex(entries []Entry) {
	if s.index == nil || s.mode != config.ModeEmbedding {
		return
	}
	vectors := make([]database.IndexedVector, 0, len(entries))
	h := sha256.New()
	for _, e := range entries {
		if !e.HasEmbedding() {
			continue
		}
		vectors = append(vectors, database.IndexedVector{Name: e.Name, Embedding: e.Embedding})
		fmt.Fprintf(h, "%s\x00%s\n", e.Name, e.ContentHash)
	}
	if err := s.index.Build(vectors, hex.EncodeToString(h.Sum(nil))); err != nil {
		s.log.WithError(err).Warn("Failed to build HNSW index")
	}
}

// Entries returns a snapshot of all entries in store order.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Get returns the entry with the exact name.
func (s *Store) Get(name string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byName[name]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Lookup finds an entry by exact name, then by a case and accent insensitive match.
func (s *Store) Lookup(name string) (Entry, bool) {
	if e, ok := s.Get(name); ok {
		return e, true
	}
	want := NormalizePersonName(strings.TrimSpace(name))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if NormalizePersonName(e.Name) == want {
			return e, true
		}
	}
	return Entry{}, false
}

func isImageFile(filename string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(filename))]
}

// nameOf returns the identity name a reference filename is loaded under.
func nameOf(filename string) (string, error) {
	return SanitizeName(stemOf(filename))
}

func stemOf(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
