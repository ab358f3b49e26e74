package identity

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	dbmock "github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/recognizer"
	"github.com/kozaktomas/face-attendance/internal/recognizer/mock"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func entryNames(entries []Entry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

func assertNames(t *testing.T, got []Entry, want ...string) {
	t.Helper()
	names := entryNames(got)
	if len(names) != len(want) {
		t.Fatalf("entries = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("entries = %v, want %v", names, want)
		}
	}
}

func TestStore_Load(t *testing.T) {
	dir := t.TempDir()
	capability := mock.NewMockCapability()

	alice, bob, carol, dave := mock.Image(1), mock.Image(2), mock.Image(3), mock.Image(4)
	capability.SetFaces(alice, []float32{0, 0})
	capability.SetFaces(bob, []float32{1, 0})
	capability.SetFaces(dave, []float32{0, 1})
	// carol has no detectable face

	writeFile(t, dir, "bob.png", bob)
	writeFile(t, dir, "alice.png", alice)
	writeFile(t, dir, "carol.jpg", carol)
	writeFile(t, dir, "dave.JPEG", dave)
	writeFile(t, dir, "notes.txt", []byte("not an image"))
	writeFile(t, dir, ".hidden.png", alice)
	if err := os.Mkdir(filepath.Join(dir, "sub.png"), 0o755); err != nil {
		t.Fatal(err)
	}

	store := NewStore(dir, capability, WithLogger(quietLogger()))
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	assertNames(t, store.Entries(), "alice", "bob", "dave")

	e, ok := store.Get("dave")
	if !ok {
		t.Fatal("Get(dave) not found")
	}
	if !e.HasEmbedding() || e.Embedding[1] != 1 {
		t.Errorf("dave embedding = %v", e.Embedding)
	}
	if e.Path != filepath.Join(dir, "dave.JPEG") {
		t.Errorf("dave path = %q", e.Path)
	}
	if len(e.ContentHash) != 64 {
		t.Errorf("content hash = %q, want sha256 hex", e.ContentHash)
	}
	if _, ok := store.Get("carol"); ok {
		t.Error("carol has no face and should be dropped")
	}
}

func TestStore_LoadMissingDirectory(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing"), mock.NewMockCapability(), WithLogger(quietLogger()))
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
}

func TestStore_DuplicateStemLastWins(t *testing.T) {
	dir := t.TempDir()
	capability := mock.NewMockCapability()
	jpg, png := mock.Image(1), mock.Image(2)
	capability.SetFaces(jpg, []float32{0, 0})
	capability.SetFaces(png, []float32{5, 5})
	writeFile(t, dir, "alice.jpg", jpg)
	writeFile(t, dir, "alice.png", png)

	store := NewStore(dir, capability, WithLogger(quietLogger()))
	if err := store.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	assertNames(t, store.Entries(), "alice")
	e, _ := store.Get("alice")
	if filepath.Base(e.Path) != "alice.png" {
		t.Errorf("kept %s, want alice.png", filepath.Base(e.Path))
	}
	if e.Embedding[0] != 5 {
		t.Errorf("embedding = %v, want the png's", e.Embedding)
	}
}

func TestStore_LoadNormalizesFilenames(t *testing.T) {
	dir := t.TempDir()
	capability := mock.NewMockCapability()
	jiri, ann := mock.Image(1), mock.Image(2)
	capability.SetFaces(jiri, []float32{0, 0})
	capability.SetFaces(ann, []float32{1, 1})

	nfd := norm.NFD.String("Jiří")
	writeFile(t, dir, nfd+".jpg", jiri)
	writeFile(t, dir, "Ann Lee .png", ann)

	store := NewStore(dir, capability, WithLogger(quietLogger()))
	ctx := context.Background()
	if err := store.Load(ctx); err != nil {
		t.Fatal(err)
	}
	assertNames(t, store.Entries(), "Ann Lee", "Jiří")

	e, ok := store.Get("Jiří")
	if !ok {
		t.Fatal("Get(Jiří) not found")
	}
	if filepath.Base(e.Path) != nfd+".jpg" {
		t.Errorf("path = %q, want the file as stored", e.Path)
	}

	// Overwrite and delete find the files under their on-disk names.
	replacement := mock.Image(3)
	capability.SetFaces(replacement, []float32{2, 2})
	if _, err := store.Register(ctx, "Ann Lee", replacement, false); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("Register() error = %v, want ErrDuplicateName", err)
	}
	if _, err := store.Register(ctx, "Ann Lee", replacement, true); err != nil {
		t.Fatalf("Register(overwrite) error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "Ann Lee .png")); !os.IsNotExist(err) {
		t.Error("Ann Lee .png should be replaced")
	}
	if err := store.Delete(ctx, "Jiří"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, nfd+".jpg")); !os.IsNotExist(err) {
		t.Error("the NFD file should be removed")
	}

	if err := store.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	assertNames(t, store.Entries(), "Ann Lee")
}

func TestStore_LoadSkipsFailingReference(t *testing.T) {
	dir := t.TempDir()
	capability := mock.NewMockCapability()
	good, broken := mock.Image(1), mock.Image(2)
	capability.SetFaces(good, []float32{0, 0})
	capability.SetError(broken, errors.New("corrupt image"))
	writeFile(t, dir, "alice.png", good)
	writeFile(t, dir, "broken.png", broken)

	store := NewStore(dir, capability, WithLogger(quietLogger()))
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	assertNames(t, store.Entries(), "alice")
}

func TestStore_ImageMode(t *testing.T) {
	dir := t.TempDir()
	capability := mock.NewMockCapability()
	writeFile(t, dir, "alice.png", mock.Image(1))
	writeFile(t, dir, "bob.png", mock.Image(2))

	store := NewStore(dir, capability, WithMode(config.ModeImage), WithLogger(quietLogger()))
	if err := store.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	assertNames(t, store.Entries(), "alice", "bob")
	if capability.DetectCalls() != 0 {
		t.Errorf("DetectCalls() = %d, image mode must not encode on load", capability.DetectCalls())
	}
	e, _ := store.Get("alice")
	if e.HasEmbedding() {
		t.Error("image mode entry has an embedding")
	}
	data, err := e.ReadImage()
	if err != nil {
		t.Fatalf("ReadImage() error: %v", err)
	}
	if len(data) == 0 {
		t.Error("ReadImage() returned no data")
	}
}

func TestStore_ReloadUsesCache(t *testing.T) {
	dir := t.TempDir()
	capability := mock.NewMockCapability()
	img := mock.Image(1)
	capability.SetFaces(img, []float32{1, 2, 3})
	writeFile(t, dir, "alice.png", img)

	cache := dbmock.NewMockReferenceCache()
	store := NewStore(dir, capability, WithCache(cache), WithLogger(quietLogger()))
	ctx := context.Background()

	if err := store.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if capability.DetectCalls() != 1 || cache.Len() != 1 {
		t.Fatalf("after first load DetectCalls=%d cache=%d, want 1 and 1", capability.DetectCalls(), cache.Len())
	}

	if err := store.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if capability.DetectCalls() != 1 {
		t.Errorf("DetectCalls() = %d, unchanged file must come from the cache", capability.DetectCalls())
	}
	if cache.Hits() != 1 {
		t.Errorf("Hits() = %d, want 1", cache.Hits())
	}

	// A changed image invalidates the cached embedding.
	changed := mock.Image(2)
	capability.SetFaces(changed, []float32{9, 9, 9})
	writeFile(t, dir, "alice.png", changed)
	if err := store.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if capability.DetectCalls() != 2 {
		t.Errorf("DetectCalls() = %d, want 2", capability.DetectCalls())
	}
	e, _ := store.Get("alice")
	if e.Embedding[0] != 9 {
		t.Errorf("embedding = %v, want the new image's", e.Embedding)
	}
}

func TestStore_CacheErrorsAreNotFatal(t *testing.T) {
	dir := t.TempDir()
	capability := mock.NewMockCapability()
	img := mock.Image(1)
	capability.SetFaces(img, []float32{1})
	writeFile(t, dir, "alice.png", img)

	cache := dbmock.NewMockReferenceCache()
	cache.GetError = errors.New("connection refused")
	cache.SaveError = errors.New("connection refused")

	store := NewStore(dir, capability, WithCache(cache), WithLogger(quietLogger()))
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	assertNames(t, store.Entries(), "alice")
}

func TestStore_IndexAndOnChange(t *testing.T) {
	dir := t.TempDir()
	capability := mock.NewMockCapability()
	for i, name := range []string{"alice", "bob", "carol"} {
		img := mock.Image(i + 1)
		capability.SetFaces(img, []float32{float32(i), 0})
		writeFile(t, dir, name+".png", img)
	}

	index := database.NewHNSWIndex(config.MetricEuclidean)
	var counts []int
	store := NewStore(dir, capability,
		WithIndex(index),
		WithOnChange(func(n int) { counts = append(counts, n) }),
		WithLogger(quietLogger()))

	if err := store.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if index.Count() != 3 {
		t.Errorf("index Count() = %d, want 3", index.Count())
	}
	names, err := index.Search([]float32{2, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "carol" {
		t.Errorf("Search() = %v, want [carol]", names)
	}
	if len(counts) != 1 || counts[0] != 3 {
		t.Errorf("OnChange counts = %v, want [3]", counts)
	}
}

func TestStore_Lookup(t *testing.T) {
	dir := t.TempDir()
	capability := mock.NewMockCapability()
	img := mock.Image(1)
	capability.SetFaces(img, []float32{1})
	writeFile(t, dir, "Jiří Novák.png", img)

	store := NewStore(dir, capability, WithLogger(quietLogger()))
	if err := store.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		query string
		found bool
	}{
		{"Jiří Novák", true},
		{"jiri novak", true},
		{"JIRI-NOVAK", true},
		{"Jiri", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			e, ok := store.Lookup(tt.query)
			if ok != tt.found {
				t.Fatalf("Lookup(%q) found = %v, want %v", tt.query, ok, tt.found)
			}
			if ok && e.Name != "Jiří Novák" {
				t.Errorf("Lookup(%q) = %q", tt.query, e.Name)
			}
		})
	}
}

func TestStore_Watch(t *testing.T) {
	dir := t.TempDir()
	capability := mock.NewMockCapability()
	img := mock.Image(1)
	capability.SetFaces(img, []float32{1})

	store := NewStore(dir, capability, WithLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.watch(ctx, 20*time.Millisecond) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "alice.png", img)
	writeFile(t, dir, "ignored.txt", []byte("x"))

	deadline := time.Now().Add(5 * time.Second)
	for store.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d after file creation, want 1", store.Len())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Watch() did not return after cancel")
	}
}

func TestEncodePicksMostConfidentFace(t *testing.T) {
	store := NewStore(t.TempDir(), scoredCapability{}, WithLogger(quietLogger()))
	emb, err := store.encode(context.Background(), []byte("img"))
	if err != nil {
		t.Fatal(err)
	}
	if emb[0] != 2 {
		t.Errorf("encode() = %v, want the 0.9 score face", emb)
	}
}

type scoredCapability struct{}

func (scoredCapability) DetectAndEncode(ctx context.Context, image []byte) ([]recognizer.Detection, error) {
	return []recognizer.Detection{
		{Index: 0, Embedding: []float32{1}, Score: 0.5},
		{Index: 1, Embedding: []float32{2}, Score: 0.9},
		{Index: 2, Score: 0.99}, // no embedding
	}, nil
}

func (scoredCapability) Verify(ctx context.Context, a, b []byte) (*recognizer.Verification, error) {
	return &recognizer.Verification{}, nil
}
