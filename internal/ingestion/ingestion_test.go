package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/reguscope/reguscope-go/internal/rag"
)

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

type fakeStore struct {
	docs      []rag.Document
	recreated bool
}

func (f *fakeStore) Upsert(_ context.Context, docs []rag.Document, _ [][]float32) error {
	f.docs = append(f.docs, docs...)
	return nil
}
func (f *fakeStore) Search(context.Context, []float32, int) ([]rag.Document, error) {
	return nil, nil
}
func (f *fakeStore) Recreate(context.Context) error { f.recreated = true; return nil }
func (f *fakeStore) Delete(context.Context, []string) error { return nil }
func (f *fakeStore) Close() error { return nil }

func writeTestDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reg.md")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write test doc: %v", err)
	}
	return path
}

func TestIngestFile(t *testing.T) {
	t.Parallel()

	content := "# Section 1\n\n" + strings.Repeat("Data controllers must keep records. ", 40) +
		"\n\n# Section 2\n\n" + strings.Repeat("Processors act on documented instructions. ", 40)
	path := writeTestDoc(t, content)

	store := &fakeStore{}
	p, err := New(&fakeEmbedder{}, store, Options{ChunkSize: 500, ChunkOverlap: 100})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	n, err := p.IngestFile(context.Background(), path, DocumentMeta{
		DocumentID:    "GDPR",
		EffectiveDate: "2018-05-25",
		Jurisdiction:  "EU",
	})
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if n < 2 {
		t.Fatalf("chunks = %d, want at least 2", n)
	}
	if len(store.docs) != n {
		t.Fatalf("stored %d docs, reported %d", len(store.docs), n)
	}

	seen := map[string]bool{}
	for i, doc := range store.docs {
		if doc.ID == "" || seen[doc.ID] {
			t.Errorf("doc %d: ID %q not unique", i, doc.ID)
		}
		seen[doc.ID] = true

		meta := doc.Metadata
		if meta["document_ID"] != "GDPR" || meta["jurisdiction"] != "EU" {
			t.Errorf("doc %d metadata: %v", i, meta)
		}
		if !strings.HasSuffix(meta["text_preview"], "...") {
			t.Errorf("doc %d preview missing ellipsis: %q", i, meta["text_preview"])
		}
		if len(meta["text_preview"]) > previewLength+3 {
			t.Errorf("doc %d preview too long: %d", i, len(meta["text_preview"]))
		}
	}
}

func TestIngestFileMetadataDefaults(t *testing.T) {
	t.Parallel()

	path := writeTestDoc(t, "Short regulation text.")
	store := &fakeStore{}
	p, _ := New(&fakeEmbedder{}, store, Options{})

	if _, err := p.IngestFile(context.Background(), path, DocumentMeta{}); err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	meta := store.docs[0].Metadata
	if meta["document_ID"] != "Unknown" || meta["effective_date"] != "Unknown" || meta["jurisdiction"] != "Unknown" {
		t.Errorf("defaults not applied: %v", meta)
	}
	if meta["section_number"] != "N/A" {
		t.Errorf("section_number = %q, want N/A", meta["section_number"])
	}
}

func TestRecreateDelegatesToStore(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	p, _ := New(&fakeEmbedder{}, store, Options{})
	if err := p.Recreate(context.Background()); err != nil {
		t.Fatalf("Recreate: %v", err)
	}
	if !store.recreated {
		t.Error("store.Recreate not called")
	}
}

// The stored text_preview is truncated by characters, so a multibyte rune at
// the boundary is never split into invalid UTF-8.
func TestPreviewMultibyte(t *testing.T) {
	t.Parallel()

	chunk := strings.Repeat("a", previewLength-1) + "§ Abs. 1 BDSG"

	got := preview(chunk)
	if !utf8.ValidString(got) {
		t.Fatalf("preview produced invalid UTF-8: %q", got)
	}
	if want := strings.Repeat("a", previewLength-1) + "§..."; got != want {
		t.Errorf("preview = %q, want %q", got, want)
	}

	if got := preview("short chunk"); got != "short chunk..." {
		t.Errorf("preview(short) = %q", got)
	}
}

func TestChunkerOverlap(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("The quick brown fox jumps over the lazy dog.\n", 60)
	chunks := NewChunker(400, 100).Split(text)

	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want several", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 400 {
			t.Errorf("chunk %d length %d exceeds size", i, len(c))
		}
	}
	// Overlap means the tail of one chunk reappears at the head of the next.
	tail := chunks[0][len(chunks[0])-40:]
	if !strings.Contains(chunks[1], strings.TrimSpace(tail)) {
		t.Errorf("chunk 1 does not overlap chunk 0 tail %q", tail)
	}
}

func TestChunkerShortText(t *testing.T) {
	t.Parallel()

	chunks := NewChunker(1000, 200).Split("tiny")
	if len(chunks) != 1 || chunks[0] != "tiny" {
		t.Errorf("Split(tiny) = %q", chunks)
	}
	if got := NewChunker(1000, 200).Split("   "); got != nil {
		t.Errorf("Split(blank) = %q, want nil", got)
	}
}

func TestChunkerPrefersHeadingBoundaries(t *testing.T) {
	t.Parallel()

	a := strings.Repeat("a", 300)
	b := strings.Repeat("b", 300)
	text := a + "\n\n# Section 2\n" + b
	chunks := NewChunker(400, 50).Split(text)

	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want split at heading", len(chunks))
	}
	if !strings.HasPrefix(chunks[1], "# Section 2") {
		t.Errorf("chunk 1 = %q, want to start at the heading", chunks[1][:min(30, len(chunks[1]))])
	}
}

func TestInferSection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		chunk string
		want  string
	}{
		{"# Section 12\nRetention rules.", "12"},
		{"Section 12.3 applies to processors.", "12.3"},
		{"## Article 5(1)\nPrinciples.", "5(1)"},
		{"No heading here.", "N/A"},
		{"", "N/A"},
	}
	for _, tt := range tests {
		if got := InferSection(tt.chunk); got != tt.want {
			t.Errorf("InferSection(%q) = %q, want %q", tt.chunk, got, tt.want)
		}
	}
}

func TestLoadManifest(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "manifest.yaml")
	manifest := `docs/gdpr.md:
  document_id: GDPR
  effective_date: "2018-05-25"
  jurisdiction: EU
docs/ccpa.md:
  document_id: CCPA
  jurisdiction: California
`
	if err := os.WriteFile(path, []byte(manifest), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if len(m) != 2 {
		t.Fatalf("entries = %d, want 2", len(m))
	}
	if m["docs/gdpr.md"].DocumentID != "GDPR" || m["docs/gdpr.md"].EffectiveDate != "2018-05-25" {
		t.Errorf("gdpr entry: %+v", m["docs/gdpr.md"])
	}
	if m["docs/ccpa.md"].EffectiveDate != "" {
		t.Errorf("ccpa effective_date should be empty before defaults: %+v", m["docs/ccpa.md"])
	}
}
