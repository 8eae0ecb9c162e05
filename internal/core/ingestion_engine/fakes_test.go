package ingestion_engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docindex/internal/config"
	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/models"
)

const testDims = 4

func testConfig() config.IngestConfig {
	cfg := config.DefaultIngestConfig()
	cfg.EmbeddingDimensions = testDims
	cfg.BatchSize = 2
	cfg.Concurrency = 2
	cfg.Delay = 0
	cfg.RetryMax = 3
	cfg.EmbedTimeout = 0
	cfg.DocumentConcurrency = 2
	return cfg
}

func noSleep(context.Context, time.Duration) error { return nil }

// pngBytes encodes a w×h grayscale PNG.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.SetGray(x, h/2, color.Gray{Y: 0})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// longText builds n distinct sentences about pump maintenance.
func longText(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Pump %d requires a maintenance check of the seals and bearings every quarter. ", i)
	}
	return b.String()
}

// --- document store ---

type fakeDocs struct {
	mu       sync.Mutex
	docs     map[string]*models.Document
	statuses map[string][]models.Status
	states   map[string][]models.ProcessingState
	listErr  error
	stateErr error
}

func newFakeDocs(docs ...models.Document) *fakeDocs {
	f := &fakeDocs{
		docs:     map[string]*models.Document{},
		statuses: map[string][]models.Status{},
		states:   map[string][]models.ProcessingState{},
	}
	for i := range docs {
		d := docs[i]
		f.docs[d.ID] = &d
	}
	return f
}

func (f *fakeDocs) CreateDocument(_ context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := *doc
	f.docs[d.ID] = &d
	return nil
}

func (f *fakeDocs) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDocs) ListPendingDocuments(_ context.Context, filter core.PendingFilter) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Document
	for _, d := range f.docs {
		if filter.Force || !d.Processed {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeDocs) UpdateDocumentStatus(_ context.Context, id string, status models.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = append(f.statuses[id], status)
	if d, ok := f.docs[id]; ok {
		d.Status = status
	}
	return nil
}

func (f *fakeDocs) UpdateDocumentState(_ context.Context, id string, st models.ProcessingState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return f.stateErr
	}
	f.states[id] = append(f.states[id], st)
	if d, ok := f.docs[id]; ok {
		d.Status = st.Status
		d.Processed = st.Processed
		d.NeedsOCR = st.NeedsOCR
		d.ChunkCount = st.ChunkCount
		d.RetryCount = st.RetryCount
		d.LastError = st.LastError
		d.ProcessedAt = st.ProcessedAt
		d.MimeType = st.MimeType
	}
	return nil
}

func (f *fakeDocs) doc(id string) models.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.docs[id]
}

func (f *fakeDocs) stateWrites(id string) []models.ProcessingState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ProcessingState(nil), f.states[id]...)
}

// --- chunk store ---

type fakeChunks struct {
	mu   sync.Mutex
	rows map[string]map[int]models.DocumentChunk

	upsertErrs []error // consumed one per call
	matchErr   error
	keywordErr error

	matchResults   []models.SearchResult
	keywordResults []models.SearchResult
	keywordQueries []string
	keywordLimits  []int
	upserts        int
}

func newFakeChunks() *fakeChunks {
	return &fakeChunks{rows: map[string]map[int]models.DocumentChunk{}}
}

func (f *fakeChunks) UpsertDocumentChunks(_ context.Context, docID string, chunks []models.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if len(f.upsertErrs) > 0 {
		err := f.upsertErrs[0]
		f.upsertErrs = f.upsertErrs[1:]
		if err != nil {
			return err
		}
	}
	rows, ok := f.rows[docID]
	if !ok {
		rows = map[int]models.DocumentChunk{}
		f.rows[docID] = rows
	}
	for _, ch := range chunks {
		rows[ch.ChunkIndex] = ch
	}
	return nil
}

func (f *fakeChunks) DeleteChunksAfter(_ context.Context, docID string, maxIndex int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for idx := range f.rows[docID] {
		if idx > maxIndex {
			delete(f.rows[docID], idx)
			n++
		}
	}
	return n, nil
}

func (f *fakeChunks) DeleteDocumentChunks(_ context.Context, docID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.rows[docID]))
	delete(f.rows, docID)
	return n, nil
}

func (f *fakeChunks) MatchDocumentChunks(context.Context, []float32, float64, int) ([]models.SearchResult, error) {
	if f.matchErr != nil {
		return nil, f.matchErr
	}
	return f.matchResults, nil
}

func (f *fakeChunks) KeywordSearchChunks(_ context.Context, query string, limit int) ([]models.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keywordQueries = append(f.keywordQueries, query)
	f.keywordLimits = append(f.keywordLimits, limit)
	if f.keywordErr != nil {
		return nil, f.keywordErr
	}
	return f.keywordResults, nil
}

func (f *fakeChunks) indices(docID string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for idx := range f.rows[docID] {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// --- object storage ---

type fakeObjects struct {
	mu    sync.Mutex
	files map[string][]byte
	keys  []string
}

func (f *fakeObjects) UploadFile(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[key] = data
	return nil
}

func (f *fakeObjects) GetFile(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	data, ok := f.files[key]
	if !ok {
		return nil, &core.DownloadError{Status: 404, Err: errors.New("NoSuchKey")}
	}
	return data, nil
}

func (f *fakeObjects) RemoveFiles(_ context.Context, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.files, k)
	}
	return nil
}

// --- embedding provider ---

// fakeProvider returns vectors whose first component is the text length.
type fakeProvider struct {
	mu    sync.Mutex
	dims  int
	calls int
	fn    func(call int, texts []string) ([][]float32, error)
	// hang blocks every call until its context is done.
	hang bool
}

func (p *fakeProvider) EmbedTexts(ctx context.Context, _ string, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	p.mu.Unlock()
	if p.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.fn != nil {
		return p.fn(call, texts)
	}
	return vectorsFor(texts, p.dims), nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func vectorsFor(texts []string, dims int) [][]float32 {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, dims)
		v[0] = float32(len(t))
		out[i] = v
	}
	return out
}

// --- extraction ---

type extractFunc func(ctx context.Context, buf []byte, filename string) (*models.ExtractionResult, error)

func (f extractFunc) Extract(ctx context.Context, buf []byte, filename string) (*models.ExtractionResult, error) {
	return f(ctx, buf, filename)
}

type fakeConverter struct {
	pdfText  string
	pdfErr   error
	docxText string
	docxErr  error
}

func (c fakeConverter) PDF(io.Reader) (string, error)  { return c.pdfText, c.pdfErr }
func (c fakeConverter) Docx(io.Reader) (string, error) { return c.docxText, c.docxErr }

type fakeOCR struct {
	imageText string
	pdfText   string
	err       error
	images    [][]byte
	pdfCalls  int
}

func (o *fakeOCR) RecognizeImages(_ context.Context, images [][]byte) (string, error) {
	o.images = append(o.images, images...)
	return o.imageText, o.err
}

func (o *fakeOCR) OcrPDF(context.Context, []byte) (string, error) {
	o.pdfCalls++
	return o.pdfText, o.err
}

// --- harness ---

type harness struct {
	docs     *fakeDocs
	chunks   *fakeChunks
	objects  *fakeObjects
	provider *fakeProvider
	ing      *DocumentIngestor
	sleeps   []time.Duration
}

func newHarness(t *testing.T, extractor core.DocumentExtractor, docs ...models.Document) *harness {
	t.Helper()
	cfg := testConfig()
	h := &harness{
		docs:     newFakeDocs(docs...),
		chunks:   newFakeChunks(),
		objects:  &fakeObjects{files: map[string][]byte{}},
		provider: &fakeProvider{dims: testDims},
	}
	log := zerolog.Nop()
	gen := NewEmbeddingGenerator(h.provider, EmbedOptionsFromConfig(cfg), log, nil)
	gen.sleep = noSleep
	store := NewVectorStore(h.chunks, cfg.EmbeddingDimensions, log, nil)

	h.ing = NewDocumentIngestor(h.docs, h.objects, extractor, gen, store, cfg, log, nil)
	h.ing.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	h.ing.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	return h
}

func textExtractor(text string) core.DocumentExtractor {
	return extractFunc(func(context.Context, []byte, string) (*models.ExtractionResult, error) {
		return &models.ExtractionResult{Kind: models.KindTxt, Mime: "text/plain", Text: text}, nil
	})
}
