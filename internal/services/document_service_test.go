package services

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/models"
)

type fakeStore struct {
	core.DocumentStore

	docs      map[string]*models.Document
	createErr error
	deleted   []string
}

func (f *fakeStore) CreateDocument(_ context.Context, doc *models.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeStore) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	return f.docs[id], nil
}

func (f *fakeStore) DeleteDocument(_ context.Context, id string) error {
	delete(f.docs, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeObjects struct {
	files   map[string][]byte
	types   map[string]string
	removed []string
}

func (f *fakeObjects) UploadFile(_ context.Context, key string, data []byte, contentType string) error {
	f.files[key] = data
	f.types[key] = contentType
	return nil
}

func (f *fakeObjects) GetFile(_ context.Context, key string) ([]byte, error) {
	data, ok := f.files[key]
	if !ok {
		return nil, &core.DownloadError{Status: 404, Err: errors.New("NoSuchKey")}
	}
	return data, nil
}

func (f *fakeObjects) RemoveFiles(_ context.Context, keys []string) error {
	for _, k := range keys {
		delete(f.files, k)
	}
	f.removed = append(f.removed, keys...)
	return nil
}

type fakeChunks struct{ deleted []string }

func (f *fakeChunks) DeleteByDocument(_ context.Context, docID string) error {
	f.deleted = append(f.deleted, docID)
	return nil
}

func newTestService() (*DocumentService, *fakeStore, *fakeObjects, *fakeChunks) {
	store := &fakeStore{docs: map[string]*models.Document{}}
	objects := &fakeObjects{files: map[string][]byte{}, types: map[string]string{}}
	chunks := &fakeChunks{}
	return NewDocumentService(store, objects, chunks, zerolog.Nop()), store, objects, chunks
}

func TestRegisterUploadsAndCreatesPendingDocument(t *testing.T) {
	svc, store, objects, _ := newTestService()

	doc, err := svc.Register(context.Background(), "Handboek pompen.txt", []byte("Onderhoud van pomp P-101."), Tags{Department: "onderhoud"})
	require.NoError(t, err)

	assert.Equal(t, "Handboek_pompen.txt", doc.FileName)
	assert.Equal(t, "documents/"+doc.ID+"/Handboek_pompen.txt", doc.StoragePath)
	assert.True(t, doc.ReadyForIndexing)
	assert.False(t, doc.Processed)
	assert.Equal(t, models.StatusPending, doc.Status)
	assert.Equal(t, "onderhoud", doc.Department)
	require.NotNil(t, doc.MimeType)
	assert.Equal(t, "text/plain; charset=utf-8", *doc.MimeType)

	assert.Contains(t, objects.files, doc.StoragePath)
	assert.Equal(t, *doc.MimeType, objects.types[doc.StoragePath])
	assert.Same(t, doc, store.docs[doc.ID])
}

func TestRegisterRemovesUploadWhenInsertFails(t *testing.T) {
	svc, store, objects, _ := newTestService()
	store.createErr = errors.New("connection refused")

	_, err := svc.Register(context.Background(), "pompen.txt", []byte("pomp"), Tags{})
	require.Error(t, err)
	assert.Empty(t, objects.files)
	assert.Len(t, objects.removed, 1)
}

func TestRegisterRejectsEmptyInput(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Register(context.Background(), "  ", []byte("x"), Tags{})
	assert.Error(t, err)
	_, err = svc.Register(context.Background(), "leeg.txt", nil, Tags{})
	assert.Error(t, err)
}

func TestRemoveDeletesChunksBlobAndRow(t *testing.T) {
	svc, store, objects, chunks := newTestService()
	doc, err := svc.Register(context.Background(), "pompen.txt", []byte("pomp"), Tags{})
	require.NoError(t, err)

	require.NoError(t, svc.Remove(context.Background(), doc))
	assert.Equal(t, []string{doc.ID}, chunks.deleted)
	assert.Equal(t, []string{doc.StoragePath}, objects.removed)
	assert.Equal(t, []string{doc.ID}, store.deleted)

	got, err := svc.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRemoveAcceptsLegacyURL(t *testing.T) {
	svc, _, objects, _ := newTestService()
	doc := &models.Document{ID: "doc-1", StoragePath: "https://docs.s3.eu-west-1.amazonaws.com/uploads/pompen.pdf"}

	require.NoError(t, svc.Remove(context.Background(), doc))
	assert.Equal(t, []string{"uploads/pompen.pdf"}, objects.removed)
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"pompen.pdf":                "pompen.pdf",
		"Handboek pompen (v2).PDF":  "Handboek_pompen_-v2-.PDF",
		`C:\scans\Onderhoud 01.png`: "Onderhoud_01.png",
		"../../etc/passwd":          "passwd",
		"":                          "",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeFilename(in), in)
	}
}
