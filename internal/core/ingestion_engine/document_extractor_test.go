package ingestion_engine

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/models"
)

func zipBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("readme.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestExtractor(conv TextConverter, ocr OCR) *DocconvExtractor {
	e := NewDocconvExtractor(ocr, 100, zerolog.Nop())
	e.conv = conv
	return e
}

func TestDetectMime(t *testing.T) {
	pdf := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")

	tests := []struct {
		name    string
		buf     []byte
		file    string
		want    string
		sniffed bool
	}{
		{"pdf by content", pdf, "upload.bin", mimePDF, true},
		{"pdf content beats extension", pdf, "notes.txt", mimePDF, true},
		{"markdown refines text", []byte("# Titel\n\nSome text."), "notes.md", mimeMarkdown, true},
		{"plain text", []byte("Gewone tekst."), "notes.txt", mimeText, true},
		{"docx refines zip", zipBytes(t), "rapport.docx", mimeDocx, true},
		{"bare zip", zipBytes(t), "archive.zip", mimeZip, true},
		{"empty falls back to extension", nil, "scan.PNG", "image/png", false},
		{"nothing known", []byte{0x00, 0x01, 0x02, 0x03, 0xfe}, "blob.xyz", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, sniffed := detectMime(tt.buf, tt.file)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.sniffed, sniffed)
		})
	}
}

func TestExtractPDFWithTextLayer(t *testing.T) {
	ocr := &fakeOCR{}
	e := newTestExtractor(fakeConverter{pdfText: "  " + longText(3) + "\x00"}, ocr)

	res, err := e.Extract(context.Background(), []byte("%PDF-1.7\n"), "manual.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.KindPDF, res.Kind)
	assert.Equal(t, strings.TrimSpace(longText(3)), res.Text)
	assert.False(t, res.OCRAttempted)
	assert.Zero(t, ocr.pdfCalls)
}

func TestExtractScannedPDFUsesOCR(t *testing.T) {
	tests := []struct {
		name string
		conv fakeConverter
	}{
		{"too little text", fakeConverter{pdfText: "Page 1"}},
		{"converter error", fakeConverter{pdfErr: errors.New("pdftotext: exit status 1")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ocr := &fakeOCR{pdfText: "Gescande tekst van de pomp."}
			e := newTestExtractor(tt.conv, ocr)

			res, err := e.Extract(context.Background(), []byte("%PDF-1.4\n"), "scan.pdf")
			require.NoError(t, err)
			assert.Equal(t, models.KindPDFScan, res.Kind)
			assert.Equal(t, "Gescande tekst van de pomp.", res.Text)
			assert.True(t, res.OCRAttempted)
			assert.True(t, res.UsedOCR)
			assert.Equal(t, 1, ocr.pdfCalls)
		})
	}
}

func TestExtractOCRFailureIsNeedsOCR(t *testing.T) {
	ocr := &fakeOCR{err: errors.New("tesseract crashed")}
	e := newTestExtractor(fakeConverter{}, ocr)

	_, err := e.Extract(context.Background(), []byte("%PDF-1.4\n"), "scan.pdf")
	require.Error(t, err)
	assert.True(t, core.IsNeedsOCR(err))
	assert.Equal(t, core.CodeOCRProcessingFailed, core.CodeOf(err))
}

func TestExtractDocxFailureYieldsEmptyText(t *testing.T) {
	e := newTestExtractor(fakeConverter{docxErr: errors.New("zip: not a valid zip file")}, &fakeOCR{})

	res, err := e.Extract(context.Background(), zipBytes(t), "kapot.docx")
	require.NoError(t, err)
	assert.Equal(t, models.KindDocx, res.Kind)
	assert.Empty(t, res.Text)
}

func TestExtractPlainTextAndMarkdown(t *testing.T) {
	e := newTestExtractor(fakeConverter{}, &fakeOCR{})

	res, err := e.Extract(context.Background(), []byte("\ufeffRegel een.\nRegel twee.\n"), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, models.KindTxt, res.Kind)
	assert.Equal(t, "Regel een.\nRegel twee.", res.Text)

	res, err = e.Extract(context.Background(), []byte("# Kop\n\nInhoud."), "README.md")
	require.NoError(t, err)
	assert.Equal(t, models.KindMd, res.Kind)
}

func TestExtractImageGoesThroughOCR(t *testing.T) {
	img := pngBytes(t, 64, 64)
	ocr := &fakeOCR{imageText: "Typeplaatje pomp P-101"}
	e := newTestExtractor(fakeConverter{}, ocr)

	res, err := e.Extract(context.Background(), img, "foto.png")
	require.NoError(t, err)
	assert.Equal(t, models.KindImage, res.Kind)
	assert.Equal(t, "image/png", res.Mime)
	assert.True(t, res.UsedOCR)
	require.Len(t, ocr.images, 1)
	assert.Equal(t, img, ocr.images[0])
}

func TestExtractImageContentErrorsPassThrough(t *testing.T) {
	ocr := &fakeOCR{err: core.ContentError(core.CodeImageTooSmall, "png 8x8")}
	e := newTestExtractor(fakeConverter{}, ocr)

	_, err := e.Extract(context.Background(), pngBytes(t, 8, 8), "icon.png")
	assert.Equal(t, core.CodeImageTooSmall, core.CodeOf(err))
	assert.False(t, core.IsNeedsOCR(err))
}

func TestExtractUnsupported(t *testing.T) {
	e := newTestExtractor(fakeConverter{}, &fakeOCR{})

	_, err := e.Extract(context.Background(), zipBytes(t), "bundle.zip")
	require.Error(t, err)
	assert.Equal(t, core.KindContent, core.KindOf(err))
	assert.Equal(t, "unsupported-mime: application/zip", err.Error())

	_, err = e.Extract(context.Background(), []byte{0x00, 0x01, 0x02, 0x03, 0xfe}, "blob.xyz")
	assert.Equal(t, "unsupported-mime: .xyz", err.Error())
}
