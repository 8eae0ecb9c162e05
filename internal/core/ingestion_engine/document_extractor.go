package ingestion_engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/logger"
	"github.com/markdave123-py/docindex/internal/models"
)

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

const (
	mimePDF      = "application/pdf"
	mimeDocx     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeText     = "text/plain"
	mimeMarkdown = "text/markdown"
	mimeZip      = "application/zip"
	mimeUnknown  = "application/octet-stream"
)

// extensionMimes is consulted only when content sniffing yields nothing.
var extensionMimes = map[string]string{
	".pdf":      mimePDF,
	".docx":     mimeDocx,
	".txt":      mimeText,
	".text":     mimeText,
	".md":       mimeMarkdown,
	".markdown": mimeMarkdown,
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".tif":      "image/tiff",
	".tiff":     "image/tiff",
	".bmp":      "image/bmp",
	".gif":      "image/gif",
	".webp":     "image/webp",
}

var imageMimes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/tiff": true,
	"image/bmp":  true,
	"image/gif":  true,
	"image/webp": true,
}

// TextConverter extracts the text layer of structured formats.
type TextConverter interface {
	PDF(r io.Reader) (string, error)
	Docx(r io.Reader) (string, error)
}

// OCR is the fallback used for scans and images.
type OCR interface {
	RecognizeImages(ctx context.Context, images [][]byte) (string, error)
	OcrPDF(ctx context.Context, pdf []byte) (string, error)
}

type docconvConverter struct{}

func (docconvConverter) PDF(r io.Reader) (string, error) {
	body, _, err := docconv.ConvertPDF(r)
	return body, err
}

func (docconvConverter) Docx(r io.Reader) (string, error) {
	body, _, err := docconv.ConvertDocx(r)
	return body, err
}

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv,
// falling back to OCR for images and PDFs without a usable text layer.
type DocconvExtractor struct {
	conv          TextConverter
	ocr           OCR
	minTextLength int
	log           zerolog.Logger
}

func NewDocconvExtractor(ocr OCR, minTextLength int, log zerolog.Logger) *DocconvExtractor {
	return &DocconvExtractor{
		conv:          docconvConverter{},
		ocr:           ocr,
		minTextLength: minTextLength,
		log:           logger.Component(log, "extractor"),
	}
}

// Extract classifies buf and returns its normalised text.
func (e *DocconvExtractor) Extract(ctx context.Context, buf []byte, filename string) (*models.ExtractionResult, error) {
	mime, sniffed := detectMime(buf, filename)
	e.log.Debug().Str("filename", filename).Str("mime", mime).Bool("sniffed", sniffed).Msg("classified document")

	switch {
	case mime == mimePDF:
		return e.extractPDF(ctx, buf)
	case mime == mimeDocx:
		return e.extractDocx(buf), nil
	case mime == mimeText:
		return &models.ExtractionResult{Kind: models.KindTxt, Mime: mime, Text: decodeText(buf)}, nil
	case mime == mimeMarkdown:
		return &models.ExtractionResult{Kind: models.KindMd, Mime: mime, Text: decodeText(buf)}, nil
	case imageMimes[mime]:
		text, err := e.ocr.RecognizeImages(ctx, [][]byte{buf})
		if err != nil {
			return nil, asOCRError(err)
		}
		text = normalizeText(text)
		return &models.ExtractionResult{
			Kind:         models.KindImage,
			Mime:         mime,
			Text:         text,
			OCRAttempted: true,
			UsedOCR:      text != "",
		}, nil
	case mime == "":
		ext := strings.ToLower(filepath.Ext(filename))
		if ext == "" {
			ext = "no extension"
		}
		return nil, core.ContentError(core.CodeUnsupportedMime, ext)
	default:
		return nil, core.ContentError(core.CodeUnsupportedMime, mime)
	}
}

func (e *DocconvExtractor) extractPDF(ctx context.Context, buf []byte) (*models.ExtractionResult, error) {
	text, err := e.conv.PDF(bytes.NewReader(buf))
	if err != nil {
		e.log.Warn().Err(err).Msg("pdf text extraction failed; treating as scan")
		text = ""
	}
	text = normalizeText(text)

	n := utf8.RuneCountInString(text)
	if n >= e.minTextLength {
		return &models.ExtractionResult{Kind: models.KindPDF, Mime: mimePDF, Text: text}, nil
	}

	e.log.Info().Int("chars", n).Int("threshold", e.minTextLength).Msg("pdf has no usable text layer; running OCR")
	ocrText, err := e.ocr.OcrPDF(ctx, buf)
	if err != nil {
		return nil, asOCRError(err)
	}
	ocrText = normalizeText(ocrText)
	return &models.ExtractionResult{
		Kind:         models.KindPDFScan,
		Mime:         mimePDF,
		Text:         ocrText,
		OCRAttempted: true,
		UsedOCR:      ocrText != "",
	}, nil
}

// extractDocx never fails: a broken file yields empty text and is flagged downstream.
func (e *DocconvExtractor) extractDocx(buf []byte) *models.ExtractionResult {
	text, err := e.conv.Docx(bytes.NewReader(buf))
	if err != nil {
		e.log.Warn().Err(err).Msg("docx extraction failed; returning empty text")
		text = ""
	}
	return &models.ExtractionResult{Kind: models.KindDocx, Mime: mimeDocx, Text: normalizeText(text)}
}

// asOCRError keeps typed errors and reclassifies anything else as an OCR processing failure.
func asOCRError(err error) error {
	if core.IsContent(err) || errors.Is(err, context.Canceled) {
		return err
	}
	return core.NeedsOcrError(core.CodeOCRProcessingFailed, "", err)
}

// detectMime sniffs the content first and falls back to the extension table.
// sniffed reports whether the content itself produced the answer.
func detectMime(buf []byte, filename string) (mime string, sniffed bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	byExt := extensionMimes[ext]

	if len(buf) > 0 {
		detected := baseMime(mimetype.Detect(buf).String())
		if detected != "" && detected != mimeUnknown {
			switch {
			case strings.HasPrefix(detected, "text/") && (byExt == mimeText || byExt == mimeMarkdown):
				return byExt, true
			case detected == mimeZip && byExt == mimeDocx:
				return mimeDocx, true
			}
			return detected, true
		}
	}
	return byExt, false
}

func baseMime(m string) string {
	base, _, _ := strings.Cut(m, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

func decodeText(buf []byte) string {
	s := strings.ToValidUTF8(string(buf), "")
	s = strings.TrimPrefix(s, "\ufeff")
	return normalizeText(s)
}

func normalizeText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}
