package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"slices"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/markdave123-py/docindex/internal/config"
	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/logger"
)

var _ core.OCRClient = (*gosseract.Client)(nil)

const renderDPI = 300

// PageRenderer rasterises every page of a PDF to an image.
type PageRenderer interface {
	RenderPages(ctx context.Context, pdf []byte, dpi int) ([][]byte, error)
}

// NewTesseractClient opens a gosseract client. Each call owns a fresh
// tesseract handle that must be closed.
func NewTesseractClient() (core.OCRClient, error) {
	return gosseract.NewClient(), nil
}

// TesseractFactory returns a client constructor that fails up front when the
// tessdata directory lacks one of languages. gosseract itself only loads
// language data on the first Text call.
func TesseractFactory(languages []string) func() (core.OCRClient, error) {
	return func() (core.OCRClient, error) {
		if err := checkLanguages(gosseract.GetAvailableLanguages, languages); err != nil {
			return nil, err
		}
		return NewTesseractClient()
	}
}

func checkLanguages(available func() ([]string, error), want []string) error {
	have, err := available()
	if err != nil {
		return fmt.Errorf("listing tesseract languages: %w", err)
	}
	var missing []string
	for _, lang := range want {
		if !slices.Contains(have, lang) {
			missing = append(missing, lang)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("tesseract language data missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// OCREngine recognises text in images and rendered PDF pages.
type OCREngine struct {
	newClient func() (core.OCRClient, error)
	renderer  PageRenderer
	languages []string
	minPixels int
	log       zerolog.Logger
}

func NewOCREngine(newClient func() (core.OCRClient, error), renderer PageRenderer, cfg config.IngestConfig, log zerolog.Logger) *OCREngine {
	return &OCREngine{
		newClient: newClient,
		renderer:  renderer,
		languages: cfg.OCRLanguages,
		minPixels: cfg.OCRMinImagePixels,
		log:       logger.Component(log, "ocr"),
	}
}

// RecognizeImages validates every image, then runs them through one OCR
// client and joins the non-empty page texts with blank lines.
func (e *OCREngine) RecognizeImages(ctx context.Context, images [][]byte) (string, error) {
	if len(images) == 0 {
		return "", core.NeedsOcrError(core.CodeOCRProcessingFailed, "no images", nil)
	}
	for i, img := range images {
		if err := e.validateImage(img); err != nil {
			return "", fmt.Errorf("image %d: %w", i+1, err)
		}
	}

	client, err := e.newClient()
	if err != nil {
		return "", core.NeedsOcrError(core.CodeOCRInitFailed, "", err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			e.log.Warn().Err(cerr).Msg("closing ocr client")
		}
	}()

	if err := client.SetLanguage(e.languages...); err != nil {
		return "", core.NeedsOcrError(core.CodeOCRInitFailed, strings.Join(e.languages, "+"), err)
	}

	pages := make([]string, 0, len(images))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := client.SetImageFromBytes(img); err != nil {
			return "", core.NeedsOcrError(core.CodeOCRProcessingFailed, fmt.Sprintf("image %d", i+1), err)
		}
		text, err := client.Text()
		if err != nil {
			code := core.CodeOCRProcessingFailed
			if isInitFailure(err) {
				code = core.CodeOCRInitFailed
			}
			return "", core.NeedsOcrError(code, fmt.Sprintf("image %d", i+1), err)
		}
		if text = normalizeText(text); text != "" {
			pages = append(pages, text)
		}
	}

	e.log.Debug().Int("images", len(images)).Int("with_text", len(pages)).Msg("ocr finished")
	return strings.Join(pages, "\n\n"), nil
}

// isInitFailure reports whether err comes from tesseract's lazy
// initialisation rather than from recognising the image.
func isInitFailure(err error) bool {
	return strings.Contains(err.Error(), "failed to initialize TessBaseAPI")
}

// OcrPDF renders pdf at 300 DPI and recognises the pages.
func (e *OCREngine) OcrPDF(ctx context.Context, pdf []byte) (string, error) {
	pages, err := e.renderer.RenderPages(ctx, pdf, renderDPI)
	if err != nil {
		if core.IsContent(err) || ctx.Err() != nil {
			return "", err
		}
		return "", core.NeedsOcrError(core.CodeOCRProcessingFailed, "render pdf", err)
	}
	if len(pages) == 0 {
		return "", core.NeedsOcrError(core.CodePDFNoPagesRendered, "", nil)
	}
	e.log.Info().Int("pages", len(pages)).Msg("rendered pdf for ocr")
	return e.RecognizeImages(ctx, pages)
}

func (e *OCREngine) validateImage(img []byte) error {
	if len(img) == 0 {
		return core.ContentError(core.CodeImageEmpty, "")
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return core.NeedsOcrError(core.CodeOCRProcessingFailed, "unreadable image", err)
	}
	if cfg.Width < e.minPixels || cfg.Height < e.minPixels {
		return core.ContentError(core.CodeImageTooSmall,
			fmt.Sprintf("%s %dx%d, minimum %dpx", format, cfg.Width, cfg.Height, e.minPixels))
	}
	return nil
}
