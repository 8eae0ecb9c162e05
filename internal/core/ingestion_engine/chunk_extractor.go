package ingestion_engine

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/markdave123-py/docindex/internal/config"
	"github.com/markdave123-py/docindex/internal/models"
)

const defaultMinChunkLength = 20

// chunkNamespace seeds the deterministic chunk IDs.
var chunkNamespace = uuid.MustParse("8f6d2c1e-3b7a-5e4f-9a0c-6d1b2e3f4a5b")

// ChunkID derives the stable row ID for (docID, chunkIndex).
func ChunkID(docID string, chunkIndex int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s:%d", docID, chunkIndex))).String()
}

// Chunk splits text into sentence-aligned chunks of at most maxSize characters,
// seeding each chunk with up to overlap characters from the end of the previous one.
//
// maxSize:  target upper bound per chunk, in characters (runes).
// overlap:  characters carried over from the previous chunk (e.g., 200).
//
// A chunk may exceed maxSize by the overlap seed plus one separator, or by a
// leading fragment shorter than the minimum chunk length.
func Chunk(text string, maxSize, overlap int) []string {
	return chunkText(text, maxSize, overlap, defaultMinChunkLength)
}

func chunkText(text string, maxSize, overlap, minLen int) []string {
	if maxSize <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxSize {
		overlap = maxSize - 1
	}

	var pieces []piece
	for _, s := range splitSentences(text) {
		pieces = append(pieces, splitLong(s, maxSize)...)
	}

	var (
		chunks  []string
		current string
	)
	for _, p := range pieces {
		if current == "" {
			current = p.text
			continue
		}
		sep := " "
		if p.glued {
			sep = ""
		}
		candidate := current + sep + p.text
		// A fragment too short to stand alone rides along with the next piece.
		if utf8.RuneCountInString(candidate) <= maxSize || utf8.RuneCountInString(current) < minLen {
			current = candidate
			continue
		}

		chunks = append(chunks, current)
		if tail := overlapTail(current, overlap); tail != "" {
			current = tail + sep + p.text
		} else {
			current = p.text
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}

	out := chunks[:0]
	for _, c := range chunks {
		if utf8.RuneCountInString(c) >= minLen {
			out = append(out, c)
		}
	}
	return out
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// splitSentences breaks on runs of .!? followed by whitespace and collapses
// whitespace inside each sentence.
func splitSentences(text string) []string {
	runes := []rune(text)
	var sentences []string

	emit := func(rs []rune) {
		if s := strings.Join(strings.Fields(string(rs)), " "); s != "" {
			sentences = append(sentences, s)
		}
	}

	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		j := i
		for j+1 < len(runes) && isTerminator(runes[j+1]) {
			j++
		}
		if j+1 < len(runes) && unicode.IsSpace(runes[j+1]) {
			emit(runes[start : j+1])
			start = j + 1
		}
		i = j
	}
	emit(runes[start:])
	return sentences
}

// piece is a unit of chunk assembly. glued marks the continuation of a
// word that was hard-cut, which joins the previous piece without a space.
type piece struct {
	text  string
	glued bool
}

// splitLong cuts a sentence longer than maxSize at word boundaries.
// Single words longer than maxSize are hard-cut.
func splitLong(sentence string, maxSize int) []piece {
	if utf8.RuneCountInString(sentence) <= maxSize {
		return []piece{{text: sentence}}
	}

	var (
		out []piece
		cur piece
	)
	for _, w := range strings.Fields(sentence) {
		glued := false
		for utf8.RuneCountInString(w) > maxSize {
			if cur.text != "" {
				out = append(out, cur)
				cur = piece{}
			}
			r := []rune(w)
			out = append(out, piece{text: string(r[:maxSize]), glued: glued})
			w = string(r[maxSize:])
			glued = true
		}
		switch {
		case cur.text == "":
			cur = piece{text: w, glued: glued}
		case utf8.RuneCountInString(cur.text)+1+utf8.RuneCountInString(w) <= maxSize:
			cur.text += " " + w
		default:
			out = append(out, cur)
			cur = piece{text: w}
		}
	}
	if cur.text != "" {
		out = append(out, cur)
	}
	return out
}

// overlapTail picks the seed for the next chunk from the last overlap
// characters of chunk: the text after the last sentence boundary in that
// window, else the window minus its leading partial word, else the raw window.
func overlapTail(chunk string, overlap int) string {
	if overlap <= 0 {
		return ""
	}
	r := []rune(chunk)
	start := 0
	if len(r) > overlap {
		start = len(r) - overlap
	}
	window := r[start:]

	for i := len(window) - 2; i >= 0; i-- {
		if isTerminator(window[i]) && unicode.IsSpace(window[i+1]) {
			if tail := strings.TrimSpace(string(window[i+1:])); tail != "" {
				return tail
			}
			break
		}
	}

	midWord := start > 0 && !unicode.IsSpace(r[start-1]) && !unicode.IsSpace(window[0])
	if midWord {
		for i, c := range window {
			if unicode.IsSpace(c) {
				if tail := strings.TrimSpace(string(window[i:])); tail != "" {
					return tail
				}
				break
			}
		}
	}
	return strings.TrimSpace(string(window))
}

// ChunkDocument chunks an extraction result into rows ready for embedding.
func ChunkDocument(doc *models.Document, res *models.ExtractionResult, cfg config.IngestConfig) []models.DocumentChunk {
	texts := chunkText(res.Text, cfg.ChunkSize, cfg.ChunkOverlap, cfg.MinChunkLength)
	if len(texts) == 0 {
		return nil
	}

	// Offsets are measured against the whitespace-collapsed text the chunks were cut from.
	flat := strings.Join(strings.Fields(res.Text), " ")
	tags := doc.Tags()

	chunks := make([]models.DocumentChunk, 0, len(texts))
	from := 0
	for idx, text := range texts {
		meta := map[string]any{
			"filename":     doc.FileName,
			"storage_path": doc.StoragePath,
			"chunk_index":  idx,
			"total_chunks": len(texts),
			"kind":         string(res.Kind),
			"mime_type":    res.Mime,
			"used_ocr":     res.UsedOCR,
		}
		for k, v := range tags {
			meta[k] = v
		}
		if at := strings.Index(flat[from:], text); at >= 0 {
			byteStart := from + at
			charStart := utf8.RuneCountInString(flat[:byteStart])
			meta["char_start"] = charStart
			meta["char_end"] = charStart + utf8.RuneCountInString(text)
			from = byteStart
		}

		chunks = append(chunks, models.DocumentChunk{
			ID:         ChunkID(doc.ID, idx),
			DocumentID: doc.ID,
			ChunkIndex: idx,
			Content:    text,
			Metadata:   meta,
		})
	}
	return chunks
}
