// Package chunker splits documents into overlapping, structure-aware chunks.
package chunker

import (
	"strings"
	"unicode/utf8"

	"sitebot/internal/document"
)

const (
	DefaultChunkSize    = 2000
	DefaultChunkOverlap = 200
)

// defaultSeparators go from coarse to fine: paragraphs, lines, sentences,
// words, then single characters.
var defaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", "; ", " ", ""}

// Splitter is a recursive character splitter. Sizes are counted in runes.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// Option configures the splitter.
type Option func(*Splitter)

func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// WithSeparators replaces the separator hierarchy. The empty separator is
// always appended so every piece can be reduced to the chunk size.
func WithSeparators(separators ...string) Option {
	return func(s *Splitter) {
		if len(separators) == 0 {
			return
		}
		seps := make([]string, 0, len(separators)+1)
		for _, sep := range separators {
			if sep != "" {
				seps = append(seps, sep)
			}
		}
		s.separators = append(seps, "")
	}
}

func New(opts ...Option) *Splitter {
	s := &Splitter{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: defaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 4
	}
	return s
}

// SplitDocuments chunks every document in order. Each chunk carries its
// document's metadata and its position within that document.
func (s *Splitter) SplitDocuments(docs []document.Document) []document.Chunk {
	var out []document.Chunk
	for _, doc := range docs {
		for i, text := range s.SplitText(doc.PageContent) {
			out = append(out, document.Chunk{
				Index:    i,
				Content:  text,
				Metadata: doc.Metadata,
			})
		}
	}
	return out
}

// SplitText is deterministic: the same input always yields the same chunks.
func (s *Splitter) SplitText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	sep := ""
	var finer []string
	for i, candidate := range separators {
		if candidate == "" {
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			finer = separators[i+1:]
			break
		}
	}

	var out, fitting []string
	for _, piece := range splitKeepSeparator(text, sep) {
		if runeLen(piece) <= s.chunkSize {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			out = append(out, s.merge(fitting)...)
			fitting = nil
		}
		out = append(out, s.split(piece, finer)...)
	}
	if len(fitting) > 0 {
		out = append(out, s.merge(fitting)...)
	}
	return out
}

// merge packs consecutive pieces into chunks up to chunkSize, carrying up to
// overlap runes of trailing pieces into the next chunk.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var window []string
	total := 0

	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > s.chunkSize && len(window) > 0 {
			if chunk := strings.TrimSpace(strings.Join(window, "")); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for len(window) > 0 && (total > s.overlap || total+n > s.chunkSize) {
				total -= runeLen(window[0])
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += n
	}
	if chunk := strings.TrimSpace(strings.Join(window, "")); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.SplitAfter(text, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
