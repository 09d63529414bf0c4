// Package chunker provides a recursive text splitter with bounded chunk
// size and fixed overlap.
//
// Text is split on the first separator in the list that occurs in it
// (paragraphs, then lines, then sentences, then words, then single
// characters). Pieces that fit are merged greedily into chunks; pieces
// that do not are split again with the remaining separators.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// DefaultChunkSize is the default maximum chunk length.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default overlap between consecutive chunks.
const DefaultChunkOverlap = 200

// DefaultSeparators is the separator hierarchy, coarsest first.
// The empty separator splits between characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Ensure Processor implements the interface.
var _ driven.TextSplitter = (*Processor)(nil)

// Processor splits text into overlapping chunks.
// It implements the TextSplitter interface.
type Processor struct {
	chunkSize  int
	overlap    int
	separators []string
	length     func(string) int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the maximum chunk length.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// WithSeparators replaces the separator hierarchy.
// The empty separator is appended if missing so any text can be split.
func WithSeparators(seps []string) Option {
	return func(p *Processor) {
		if len(seps) == 0 {
			return
		}
		p.separators = append([]string(nil), seps...)
		if p.separators[len(p.separators)-1] != "" {
			p.separators = append(p.separators, "")
		}
	}
}

// WithLengthFunc sets how chunk length is measured. Defaults to runes.
func WithLengthFunc(fn func(string) int) Option {
	return func(p *Processor) {
		if fn != nil {
			p.length = fn
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: DefaultSeparators,
		length:     utf8.RuneCountInString,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// span is a half-open byte range into the text being split.
type span struct {
	start, end int
}

// Split divides text into chunks in document order.
// Empty or whitespace-only input produces no chunks.
func (p *Processor) Split(text string) []domain.TextSpan {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	spans := p.split(text, span{0, len(text)}, p.separators)

	out := make([]domain.TextSpan, 0, len(spans))
	for _, s := range spans {
		start, end := trimSpan(text, s)
		if start >= end {
			continue
		}
		out = append(out, domain.TextSpan{
			Content: text[start:end],
			Start:   start,
			End:     end,
		})
	}
	return out
}

func (p *Processor) split(text string, within span, seps []string) []span {
	sep, rest := chooseSeparator(text[within.start:within.end], seps)
	pieces := splitKeep(text, within, sep)

	var out, fitting []span
	for _, piece := range pieces {
		if p.length(text[piece.start:piece.end]) <= p.chunkSize {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			out = append(out, p.merge(text, fitting)...)
			fitting = nil
		}
		if len(rest) == 0 {
			// A single unsplittable piece longer than the limit.
			out = append(out, piece)
			continue
		}
		out = append(out, p.split(text, piece, rest)...)
	}
	if len(fitting) > 0 {
		out = append(out, p.merge(text, fitting)...)
	}
	return out
}

// merge greedily packs contiguous pieces into chunks of at most chunkSize,
// carrying trailing pieces worth at most overlap into the next chunk.
func (p *Processor) merge(text string, pieces []span) []span {
	var out, window []span
	total := 0

	for _, piece := range pieces {
		n := p.length(text[piece.start:piece.end])
		if total+n > p.chunkSize && len(window) > 0 {
			out = append(out, span{window[0].start, window[len(window)-1].end})
			for len(window) > 0 && (total > p.overlap || total+n > p.chunkSize) {
				total -= p.length(text[window[0].start:window[0].end])
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += n
	}
	if len(window) > 0 {
		out = append(out, span{window[0].start, window[len(window)-1].end})
	}
	return out
}

// chooseSeparator returns the first separator present in text and the
// finer separators after it.
func chooseSeparator(text string, seps []string) (string, []string) {
	for i, sep := range seps {
		if sep == "" || strings.Contains(text, sep) {
			return sep, seps[i+1:]
		}
	}
	return "", nil
}

// splitKeep splits within on sep, keeping each separator at the end of
// the piece it terminates so the pieces tile the range exactly.
func splitKeep(text string, within span, sep string) []span {
	var pieces []span
	if sep == "" {
		for i := within.start; i < within.end; {
			_, size := utf8.DecodeRuneInString(text[i:within.end])
			pieces = append(pieces, span{i, i + size})
			i += size
		}
		return pieces
	}

	start := within.start
	for start < within.end {
		idx := strings.Index(text[start:within.end], sep)
		if idx < 0 {
			pieces = append(pieces, span{start, within.end})
			break
		}
		end := start + idx + len(sep)
		pieces = append(pieces, span{start, end})
		start = end
	}
	return pieces
}

// trimSpan narrows s to exclude leading and trailing whitespace.
func trimSpan(text string, s span) (int, int) {
	start, end := s.start, s.end
	for start < end {
		r, size := utf8.DecodeRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		start += size
	}
	for end > start {
		r, size := utf8.DecodeLastRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		end -= size
	}
	return start, end
}
