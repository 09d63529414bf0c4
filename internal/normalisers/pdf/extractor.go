// Package pdf extracts page text from PDF documents.
//
// The pdftotext tool from poppler is used when it is on the PATH. Otherwise
// a pure Go reader is used, which handles simple documents but loses layout
// on complex ones.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	gopdf "github.com/ledongthuc/pdf"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// toolName is the poppler text extraction binary.
const toolName = "pdftotext"

// pageBreak separates pages in pdftotext output.
const pageBreak = "\f"

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner runs commands with os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, err
}

// Extractor reads page text from PDF files.
type Extractor struct {
	runner   CommandRunner
	lookPath func(string) (string, error)
	readPDF  func(path string) ([]string, error)
}

// Option configures the extractor.
type Option func(*Extractor)

// WithLookPath replaces the PATH lookup for pdftotext.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(e *Extractor) {
		if fn != nil {
			e.lookPath = fn
		}
	}
}

// New creates an extractor that shells out to pdftotext.
func New(opts ...Option) *Extractor {
	return NewWithRunner(execRunner{}, opts...)
}

// NewWithRunner creates an extractor with a custom command runner.
func NewWithRunner(runner CommandRunner, opts ...Option) *Extractor {
	e := &Extractor{
		runner:   runner,
		lookPath: exec.LookPath,
		readPDF:  readPlainText,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name reports which backend Extract will use: pdftotext or pdf-go.
func (e *Extractor) Name() string {
	if e.toolAvailable() {
		return toolName
	}
	return "pdf-go"
}

// Extract returns the text of each page of the PDF at path.
func (e *Extractor) Extract(ctx context.Context, path string) (*domain.ExtractedText, error) {
	var (
		pages []string
		err   error
	)
	if e.toolAvailable() {
		pages, err = e.runTool(ctx, path)
	} else {
		pages, err = e.readPDF(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrExtractionFailed, err)
	}
	return &domain.ExtractedText{Pages: pages}, nil
}

func (e *Extractor) toolAvailable() bool {
	_, err := e.lookPath(toolName)
	return err == nil
}

func (e *Extractor) runTool(ctx context.Context, path string) ([]string, error) {
	out, err := e.runner.Run(ctx, toolName, "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w", err)
	}
	return splitPages(string(out)), nil
}

// splitPages splits pdftotext output on form feeds. The tool terminates
// every page with one, so the trailing empty piece is dropped.
func splitPages(out string) []string {
	pages := strings.Split(out, pageBreak)
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	for i, p := range pages {
		pages[i] = strings.TrimSpace(p)
	}
	return pages
}

// readPlainText extracts page text with the pure Go reader.
func readPlainText(path string) (pages []string, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, r, err := gopdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	return pages, nil
}
