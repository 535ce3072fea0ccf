// Package documents turns a notice's PDF attachments into overlapping text
// chunks ready for embedding.
package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/licitaradar/licitaradar/internal/config"
	"github.com/licitaradar/licitaradar/internal/model"
	"github.com/licitaradar/licitaradar/internal/pncp"
)

// AttachmentSource lists and downloads notice attachments.
// Implemented by pncp.Client.
type AttachmentSource interface {
	ListAttachments(ctx context.Context, p model.Procurement) ([]pncp.Attachment, error)
	Download(ctx context.Context, url string, w io.Writer) error
}

// errNotPDF marks a downloaded attachment whose content is not a PDF.
var errNotPDF = errors.New("not a pdf")

// Extractor downloads PDFs into a scoped temporary directory and chunks
// their text.
type Extractor struct {
	source       AttachmentSource
	chunkSize    int
	chunkOverlap int
	tempDir      string
	logger       *slog.Logger
}

// NewExtractor creates an Extractor. Temporary files go under os.TempDir.
func NewExtractor(source AttachmentSource, cfg config.DocumentsConfig) *Extractor {
	return &Extractor{
		source:       source,
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
		logger:       slog.Default(),
	}
}

// ExtractAndChunk returns the chunks of every readable PDF attached to p,
// numbered in attachment then page order. Attachments without a known
// non-PDF extension are downloaded and kept only if their content starts
// with the PDF signature. An attachment that fails to download or parse is
// logged and skipped. The temporary directory is
// removed before returning.
func (x *Extractor) ExtractAndChunk(ctx context.Context, p model.Procurement) ([]model.DocumentChunk, error) {
	atts, err := x.source.ListAttachments(ctx, p)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(x.tempDir, "licitaradar-docs-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	now := time.Now().UTC()
	var chunks []model.DocumentChunk
	for i, a := range atts {
		if !a.MaybePDF() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(dir, fmt.Sprintf("%03d.pdf", i))
		text, err := x.fetchText(ctx, a.URL, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, errNotPDF) {
				x.logger.Debug("attachment is not a pdf", "control_number", p.ControlNumber, "file", a.Title)
				continue
			}
			x.logger.Warn("skipping attachment", "control_number", p.ControlNumber, "file", a.Title, "error", err)
			continue
		}

		for _, c := range Chunk(text, x.chunkSize, x.chunkOverlap) {
			chunks = append(chunks, model.DocumentChunk{
				ID:            uuid.New().String(),
				ControlNumber: p.ControlNumber,
				SourceFile:    a.Title,
				Position:      len(chunks),
				Text:          c,
				CreatedAt:     now,
			})
		}
	}
	return chunks, nil
}

func (x *Extractor) fetchText(ctx context.Context, url, path string) (string, error) {
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	err = x.source.Download(ctx, url, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}

	ok, err := hasPDFSignature(path)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errNotPDF
	}

	text, err := ReadPDF(path)
	if err != nil {
		return "", err
	}
	text = Normalize(text)
	if text == "" {
		return "", fmt.Errorf("no extractable text")
	}
	return text, nil
}

var pdfSignature = []byte("%PDF-")

func hasPDFSignature(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	head := make([]byte, len(pdfSignature))
	if _, err := io.ReadFull(f, head); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	return bytes.Equal(head, pdfSignature), nil
}

// ReadPDF returns the plain text of a PDF file in page order. Pages that
// fail to decode are skipped.
func ReadPDF(path string) (text string, err error) {
	// the pdf package panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("corrupt pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		t, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(t)
		b.WriteString("\n")
	}
	return b.String(), nil
}
