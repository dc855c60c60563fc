package extract

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	"sitebot/internal/document"
	"sitebot/internal/pkg/pdfextract"
)

var (
	ErrNoContent          = errors.New("no extractable content")
	ErrUnsupportedContent = errors.New("unsupported content type")
)

// Extractor fetches one URL and returns one normalized document.
type Extractor struct {
	fetcher *Fetcher
	logger  *zap.Logger
}

func NewExtractor(fetcher *Fetcher, logger *zap.Logger) *Extractor {
	return &Extractor{
		fetcher: fetcher,
		logger:  logger.Named("extractor"),
	}
}

func (e *Extractor) Extract(ctx context.Context, pageURL string) (*document.Document, error) {
	page, err := e.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := FromPage(page)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("extracted page",
		zap.String("url", pageURL),
		zap.String("title", doc.Metadata.Title),
		zap.Int("words", doc.Metadata.ContentLength))
	return doc, nil
}

// FromPage dispatches on the response content type.
func FromPage(page *Page) (*document.Document, error) {
	mediaType, _, _ := mime.ParseMediaType(page.ContentType)
	mediaType = strings.ToLower(mediaType)

	var doc *document.Document
	switch {
	case mediaType == "application/pdf" || (mediaType == "" && strings.HasSuffix(strings.ToLower(page.URL), ".pdf")):
		text, err := pdfextract.ExtractText(page.Body)
		if err != nil {
			return nil, fmt.Errorf("extract pdf %s failed: %w", page.URL, err)
		}
		doc = plainDocument(page.URL, text)
	case mediaType == "" || mediaType == "text/html" || mediaType == "application/xhtml+xml":
		var err error
		doc, err = ExtractHTML(page.URL, page.Body)
		if err != nil {
			return nil, err
		}
	case strings.HasPrefix(mediaType, "text/"):
		doc = plainDocument(page.URL, string(page.Body))
	default:
		return nil, fmt.Errorf("%w: %s for %s", ErrUnsupportedContent, mediaType, page.URL)
	}

	if doc.PageContent == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, page.URL)
	}
	return doc, nil
}

func plainDocument(source, text string) *document.Document {
	content := normalizeSpace(text)
	return &document.Document{
		PageContent: content,
		Metadata: document.Metadata{
			Source:        source,
			Title:         titleFromURL(source),
			ContentLength: CountWords(content),
		},
	}
}

func titleFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return u.Host
	}
	return base
}
