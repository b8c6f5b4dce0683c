// Package extract renders web pages and pulls their links and readable text.
package extract

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

// Content is the readable part of a page.
type Content struct {
	URL   string
	Title string
	Text  string
}

type Extractor struct {
	renderer Renderer
	policy   *bluemonday.Policy
	md       *converter.Converter
	logger   *slog.Logger
}

func New(renderer Renderer, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		renderer: renderer,
		policy:   bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		logger: logger.With("component", "extractor"),
	}
}

// ExtractLinks renders url and returns the absolute links found on it.
func (e *Extractor) ExtractLinks(ctx context.Context, url string) ([]string, error) {
	p, err := e.load(ctx, url)
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "links extracted", "url", url, "count", len(p.links))
	return p.links, nil
}

// ExtractContent renders url and returns its title and visible text as
// whitespace-normalized Markdown.
func (e *Extractor) ExtractContent(ctx context.Context, url string) (*Content, error) {
	p, err := e.load(ctx, url)
	if err != nil {
		return nil, err
	}

	text, err := e.toMarkdown(p.body, url)
	if err != nil {
		return nil, RenderError(url, err)
	}

	title := p.title
	if title == "" {
		title = url
	}

	e.logger.InfoContext(ctx, "content extracted", "url", url, "title", title, "length", len(text))
	return &Content{URL: url, Title: title, Text: text}, nil
}

func (e *Extractor) Close() error {
	return e.renderer.Close()
}

func (e *Extractor) load(ctx context.Context, url string) (*page, error) {
	raw, err := e.renderer.Render(ctx, url)
	if err != nil {
		return nil, err
	}
	p, err := parsePage(raw, url)
	if err != nil {
		return nil, RenderError(url, err)
	}
	return p, nil
}

func (e *Extractor) toMarkdown(body, url string) (string, error) {
	safe := e.policy.Sanitize(body)
	if strings.TrimSpace(safe) == "" {
		return "", nil
	}
	md, err := e.md.ConvertString(safe, converter.WithDomain(url))
	if err != nil {
		return "", err
	}
	return NormalizeWhitespace(md), nil
}

var (
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// NormalizeWhitespace trims line ends and collapses runs of blank lines to
// one, leaving indentation inside lines alone so code blocks survive.
func NormalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = trailingSpace.ReplaceAllString(s, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
