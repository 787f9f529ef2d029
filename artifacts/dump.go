package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// Dumper turns failed-spec page HTML into reviewable markdown files.
// Script and style noise is stripped before conversion so the dump shows
// what the page said, not how it was wired.
type Dumper struct {
	dir       string
	policy    *bluemonday.Policy
	converter *converter.Converter
}

// NewDumper writes page dumps under dir, creating it if needed.
func NewDumper(dir string) (*Dumper, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: mkdir dump dir: %w", err)
	}
	return &Dumper{
		dir:    dir,
		policy: bluemonday.UGCPolicy(),
		converter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}, nil
}

// DumpPage sanitizes the page HTML, converts it to markdown, and writes
// it as <name>.md. It returns the written path.
func (d *Dumper) DumpPage(name, pageHTML string) (string, error) {
	clean := d.policy.Sanitize(pageHTML)
	md, err := d.converter.ConvertString(clean)
	if err != nil {
		return "", fmt.Errorf("artifacts: convert page to markdown: %w", err)
	}

	path := filepath.Join(d.dir, name+".md")
	if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
		return "", fmt.Errorf("artifacts: write dump: %w", err)
	}
	return path, nil
}

// PageSummary extracts the page title and the text of every element
// carrying a data-testid attribute, one "testid: text" line each. It is
// the short form attached to failure logs; DumpPage keeps the long form.
func PageSummary(pageHTML string) (string, error) {
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return "", fmt.Errorf("artifacts: parse page: %w", err)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "title" {
				fmt.Fprintf(&b, "title: %s\n", nodeText(n))
			}
			for _, attr := range n.Attr {
				if attr.Key == "data-testid" {
					fmt.Fprintf(&b, "%s: %s\n", attr.Val, nodeText(n))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String(), nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
