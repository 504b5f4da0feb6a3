package invoker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"golang.org/x/net/html"
)

// SourceLookupFunction is the function name the model calls to consult a
// public legal source.
const SourceLookupFunction = "raadpleeg_bron"

const (
	defaultLookupTimeout = 20 * time.Second
	maxSourceBytes       = 2 << 20
	maxSourceChars       = 20000
)

var (
	ErrSourceURL     = errors.New("source url must be absolute http(s)")
	excessiveLinesRe = regexp.MustCompile(`\n{3,}`)
)

// SourceLookup fetches a web page and renders its main content as Markdown
// for the model to read.
type SourceLookup struct {
	client    *http.Client
	converter *md.Converter
}

// NewSourceLookup creates a SourceLookup. A nil client gets a default with
// a short timeout.
func NewSourceLookup(client *http.Client) *SourceLookup {
	if client == nil {
		client = &http.Client{Timeout: defaultLookupTimeout}
	}
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &SourceLookup{client: client, converter: converter}
}

// Lookup fetches rawURL and returns the Markdown rendering, truncated to a
// size the model can take as a function response.
func (l *SourceLookup) Lookup(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrSourceURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "legaldocumentflow/1.0")
	req.Header.Set("Accept", "text/html,text/plain")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %d", u, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", u, err)
	}

	var text string
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		text = string(body)
	} else {
		text, err = l.converter.ConvertString(mainContent(body))
		if err != nil {
			return "", fmt.Errorf("failed to convert %s: %w", u, err)
		}
	}

	text = strings.TrimSpace(excessiveLinesRe.ReplaceAllString(text, "\n\n"))
	if r := []rune(text); len(r) > maxSourceChars {
		text = string(r[:maxSourceChars]) + "\n\n[... ingekort ...]"
	}
	return text, nil
}

// mainContent returns the HTML of the <main> or <article> element when
// present, otherwise the body with navigation chrome removed.
func mainContent(content []byte) string {
	doc, err := html.Parse(strings.NewReader(string(content)))
	if err != nil {
		return string(content)
	}

	for _, tag := range []string{"main", "article"} {
		if n := findElement(doc, tag); n != nil {
			return render(n)
		}
	}

	removeElements(doc, "nav", "header", "footer", "aside", "script", "style", "noscript", "form", "iframe")
	if body := findElement(doc, "body"); body != nil {
		return render(body)
	}
	return render(doc)
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func removeElements(n *html.Node, tags ...string) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode {
			for _, tag := range tags {
				if c.Data == tag {
					n.RemoveChild(c)
					break
				}
			}
			if c.Parent == nil {
				continue
			}
		}
		removeElements(c, tags...)
	}
}

func render(n *html.Node) string {
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return ""
	}
	return b.String()
}
