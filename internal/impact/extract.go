// Package impact estimates how a news article may move the stocks it
// mentions.
package impact

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxArticleChars = 5000
	browserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var (
	// ErrBlockedSite means the publisher refused automated access.
	ErrBlockedSite = errors.New("this website has blocked automated access. Please copy and paste the article text directly")
	// ErrFetch wraps any other failure to retrieve an article.
	ErrFetch = errors.New("error fetching URL")
)

var whitespace = regexp.MustCompile(`\s+`)

// ExtractText downloads url and returns its visible text with scripts and
// styles removed, capped at 5000 characters.
func ExtractText(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", browserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrBlockedSite
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("%w: status %d", ErrFetch, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse article: %w", err)
	}
	return documentText(doc), nil
}

func documentText(doc *goquery.Document) string {
	doc.Find("script, style, noscript").Remove()
	// separate adjacent block text the way a browser would
	doc.Find("p, div, br, li, td, th, h1, h2, h3, h4, h5, h6, a, span").AppendHtml(" ")

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	text := whitespace.ReplaceAllString(root.Text(), " ")
	return truncate(strings.TrimSpace(text), maxArticleChars)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}
