package favicon

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DiscoverLinks returns the absolute URLs of every <link rel="icon"> or
// <link rel="shortcut icon"> in page, in document order, resolved against
// base (or the page's <base href> when present).
func DiscoverLinks(base url.URL, page []byte) ([]string, *DiscoveryError) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, &DiscoveryError{
			Message:   fmt.Sprintf("failed to parse HTML: %v", err),
			Retryable: false,
			Cause:     ErrCauseNotHTML,
		}
	}

	gqDoc := goquery.NewDocumentFromNode(doc)

	if href, ok := gqDoc.Find("base[href]").First().Attr("href"); ok {
		if parsed, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = *parsed
		}
	}

	var links []string
	gqDoc.Find("link[rel][href]").Each(func(_ int, s *goquery.Selection) {
		rel, _ := s.Attr("rel")
		if !isIconRel(rel) {
			return
		}
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		links = append(links, resolved.String())
	})
	return links, nil
}

// isIconRel accepts "icon" and "shortcut icon" in any case.
func isIconRel(rel string) bool {
	tokens := strings.Fields(strings.ToLower(rel))
	switch len(tokens) {
	case 1:
		return tokens[0] == "icon"
	case 2:
		return tokens[0] == "shortcut" && tokens[1] == "icon"
	default:
		return false
	}
}
