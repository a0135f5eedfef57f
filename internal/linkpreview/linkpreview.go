// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package linkpreview fetches Open Graph metadata for URLs found in
// message text.
package linkpreview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	// maxResponseSize caps how much of a page is read (1 MiB).
	maxResponseSize = 1 << 20

	fetchTimeout = 5 * time.Second

	descriptionLimit = 200

	userAgent = "Mozilla/5.0 (compatible; watrans/1.0)"
)

// Preview is the extracted metadata for one URL. Error is set instead
// of the metadata fields when the page could not be previewed.
type Preview struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	SiteName    string `json:"siteName,omitempty"`
	Error       string `json:"error,omitempty"`
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>\[\](){}|\\^` + "`" + `]+`)

// ExtractURLs returns the http(s) URLs found in text, with trailing
// punctuation stripped.
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		urls = append(urls, strings.TrimRight(m, `.,!?)]};:'"`))
	}
	return urls
}

// Fetcher fetches and parses link previews.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a fetcher with a bounded request timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: fetchTimeout},
	}
}

// Fetch retrieves the page at rawURL and extracts its preview
// metadata. Unreachable or non-HTML pages yield a Preview with Error
// set rather than a Go error; only request construction fails hard.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Preview, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return &Preview{URL: rawURL, Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Preview{URL: rawURL, Error: fmt.Sprintf("HTTP %d", resp.StatusCode)}, nil
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		return &Preview{URL: rawURL, Error: "not an HTML page"}, nil
	}

	body := io.LimitReader(resp.Body, maxResponseSize)
	preview := parseMetadata(rawURL, body)
	return preview, nil
}

// parseMetadata tokenizes the document and extracts Open Graph tags,
// with Twitter Card and plain HTML fallbacks.
func parseMetadata(pageURL string, r io.Reader) *Preview {
	meta := make(map[string]string)
	var title string

	z := html.NewTokenizer(r)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}

		tok := z.Token()
		switch {
		case tok.Type == html.StartTagToken && tok.Data == "title":
			if z.Next() == html.TextToken {
				title = strings.TrimSpace(z.Token().Data)
			}

		case (tok.Type == html.StartTagToken || tok.Type == html.SelfClosingTagToken) && tok.Data == "meta":
			var key, content string
			for _, attr := range tok.Attr {
				switch attr.Key {
				case "property", "name":
					key = attr.Val
				case "content":
					content = attr.Val
				}
			}
			if key != "" && content != "" {
				if _, seen := meta[key]; !seen {
					meta[key] = strings.TrimSpace(content)
				}
			}

		case tok.Type == html.EndTagToken && tok.Data == "head":
			// Everything of interest lives in the head.
			goto done
		}
	}
done:

	p := &Preview{URL: pageURL}
	p.Title = firstOf(meta, "og:title", "twitter:title")
	if p.Title == "" {
		p.Title = title
	}
	p.Description = firstOf(meta, "og:description", "twitter:description", "description")
	p.ImageURL = firstOf(meta, "og:image", "twitter:image")
	p.SiteName = meta["og:site_name"]

	if strings.HasPrefix(p.ImageURL, "/") {
		if base, err := url.Parse(pageURL); err == nil {
			if abs, err := base.Parse(p.ImageURL); err == nil {
				p.ImageURL = abs.String()
			}
		}
	}

	if runes := []rune(p.Description); len(runes) > descriptionLimit {
		p.Description = string(runes[:descriptionLimit-3]) + "..."
	}

	return p
}

func firstOf(meta map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := meta[k]; v != "" {
			return v
		}
	}
	return ""
}
