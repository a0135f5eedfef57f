// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package linkpreview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{
			"two urls",
			"Check out https://example.com and http://test.org/path?query=1",
			[]string{"https://example.com", "http://test.org/path?query=1"},
		},
		{
			"trailing punctuation stripped",
			"Visit https://example.com. Also see https://test.org!",
			[]string{"https://example.com", "https://test.org"},
		},
		{
			"no urls",
			"just some plain text",
			[]string{},
		},
		{
			"url in parentheses",
			"see (https://example.com/page)",
			[]string{"https://example.com/page"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractURLs(tt.text))
		})
	}
}

func serve(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_OpenGraph(t *testing.T) {
	srv := serve(t, "text/html", `<html><head>
		<meta property="og:title" content="Example Title">
		<meta property="og:description" content="A description">
		<meta property="og:image" content="https://cdn.example.com/img.png">
		<meta property="og:site_name" content="Example">
		<title>Fallback Title</title>
	</head><body></body></html>`)

	p, err := NewFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Empty(t, p.Error)
	assert.Equal(t, "Example Title", p.Title)
	assert.Equal(t, "A description", p.Description)
	assert.Equal(t, "https://cdn.example.com/img.png", p.ImageURL)
	assert.Equal(t, "Example", p.SiteName)
}

func TestFetch_FallbackChain(t *testing.T) {
	srv := serve(t, "text/html", `<html><head>
		<meta name="twitter:title" content="Twitter Title">
		<meta name="description" content="Meta description">
		<title>Plain Title</title>
	</head></html>`)

	p, err := NewFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Twitter Title", p.Title)
	assert.Equal(t, "Meta description", p.Description)
}

func TestFetch_TitleTagFallback(t *testing.T) {
	srv := serve(t, "text/html", `<html><head><title>Only Title</title></head></html>`)

	p, err := NewFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Only Title", p.Title)
}

func TestFetch_RelativeImageMadeAbsolute(t *testing.T) {
	srv := serve(t, "text/html", `<html><head>
		<meta property="og:image" content="/static/img.png">
	</head></html>`)

	p, err := NewFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/static/img.png", p.ImageURL)
}

func TestFetch_LongDescriptionTruncated(t *testing.T) {
	long := strings.Repeat("d", 300)
	srv := serve(t, "text/html", `<html><head>
		<meta property="og:description" content="`+long+`">
	</head></html>`)

	p, err := NewFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, p.Description, 200)
	assert.True(t, strings.HasSuffix(p.Description, "..."))
}

func TestFetch_NonHTML(t *testing.T) {
	srv := serve(t, "application/json", `{"not": "html"}`)

	p, err := NewFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "not an HTML page", p.Error)
	assert.Empty(t, p.Title)
}

func TestFetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p, err := NewFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "HTTP 404", p.Error)
}

func TestFetch_Unreachable(t *testing.T) {
	p, err := NewFetcher().Fetch(context.Background(), "http://127.0.0.1:1/nothing")
	require.NoError(t, err)
	assert.NotEmpty(t, p.Error)
}
