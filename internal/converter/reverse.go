// Package converter translates between the remote storage format (XHTML) and
// Markdown. Forward runs on every pull, Reverse on every push; the sync
// engine treats both as opaque collaborators.
package converter

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var markdownRenderer = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(
		html.WithXHTML(),
	),
)

// Reverse converts a Markdown body to the storage format for upload.
func Reverse(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := markdownRenderer.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render markdown to storage: %w", err)
	}
	return buf.String(), nil
}
