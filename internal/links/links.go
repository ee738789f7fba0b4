// Package links extracts the outgoing link edges of a Markdown body. The
// sync engine rebuilds a page's edges from this on every successful pull.
package links

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// Type classifies a link edge target.
type Type string

const (
	// TypeInternal targets another mirrored page by relative path.
	TypeInternal Type = "internal"
	// TypeExternal targets a URL outside the workspace.
	TypeExternal Type = "external"
	// TypeAttachment targets a file under an attachments directory.
	TypeAttachment Type = "attachment"
)

// Link is one outgoing edge found in a Markdown body.
type Link struct {
	Target string
	Type   Type
	Text   string
	Line   int
}

var parser = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Extract parses markdown and returns its link edges in document order.
// Intra-document anchors ("#section") are not edges and are skipped.
func Extract(markdown string) []Link {
	source := []byte(markdown)
	doc := parser.Parser().Parse(text.NewReader(source))

	var out []Link
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			target := string(node.Destination)
			if skipTarget(target) {
				return ast.WalkContinue, nil
			}
			out = append(out, Link{
				Target: target,
				Type:   Classify(target),
				Text:   nodeText(node, source),
				Line:   nodeLine(node, source),
			})
		case *ast.Image:
			target := string(node.Destination)
			if skipTarget(target) {
				return ast.WalkContinue, nil
			}
			out = append(out, Link{
				Target: target,
				Type:   Classify(target),
				Text:   nodeText(node, source),
				Line:   nodeLine(node, source),
			})
		case *ast.AutoLink:
			target := string(node.URL(source))
			out = append(out, Link{
				Target: target,
				Type:   TypeExternal,
				Text:   string(node.Label(source)),
				Line:   nodeLine(node, source),
			})
		}
		return ast.WalkContinue, nil
	})
	return out
}

// Classify buckets a target: URLs are external, paths inside a *.attachments
// directory are attachments, everything else is an internal page reference.
func Classify(target string) Type {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") ||
		strings.HasPrefix(target, "mailto:") || strings.HasPrefix(target, "ftp://") {
		return TypeExternal
	}
	if strings.Contains(target, ".attachments/") {
		return TypeAttachment
	}
	return TypeInternal
}

func skipTarget(target string) bool {
	return target == "" || strings.HasPrefix(target, "#")
}

func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
		}
	}
	return b.String()
}

// nodeLine returns the 1-based source line of a node, derived from the byte
// offset of its first text segment.
func nodeLine(n ast.Node, source []byte) int {
	offset := segmentStart(n)
	if offset < 0 || offset > len(source) {
		return 1
	}
	line := 1
	for _, b := range source[:offset] {
		if b == '\n' {
			line++
		}
	}
	return line
}

func segmentStart(n ast.Node) int {
	if t, ok := n.(*ast.Text); ok {
		return t.Segment.Start
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if start := segmentStart(c); start >= 0 {
			return start
		}
	}
	if n.Type() == ast.TypeBlock {
		if lines := n.Lines(); lines != nil && lines.Len() > 0 {
			return lines.At(0).Start
		}
	}
	// Inline nodes without their own segment (autolinks) fall back to the
	// enclosing block's first line.
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Type() == ast.TypeBlock {
			if lines := p.Lines(); lines != nil && lines.Len() > 0 {
				return lines.At(0).Start
			}
		}
	}
	return -1
}
