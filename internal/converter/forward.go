package converter

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/rgonek/confluence-mirror/internal/mdfs"
)

// ForwardOptions configures storage to Markdown conversion.
type ForwardOptions struct {
	// AttachmentsDir is the page's attachments directory relative to the
	// page file, used as the target prefix for attachment references.
	AttachmentsDir string
}

// Forward converts a storage-format body to Markdown. Unknown macros degrade
// to their text content rather than failing the pull.
func Forward(storage string, opts ForwardOptions) (string, error) {
	nodes, err := html.ParseFragment(strings.NewReader(storage), bodyContext())
	if err != nil {
		return "", fmt.Errorf("parse storage body: %w", err)
	}

	w := &mdWriter{opts: opts}
	for _, n := range nodes {
		w.walk(n)
	}
	return w.finish(), nil
}

func bodyContext() *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	}
}

// mdWriter accumulates Markdown while walking the storage DOM.
type mdWriter struct {
	opts ForwardOptions
	out  strings.Builder

	listDepth int
	ordered   []bool
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

func (w *mdWriter) finish() string {
	text := w.out.String()
	text = blankRuns.ReplaceAllString(text, "\n\n")
	text = strings.TrimLeft(text, "\n")
	text = strings.TrimRight(text, " \n")
	if text == "" {
		return ""
	}
	return text + "\n"
}

func (w *mdWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.out.WriteString(collapseWhitespace(n.Data))
		return
	case html.CommentNode:
		// The HTML parser surfaces CDATA sections (code macro bodies) as
		// comments.
		if body, ok := cdataBody(n.Data); ok {
			w.out.WriteString(body)
		}
		return
	case html.ElementNode:
	default:
		w.walkChildren(n)
		return
	}

	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(n.Data[1] - '0')
		w.blankLine()
		w.out.WriteString(strings.Repeat("#", level) + " ")
		w.walkChildren(n)
		w.blankLine()
	case "p":
		w.blankLine()
		w.walkChildren(n)
		w.blankLine()
	case "br":
		w.out.WriteString("\n")
	case "hr":
		w.blankLine()
		w.out.WriteString("---")
		w.blankLine()
	case "strong", "b":
		w.out.WriteString("**")
		w.walkChildren(n)
		w.out.WriteString("**")
	case "em", "i":
		w.out.WriteString("*")
		w.walkChildren(n)
		w.out.WriteString("*")
	case "code":
		w.out.WriteString("`")
		w.walkChildren(n)
		w.out.WriteString("`")
	case "pre":
		w.blankLine()
		w.out.WriteString("```\n")
		w.out.WriteString(rawText(n))
		w.out.WriteString("\n```")
		w.blankLine()
	case "blockquote":
		w.blankLine()
		inner := renderFragment(n, w.opts)
		for _, line := range strings.Split(strings.TrimRight(inner, "\n"), "\n") {
			w.out.WriteString("> " + line + "\n")
		}
		w.blankLine()
	case "ul", "ol":
		w.listDepth++
		w.ordered = append(w.ordered, n.Data == "ol")
		if w.listDepth == 1 {
			w.blankLine()
		}
		w.walkChildren(n)
		w.ordered = w.ordered[:len(w.ordered)-1]
		w.listDepth--
		if w.listDepth == 0 {
			w.blankLine()
		}
	case "li":
		w.out.WriteString("\n" + strings.Repeat("  ", w.listDepth-1))
		if len(w.ordered) > 0 && w.ordered[len(w.ordered)-1] {
			w.out.WriteString("1. ")
		} else {
			w.out.WriteString("- ")
		}
		w.walkChildren(n)
	case "a":
		href := attr(n, "href")
		text := strings.TrimSpace(textContent(n))
		if text == "" {
			text = href
		}
		if href == "" {
			w.out.WriteString(text)
		} else {
			fmt.Fprintf(&w.out, "[%s](%s)", text, href)
		}
	case "table":
		w.blankLine()
		w.writeTable(n)
		w.blankLine()
	case "ac:link":
		w.writePageLink(n)
	case "ac:image":
		w.writeAttachmentImage(n)
	case "ac:structured-macro":
		if attr(n, "ac:name") == "code" {
			w.blankLine()
			lang := macroParam(n, "language")
			w.out.WriteString("```" + lang + "\n")
			w.out.WriteString(strings.TrimRight(plainTextBody(n), "\n"))
			w.out.WriteString("\n```")
			w.blankLine()
			return
		}
		// Unknown macro: keep its visible text.
		w.walkChildren(n)
	default:
		w.walkChildren(n)
	}
}

func (w *mdWriter) walkChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func (w *mdWriter) blankLine() {
	w.out.WriteString("\n\n")
}

// writePageLink renders an internal page reference as a relative Markdown
// link to the slugged page file.
func (w *mdWriter) writePageLink(n *html.Node) {
	title := ""
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "ri:page" {
			title = attr(c, "ri:content-title")
		}
	}
	text := strings.TrimSpace(textContent(n))
	if text == "" {
		text = title
	}
	if title == "" {
		w.out.WriteString(text)
		return
	}
	fmt.Fprintf(&w.out, "[%s](%s.md)", text, mdfs.Slugify(title))
}

func (w *mdWriter) writeAttachmentImage(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "ri:attachment" {
			filename := attr(c, "ri:filename")
			if filename == "" {
				continue
			}
			target := filename
			if w.opts.AttachmentsDir != "" {
				target = w.opts.AttachmentsDir + "/" + filename
			}
			fmt.Fprintf(&w.out, "![%s](%s)", filename, target)
			return
		}
		if c.Type == html.ElementNode && c.Data == "ri:url" {
			if value := attr(c, "ri:value"); value != "" {
				fmt.Fprintf(&w.out, "![](%s)", value)
				return
			}
		}
	}
}

func (w *mdWriter) writeTable(n *html.Node) {
	var rows [][]string
	headerSeen := false

	var collect func(*html.Node)
	collect = func(node *html.Node) {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "tr" {
				var cells []string
				for cell := c.FirstChild; cell != nil; cell = cell.NextSibling {
					if cell.Type == html.ElementNode && (cell.Data == "td" || cell.Data == "th") {
						if cell.Data == "th" {
							headerSeen = true
						}
						cells = append(cells, strings.TrimSpace(textContent(cell)))
					}
				}
				rows = append(rows, cells)
				continue
			}
			if c.Type == html.ElementNode {
				collect(c)
			}
		}
	}
	collect(n)

	if len(rows) == 0 {
		return
	}
	for i, row := range rows {
		w.out.WriteString("| " + strings.Join(row, " | ") + " |\n")
		if i == 0 && headerSeen {
			seps := make([]string, len(row))
			for j := range seps {
				seps[j] = "---"
			}
			w.out.WriteString("| " + strings.Join(seps, " | ") + " |\n")
		}
	}
}

// renderFragment renders a subtree independently, for nested block contexts
// like blockquotes.
func renderFragment(n *html.Node, opts ForwardOptions) string {
	sub := &mdWriter{opts: opts}
	sub.walkChildren(n)
	return sub.finish()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		name := a.Key
		if a.Namespace != "" {
			name = a.Namespace + ":" + a.Key
		}
		if name == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func rawText(n *html.Node) string {
	return strings.TrimRight(textContent(n), "\n")
}

// plainTextBody extracts the CDATA payload of a macro's ac:plain-text-body.
func plainTextBody(n *html.Node) string {
	var bodyNode *html.Node
	var find func(*html.Node)
	find = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == "ac:plain-text-body" {
			bodyNode = node
			return
		}
		for c := node.FirstChild; c != nil && bodyNode == nil; c = c.NextSibling {
			find(c)
		}
	}
	find(n)
	if bodyNode == nil {
		return ""
	}

	for c := bodyNode.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.CommentNode {
			if text, ok := cdataBody(c.Data); ok {
				return text
			}
		}
		if c.Type == html.TextNode && strings.TrimSpace(c.Data) != "" {
			return c.Data
		}
	}
	return ""
}

func macroParam(n *html.Node, name string) string {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "ac:parameter" && attr(c, "ac:name") == name {
			return strings.TrimSpace(textContent(c))
		}
	}
	return ""
}

func cdataBody(comment string) (string, bool) {
	if !strings.HasPrefix(comment, "[CDATA[") {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(comment, "[CDATA["), "]]"), true
}

func collapseWhitespace(text string) string {
	if strings.TrimSpace(text) == "" {
		// Inter-tag formatting whitespace carries no content; a plain
		// space between inline elements does.
		if strings.Contains(text, "\n") {
			return ""
		}
		return " "
	}
	return whitespaceRuns.ReplaceAllString(text, " ")
}

var whitespaceRuns = regexp.MustCompile(`[ \t\n\r]+`)
