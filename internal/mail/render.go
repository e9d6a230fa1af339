package mail

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// NoReadableContent is rendered for messages that carry neither an HTML nor
// a plain-text part, typically attachment-only mail.
const NoReadableContent = `<p class="no-readable-content">This message has no readable content.</p>`

var droppedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Iframe:   true,
	atom.Frame:    true,
	atom.Frameset: true,
	atom.Object:   true,
	atom.Embed:    true,
	atom.Applet:   true,
	atom.Base:     true,
	atom.Meta:     true,
	atom.Link:     true,
	atom.Title:    true,
}

var urlAttributes = map[string]bool{
	"href":       true,
	"src":        true,
	"action":     true,
	"formaction": true,
	"background": true,
	"lowsrc":     true,
	"poster":     true,
}

// sanitizeHTML parses src as a body fragment and re-renders it without
// active content. Unparseable input falls back to escaped text.
func sanitizeHTML(src string) string {
	container := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(src), container)
	if err != nil {
		return plainToHTML(src)
	}
	for _, n := range nodes {
		container.AppendChild(n)
	}
	scrubNode(container)

	var b strings.Builder
	for c := container.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return plainToHTML(src)
		}
	}
	return b.String()
}

func scrubNode(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch {
		case c.Type == html.CommentNode:
			n.RemoveChild(c)
		case c.Type == html.ElementNode && droppedElements[c.DataAtom]:
			n.RemoveChild(c)
		case c.Type == html.ElementNode && c.DataAtom == atom.Style && unsafeStyle(textContent(c)):
			n.RemoveChild(c)
		case c.Type == html.ElementNode:
			c.Attr = cleanAttributes(c.Attr)
			scrubNode(c)
		}
		c = next
	}
}

func cleanAttributes(attrs []html.Attribute) []html.Attribute {
	out := attrs[:0]
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		switch {
		case strings.HasPrefix(key, "on"):
			continue
		case urlAttributes[key] && unsafeURL(a.Val):
			continue
		case key == "style" && unsafeStyle(a.Val):
			continue
		}
		out = append(out, a)
	}
	return out
}

func unsafeURL(v string) bool {
	compact := strings.Map(func(r rune) rune {
		if r <= ' ' {
			return -1
		}
		return r
	}, strings.ToLower(v))
	return strings.HasPrefix(compact, "javascript:") ||
		strings.HasPrefix(compact, "vbscript:") ||
		strings.HasPrefix(compact, "data:text/html")
}

func unsafeStyle(v string) bool {
	lower := strings.ToLower(v)
	return strings.Contains(lower, "expression(") ||
		strings.Contains(lower, "javascript:") ||
		strings.Contains(lower, "behavior:")
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func plainToHTML(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return `<pre class="plain-text">` + html.EscapeString(text) + `</pre>`
}
