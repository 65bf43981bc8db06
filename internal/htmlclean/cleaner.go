// Package htmlclean reduces raw page HTML to the content-bearing subset
// worth spending planner tokens on.
package htmlclean

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// droppedTags are removed with their entire subtree. They carry styling,
// scripting or binary payloads the planner cannot act on.
var droppedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"svg":      true,
	"iframe":   true,
	"canvas":   true,
	"video":    true,
	"audio":    true,
	"source":   true,
	"picture":  true,
	"meta":     true,
	"link":     true,
	"template": true,
	"object":   true,
	"embed":    true,
}

// keptAttrs are the attributes that identify or describe an element.
// Everything else, styling and framework bookkeeping mostly, is noise.
var keptAttrs = map[string]bool{
	"id":          true,
	"class":       true,
	"name":        true,
	"type":        true,
	"value":       true,
	"href":        true,
	"placeholder": true,
	"aria-label":  true,
	"role":        true,
	"alt":         true,
	"title":       true,
	"action":      true,
	"method":      true,
	"data-testid": true,
}

// Cleaner implements schemas.Cleaner. Stateless and safe for concurrent
// use.
type Cleaner struct{}

func New() *Cleaner { return &Cleaner{} }

// Clean strips non-content markup and collapses whitespace. Input that
// does not parse is returned whitespace-collapsed rather than lost; the
// html parser is lenient enough that this is rare.
func (c *Cleaner) Clean(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return collapse(raw)
	}
	prune(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return collapse(raw)
	}
	return collapse(buf.String())
}

func prune(n *html.Node) {
	var next *html.Node
	for child := n.FirstChild; child != nil; child = next {
		next = child.NextSibling
		switch {
		case child.Type == html.CommentNode,
			child.Type == html.ElementNode && droppedTags[child.Data]:
			n.RemoveChild(child)
		default:
			prune(child)
		}
	}
	if n.Type == html.ElementNode && len(n.Attr) > 0 {
		kept := n.Attr[:0]
		for _, attr := range n.Attr {
			if keptAttrs[attr.Key] {
				kept = append(kept, attr)
			}
		}
		n.Attr = kept
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
