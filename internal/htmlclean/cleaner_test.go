package htmlclean

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean_StripsScriptsAndStyles(t *testing.T) {
	raw := `<html><head><style>.a{color:red}</style><script>alert(1)</script></head>
	<body><h1>Results</h1><noscript>enable js</noscript><p>hello</p></body></html>`

	out := New().Clean(raw)
	assert.Contains(t, out, "<h1>Results</h1>")
	assert.Contains(t, out, "hello")
	assert.NotContains(t, out, "alert(1)")
	assert.NotContains(t, out, "color:red")
	assert.NotContains(t, out, "enable js")
}

func TestClean_StripsComments(t *testing.T) {
	out := New().Clean(`<body><!-- tracking pixel --><div id="main">x</div></body>`)
	assert.NotContains(t, out, "tracking pixel")
	assert.Contains(t, out, `id="main"`)
}

func TestClean_KeepsIdentifyingAttributes(t *testing.T) {
	raw := `<input id="search" name="q" type="text" placeholder="Search"
		style="width:100px" onfocus="track()" data-reactid=".0.1" aria-label="Search box">`

	out := New().Clean(raw)
	assert.Contains(t, out, `id="search"`)
	assert.Contains(t, out, `name="q"`)
	assert.Contains(t, out, `placeholder="Search"`)
	assert.Contains(t, out, `aria-label="Search box"`)
	assert.NotContains(t, out, "style=")
	assert.NotContains(t, out, "onfocus")
	assert.NotContains(t, out, "data-reactid")
}

func TestClean_CollapsesWhitespace(t *testing.T) {
	out := New().Clean("<body><p>a</p>\n\n\n   <p>b</p>\t</body>")
	assert.NotContains(t, out, "\n")
	assert.NotContains(t, out, "  ")
}

func TestClean_DropsEmbeddedMedia(t *testing.T) {
	raw := `<body><svg><path d="M0 0"/></svg><iframe src="https://ads.example"></iframe><a href="/next">next</a></body>`
	out := New().Clean(raw)
	assert.NotContains(t, out, "svg")
	assert.NotContains(t, out, "iframe")
	assert.Contains(t, out, `href="/next"`)
}

func TestClean_ShrinksRealisticPage(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><head>")
	for i := 0; i < 50; i++ {
		b.WriteString("<script>window.__x=1;function f(){return 42}</script>")
	}
	b.WriteString("</head><body><main><a href=\"/item\">Item</a></main></body></html>")

	raw := b.String()
	out := New().Clean(raw)
	assert.Less(t, len(out), len(raw)/10)
	assert.Contains(t, out, `href="/item"`)
}
