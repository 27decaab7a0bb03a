package document

import (
	"math"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// DefaultWordsPerMinute is the reading speed used when none is configured.
const DefaultWordsPerMinute = 200

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))

// BodyStats counts the words of the rendered body text (markup, link targets
// and code blocks excluded) and estimates reading time in minutes, rounded to
// one decimal.
func BodyStats(body []string, wpm int) (words int, readingTime float64) {
	if wpm <= 0 {
		wpm = DefaultWordsPerMinute
	}
	content := []byte(strings.Join(body, "\n"))
	if len(strings.TrimSpace(string(content))) == 0 {
		return 0, 0
	}

	doc := markdown.Parser().Parse(text.NewReader(content))
	words = len(strings.Fields(plainText(doc, content)))
	readingTime = math.Round(float64(words)/float64(wpm)*10) / 10
	return words, readingTime
}

// plainText collects the text segments under node, separating blocks and
// soft line breaks with whitespace.
func plainText(node ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				b.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			b.Write(v.Segment.Value(source))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
