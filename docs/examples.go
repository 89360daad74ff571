package docs

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Example is a vtrade command line quoted in a topic.
type Example struct {
	Topic string
	Line  int      // in the topic file
	Args  []string // without the leading "vtrade"
}

// Examples returns the command lines of every "bash" or "console" code block
// of every topic, readme included.
func Examples() ([]Example, error) {
	topics, err := GetAllTopics()
	if err != nil {
		return nil, err
	}
	var res []Example
	for _, topic := range append([]string{readme}, topics...) {
		content, err := docs.ReadFile(topic + ".md")
		if err != nil {
			return nil, err
		}
		res = append(res, examples(topic, content)...)
	}
	return res, nil
}

func examples(topic string, content []byte) []Example {
	var res []Example
	root := goldmark.DefaultParser().Parse(text.NewReader(content))
	ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		fcb, ok := n.(*ast.FencedCodeBlock)
		if !entering || !ok {
			return ast.WalkContinue, nil
		}
		switch string(fcb.Language(content)) {
		case "bash", "console":
		default:
			return ast.WalkSkipChildren, nil
		}
		lines := fcb.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			line := strings.TrimPrefix(strings.TrimSpace(string(seg.Value(content))), "$ ")
			args, ok := strings.CutPrefix(line, "vtrade ")
			if !ok {
				continue
			}
			res = append(res, Example{
				Topic: topic,
				Line:  lineNumber(content, seg.Start),
				Args:  split(args),
			})
		}
		return ast.WalkSkipChildren, nil
	})
	return res
}

// split splits a command line on spaces, keeping double quoted words whole.
func split(s string) []string {
	var (
		args   []string
		cur    strings.Builder
		quoted bool
		inWord bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			inWord = true
		case r == ' ' && !quoted:
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args
}

// lineNumber returns the 1-based line of offset in source. goldmark nodes
// only carry byte offsets.
func lineNumber(source []byte, offset int) int {
	return bytes.Count(source[:offset], []byte{'\n'}) + 1
}
