package rag

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"
)

const AnswerPromptTmpl = `You are an intelligent assistant. Use ONLY the provided context to answer the user's question. If the answer is not contained within the context, state that you cannot find the answer in the document.

Context:
{{.Context}}

User question: {{.Query}}`

type PromptData struct {
	Context string
	Query   string
}

var answerPrompt = template.Must(template.New("answer").Parse(AnswerPromptTmpl))

// BuildPrompt renders the answer prompt.
func BuildPrompt(context, query string) (string, error) {
	var buf bytes.Buffer
	if err := answerPrompt.Execute(&buf, PromptData{Context: context, Query: query}); err != nil {
		return "", fmt.Errorf("execute prompt template: %w", err)
	}
	return buf.String(), nil
}

// BuildContext joins matches, most similar first, with ContextDelimiter. When
// the result would exceed maxChars runes, the least similar matches are
// dropped first. The most similar match is always kept, cut to maxChars if it
// alone is too long. maxChars <= 0 disables the bound.
func BuildContext(matches []Match, maxChars int) (string, []Match) {
	if len(matches) == 0 {
		return "", nil
	}
	if maxChars <= 0 {
		return joinMatches(matches), matches
	}

	delim := utf8.RuneCountInString(ContextDelimiter)
	kept := 0
	total := 0
	for i, m := range matches {
		n := utf8.RuneCountInString(m.Content)
		if i > 0 {
			n += delim
		}
		if total+n > maxChars {
			break
		}
		total += n
		kept++
	}

	if kept == 0 {
		first := matches[0]
		first.Content = truncateRunes(first.Content, maxChars)
		return first.Content, []Match{first}
	}
	used := matches[:kept]
	return joinMatches(used), used
}

func joinMatches(matches []Match) string {
	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = m.Content
	}
	return strings.Join(parts, ContextDelimiter)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
