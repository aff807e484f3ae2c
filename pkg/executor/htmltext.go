package executor

import (
	"strings"

	"golang.org/x/net/html"
)

// htmlToText strips tags and collapses whitespace, then truncates to
// maxWords whitespace-separated words (spec §4.3 step 2: "bounded
// HTML-to-text conversion... truncate to a task-specific token/word
// budget").
func htmlToText(rawHTML string, maxWords int) string {
	var sb strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))

	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			sb.WriteString(string(tokenizer.Text()))
			sb.WriteByte(' ')
		}
	}

	collapsed := strings.Join(strings.Fields(sb.String()), " ")
	return truncateWords(collapsed, maxWords)
}

func truncateWords(text string, maxWords int) string {
	if maxWords <= 0 {
		return text
	}
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ")
}
