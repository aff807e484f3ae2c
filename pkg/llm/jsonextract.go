package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var (
	braceBlockRe    = regexp.MustCompile(`(?s)\{.*\}`)
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
	lineCommentRe   = regexp.MustCompile(`//[^\n]*`)
	blockCommentRe  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	singleKeyRe     = regexp.MustCompile(`'([^']*)'(\s*:)`)
	singleValRe     = regexp.MustCompile(`:(\s*)'([^']*)'`)
)

// ParseReply strips surrounding code fences from a raw model response,
// takes the span from the first '{' to the last '}', and decodes it to a
// map. Braces are not balanced: a reply holding several objects, or prose
// after the object that contains a '}', yields one span covering all of
// it. If strict decoding fails, a conservative cleanup pass is applied
// (comment/trailing-comma stripping, single-to-double quote
// normalization), then a jsonrepair pass as a second-chance recovery. If
// every attempt fails, the raw text is returned alongside a parse-error
// marker (spec §4.1).
func ParseReply(text string) map[string]any {
	candidate := extractBraceBlock(text)

	if reply, ok := tryUnmarshal(candidate); ok {
		return reply
	}

	cleaned := cleanJSON(candidate)
	if reply, ok := tryUnmarshal(cleaned); ok {
		return reply
	}

	if repaired, err := jsonrepair.JSONRepair(cleaned); err == nil {
		if reply, ok := tryUnmarshal(repaired); ok {
			return reply
		}
	}

	return map[string]any{
		"raw_response": text,
		"error":        "JSON parsing failed",
	}
}

func extractBraceBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	if m := braceBlockRe.FindString(text); m != "" {
		return m
	}
	return text
}

// cleanJSON applies the conservative rewrites spec §4.1 permits: trailing
// comma removal, comment stripping, and single-to-double quote
// normalization on keys and values.
func cleanJSON(s string) string {
	s = lineCommentRe.ReplaceAllString(s, "")
	s = blockCommentRe.ReplaceAllString(s, "")
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	s = singleKeyRe.ReplaceAllString(s, `"$1"$2`)
	s = singleValRe.ReplaceAllString(s, `:$1"$2"`)
	return s
}

func tryUnmarshal(s string) (map[string]any, bool) {
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, false
	}
	return out, true
}
