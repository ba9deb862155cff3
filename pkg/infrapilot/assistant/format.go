// Package assistant – format.go prepares engine replies for delivery:
// sanitize to the transport's markup subset, then chunk to its size limit.
package assistant

import (
	"regexp"
	"strings"
)

// DefaultChunkLimit is the delivery transport's per-message size limit.
const DefaultChunkLimit = 4096

// allowedTags is the inline markup the transport renders. Anything else is
// stripped rather than escaped.
var allowedTags = map[string]bool{
	"b": true, "strong": true,
	"i": true, "em": true,
	"u": true, "ins": true,
	"s": true, "strike": true, "del": true,
	"code": true, "pre": true,
	"a": true,
}

var (
	tagPattern    = regexp.MustCompile(`(?s)<[^<>]*>`)
	tagNamePat    = regexp.MustCompile(`(?i)^</?\s*([a-z][a-z0-9]*)`)
	hrefPat       = regexp.MustCompile(`(?i)href\s*=\s*"([^"]*)"`)
	brPattern     = regexp.MustCompile(`(?i)<br\s*/?\s*>`)
	pOpenPattern  = regexp.MustCompile(`(?i)<p(\s[^<>]*)?>`)
	pClosePattern = regexp.MustCompile(`(?i)</p\s*>`)
)

// Sanitize normalizes block pseudo-markup into plain newlines and restricts
// inline markup to the allowed tag set, dropping everything else including
// attributes. Runs to a fixed point: dropping a tag that sat between literal
// angle brackets exposes a new tag, so passes repeat until the text stops
// changing. Idempotent: sanitizing already-sanitized text is a no-op.
func Sanitize(text string) string {
	for {
		out := sanitizePass(text)
		if out == text {
			return out
		}
		text = out
	}
}

func sanitizePass(text string) string {
	// Block-level pseudo-markup becomes plain line structure.
	text = brPattern.ReplaceAllString(text, "\n")
	text = pOpenPattern.ReplaceAllString(text, "")
	text = pClosePattern.ReplaceAllString(text, "\n")

	// Remaining tags are either rewritten to their canonical allowed form
	// or dropped entirely.
	return tagPattern.ReplaceAllStringFunc(text, rewriteTag)
}

func rewriteTag(tag string) string {
	m := tagNamePat.FindStringSubmatch(tag)
	if m == nil {
		return ""
	}
	name := strings.ToLower(m[1])
	if !allowedTags[name] {
		return ""
	}

	closing := strings.HasPrefix(tag, "</")
	if closing {
		return "</" + name + ">"
	}
	if name == "a" {
		// Links keep their href; every other attribute is dropped.
		if href := hrefPat.FindStringSubmatch(tag); href != nil {
			return `<a href="` + href[1] + `">`
		}
		return "<a>"
	}
	return "<" + name + ">"
}

// Chunk splits text into ordered pieces of at most limit characters each.
// Boundaries are purely positional and never fall inside a multibyte
// character; concatenating the chunks reproduces the input exactly.
func Chunk(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultChunkLimit
	}
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	chunks := make([]string, 0, (len(runes)+limit-1)/limit)
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
