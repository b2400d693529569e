// Package label prepares source text for embedding as a node label in a
// flowchart description.
package label

import (
	"strings"
	"unicode/utf8"
)

// replacer maps characters that are structural in the Mermaid grammar onto
// entity codes the renderer decodes back to the original glyph.
var replacer = strings.NewReplacer(
	"\r\n", " ",
	"\n", " ",
	"\r", " ",
	"\t", " ",
	`"`, "#quot;",
	"{", "#123;",
	"}", "#125;",
	"<", "#lt;",
	">", "#gt;",
)

// Sanitize escapes text so it can sit between the quotes of a node
// declaration without breaking the surrounding diagram. The output is not
// guaranteed to be stable under repeated application, so call it once per
// label.
func Sanitize(text string) string {
	return strings.TrimSpace(replacer.Replace(text))
}

// Truncate shortens s to at most max runes, marking the cut with an
// ellipsis. A max of 0 or less disables truncation.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 3 {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-3]) + "..."
}

var unescaper = strings.NewReplacer(
	"#quot;", `"`,
	"#123;", "{",
	"#125;", "}",
	"#lt;", "<",
	"#gt;", ">",
)

// Unescape reverses the entity codes written by Sanitize, for renderers
// that quote labels their own way. Collapsed whitespace is not restored.
func Unescape(label string) string {
	return unescaper.Replace(label)
}
