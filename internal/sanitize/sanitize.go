// Package sanitize normalizes untrusted string input before the rest of the
// server sees it.
package sanitize

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// Field limits applied to inbound event payloads.
const (
	MaxUsernameLength = 50
	MaxRoomLength     = 50
	MaxMessageLength  = 1000
)

// strict removes every tag; bluemonday policies are safe for concurrent use.
var strict = bluemonday.StrictPolicy()

// tagPattern matches complete tags, comments and declarations. A '<' that does
// not open one of these is text and is escaped before sanitizing.
var tagPattern = regexp.MustCompile(`</?[A-Za-z][^<>]*>|<!--[\s\S]*?-->|<![^<>]*>`)

// maxPasses bounds the decode/strip loop for deeply nested entities.
const maxPasses = 16

// Clean returns raw as plain text bounded to maxLength characters.
// Anything that is not a string, or is blank after trimming, becomes "".
// Oversized input is truncated, never rejected.
func Clean(raw any, maxLength int) string {
	s, ok := raw.(string)
	if !ok {
		return ""
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.ContainsAny(s, "<&") {
		s = plainText(s)
	}

	return truncate(s, maxLength)
}

// plainText decodes entities and strips tags until the text stops changing,
// so escaped markup can never decode into a live tag on a later pass.
func plainText(s string) string {
	for range maxPasses {
		decoded := html.UnescapeString(s)
		next := strings.TrimSpace(html.UnescapeString(strict.Sanitize(escapeBareAngles(decoded))))
		if next == s {
			break
		}
		s = next
	}
	return s
}

// escapeBareAngles escapes every '<' outside a complete tag so the tokenizer
// does not swallow the rest of the text as an unterminated tag.
func escapeBareAngles(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}

	tags := tagPattern.FindAllStringIndex(s, -1)
	var b strings.Builder
	b.Grow(len(s) + 8)

	next := 0
	for i := 0; i < len(s); i++ {
		if next < len(tags) && i == tags[next][0] {
			b.WriteString(s[i:tags[next][1]])
			i = tags[next][1] - 1
			next++
			continue
		}
		if s[i] == '<' {
			b.WriteString("&lt;")
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Username cleans a username field.
func Username(raw any) string { return Clean(raw, MaxUsernameLength) }

// Room cleans a room name field.
func Room(raw any) string { return Clean(raw, MaxRoomLength) }

// Message cleans a message body.
func Message(raw any) string { return Clean(raw, MaxMessageLength) }

func truncate(s string, maxLength int) string {
	if maxLength <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLength {
		return s
	}

	n := 0
	for i := range s {
		if n == maxLength {
			return strings.TrimRightFunc(s[:i], isSpace)
		}
		n++
	}
	return s
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
