// Package textnorm turns escaped text payloads from the conversation
// service into display text.
package textnorm

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
)

var (
	blankRun = regexp.MustCompile(`\n{3,}`)

	errLoneSurrogate = errors.New("unpaired surrogate escape")
)

// simpleEscapes maps the single-character escapes json.dumps emits, plus
// the \N marker, to the characters they stand for.
var simpleEscapes = map[byte]string{
	'n':  "\n",
	'N':  "\n",
	't':  "\t",
	'r':  "\r",
	'b':  "\b",
	'f':  "\f",
	'"':  `"`,
	'\\': `\`,
	'/':  "/",
}

// Normalize strips one layer of matching surrounding quotes, decodes
// escapes (\uXXXX, \n and \N markers, \t, \r, \", \\) and collapses
// runs of three or more line breaks to two. Escapes are read left to
// right, so \\n is a backslash followed by n. Unknown escapes are kept as
// written. If the payload cannot be decoded the input is returned
// unmodified.
func Normalize(raw string) string {
	out, err := normalize(raw)
	if err != nil {
		return raw
	}
	return out
}

func normalize(raw string) (string, error) {
	s, err := decodeEscapes(unquote(raw))
	if err != nil {
		return "", err
	}
	return blankRun.ReplaceAllString(s, "\n\n"), nil
}

func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	first, last := s[0], s[len(s)-1]
	if first == last && (first == '"' || first == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

// decodeEscapes replaces backslash escapes in one pass, joining UTF-16
// surrogate pairs such as \ud83d\ude00 into a single rune.
func decodeEscapes(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			i++
			continue
		}

		c := s[i+1]
		if rep, ok := simpleEscapes[c]; ok {
			b.WriteString(rep)
			i += 2
			continue
		}
		if c != 'u' {
			b.WriteString(s[i : i+2])
			i += 2
			continue
		}

		r1, ok := hexEscape(s, i)
		if !ok {
			b.WriteString(s[i : i+2])
			i += 2
			continue
		}
		i += 6
		if !utf16.IsSurrogate(r1) {
			b.WriteRune(r1)
			continue
		}

		r2, ok := hexEscape(s, i)
		if !ok {
			return "", errLoneSurrogate
		}
		r := utf16.DecodeRune(r1, r2)
		if r == unicode.ReplacementChar {
			return "", errLoneSurrogate
		}
		b.WriteRune(r)
		i += 6
	}
	return b.String(), nil
}

// hexEscape reads a \uXXXX escape starting at s[i].
func hexEscape(s string, i int) (rune, bool) {
	if i+6 > len(s) || s[i] != '\\' || s[i+1] != 'u' {
		return 0, false
	}
	v, err := strconv.ParseUint(s[i+2:i+6], 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}
