// Package tokenizer splits source text into identifier tokens. It understands
// C-style comments and quoted strings well enough to tell where each
// identifier occurs, and derives the trigrams used for substring lookups.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Context flags record where an identifier occurs. Several flags combine
// when the same identifier occurs in different places.
const (
	InCode      uint8 = 1 << 0
	InComments  uint8 = 1 << 1
	InStrings   uint8 = 1 << 2
	InPlainText uint8 = 1 << 4
)

// Token is one identifier and its position among the identifiers of the
// text.
type Token struct {
	Term     string
	Position int
	Context  uint8
}

type state int

const (
	stateCode state = iota
	stateLineComment
	stateBlockComment
	stateString
)

// Tokenize lexes source text. Identifiers start with a letter or underscore
// and continue with letters, digits and underscores. Line comments start with
// // or #, block comments are /* */, strings are delimited by ", ' or `.
func Tokenize(text string) []Token {
	tokens := make([]Token, 0, len(text)/8)
	st := stateCode
	var quote rune
	pos := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch st {
		case stateCode:
			switch {
			case r == '/' && hasPrefix(text, i+size, '/'):
				st = stateLineComment
				i += 2
				continue
			case r == '#':
				st = stateLineComment
			case r == '/' && hasPrefix(text, i+size, '*'):
				st = stateBlockComment
				i += 2
				continue
			case r == '"' || r == '\'' || r == '`':
				st = stateString
				quote = r
			}
		case stateLineComment:
			if r == '\n' {
				st = stateCode
			}
		case stateBlockComment:
			if r == '*' && hasPrefix(text, i+size, '/') {
				st = stateCode
				i += 2
				continue
			}
		case stateString:
			switch {
			case r == '\\' && quote != '`':
				i += size
				if i < len(text) {
					_, next := utf8.DecodeRuneInString(text[i:])
					i += next
				}
				continue
			case r == quote:
				st = stateCode
			}
		}

		if isIdentStart(r) {
			end := scanIdent(text, i)
			tokens = append(tokens, Token{
				Term:     text[i:end],
				Position: pos,
				Context:  contextOf(st),
			})
			pos++
			i = end
			continue
		}
		i += size
	}
	return tokens
}

// Occurrences folds the tokens of text into identifier -> context mask. With
// fold set, identifiers are lower-cased first.
func Occurrences(text string, fold bool) map[string]uint8 {
	out := make(map[string]uint8)
	for _, tok := range Tokenize(text) {
		term := tok.Term
		if fold {
			term = strings.ToLower(term)
		}
		out[term] |= tok.Context
	}
	return out
}

// PlainText treats text as prose: every word is an InPlainText occurrence.
func PlainText(text string, fold bool) map[string]uint8 {
	out := make(map[string]uint8)
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if isIdentStart(r) {
			end := scanIdent(text, i)
			term := text[i:end]
			if fold {
				term = strings.ToLower(term)
			}
			out[term] |= InPlainText
			i = end
			continue
		}
		i += size
	}
	return out
}

// Trigrams returns the distinct trigrams of every identifier in text,
// lower-cased and packed ten bits per rune.
func Trigrams(text string) map[uint32]struct{} {
	out := make(map[uint32]struct{})
	eachTrigram(text, func(t uint32) {
		out[t] = struct{}{}
	})
	return out
}

// TrigramsOf returns the distinct trigrams of a search pattern in order of
// appearance.
func TrigramsOf(pattern string) []uint32 {
	seen := make(map[uint32]struct{})
	var out []uint32
	eachTrigram(pattern, func(t uint32) {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	})
	return out
}

func eachTrigram(text string, fn func(uint32)) {
	var window [3]rune
	n := 0
	for _, r := range text {
		if !isIdentPart(r) {
			n = 0
			continue
		}
		window[0], window[1], window[2] = window[1], window[2], unicode.ToLower(r)
		n++
		if n >= 3 {
			fn(packTrigram(window[0], window[1], window[2]))
		}
	}
}

func packTrigram(a, b, c rune) uint32 {
	return uint32(a&0x3ff)<<20 | uint32(b&0x3ff)<<10 | uint32(c&0x3ff)
}

func contextOf(st state) uint8 {
	switch st {
	case stateLineComment, stateBlockComment:
		return InComments
	case stateString:
		return InStrings
	default:
		return InCode
	}
}

func scanIdent(text string, start int) int {
	i := start
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isIdentPart(r) {
			break
		}
		i += size
	}
	return i
}

func hasPrefix(text string, i int, b byte) bool {
	return i < len(text) && text[i] == b
}

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }

func isIdentPart(r rune) bool { return isIdentStart(r) || unicode.IsDigit(r) }
