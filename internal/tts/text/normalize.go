// Package text provides the text preparation stages of the narration pipeline:
// normalization of extracted PDF text into canonical ASCII and splitting of
// that text into bounded chunks a speech backend can synthesize.
package text

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Regex patterns for normalization. Whitespace means the Unicode notion:
// ASCII whitespace, the information separators 0x1C-0x1F, NEL and every
// space or line/paragraph separator (NBSP, em space, thin space, ...).
const (
	spaceClass              = `[\t\n\v\f\r\x1c-\x1f\x85\p{Z}]`
	boilerplateRegexPattern = `(?i)(Scan to Download` + spaceClass + `*)+`
	danglingDashPattern     = spaceClass + `-` + spaceClass
	whitespaceRegexPattern  = spaceClass + `+`
)

// Punctuation replaced before any pattern runs.
const (
	emDash              = "—"
	leftDoubleQuote     = "“"
	rightDoubleQuote    = "”"
	leftSingleQuote     = "‘"
	rightSingleQuote    = "’"
	maxASCII            = 0x7F
	maxNormalizePasses  = 8
	singleSpace         = " "
	straightDoubleQuote = `"`
	straightSingleQuote = "'"
)

// Normalizer cleans raw extracted text into CleanText: ASCII only, single
// spaced, trimmed, smart punctuation folded and scanner boilerplate removed.
type Normalizer struct {
	boilerplatePattern  *regexp.Regexp
	danglingDashPattern *regexp.Regexp
	whitespacePattern   *regexp.Regexp
	punctuationReplacer *strings.Replacer
}

// NewNormalizer creates a Normalizer with its patterns compiled up front.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		boilerplatePattern:  regexp.MustCompile(boilerplateRegexPattern),
		danglingDashPattern: regexp.MustCompile(danglingDashPattern),
		whitespacePattern:   regexp.MustCompile(whitespaceRegexPattern),
		punctuationReplacer: strings.NewReplacer(
			emDash, "-",
			leftDoubleQuote, straightDoubleQuote, rightDoubleQuote, straightDoubleQuote,
			leftSingleQuote, straightSingleQuote, rightSingleQuote, straightSingleQuote,
		),
	}
}

var defaultNormalizer = NewNormalizer()

// Normalize cleans raw text with a shared Normalizer.
func Normalize(raw string) string {
	return defaultNormalizer.Normalize(raw)
}

// Normalize applies the cleaning steps in order. Stripping non-ASCII runes can
// bring a dash or a boilerplate phrase back together, so the pass is repeated
// until the text stops changing; this keeps Normalize idempotent.
func (n *Normalizer) Normalize(raw string) string {
	current := raw

	for range maxNormalizePasses {
		next := n.normalizeOnce(current)
		if next == current {
			return next
		}

		current = next
	}

	return current
}

func (n *Normalizer) normalizeOnce(text string) string {
	if text == "" {
		return text
	}

	// Steps 1-2: smart punctuation.
	text = n.punctuationReplacer.Replace(text)

	// Step 3: scanner watermarks.
	text = n.boilerplatePattern.ReplaceAllString(text, "")

	// Step 4: dash artifacts between words, not hyphenated words.
	text = n.danglingDashPattern.ReplaceAllString(text, singleSpace)

	// Step 5: everything outside 7-bit ASCII.
	text = stripNonASCII(text)

	// Steps 6-7. Every whitespace run is a single space by now.
	text = n.whitespacePattern.ReplaceAllString(text, singleSpace)

	return strings.Trim(text, singleSpace)
}

// stripNonASCII drops every rune above 0x7F. Invalid UTF-8 decodes to
// utf8.RuneError and is dropped as well.
func stripNonASCII(text string) string {
	var builder strings.Builder

	builder.Grow(len(text))

	for len(text) > 0 {
		r, size := utf8.DecodeRuneInString(text)
		if r <= maxASCII && r != utf8.RuneError {
			builder.WriteRune(r)
		}

		text = text[size:]
	}

	return builder.String()
}
