// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package guard sanitizes the context sent to AI providers and filters the
// text they return.
package guard

import (
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/MadsRC/sixlab"
)

// FilteredMarker replaces prompt injection phrases.
const FilteredMarker = "[FILTERED]"

// DefaultProfanityTerms are masked when no terms are configured.
var DefaultProfanityTerms = []string{
	"damn",
	"crap",
	"shit",
	"fuck",
	"bastard",
	"asshole",
}

// DefaultInjectionPatterns match instructions that try to override the system prompt.
var DefaultInjectionPatterns = []string{
	`ignore\s+previous\s+instructions`,
	`forget\s+everything`,
	`act\s+as\s+if`,
}

// DefaultMultilineKeys name context fields whose line structure is kept.
var DefaultMultilineKeys = []string{"configuration", "history", "output"}

var octets = regexp.MustCompile(`%[a-fA-F0-9]{2}`)

// Guard cleans inbound context and outbound model text.
type Guard struct {
	profanity     *regexp.Regexp
	injection     *regexp.Regexp
	multilineKeys []string
	logger        *slog.Logger
}

// Option configures Guard behavior
type Option func(*guardOptions)

type guardOptions struct {
	profanityTerms    []string
	injectionPatterns []string
	multilineKeys     []string
	logger            *slog.Logger
}

// WithProfanityTerms replaces the masked terms. An empty list disables masking.
func WithProfanityTerms(terms ...string) Option {
	return func(o *guardOptions) {
		o.profanityTerms = terms
	}
}

// WithInjectionPatterns replaces the injection regular expressions (case-insensitive).
func WithInjectionPatterns(patterns ...string) Option {
	return func(o *guardOptions) {
		o.injectionPatterns = patterns
	}
}

// WithMultilineKeys replaces the context keys whose line breaks are preserved.
func WithMultilineKeys(keys ...string) Option {
	return func(o *guardOptions) {
		o.multilineKeys = keys
	}
}

// WithLogger sets the logger for the guard
func WithLogger(logger *slog.Logger) Option {
	return func(o *guardOptions) {
		o.logger = logger
	}
}

// New creates a Guard. Injection patterns must be valid regular expressions.
func New(options ...Option) (*Guard, error) {
	opts := guardOptions{
		profanityTerms:    DefaultProfanityTerms,
		injectionPatterns: DefaultInjectionPatterns,
		multilineKeys:     DefaultMultilineKeys,
		logger:            slog.Default(),
	}
	for _, opt := range options {
		opt(&opts)
	}

	g := &Guard{
		multilineKeys: slices.Clone(opts.multilineKeys),
		logger:        opts.logger,
	}

	if len(opts.profanityTerms) > 0 {
		quoted := make([]string, 0, len(opts.profanityTerms))
		for _, term := range opts.profanityTerms {
			if term = strings.TrimSpace(term); term != "" {
				quoted = append(quoted, regexp.QuoteMeta(term))
			}
		}
		if len(quoted) > 0 {
			re, err := regexp.Compile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
			if err != nil {
				return nil, err
			}
			g.profanity = re
		}
	}

	if len(opts.injectionPatterns) > 0 {
		re, err := regexp.Compile(`(?i)(?:` + strings.Join(opts.injectionPatterns, "|") + `)`)
		if err != nil {
			return nil, err
		}
		g.injection = re
	}

	return g, nil
}

// MustNew is New for the default configuration, which cannot fail.
func MustNew(options ...Option) *Guard {
	g, err := New(options...)
	if err != nil {
		panic(err)
	}
	return g
}

// SanitizeContext returns a cleaned copy of ctx. Strings lose HTML markup,
// control characters and percent-encoded octets, and have their whitespace
// collapsed. Values under a multiline key, including the fields of maps
// nested below one, keep their line breaks. Nested maps and slices are
// cleaned recursively; other values pass through unchanged. ctx itself is
// not modified.
func (g *Guard) SanitizeContext(ctx sixlab.Context) sixlab.Context {
	return g.sanitizeContext(ctx, false)
}

func (g *Guard) sanitizeContext(ctx sixlab.Context, multiline bool) sixlab.Context {
	if ctx == nil {
		return sixlab.Context{}
	}
	out := make(sixlab.Context, len(ctx))
	for k, v := range ctx {
		out[k] = g.sanitizeValue(v, multiline || slices.Contains(g.multilineKeys, k))
	}
	return out
}

func (g *Guard) sanitizeValue(v any, multiline bool) any {
	switch t := v.(type) {
	case string:
		if multiline {
			return SanitizeTextarea(t)
		}
		return SanitizeText(t)
	case sixlab.Context:
		return g.sanitizeContext(t, multiline)
	case map[string]any:
		return map[string]any(g.sanitizeContext(t, multiline))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = g.sanitizeValue(e, multiline)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, e := range t {
			out[i] = g.sanitizeValue(e, multiline).(string)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, e := range t {
			out[i] = map[string]any(g.sanitizeContext(e, multiline))
		}
		return out
	case []sixlab.Message:
		out := make([]sixlab.Message, len(t))
		for i, m := range t {
			out[i] = sixlab.Message{Role: SanitizeText(m.Role), Content: SanitizeTextarea(m.Content)}
		}
		return out
	default:
		return v
	}
}

// SanitizeText cleans a single-line text value.
func SanitizeText(s string) string {
	s = stripTags(s)
	s = octets.ReplaceAllString(s, "")
	s = strings.Map(dropControl, s)
	return strings.Join(strings.Fields(s), " ")
}

// SanitizeTextarea cleans a multi-line value, keeping line breaks and indentation.
func SanitizeTextarea(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = stripTags(s)
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		return dropControl(r)
	}, s)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

func dropControl(r rune) rune {
	if unicode.IsSpace(r) {
		return ' '
	}
	if unicode.IsControl(r) || r == utf8.RuneError {
		return -1
	}
	return r
}

// stripTags removes markup, dropping the bodies of script and style elements.
// Text is copied as written, so escaped entities stay escaped.
func stripTags(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed trailing tag; both end the text.
			return b.String()
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Raw())
			}
		case html.StartTagToken:
			if name, _ := z.TagName(); isRawElement(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isRawElement(name) && skip > 0 {
				skip--
			}
		}
	}
}

func isRawElement(name []byte) bool {
	switch string(name) {
	case "script", "style":
		return true
	default:
		return false
	}
}

// FilterContent masks profanity with equal-length runs of '*' and replaces
// prompt injection phrases with FilteredMarker. Both passes always run.
func (g *Guard) FilterContent(text string) string {
	return g.FilterInjections(g.MaskProfanity(text))
}

// MaskProfanity replaces every configured term, matched as a whole word and
// case-insensitively, with '*' of the same length.
func (g *Guard) MaskProfanity(text string) string {
	if g.profanity == nil {
		return text
	}
	return g.profanity.ReplaceAllStringFunc(text, func(m string) string {
		return strings.Repeat("*", utf8.RuneCountInString(m))
	})
}

// FilterInjections replaces prompt injection phrases with FilteredMarker.
func (g *Guard) FilterInjections(text string) string {
	if g.injection == nil {
		return text
	}
	filtered := g.injection.ReplaceAllLiteralString(text, FilteredMarker)
	if filtered != text {
		g.logger.Warn("Filtered prompt injection pattern from content")
	}
	return filtered
}
