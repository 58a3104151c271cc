// Package sanitize removes or neutralizes adversarial markup in user input.
//
// Two deliberately different operations are exposed: Text strips dangerous
// content destructively (for storage and processing), EscapeForDisplay
// preserves content but neutralizes its interpretation as markup (for
// rendering). Conflating the two either loses information or opens an
// injection hole.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultMaxLength is the length ceiling applied when callers have no
// field-specific budget.
const DefaultMaxLength = 1000

// blockTags are element names whose entire content is dangerous, not just the
// markup. Matching blocks are removed wholesale, content included. The
// patterns are generated from this list; add a name here rather than writing
// another regex.
var blockTags = []string{
	"script", "style", "iframe", "object", "embed", "applet",
	"noscript", "noembed", "noframes", "plaintext", "listing", "xmp",
	"svg", "math", "marquee", "blink", "bgsound", "keygen",
	"form", "meta", "link", "base",
}

// dangerousSchemes are URI schemes that execute or smuggle content. The whole
// URI token is removed, not just the scheme prefix, so "javascript:alert(1)"
// leaves nothing behind.
var dangerousSchemes = []string{"javascript", "vbscript", "data"}

var (
	blockRes  = compileBlockPatterns(blockTags)
	schemeRe  = compileSchemePattern(dangerousSchemes)
	anyTagRe  = regexp.MustCompile(`<[^>]*>`)
	handlerRe = regexp.MustCompile(`(?i)\bon\w+\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]*)`)
	cssExprRe = regexp.MustCompile(`(?i)expression\s*\(`)
)

func compileBlockPatterns(tags []string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, 2*len(tags))
	for _, tag := range tags {
		// Paired form with content, then any dangling open/close tags.
		res = append(res,
			regexp.MustCompile(fmt.Sprintf(`(?is)<%s\b[^>]*>.*?</%s\s*>`, tag, tag)),
			regexp.MustCompile(fmt.Sprintf(`(?i)</?%s\b[^>]*>`, tag)),
		)
	}
	return res
}

func compileSchemePattern(schemes []string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:` + strings.Join(schemes, "|") + `)\s*:\S*`)
}

// maxStripPasses bounds the fixpoint loop. Real input converges in one or two
// passes; the bound only guards pathological self-reassembling payloads.
const maxStripPasses = 8

// Text strips dangerous markup, event handlers and URI schemes from input,
// then truncates to maxLength runes. The strip loop runs to a fixpoint, so
// Text is idempotent: Text(Text(x)) == Text(x), and the output never contains
// a substring matching the dangerous-pattern set even when removal of one
// pattern reassembles another.
func Text(input string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	s := strings.TrimSpace(input)
	for i := 0; i < maxStripPasses; i++ {
		prev := s
		s = stripOnce(s)
		if s == prev {
			break
		}
	}
	s = strings.TrimSpace(s)

	if runes := []rune(s); len(runes) > maxLength {
		s = strings.TrimSpace(string(runes[:maxLength]))
	}
	return s
}

func stripOnce(s string) string {
	for _, re := range blockRes {
		s = re.ReplaceAllString(s, "")
	}
	s = anyTagRe.ReplaceAllString(s, "")
	s = handlerRe.ReplaceAllString(s, "")
	s = schemeRe.ReplaceAllString(s, "")
	s = cssExprRe.ReplaceAllString(s, "")
	return s
}

// Result reports why an input would be rejected, without mutating anything
// the caller holds. SanitizedValue is what Text would have produced, letting
// the caller choose between warning the user and auto-cleaning.
type Result struct {
	IsValid        bool     `json:"isValid"`
	Errors         []string `json:"errors"`
	SanitizedValue string   `json:"sanitizedValue"`
}

// Validate non-destructively checks input against the dangerous-pattern set
// and the length ceiling, itemizing every reason for rejection.
func Validate(input string, maxLength int) Result {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	var errs []string

	if strings.TrimSpace(input) == "" {
		return Result{
			IsValid:        false,
			Errors:         []string{"input is required"},
			SanitizedValue: "",
		}
	}

	if len([]rune(input)) > maxLength {
		errs = append(errs, fmt.Sprintf("input exceeds maximum length of %d characters", maxLength))
	}
	if anyTagRe.MatchString(input) {
		errs = append(errs, "input contains HTML markup")
	}
	if schemeRe.MatchString(input) {
		errs = append(errs, "input contains a dangerous URI scheme")
	}
	if handlerRe.MatchString(input) || cssExprRe.MatchString(input) {
		errs = append(errs, "input contains potentially dangerous content")
	}

	return Result{
		IsValid:        len(errs) == 0,
		Errors:         errs,
		SanitizedValue: Text(input, maxLength),
	}
}

// Structured recursively applies Text to every string-typed value of a nested
// key-value structure (as produced by decoding JSON), leaving numbers,
// booleans and nulls untouched. The input is not modified.
func Structured(record map[string]any) map[string]any {
	if record == nil {
		return nil
	}
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = structuredValue(v)
	}
	return out
}

func structuredValue(v any) any {
	switch t := v.(type) {
	case string:
		return Text(t, DefaultMaxLength)
	case map[string]any:
		return Structured(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = structuredValue(e)
		}
		return out
	default:
		return v
	}
}

var displayEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// EscapeForDisplay entity-escapes rather than strips. Use it when the
// original content must be shown verbatim but rendered safely.
func EscapeForDisplay(input string) string {
	return displayEscaper.Replace(input)
}

var emailCharRe = regexp.MustCompile(`[^\w@.\-]`)

// Email normalizes an address for lookup: lowercased, trimmed, stripped of
// characters that can never appear in a valid address, capped at 254 bytes.
func Email(email string) string {
	e := strings.ToLower(strings.TrimSpace(email))
	e = emailCharRe.ReplaceAllString(e, "")
	if len(e) > 254 {
		e = e[:254]
	}
	return e
}

var emailShapeRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether email has a plausible address shape and length.
func ValidEmail(email string) bool {
	return len(email) >= 5 && len(email) <= 254 && emailShapeRe.MatchString(email)
}

var nameCharsRe = regexp.MustCompile(`^[a-zA-Z\s\-'.]+$`)

// ValidName reports whether a display name is 2..100 characters of letters,
// spaces and common name punctuation after sanitization. Oversize names are
// rejected, not truncated into validity.
func ValidName(name string) bool {
	if len([]rune(name)) > 100 {
		return false
	}
	n := Text(name, 100)
	return len(n) >= 2 && nameCharsRe.MatchString(n)
}
