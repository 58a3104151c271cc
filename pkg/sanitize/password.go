package sanitize

import (
	"regexp"
	"strings"
)

// MinPasswordLength is the floor below which a password is rejected outright.
const MinPasswordLength = 12

// PasswordResult itemizes every reason a password was rejected so the user
// gets actionable feedback instead of a generic failure. Score is a rough
// 0..6 strength indicator for UI metering.
type PasswordResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
	Score   int      `json:"score"`
}

var (
	upperRe  = regexp.MustCompile(`[A-Z]`)
	lowerRe  = regexp.MustCompile(`[a-z]`)
	digitRe  = regexp.MustCompile(`[0-9]`)
	symbolRe = regexp.MustCompile(`[^A-Za-z0-9]`)
)

// PasswordStrength validates length and character-class requirements.
func PasswordStrength(password string) PasswordResult {
	var errs []string
	score := 0

	if len(password) < MinPasswordLength {
		errs = append(errs, "password must be at least 12 characters")
	} else {
		score++
	}

	checks := []struct {
		re  *regexp.Regexp
		msg string
	}{
		{upperRe, "password must contain an uppercase letter"},
		{lowerRe, "password must contain a lowercase letter"},
		{digitRe, "password must contain a digit"},
		{symbolRe, "password must contain a symbol"},
	}
	for _, c := range checks {
		if c.re.MatchString(password) {
			score++
		} else {
			errs = append(errs, c.msg)
		}
	}

	if len(password) > 16 {
		score++
	}
	if score > 6 {
		score = 6
	}

	return PasswordResult{
		IsValid: len(errs) == 0,
		Errors:  errs,
		Score:   score,
	}
}

var commonPasswordFragments = []string{
	"password", "123456", "qwerty", "admin", "letmein",
	"welcome", "monkey", "dragon", "master", "hello",
}

// HasCommonPattern reports whether the password contains a fragment from the
// usual breach-list suspects.
func HasCommonPattern(password string) bool {
	p := strings.ToLower(password)
	for _, frag := range commonPasswordFragments {
		if strings.Contains(p, frag) {
			return true
		}
	}
	return false
}

var sequentialRe = regexp.MustCompile(`(?i)(abc|bcd|cde|def|efg|fgh|ghi|hij|ijk|jkl|klm|lmn|mno|nop|opq|pqr|qrs|rst|stu|tuv|uvw|vwx|wxy|xyz|012|123|234|345|456|567|678|789)`)

// HasSequentialRun reports whether the password contains a three-character
// alphabetic or numeric run.
func HasSequentialRun(password string) bool {
	return sequentialRe.MatchString(password)
}
