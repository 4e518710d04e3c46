package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mixelka/docsbot/pkg/models"
)

// Matcher decides whether a mail message is the verification email we
// are waiting for. A message qualifies only if the sender predicate
// and the body predicate both hold.
type Matcher struct {
	// SenderContains matches against the sender address,
	// case-insensitive substring (typically the service domain).
	SenderContains string

	// BodyContains is a case-insensitive substring the body must have.
	BodyContains string

	// BodyPattern, if set, must also match the body.
	BodyPattern *regexp.Regexp
}

// Matches reports whether msg satisfies both predicates. The body is
// normalized from HTML first when no plain text part exists.
func (m Matcher) Matches(msg *models.MailMessage, body string) bool {
	if m.SenderContains != "" &&
		!strings.Contains(strings.ToLower(msg.FromAddr), strings.ToLower(m.SenderContains)) {
		return false
	}
	if m.BodyContains != "" &&
		!strings.Contains(strings.ToLower(body), strings.ToLower(m.BodyContains)) {
		return false
	}
	if m.BodyPattern != nil && !m.BodyPattern.MatchString(body) {
		return false
	}
	return true
}

// ExtractDigits concatenates the first n digits encountered in text,
// in order, ignoring everything else. "1 2 3 4 5 6" yields "123456".
func ExtractDigits(text string, n int) (string, error) {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			if b.Len() == n {
				return b.String(), nil
			}
		}
	}
	return "", fmt.Errorf("expected %d digits, found %d", n, b.Len())
}

// ExtractPattern returns the first capture group of re in text.
func ExtractPattern(text string, re *regexp.Regexp) (string, error) {
	match := re.FindStringSubmatch(text)
	if len(match) < 2 {
		return "", fmt.Errorf("no code matching %q", re.String())
	}
	return strings.TrimSpace(match[1]), nil
}

// OTPPattern matches a 6-digit code introduced by a code/verification
// keyword, the format used by the primary provider's emails.
var OTPPattern = regexp.MustCompile(`(?i)(?:code|verification|one.time)[\s\w]*[\s:\-]*(\d{6})\b`)
