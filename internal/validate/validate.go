package validate

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	reEmail  = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	reID     = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	reExpiry = regexp.MustCompile(`^(0[1-9]|1[0-2])/([0-9]{2})$`)
	reCVV    = regexp.MustCompile(`^[0-9]{3,4}$`)
	reCustom = regexp.MustCompile(`^[A-Za-z0-9 ,.'&-]{1,40}$`)
)

const maxCustomizations = 5

func Email(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) == 0 || len(s) > 100 {
		return "", false
	}
	return s, reEmail.MatchString(s)
}

// ID validates a simple resource identifier (catalog item and order ids).
func ID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reID.MatchString(s)
}

// FullName validates a displayable customer or cardholder name.
func FullName(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || len(s) > 80 {
		return "", false
	}
	return s, true
}

// Password enforces a length window on new passwords.
func Password(s string) bool {
	l := len(s)
	return l >= 6 && l <= 72
}

// Customizations trims and filters free-text drink options.
func Customizations(in []string) []string {
	var out []string
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" || !reCustom.MatchString(c) {
			continue
		}
		out = append(out, c)
		if len(out) == maxCustomizations {
			break
		}
	}
	return out
}

// CardNumber strips spaces and dashes and checks for 12 to 19 digits.
func CardNumber(s string) (string, bool) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == ' ' || r == '-':
		case '0' <= r && r <= '9':
			b.WriteRune(r)
		default:
			return "", false
		}
	}
	n := b.String()
	return n, len(n) >= 12 && len(n) <= 19
}

// Expiry parses MM/YY and reports whether the card is still valid at now.
// A card is valid through the last day of its expiry month.
func Expiry(s string, now time.Time) bool {
	m := reExpiry.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return false
	}
	month, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[2])
	end := time.Date(2000+year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	return now.UTC().Before(end)
}

func CVV(s string) bool {
	return reCVV.MatchString(strings.TrimSpace(s))
}

// Last4 returns the trailing four digits of a normalised card number.
func Last4(number string) string {
	if len(number) < 4 {
		return number
	}
	return number[len(number)-4:]
}
