package validation

import (
	"strings"
	"unicode"
)

// PasswordSymbols is the set a password must draw at least one symbol from.
const PasswordSymbols = "@$!%*?&#"

// Password checks the account password policy and returns the message for
// the first unmet requirement, or "" when the password is acceptable.
func Password(password string) string {
	if password == "" {
		return "Password is required"
	}
	if length(password) < minPasswordLen {
		return "Password must be at least 8 characters"
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case unicode.IsDigit(r) && r <= '9':
			hasDigit = true
		case strings.ContainsRune(PasswordSymbols, r):
			hasSymbol = true
		}
	}

	if !hasLower {
		return "Password must contain at least one lowercase letter"
	}
	if !hasUpper {
		return "Password must contain at least one uppercase letter"
	}
	if !hasDigit {
		return "Password must contain at least one number"
	}
	if !hasSymbol {
		return "Password must contain at least one special character (" + PasswordSymbols + ")"
	}
	return ""
}
