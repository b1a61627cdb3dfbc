package auth

import (
	"errors"
	"fmt"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// MaxPasswordBytes is the bcrypt input limit.
const MaxPasswordBytes = 72

var (
	errWeakPassword    = errors.New("must contain at least one lowercase letter, one uppercase letter, one number and one special character")
	errPasswordTooLong = fmt.Errorf("must be at most %d bytes long", MaxPasswordBytes)
)

// ValidatePasswordBytes rejects passwords bcrypt cannot hash.
func ValidatePasswordBytes(value any) error {
	s, _ := value.(string)
	if len(s) > MaxPasswordBytes {
		return errPasswordTooLong
	}
	return nil
}

// ValidatePasswordStrength requires a lower case letter, an upper case
// letter, a digit and a symbol.
func ValidatePasswordStrength(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}

	var lower, upper, digit, special bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}

	if !lower || !upper || !digit || !special {
		return errWeakPassword
	}
	return nil
}

// PasswordRules are the rules applied to every new password.
func PasswordRules() []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.Length(MinPasswordLength, 0),
		validation.By(ValidatePasswordBytes),
		validation.By(ValidatePasswordStrength),
	}
}

// ValidatePhone accepts numbers that are valid in region.
func ValidatePhone(region string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		if _, err := NormalizePhone(s, region); err != nil {
			return errors.New("must be a valid phone number")
		}
		return nil
	}
}

// ValidateRole accepts the known roles.
func ValidateRole(value any) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case UserRole:
		s = string(v)
	}
	if s == "" {
		return nil
	}
	if _, ok := ParseRole(s); !ok {
		return errors.New("must be one of user, admin, superAdmin")
	}
	return nil
}

// ValidateStringEquals requires the value to equal str.
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}
