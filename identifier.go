package auth

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalidPhone the number is not a valid number for its region
var ErrInvalidPhone = errors.New("invalid phone number")

// LoginKind tags how an account is looked up at login.
type LoginKind int

const (
	LoginByEmail LoginKind = iota + 1
	LoginByPhone
)

func (k LoginKind) String() string {
	switch k {
	case LoginByEmail:
		return "email"
	case LoginByPhone:
		return "phone"
	default:
		return "unknown"
	}
}

// LoginIdentifier is either an email address or a phone number.
type LoginIdentifier struct {
	Kind  LoginKind
	Value string
}

// ByEmail builds an email login identifier.
func ByEmail(email string) LoginIdentifier {
	return LoginIdentifier{Kind: LoginByEmail, Value: NormalizeEmail(email)}
}

// ByPhone builds a phone login identifier. The number is stored in E.164.
func ByPhone(phone string) LoginIdentifier {
	return LoginIdentifier{Kind: LoginByPhone, Value: strings.TrimSpace(phone)}
}

// NormalizePhone parses number in region and returns its E.164 form.
func NormalizePhone(number, region string) (string, error) {
	parsed, err := phonenumbers.Parse(strings.TrimSpace(number), region)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", ErrInvalidPhone
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}
