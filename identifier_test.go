package auth_test

import (
	"strings"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-secure-auth"
)

func TestLoginIdentifier(t *testing.T) {
	id := auth.ByEmail("  Ayesha.Khan@Example.COM ")
	assert.Equal(t, auth.LoginByEmail, id.Kind)
	assert.Equal(t, "ayesha.khan@example.com", id.Value)
	assert.Equal(t, "email", id.Kind.String())

	id = auth.ByPhone(" 03001234567 ")
	assert.Equal(t, auth.LoginByPhone, id.Kind)
	assert.Equal(t, "03001234567", id.Value)
	assert.Equal(t, "phone", id.Kind.String())
}

func TestNormalizePhone(t *testing.T) {
	phone, err := auth.NormalizePhone("0300 1234567", "PK")
	require.NoError(t, err)
	assert.Equal(t, "+923001234567", phone)

	phone, err = auth.NormalizePhone("+92 300 1234567", "US")
	require.NoError(t, err)
	assert.Equal(t, "+923001234567", phone)

	_, err = auth.NormalizePhone("12", "PK")
	assert.Error(t, err)

	_, err = auth.NormalizePhone("not a number", "PK")
	assert.Error(t, err)
}

func TestRoles(t *testing.T) {
	assert.True(t, auth.RoleSuperAdmin.IsAtLeast(auth.RoleAdmin))
	assert.True(t, auth.RoleAdmin.IsAtLeast(auth.RoleAdmin))
	assert.False(t, auth.RoleUser.IsAtLeast(auth.RoleAdmin))
	assert.False(t, auth.RoleAdmin.IsAtLeast(auth.UserRole("owner")))

	role, ok := auth.ParseRole(" SUPERADMIN ")
	require.True(t, ok)
	assert.Equal(t, auth.RoleSuperAdmin, role)

	_, ok = auth.ParseRole("guest")
	assert.False(t, ok)
}

func TestPasswordRules(t *testing.T) {
	valid := []string{"Str0ng!Passw0rd", "aB3$efgh"}
	for _, pw := range valid {
		assert.NoError(t, validation.Validate(pw, auth.PasswordRules()...), pw)
	}

	invalid := []string{
		"",
		"aB3$efg",
		"alllowercase1!",
		"ALLUPPERCASE1!",
		"NoDigitsHere!",
		"NoSymbols123",
		"Aa1!" + strings.Repeat("x", 69),
	}
	for _, pw := range invalid {
		assert.Error(t, validation.Validate(pw, auth.PasswordRules()...), pw)
	}
}

func TestPasswordRulesByteLimit(t *testing.T) {
	assert.NoError(t, validation.Validate("Aa1!"+strings.Repeat("x", 68), auth.PasswordRules()...))

	// multi byte runes count by their encoded length
	assert.Error(t, validation.Validate("Aa1!"+strings.Repeat("é", 35), auth.PasswordRules()...))
}

func TestValidatePhoneRule(t *testing.T) {
	rule := validation.By(auth.ValidatePhone("PK"))

	assert.NoError(t, validation.Validate("", rule))
	assert.NoError(t, validation.Validate("03001234567", rule))
	assert.Error(t, validation.Validate("123", rule))
}

func TestRegisterUserMessageValidate(t *testing.T) {
	msg := auth.RegisterUserMessage{
		Name:     "Ayesha Khan",
		Email:    "ayesha@example.com",
		Phone:    "03001234567",
		Password: strongPassword,
		Role:     auth.RoleUser,
	}
	require.NoError(t, msg.Validate("PK"))

	bad := msg
	bad.Email = "not-an-email"
	assert.True(t, auth.IsValidationError(bad.Validate("PK")))

	bad = msg
	bad.Password = "weak"
	assert.True(t, auth.IsValidationError(bad.Validate("PK")))

	bad = msg
	bad.Role = "owner"
	assert.True(t, auth.IsValidationError(bad.Validate("PK")))
}

func TestLoginRequestValidate(t *testing.T) {
	byEmail := auth.LoginRequest{Email: "a@example.com", Password: "x"}
	require.NoError(t, byEmail.Validate())
	assert.Equal(t, auth.LoginByEmail, byEmail.Identifier().Kind)

	byPhone := auth.LoginRequest{Phone: "03001234567", Password: "x"}
	require.NoError(t, byPhone.Validate())
	assert.Equal(t, auth.LoginByPhone, byPhone.Identifier().Kind)

	assert.Error(t, auth.LoginRequest{Password: "x"}.Validate())
	assert.Error(t, auth.LoginRequest{Email: "a@example.com"}.Validate())
	assert.Error(t, auth.LoginRequest{Email: "nope", Password: "x"}.Validate())
}
