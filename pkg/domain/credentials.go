package domain

import (
	"strings"
	"unicode/utf8"
)

// MinPasswordLen is the shortest password accepted before contacting the server.
const MinPasswordLen = 4

// Credentials is what the login screen submits to the authentication endpoint.
type Credentials struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// ValidationError is a local, pre-network rejection of user input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidateCredentials checks the form locally. It never touches the network.
func ValidateCredentials(c Credentials) error {
	email := strings.TrimSpace(c.Email)
	if email == "" || c.Password == "" {
		return &ValidationError{Field: "form", Message: "Please fill in all fields."}
	}
	if !ValidEmail(email) {
		return &ValidationError{Field: "email", Message: "Please enter a valid email address."}
	}
	if utf8.RuneCountInString(c.Password) < MinPasswordLen {
		return &ValidationError{Field: "password", Message: "Password must be longer than 3 characters."}
	}
	return nil
}
