package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// userRecordVersion is the current persisted user envelope version.
const userRecordVersion = 1

// ErrCorruptRecord is returned when a persisted user record cannot be decoded.
var ErrCorruptRecord = errors.New("corrupt user record")

// emailPattern accepts the simple local@domain.tld shape.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// User is the signed-in account as returned by the authentication endpoint.
type User struct {
	Email string `json:"email"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Validate reports whether u has the fields a session requires.
func (u *User) Validate() error {
	if u == nil {
		return errors.New("user is nil")
	}
	if !ValidEmail(u.Email) {
		return fmt.Errorf("user email %q is not a valid address", u.Email)
	}
	return nil
}

// Clone returns a copy of u, or nil.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// ValidEmail reports whether s looks like local@domain.tld.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

type userRecord struct {
	Version int   `json:"v"`
	User    *User `json:"user"`
}

// EncodeUser serializes u into the versioned envelope stored under the user key.
func EncodeUser(u *User) (string, error) {
	if err := u.Validate(); err != nil {
		return "", fmt.Errorf("domain.EncodeUser: %w", err)
	}
	data, err := json.Marshal(userRecord{Version: userRecordVersion, User: u})
	if err != nil {
		return "", fmt.Errorf("domain.EncodeUser: %w", err)
	}
	return string(data), nil
}

// DecodeUser parses a stored user envelope. Any malformed, unversioned, or
// incomplete record yields an error wrapping ErrCorruptRecord.
func DecodeUser(raw string) (*User, error) {
	var rec userRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if rec.Version != userRecordVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptRecord, rec.Version)
	}
	if err := rec.User.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return rec.User, nil
}
