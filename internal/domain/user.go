// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const (
	MaxIdentityLen = 64
	MaxNameLen     = 64
)

var (
	ErrNameTooLong = errors.New("display name too long")
	ErrNameEmpty   = errors.New("display name empty")
)

// Identity is the opaque stable id of an authenticated participant.
// Always transmitted as a string; normalize before comparison.
type Identity string

type User struct {
	ID   Identity `json:"id"`
	Name string   `json:"name"`
}

func NewUser(id Identity, name string) (*User, error) {
	if name == "" {
		return nil, ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return nil, ErrNameTooLong
	}
	return &User{ID: id, Name: name}, nil
}

func (u *User) SetName(name string) error {
	if name == "" {
		return ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	u.Name = name
	return nil
}
