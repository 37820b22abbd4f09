package utils

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmptySecret is returned when asked to hash an empty password or access code.
var ErrEmptySecret = errors.New("secret must not be empty")

// HashSecret returns the bcrypt hash stored in configuration for the admin
// password or the shared driver code.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckSecret reports whether secret matches hash. An empty hash never matches.
func CheckSecret(hash, secret string) bool {
	if hash == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// IsBcryptHash reports whether value looks like a bcrypt hash rather than a plain secret.
func IsBcryptHash(value string) bool {
	if len(value) != 60 {
		return false
	}
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(value, prefix) {
			_, err := bcrypt.Cost([]byte(value))
			return err == nil
		}
	}
	return false
}
