package crypto

import (
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost 12 puts a hash around 250ms on current server hardware.
const bcryptCost = 12

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword returns nil when the password matches the stored hash.
// A malformed hash behaves like a mismatch.
func CheckPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
