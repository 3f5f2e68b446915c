package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword hashes a member account password for users.password_hash.
// cost comes from BCRYPT_COST.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches the stored hash.  Any
// error, a malformed hash included, counts as a mismatch so login answers
// the same 401 either way.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
