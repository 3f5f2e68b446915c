package utils // package utils provides helper functions for token creation and password hashing

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and verifying signed tokens
)

// AccessToken represents a signed JWT access token along with its expiry.
// Access tokens are short-lived and sent in the Authorization header when
// calling protected endpoints.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// Identity is what an access token says about its bearer.  BorrowerID is
// nil for accounts that are not linked to a library member record.
type Identity struct {
	UserID     uint64
	Role       string
	BorrowerID *uint64
}

// ErrInvalidToken is returned for tokens that fail signature, expiry or
// claim checks.
var ErrInvalidToken = errors.New("invalid token")

// NewAccessToken builds and signs an HS256 JWT.  The claims are subject
// (sub), role, the optional borrower id (bid), expiration (exp) and issued
// at (iat).
func NewAccessToken(secret string, id Identity, ttlMin int) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(id.UserID, 10),
		"role": id.Role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	if id.BorrowerID != nil {
		claims["bid"] = strconv.FormatUint(*id.BorrowerID, 10)
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw with secret and extracts the identity.
// Only HMAC signing methods are accepted.
func ParseAccessToken(secret, raw string) (Identity, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	uid, ok := claimUint(claims["sub"])
	if !ok || uid == 0 {
		return Identity{}, ErrInvalidToken
	}
	role, _ := claims["role"].(string)
	if role == "" {
		return Identity{}, ErrInvalidToken
	}
	id := Identity{UserID: uid, Role: role}
	if v, present := claims["bid"]; present {
		bid, ok := claimUint(v)
		if !ok {
			return Identity{}, ErrInvalidToken
		}
		id.BorrowerID = &bid
	}
	return id, nil
}

// claimUint accepts numeric claims encoded either as JSON numbers or as
// decimal strings.
func claimUint(v interface{}) (uint64, bool) {
	switch t := v.(type) {
	case float64:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case string:
		n, err := strconv.ParseUint(t, 10, 64)
		return n, err == nil
	}
	return 0, false
}
