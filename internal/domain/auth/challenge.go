package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ChallengeTTL bounds how long a password prompt stays valid.
const ChallengeTTL = 5 * time.Minute

const challengeIssuer = "staff-portal/admin-challenge"

// ErrChallengeInvalid is returned for a missing, forged or expired seal.
var ErrChallengeInvalid = errors.New("admin challenge is invalid or expired, sign in again")

type challengeClaims struct {
	jwt.RegisteredClaims
	IsAdmin bool `json:"adm"`
}

// ChallengeSealer signs the admin challenge so the password step can only be
// reached from a challenge this server issued.
type ChallengeSealer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewChallengeSealer(secret []byte) *ChallengeSealer {
	return &ChallengeSealer{secret: secret, ttl: ChallengeTTL, now: time.Now}
}

// Seal issues a challenge token for the user.
func (s *ChallengeSealer) Seal(userID string, isAdmin bool) (string, error) {
	now := s.now()
	claims := challengeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    challengeIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		IsAdmin: isAdmin,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign challenge: %w", err)
	}
	return signed, nil
}

// Open verifies a seal and returns the challenge it carries.
func (s *ChallengeSealer) Open(seal string) (AdminChallenge, error) {
	if seal == "" {
		return AdminChallenge{}, ErrChallengeInvalid
	}
	var claims challengeClaims
	_, err := jwt.ParseWithClaims(seal, &claims,
		func(t *jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(challengeIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || claims.Subject == "" {
		return AdminChallenge{}, ErrChallengeInvalid
	}
	return AdminChallenge{UserID: claims.Subject, IsAdmin: claims.IsAdmin, Seal: seal}, nil
}
