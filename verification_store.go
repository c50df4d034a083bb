package zkauth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	registerCodeKeyPrefix      = "vc"
	resetCodeKeyPrefix         = "rc"
	verificationTokenKeyPrefix = "vt"
)

var (
	errCodeNotFound                 = errors.New("verification code not found")
	errCodeMismatch                 = errors.New("verification code mismatch")
	errVerificationTokenNotFound    = errors.New("verification token not found")
	errVerificationRedisUnavailable = errors.New("verification redis unavailable")
)

// emailVerificationStore holds the short-lived email ownership proofs:
// numeric codes delivered over email (registration and password reset)
// and the opaque verification token minted once a registration code
// checks out. Codes are stored as SHA-256 digests keyed by email; tokens
// map token -> email and are single-use.
type emailVerificationStore struct {
	redis  *redis.Client
	prefix string
}

func newEmailVerificationStore(redisClient *redis.Client, prefix string) *emailVerificationStore {
	return &emailVerificationStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *emailVerificationStore) codeKey(kind, email string) string {
	return s.prefix + ":" + kind + ":" + email
}

func (s *emailVerificationStore) tokenKey(token string) string {
	return s.prefix + ":" + verificationTokenKeyPrefix + ":" + token
}

// SaveRegisterCode stores the registration code for the email. Requesting
// a new code replaces any pending one.
func (s *emailVerificationStore) SaveRegisterCode(ctx context.Context, email, code string, ttl time.Duration) error {
	return s.saveCode(ctx, registerCodeKeyPrefix, email, code, ttl)
}

// SaveResetCode stores the password reset code for the email.
func (s *emailVerificationStore) SaveResetCode(ctx context.Context, email, code string, ttl time.Duration) error {
	return s.saveCode(ctx, resetCodeKeyPrefix, email, code, ttl)
}

func (s *emailVerificationStore) saveCode(ctx context.Context, kind, email, code string, ttl time.Duration) error {
	digest := sha256.Sum256([]byte(code))
	if err := s.redis.Set(ctx, s.codeKey(kind, email), digest[:], ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errVerificationRedisUnavailable, err)
	}
	return nil
}

// ConsumeRegisterCode validates and deletes the registration code.
func (s *emailVerificationStore) ConsumeRegisterCode(ctx context.Context, email, code string) error {
	return s.consumeCode(ctx, registerCodeKeyPrefix, email, code)
}

// ConsumeResetCode validates and deletes the password reset code.
func (s *emailVerificationStore) ConsumeResetCode(ctx context.Context, email, code string) error {
	return s.consumeCode(ctx, resetCodeKeyPrefix, email, code)
}

// consumeCode deletes the stored digest whether or not the provided code
// matches: one guess per delivered code.
func (s *emailVerificationStore) consumeCode(ctx context.Context, kind, email, code string) error {
	stored, err := s.redis.GetDel(ctx, s.codeKey(kind, email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return errCodeNotFound
		}
		return fmt.Errorf("%w: %v", errVerificationRedisUnavailable, err)
	}

	digest := sha256.Sum256([]byte(code))
	if subtle.ConstantTimeCompare(stored, digest[:]) != 1 {
		return errCodeMismatch
	}

	return nil
}

// SaveVerificationToken records a token -> email binding.
func (s *emailVerificationStore) SaveVerificationToken(ctx context.Context, token, email string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.tokenKey(token), email, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errVerificationRedisUnavailable, err)
	}
	return nil
}

// ConsumeVerificationToken resolves and deletes the token, returning the
// email it was minted for. Single use: a second consume of the same token
// fails even inside the TTL window.
func (s *emailVerificationStore) ConsumeVerificationToken(ctx context.Context, token string) (string, error) {
	email, err := s.redis.GetDel(ctx, s.tokenKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", errVerificationTokenNotFound
		}
		return "", fmt.Errorf("%w: %v", errVerificationRedisUnavailable, err)
	}
	return email, nil
}
