package zkauth

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix       = "ses"
	revocationKeyPrefix    = "rvk"
	sessionRecordVersionV1 = 1
)

var (
	errSessionNotFound         = errors.New("session record not found")
	errSessionRedisUnavailable = errors.New("session redis unavailable")
)

// sessionRecord mirrors an issued token for introspection and listing.
// The token itself is the source of truth; the record exists so revocation
// and device bookkeeping can find live sessions by jti.
type sessionRecord struct {
	AccountID         string
	DeviceFingerprint string
	IssuedAt          int64
}

// sessionStore keeps per-jti session records and the revocation set. A
// revoked jti stays listed until the token it names would have expired;
// after that the JWT's own exp claim rejects it.
type sessionStore struct {
	redis  *redis.Client
	prefix string
}

func newSessionStore(redisClient *redis.Client, prefix string) *sessionStore {
	return &sessionStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *sessionStore) sessionKey(jti string) string {
	return s.prefix + ":" + sessionKeyPrefix + ":" + jti
}

func (s *sessionStore) revocationKey(jti string) string {
	return s.prefix + ":" + revocationKeyPrefix + ":" + jti
}

// Save describes the save operation and its observable behavior.
//
// Save may return an error when input validation, dependency calls, or security checks fail.
// Save does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *sessionStore) Save(ctx context.Context, jti string, record *sessionRecord, ttl time.Duration) error {
	encoded, err := encodeSessionRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.sessionKey(jti), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errSessionRedisUnavailable, err)
	}

	return nil
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
// Get does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *sessionStore) Get(ctx context.Context, jti string) (*sessionRecord, error) {
	data, err := s.redis.Get(ctx, s.sessionKey(jti)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", errSessionRedisUnavailable, err)
	}

	return decodeSessionRecord(data)
}

// Delete describes the delete operation and its observable behavior.
//
// Delete may return an error when input validation, dependency calls, or security checks fail.
// Delete does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *sessionStore) Delete(ctx context.Context, jti string) error {
	if err := s.redis.Del(ctx, s.sessionKey(jti)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errSessionRedisUnavailable, err)
	}
	return nil
}

// Revoke marks the jti revoked for ttl, which callers set to the remaining
// token lifetime.
func (s *sessionStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, s.revocationKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errSessionRedisUnavailable, err)
	}
	return nil
}

// IsRevoked describes the isrevoked operation and its observable behavior.
//
// IsRevoked may return an error when input validation, dependency calls, or security checks fail.
// IsRevoked does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *sessionStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.revocationKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errSessionRedisUnavailable, err)
	}
	return n > 0, nil
}

func encodeSessionRecord(record *sessionRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt); err != nil {
		return nil, err
	}

	for _, field := range []string{record.AccountID, record.DeviceFingerprint} {
		if len(field) > 65535 {
			return nil, errors.New("session record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeSessionRecord(data []byte) (*sessionRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionRecordVersionV1 {
		return nil, errors.New("invalid session record version")
	}

	record := &sessionRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, err
	}

	fields := make([]string, 2)
	for i := range fields {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		field := make([]byte, length)
		if _, err := io.ReadFull(reader, field); err != nil {
			return nil, err
		}
		fields[i] = string(field)
	}

	record.AccountID = fields[0]
	record.DeviceFingerprint = fields[1]

	return record, nil
}
