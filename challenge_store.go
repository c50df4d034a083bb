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
	challengeKeyPrefix        = "chal"
	challengeRecordVersionV1  = 1
	challengeFieldLengthLimit = 1024
)

var (
	errChallengeNotFound         = errors.New("login challenge not found")
	errChallengeRedisUnavailable = errors.New("challenge redis unavailable")
)

// srpChallengeRecord is the server-side half of a pending SRP exchange.
// PrivateKey never leaves this record; PublicKey is replayed into the
// verification transcript so the client cannot substitute its own B.
type srpChallengeRecord struct {
	PrivateKey        []byte
	PublicKey         []byte
	DeviceFingerprint string
	CreatedAt         int64
}

type srpChallengeStore struct {
	redis  *redis.Client
	prefix string
}

func newSRPChallengeStore(redisClient *redis.Client, prefix string) *srpChallengeStore {
	return &srpChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *srpChallengeStore) key(accountID string) string {
	return s.prefix + ":" + challengeKeyPrefix + ":" + accountID
}

// Save stores the pending challenge for the account. An account has at
// most one pending challenge; a newer challenge overwrites the older one.
func (s *srpChallengeStore) Save(ctx context.Context, accountID string, record *srpChallengeRecord, ttl time.Duration) error {
	encoded, err := encodeSRPChallengeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(accountID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}

	return nil
}

// Take atomically fetches and deletes the pending challenge. Every
// verification attempt consumes the challenge, pass or fail, so a failed
// attempt cannot be retried against the same B.
func (s *srpChallengeStore) Take(ctx context.Context, accountID string) (*srpChallengeRecord, error) {
	data, err := s.redis.GetDel(ctx, s.key(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}

	return decodeSRPChallengeRecord(data)
}

func encodeSRPChallengeRecord(record *srpChallengeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(challengeRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}

	for _, field := range [][]byte{record.PrivateKey, record.PublicKey, []byte(record.DeviceFingerprint)} {
		if len(field) > challengeFieldLengthLimit {
			return nil, errors.New("challenge record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.Write(field)
	}

	return buf.Bytes(), nil
}

func decodeSRPChallengeRecord(data []byte) (*srpChallengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersionV1 {
		return nil, errors.New("invalid challenge record version")
	}

	record := &srpChallengeRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}

	fields := make([][]byte, 3)
	for i := range fields {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		field := make([]byte, length)
		if _, err := io.ReadFull(reader, field); err != nil {
			return nil, err
		}
		fields[i] = field
	}

	record.PrivateKey = fields[0]
	record.PublicKey = fields[1]
	record.DeviceFingerprint = string(fields[2])

	return record, nil
}
