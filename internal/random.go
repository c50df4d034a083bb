package internal

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const deviceFingerprintSize = 32

// NewOTP generates a numeric one-time code with the given digit count.
// Each digit is drawn independently from crypto/rand, so leading zeros
// are as likely as any other digit.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// NewDeviceFingerprint generates the opaque hex fingerprint assigned to
// the first device during registration.
func NewDeviceFingerprint() (string, error) {
	raw := make([]byte, deviceFingerprintSize)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// RandomDelay sleeps for a uniformly random duration in [min, max),
// honoring context cancellation. Login lookups for unknown emails call
// this so response timing does not distinguish absent accounts.
func RandomDelay(ctx context.Context, min, max time.Duration) error {
	if max <= min {
		max = min + time.Millisecond
	}

	span := big.NewInt(int64(max - min))
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return err
	}

	timer := time.NewTimer(min + time.Duration(n.Int64()))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
