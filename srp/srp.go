package srp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"io"
	"math/big"
)

const (
	// privateKeySize is the byte length of the ephemeral private value b.
	privateKeySize = 32

	// keypairResampleLimit bounds the B==0 resample loop. With a correct
	// group the condition is unreachable; the limit exists so an
	// adversarially crafted verifier cannot spin the generator forever.
	keypairResampleLimit = 8
)

// evidenceCompare guards the M1 check. It is a package variable so tests
// can instrument the comparison; it must always hold a constant-time
// implementation.
var evidenceCompare = subtle.ConstantTimeCompare

var (
	// ErrInvalidPublicKey is returned when a client or server public value
	// reduces to zero modulo N, which would leak the session key.
	ErrInvalidPublicKey = errors.New("srp: public value is zero mod N")
	// ErrInvalidScramble is returned when the scrambling parameter u hashes
	// to zero.
	ErrInvalidScramble = errors.New("srp: scrambling parameter is zero")
	// ErrInvalidVerifier is returned for an empty or out-of-range verifier.
	ErrInvalidVerifier = errors.New("srp: invalid verifier")
	// ErrKeypairGeneration is returned when the defensive resample limit is
	// exhausted while drawing a server keypair.
	ErrKeypairGeneration = errors.New("srp: keypair generation failed")
)

// Group holds the fixed SRP-6a group parameters (N, g) and the derived
// multiplier k = H(N || pad(g)). A Group is immutable after construction
// and safe for concurrent use.
type Group struct {
	n      *big.Int
	g      *big.Int
	k      *big.Int
	nBytes int
	random io.Reader
}

// Evidence carries the result of a successful client verification: the
// server evidence M2 for mutual authentication. The session key itself is
// never exposed; zkauth has no use for it beyond evidence computation.
type Evidence struct {
	M2 []byte
}

// NewGroup constructs the RFC 5054 3072-bit group with g = 5 and
// k = H(N || pad(g)) fixed at construction.
func NewGroup() *Group {
	n := prime3072()
	g := big.NewInt(generator5054)

	grp := &Group{
		n:      n,
		g:      g,
		nBytes: (n.BitLen() + 7) / 8,
		random: rand.Reader,
	}
	grp.k = grp.computeK()
	return grp
}

// ByteLength reports the byte length of the group prime N. Callers padding
// wire values to canonical width use this.
func (grp *Group) ByteLength() int {
	return grp.nBytes
}

// N returns a copy of the group prime. Clients computing their own side
// of the exchange need it alongside Generator.
func (grp *Group) N() *big.Int {
	return new(big.Int).Set(grp.n)
}

// Generator returns a copy of the group generator g.
func (grp *Group) Generator() *big.Int {
	return new(big.Int).Set(grp.g)
}

// Multiplier returns a copy of the SRP-6a multiplier k = H(N || pad(g)).
func (grp *Group) Multiplier() *big.Int {
	return new(big.Int).Set(grp.k)
}

// Pad left-pads the big-endian encoding of n to the byte length of N,
// the same canonical width VerifyClient hashes with.
func (grp *Group) Pad(n *big.Int) []byte {
	return grp.pad(n)
}

// GenerateServerKeyPair draws a fresh ephemeral private value b and
// computes the server public value B = (k*v + g^b) mod N for the given
// verifier. The returned b must be cached server-side for exactly one
// verification attempt and discarded afterwards.
//
// B == 0 mod N is rejected internally by resampling b; the condition is
// unreachable for well-formed verifiers.
func (grp *Group) GenerateServerKeyPair(verifier []byte) (b []byte, B []byte, err error) {
	v := new(big.Int).SetBytes(verifier)
	if v.Sign() == 0 || v.Cmp(grp.n) >= 0 {
		return nil, nil, ErrInvalidVerifier
	}

	kv := new(big.Int).Mul(grp.k, v)

	for i := 0; i < keypairResampleLimit; i++ {
		priv := make([]byte, privateKeySize)
		if _, err := io.ReadFull(grp.random, priv); err != nil {
			return nil, nil, err
		}

		bInt := new(big.Int).SetBytes(priv)
		gb := new(big.Int).Exp(grp.g, bInt, grp.n)

		pub := new(big.Int).Add(kv, gb)
		pub.Mod(pub, grp.n)

		if pub.Sign() == 0 {
			continue
		}

		return priv, pub.Bytes(), nil
	}

	return nil, nil, ErrKeypairGeneration
}

// VerifyClient checks the client evidence M1 against the expected value
// derived from (A, B, b, verifier). It rejects before any exponentiation
// when A or B reduce to zero modulo N, and when the scrambling parameter
// u hashes to zero.
//
// The comparison between the supplied and expected M1 is constant-time.
// On success the server evidence M2 = H(pad(A) || M1 || K) is returned
// for mutual authentication.
func (grp *Group) VerifyClient(A, B, b, clientM1, verifier []byte) (bool, *Evidence, error) {
	aInt := new(big.Int).SetBytes(A)
	bPub := new(big.Int).SetBytes(B)

	// Reject A == 0 mod N before computing anything: with A == 0 the
	// shared secret collapses to 0 independently of the password.
	if new(big.Int).Mod(aInt, grp.n).Sign() == 0 {
		return false, nil, ErrInvalidPublicKey
	}
	if new(big.Int).Mod(bPub, grp.n).Sign() == 0 {
		return false, nil, ErrInvalidPublicKey
	}

	v := new(big.Int).SetBytes(verifier)
	if v.Sign() == 0 {
		return false, nil, ErrInvalidVerifier
	}

	u := grp.computeU(aInt, bPub)
	if u.Sign() == 0 {
		return false, nil, ErrInvalidScramble
	}

	// S = (A * v^u)^b mod N
	vu := new(big.Int).Exp(v, u, grp.n)
	base := new(big.Int).Mul(aInt, vu)
	base.Mod(base, grp.n)
	S := new(big.Int).Exp(base, new(big.Int).SetBytes(b), grp.n)

	K := hashBytes(S.Bytes())

	expectedM1 := hashBytes(concat(grp.pad(aInt), grp.pad(bPub), K))

	if evidenceCompare(clientM1, expectedM1) != 1 {
		return false, nil, nil
	}

	m2 := hashBytes(concat(grp.pad(aInt), clientM1, K))
	return true, &Evidence{M2: m2}, nil
}

// computeK derives the SRP-6a multiplier k = H(N || pad(g)).
func (grp *Group) computeK() *big.Int {
	digest := hashBytes(concat(grp.n.Bytes(), grp.pad(grp.g)))
	return new(big.Int).SetBytes(digest)
}

// computeU derives the scrambling parameter u = H(pad(A) || pad(B)).
func (grp *Group) computeU(A, B *big.Int) *big.Int {
	digest := hashBytes(concat(grp.pad(A), grp.pad(B)))
	return new(big.Int).SetBytes(digest)
}

// pad left-pads the big-endian encoding of n to the byte length of N.
// Fixed-width inputs close the canonicalization gap where distinct
// encodings of the same value hash differently.
func (grp *Group) pad(n *big.Int) []byte {
	raw := n.Bytes()
	if len(raw) >= grp.nBytes {
		return raw
	}

	padded := make([]byte, grp.nBytes)
	copy(padded[grp.nBytes-len(raw):], raw)
	return padded
}

func hashBytes(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func concat(parts ...[]byte) []byte {
	total := 0
	for _, p := range parts {
		total += len(p)
	}

	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
