package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultEntropyBytes = 32

	// IdentifierLength is the length of every identifier returned by DigestGenerator.
	IdentifierLength = sha256.Size * 2
)

// Generator produces opaque, unguessable identifiers for codes and tokens.
type Generator interface {
	NewIdentifier(seed string) (string, error)
}

// DigestGenerator hashes the seed together with a high-resolution timestamp, a process
// wide counter and bytes read from a cryptographically secure source. The counter keeps
// identifiers unique within the process; the random bytes make them unguessable even
// when the seed is public.
type DigestGenerator struct {
	entropyBytes int
	random       io.Reader
	nowFunc      func() time.Time
}

var _ Generator = (*DigestGenerator)(nil)

var sequence atomic.Uint64

type GeneratorOption func(*DigestGenerator)

// WithEntropyBytes sets how many random bytes are mixed into every identifier.
func WithEntropyBytes(n int) GeneratorOption {
	return func(g *DigestGenerator) {
		if n > 0 {
			g.entropyBytes = n
		}
	}
}

// WithRandReader replaces crypto/rand (primarily for testing failure paths).
func WithRandReader(r io.Reader) GeneratorOption {
	return func(g *DigestGenerator) {
		g.random = r
	}
}

// WithNowFunc sets the clock (primarily for testing)
func WithNowFunc(now func() time.Time) GeneratorOption {
	return func(g *DigestGenerator) {
		g.nowFunc = now
	}
}

func NewGenerator(options ...GeneratorOption) *DigestGenerator {
	g := &DigestGenerator{
		entropyBytes: defaultEntropyBytes,
		random:       rand.Reader,
		nowFunc:      time.Now,
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// NewIdentifier returns a 64 character lower-case hex identifier derived from seed.
func (g *DigestGenerator) NewIdentifier(seed string) (string, error) {
	entropy := make([]byte, g.entropyBytes)
	if _, err := io.ReadFull(g.random, entropy); err != nil {
		return "", errors.Wrap(err, "[NewIdentifier] reading random bytes")
	}

	var stamp [16]byte
	binary.BigEndian.PutUint64(stamp[:8], uint64(g.nowFunc().UnixNano()))
	binary.BigEndian.PutUint64(stamp[8:], sequence.Add(1))

	h := sha256.New()
	h.Write([]byte(seed))
	h.Write(stamp[:])
	h.Write(entropy)
	return hex.EncodeToString(h.Sum(nil)), nil
}
