package comlink

// Call-id generation for the request/response correlator. Ids are four
// random 52-bit hex chunks; collisions are astronomically unlikely but
// not impossible. crypto/rand backs production traffic, and a
// deterministic variant lets tests assert on exact message ids.

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"io"
)

// Each chunk is 52 bits, i.e. 13 hex digits; we draw 7 bytes (56 bits)
// per chunk and trim the string.
const (
	idChunkCount = 4
	idChunkBytes = 7
)

// newCallID returns a fresh opaque id, unique within the endpoint's
// lifetime with overwhelming probability. r supplies the randomness; pass
// rand.Reader in production or a deterministic reader in tests.
func newCallID(r io.Reader) string {
	buf := make([]byte, idChunkBytes)
	chunks := make([]string, idChunkCount)
	for i := range chunks {
		if _, err := io.ReadFull(r, buf); err != nil {
			// crypto/rand and DetermRand never fail; a non-nil error here
			// indicates a broken reader, which we cannot recover from.
			panic("comlink: id source exhausted: " + err.Error())
		}
		chunks[i] = hex.EncodeToString(buf)[:13]
	}
	return chunks[0] + chunks[1] + chunks[2] + chunks[3]
}

// NewCallID returns a fresh opaque call id using a cryptographically
// random source.
func NewCallID() string {
	return newCallID(rand.Reader)
}

// DetermRandIter is the number of times a seed is hashed with SHA-512 to
// produce the starting state of a deterministic pseudo-random stream.
const DetermRandIter = 2048

// NewDetermRand creates an io.Reader that produces pseudo-random bytes
// deterministically derived from seed. Intended for tests that need
// reproducible call ids; never use it for anything security-sensitive.
func NewDetermRand(seed []byte) io.Reader {
	next := seed
	for i := 0; i < DetermRandIter; i++ {
		next, _ = determHash(next)
	}
	return &determRand{next: next}
}

type determRand struct {
	next, out []byte
}

func (d *determRand) Read(b []byte) (int, error) {
	n := 0
	for n < len(b) {
		next, out := determHash(d.next)
		n += copy(b[n:], out)
		d.next = next
	}
	return n, nil
}

func determHash(input []byte) (next []byte, output []byte) {
	sum := sha512.Sum512(input)
	return sum[:sha512.Size/2], sum[sha512.Size/2:]
}
