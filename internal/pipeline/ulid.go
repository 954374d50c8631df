package pipeline

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"
)

// Document versions are ULIDs: 48 bits of millisecond timestamp and 80
// random bits, Crockford base32 encoded to 26 characters. A counter in the
// first random bytes keeps ids minted in the same millisecond ordered.

const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

type ulidSource struct {
	mu      sync.Mutex
	lastMS  uint64
	lastSeq uint16
	now     func() time.Time
}

var versions = &ulidSource{now: time.Now}

// NewVersionID returns a new ULID.
func NewVersionID() string { return versions.next() }

func (s *ulidSource) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := uint64(s.now().UnixMilli())
	if ms == s.lastMS {
		s.lastSeq++
	} else {
		s.lastMS = ms
		s.lastSeq = 0
	}

	var b [16]byte
	for i := 0; i < 6; i++ {
		b[i] = byte(ms >> (40 - 8*i))
	}
	rand.Read(b[6:])
	binary.BigEndian.PutUint16(b[6:8], s.lastSeq)
	return encodeCrockford(b)
}

// encodeCrockford writes the 128 bits of b as 26 base32 digits, padding two
// zero bits at the front.
func encodeCrockford(b [16]byte) string {
	var out [26]byte
	for i := range out {
		var v byte
		for j := 0; j < 5; j++ {
			bit := i*5 + j - 2
			v <<= 1
			if bit >= 0 && b[bit/8]&(0x80>>(bit%8)) != 0 {
				v |= 1
			}
		}
		out[i] = crockford[v]
	}
	return string(out[:])
}
