// Package duplex implements the long-lived duplex sponge that underlies the DDML wire codec: a single
// Keccak-p[1600,12] permutation driven through interleaved absorb, squeeze, encrypt/decrypt, and commit calls over
// the lifetime of one message, plus capacity snapshotting for the link store.
//
// Unlike a one-shot sponge hash, which finalizes once before squeezing and is then spent, a Sponge here keeps
// operating: Commit flushes any partial rate block and realigns to a fresh one, after which Absorb, Squeeze, or
// Encrypt/Decrypt can resume. This mirrors the classic Spongos construction: Commit is the only place padding
// happens, and it is idempotent when there is nothing pending to flush.
package duplex

import (
	"github.com/streamwrap/ddml/hazmat/keccak"
	"github.com/streamwrap/ddml/hazmat/treewrap"
	"github.com/streamwrap/ddml/internal/mem"
)

const (
	// Rate is the number of state bytes touched per absorb/squeeze/encrypt step.
	Rate = 168

	// CapacitySize is the number of state bytes preserved across a Fork/Inner/Restore.
	CapacitySize = 200 - Rate

	// NonceSize is the size, in bytes, of a session nonce absorbed at the start of a message.
	NonceSize = 17

	// KeySize is the size, in bytes, of a symmetric session key.
	KeySize = 32

	// MacSize is the size, in bytes, of the default authentication tag produced by squeeze(Mac(n)).
	MacSize = 16

	// commitDS is the domain-separation byte XORed in at the position Commit pads from. It has no cryptographic
	// significance beyond distinguishing a commit boundary from an all-zero pad; every commit in this package uses
	// the same byte because DDML operator framing (labels, sizes) already disambiguates what is being committed.
	commitDS = 0x1F

	// bulkThreshold is the largest plaintext/ciphertext length handled by the sponge's own block-at-a-time
	// encrypt/decrypt loop. Anything larger is delegated to hazmat/treewrap, whose tree-parallel construction is
	// the appropriate cipher for large payloads (Open Question 5).
	bulkThreshold = Rate
)

// Sponge is a Keccak-p[1600,12]-based duplex object. The zero value is a valid, freshly initialized sponge.
type Sponge struct {
	s   [200]byte
	pos int
}

// New returns a freshly initialized Sponge.
func New() *Sponge {
	return &Sponge{}
}

// Absorb mixes p into the sponge's state.
func (s *Sponge) Absorb(p []byte) {
	for len(p) > 0 {
		n := min(Rate-s.pos, len(p))
		mem.XORInPlace(s.s[s.pos:s.pos+n], p[:n])
		s.pos += n
		p = p[n:]
		if s.pos == Rate {
			keccak.P1600(&s.s)
			s.pos = 0
		}
	}
}

// Squeeze returns n bytes of output derived from the sponge's current state.
func (s *Sponge) Squeeze(n int) []byte {
	out := make([]byte, n)
	s.SqueezeInto(out)
	return out
}

// SqueezeInto fills p with output derived from the sponge's current state.
func (s *Sponge) SqueezeInto(p []byte) {
	for len(p) > 0 {
		if s.pos == Rate {
			keccak.P1600(&s.s)
			s.pos = 0
		}
		r := copy(p, s.s[s.pos:Rate])
		s.pos += r
		p = p[r:]
	}
}

// Encrypt XORs plaintext with a keystream derived from the sponge's state, appends the result to dst, and absorbs
// the ciphertext back into the state (overwrite-mode duplexing, so the ciphertext is authenticated by everything
// squeezed or committed afterward). Payloads larger than one rate block are delegated to hazmat/treewrap.
//
// To reuse plaintext's storage, pass plaintext[:0] as dst.
func (s *Sponge) Encrypt(dst, plaintext []byte) []byte {
	if len(plaintext) > bulkThreshold {
		return s.encryptBulk(dst, plaintext)
	}

	ret, ciphertext := mem.SliceForAppend(dst, len(plaintext))
	off := 0
	for off < len(plaintext) {
		if s.pos == Rate {
			keccak.P1600(&s.s)
			s.pos = 0
		}
		n := min(Rate-s.pos, len(plaintext)-off)
		mem.XORAndCopy(ciphertext[off:off+n], plaintext[off:off+n], s.s[s.pos:s.pos+n])
		s.pos += n
		off += n
	}
	return ret
}

// Decrypt is the inverse of Encrypt: it XORs ciphertext with the sponge's keystream, appends the plaintext to dst,
// and absorbs the ciphertext back into the state.
func (s *Sponge) Decrypt(dst, ciphertext []byte) []byte {
	if len(ciphertext) > bulkThreshold {
		return s.decryptBulk(dst, ciphertext)
	}

	ret, plaintext := mem.SliceForAppend(dst, len(ciphertext))
	off := 0
	for off < len(ciphertext) {
		if s.pos == Rate {
			keccak.P1600(&s.s)
			s.pos = 0
		}
		n := min(Rate-s.pos, len(ciphertext)-off)
		mem.XORAndReplace(plaintext[off:off+n], ciphertext[off:off+n], s.s[s.pos:s.pos+n])
		s.pos += n
		off += n
	}
	return ret
}

// encryptBulk derives a fresh one-time key from the sponge, encrypts plaintext with treewrap under it, then absorbs
// the treewrap tag (which already authenticates the whole ciphertext) back into the duplex.
func (s *Sponge) encryptBulk(dst, plaintext []byte) []byte {
	var key [treewrap.KeySize]byte
	s.SqueezeInto(key[:])

	ret, ciphertext := mem.SliceForAppend(dst, len(plaintext))
	_, tag := treewrap.EncryptAndMAC(ciphertext[:0], &key, plaintext)
	clear(key[:])
	s.Absorb(tag[:])
	return ret
}

// decryptBulk is the inverse of encryptBulk. It verifies nothing: the tag is neither written to nor read from the
// wire, only absorbed, so a modified ciphertext shows up solely as a diverged sponge state in whatever is squeezed
// afterward (e.g. a later MAC).
func (s *Sponge) decryptBulk(dst, ciphertext []byte) []byte {
	var key [treewrap.KeySize]byte
	s.SqueezeInto(key[:])

	ret, plaintext := mem.SliceForAppend(dst, len(ciphertext))
	_, tag := treewrap.DecryptAndMAC(plaintext[:0], &key, ciphertext)
	clear(key[:])
	s.Absorb(tag[:])
	return ret
}

// Commit flushes any partial rate block accumulated by Absorb/Encrypt/Decrypt, padding and permuting so that the
// next operation starts aligned on a fresh block. If the sponge is already aligned (nothing pending since the last
// Commit), it does nothing: commit;commit is equivalent to a single commit.
func (s *Sponge) Commit() {
	if s.pos == 0 {
		return
	}
	s.s[s.pos] ^= commitDS
	s.s[Rate-1] ^= 0x80
	keccak.P1600(&s.s)
	s.pos = 0
}

// Fork returns an independent copy of the sponge. Further operations on the fork do not affect the original, and
// vice versa.
func (s *Sponge) Fork() *Sponge {
	clone := *s
	return &clone
}

// Inner returns a snapshot of the sponge's capacity bytes, the minimal state needed to resume the duplex from a
// commit point. It is intended for use by a link store: Restore reconstructs a sponge whose next operation is a
// join's absorb of the link's separator bytes.
func (s *Sponge) Inner() (inner [CapacitySize]byte) {
	copy(inner[:], s.s[Rate:])
	return
}

// Restore reconstructs a Sponge from a capacity-only snapshot produced by Inner. The rate portion of the restored
// state is zero, not the rate the original sponge held after its Commit, so a restored sponge squeezes different
// output than the original would; only sponges restored from the same snapshot agree with each other.
func Restore(inner [CapacitySize]byte) *Sponge {
	var sp Sponge
	copy(sp.s[Rate:], inner[:])
	return &sp
}
