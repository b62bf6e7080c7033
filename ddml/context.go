// Package ddml implements the DDML command layer: the absorb/mask/skip/squeeze/commit/guard/fork/join/repeated/
// ntrukem/mssig operators, each realized three times over a shared interface — once to compute a message's wire
// size, once to wrap (serialize + drive the sponge), once to unwrap (parse + drive the sponge) — so that size,
// wrap, and unwrap agree on byte count by construction rather than by convention.
package ddml

import (
	"bytes"
	"crypto/subtle"
	"encoding/binary"
	"errors"

	"github.com/gtank/ristretto255"

	"github.com/streamwrap/ddml/hazmat/duplex"
	"github.com/streamwrap/ddml/hazmat/kem"
	"github.com/streamwrap/ddml/hazmat/sig"
	"github.com/streamwrap/ddml/link"
	"github.com/streamwrap/ddml/stream"
)

// shortBuffer translates a stream.ErrShortBuffer from an underlying OStream/IStream into this package's own
// ErrShortBuffer, so callers can match spec.md §7's ShortBuffer error kind via errors.Is(err, ddml.ErrShortBuffer)
// without reaching into the stream package. Any other error (there are none today, but TryAdvance's contract only
// promises ErrShortBuffer) passes through unchanged.
func shortBuffer(err error) error {
	if errors.Is(err, stream.ErrShortBuffer) {
		return ErrShortBuffer
	}
	return err
}

// kemDomain and sigDomain separate DDML's use of the concrete KEM/signature schemes from any other caller of those
// packages. They are not part of the wire format; they only influence the sponge transcript those schemes build
// internally.
const (
	kemDomain = "ddml.ntrukem.v1"
	sigDomain = "ddml.mssig.v1"
)

// Context is the shared operator vocabulary. Values that flow in one direction on the wire (absorb, skip, mask,
// and their Size/link-rel variants) take a []byte or *Size that the wrap context reads from and the unwrap
// context fills in, so the very same call sequence can run against any of the three implementations — this is
// what makes the size/wrap/unwrap agreement property (spec.md §8 item 1) a consequence of the code's structure
// rather than something that must be separately maintained.
type Context interface {
	// Absorb authenticates p: wrap writes p to the wire and absorbs it; unwrap reads len(p) bytes from the wire
	// into p and absorbs it.
	Absorb(p []byte) error

	// AbsorbExternal authenticates p without putting any bytes on the wire. Both directions already know p's
	// value (e.g. a key recovered earlier in the same call), so there is nothing to transfer.
	AbsorbExternal(p []byte) error

	// Mask is Absorb's confidential counterpart: wrap encrypts p and writes the ciphertext; unwrap reads len(p)
	// ciphertext bytes and decrypts them into p.
	Mask(p []byte) error

	// SkipBytes transfers p across the wire with no sponge effect at all (unauthenticated framing).
	SkipBytes(p []byte) error

	// SkipSize transfers a variable-length count across the wire with no sponge effect.
	SkipSize(n *Size) error

	// SqueezeExternal derives len(out) bytes from the current sponge state with no wire interaction.
	SqueezeExternal(out []byte)

	// SqueezeMac produces or verifies an inline n-byte authentication tag: wrap squeezes and writes it; unwrap
	// squeezes the expected tag and compares it, in constant time, against the n bytes read from the wire,
	// failing with ErrBadMAC on mismatch.
	SqueezeMac(n int) error

	// Commit flushes the sponge's pending partial block. A second, immediately following Commit is a no-op.
	Commit()

	// Guard fails with ErrGuard (wrapping msg) iff cond is false.
	Guard(cond bool, msg string) error

	// Fork runs body against an independent copy of the current sponge; whatever body does to that sponge is
	// discarded once it returns, and the context resumes with its pre-Fork sponge. Wire bytes body produces or
	// consumes still flow through the shared stream.
	Fork(body func(Context) error) error

	// Join transfers a link-relative identifier across the wire (wrap reads it from *rel, already set by the
	// caller; unwrap fills *rel from the wire), replaces the context's sponge with one restored from the inner
	// state stored for that link, and absorbs rel into the restored sponge as a separator. Fails with
	// ErrLinkNotFound if store has no entry for it.
	Join(store link.Store, rel *link.Rel) error

	// Repeated calls body exactly *n times, passing the call index. *n must already be known: the caller reads it
	// via SkipSize (wrap: because it already has the count; unwrap: because it read it from the wire) before
	// calling Repeated.
	Repeated(n *Size, body func(ctx Context, i int) error) error

	// KEMWrap encapsulates key for recipientPub's owner, bound to authorPriv's identity, using rand as 64 bytes
	// of fresh ephemeral randomness for the underlying Diffie-Hellman encapsulation. The resulting ciphertext is
	// written to the wire and absorbed.
	KEMWrap(authorPriv *ristretto255.Scalar, recipientPub *ristretto255.Element, rand, key []byte) error

	// KEMUnwrap is KEMWrap's dual: it reads kem.Overhead+len(key) ciphertext bytes from the wire, decapsulates
	// them with recipientPriv against authorPub, absorbs the ciphertext, and fills key with the recovered
	// plaintext. Fails with ErrKEMDecapFailed on a malformed or forged ciphertext.
	KEMUnwrap(recipientPriv *ristretto255.Scalar, authorPub *ristretto255.Element, key []byte) error

	// SignWrap signs digest with signer (using rand as signing randomness) and writes+absorbs the signature.
	SignWrap(signer *ristretto255.Scalar, rand, digest []byte) error

	// VerifyUnwrap reads a signature from the wire, verifies it against digest under verifier, and absorbs it.
	// Fails with ErrBadSignature on a bad signature.
	VerifyUnwrap(verifier *ristretto255.Element, digest []byte) error

	// Drop advances the wire by n bytes with no sponge effect at all, not even the framing-only effect SkipBytes
	// has (there is nothing to copy: the caller never wants these bytes). It exists to keep unwrap's byte count
	// in agreement with wrap/size when an unwrap-time branch chooses not to instantiate a fork it cannot use
	// (spec.md §4.4's PSK_SCAN/PK_SCAN tie-break). It is unwrap-only; wrap and size never reach a branch that
	// calls it.
	Drop(n int) error
}

// sizeofVarint returns the number of bytes binary.PutUvarint would write for n.
func sizeofVarint(n uint64) int {
	var buf [binary.MaxVarintLen64]byte
	return binary.PutUvarint(buf[:], n)
}

// ---------------------------------------------------------------------------------------------------------------
// SizeContext
// ---------------------------------------------------------------------------------------------------------------

// SizeContext computes the number of wire bytes an operator sequence will produce, without touching any sponge or
// performing any cryptography. It is the first pass a wrap call makes: the resulting count sizes the output
// buffer the real WrapContext then writes into.
type SizeContext struct {
	n int
}

// NewSizeContext returns a fresh SizeContext.
func NewSizeContext() *SizeContext {
	return &SizeContext{}
}

// Size returns the total number of wire bytes accounted for so far.
func (c *SizeContext) Size() int { return c.n }

func (c *SizeContext) Absorb(p []byte) error         { c.n += len(p); return nil }
func (c *SizeContext) AbsorbExternal([]byte) error   { return nil }
func (c *SizeContext) Mask(p []byte) error           { c.n += len(p); return nil }
func (c *SizeContext) SkipBytes(p []byte) error      { c.n += len(p); return nil }
func (c *SizeContext) SkipSize(n *Size) error        { c.n += sizeofVarint(uint64(*n)); return nil }
func (c *SizeContext) SqueezeExternal([]byte)        {}
func (c *SizeContext) SqueezeMac(n int) error        { c.n += n; return nil }
func (c *SizeContext) Commit()                       {}
func (c *SizeContext) Guard(cond bool, msg string) error {
	if !cond {
		return guardError(msg)
	}
	return nil
}
func (c *SizeContext) Fork(body func(Context) error) error { return body(c) }
func (c *SizeContext) Join(_ link.Store, _ *link.Rel) error {
	c.n += link.RelSize
	return nil
}
func (c *SizeContext) Repeated(n *Size, body func(Context, int) error) error {
	for i := 0; i < int(*n); i++ {
		if err := body(c, i); err != nil {
			return err
		}
	}
	return nil
}
func (c *SizeContext) KEMWrap(_ *ristretto255.Scalar, _ *ristretto255.Element, _, key []byte) error {
	c.n += kem.Overhead + len(key)
	return nil
}
func (c *SizeContext) KEMUnwrap(_ *ristretto255.Scalar, _ *ristretto255.Element, key []byte) error {
	c.n += kem.Overhead + len(key)
	return nil
}
func (c *SizeContext) SignWrap(*ristretto255.Scalar, []byte, []byte) error {
	c.n += sig.Size
	return nil
}
func (c *SizeContext) VerifyUnwrap(*ristretto255.Element, []byte) error {
	c.n += sig.Size
	return nil
}
func (c *SizeContext) Drop(n int) error { c.n += n; return nil }

// ---------------------------------------------------------------------------------------------------------------
// WrapContext
// ---------------------------------------------------------------------------------------------------------------

// WrapContext serializes an operator sequence while driving a live sponge.
type WrapContext struct {
	sponge *duplex.Sponge
	out    stream.OStream
}

// NewWrapContext returns a WrapContext that writes into out, starting from sponge's current state. Callers
// ordinarily construct sponge fresh (duplex.New()) for a new message.
func NewWrapContext(sponge *duplex.Sponge, out stream.OStream) *WrapContext {
	return &WrapContext{sponge: sponge, out: out}
}

// Sponge returns the context's current sponge. Its identity changes across Fork/Join calls.
func (c *WrapContext) Sponge() *duplex.Sponge { return c.sponge }

func (c *WrapContext) Absorb(p []byte) error {
	dst, err := c.out.TryAdvance(len(p))
	if err != nil {
		return shortBuffer(err)
	}
	copy(dst, p)
	c.sponge.Absorb(p)
	return nil
}

func (c *WrapContext) AbsorbExternal(p []byte) error {
	c.sponge.Absorb(p)
	return nil
}

func (c *WrapContext) Mask(p []byte) error {
	dst, err := c.out.TryAdvance(len(p))
	if err != nil {
		return shortBuffer(err)
	}
	c.sponge.Encrypt(dst[:0], p)
	return nil
}

func (c *WrapContext) SkipBytes(p []byte) error {
	dst, err := c.out.TryAdvance(len(p))
	if err != nil {
		return shortBuffer(err)
	}
	copy(dst, p)
	return nil
}

func (c *WrapContext) SkipSize(n *Size) error {
	var buf [binary.MaxVarintLen64]byte
	ln := binary.PutUvarint(buf[:], uint64(*n))
	dst, err := c.out.TryAdvance(ln)
	if err != nil {
		return shortBuffer(err)
	}
	copy(dst, buf[:ln])
	return nil
}

func (c *WrapContext) SqueezeExternal(out []byte) { c.sponge.SqueezeInto(out) }

func (c *WrapContext) SqueezeMac(n int) error {
	tag := c.sponge.Squeeze(n)
	dst, err := c.out.TryAdvance(n)
	if err != nil {
		return shortBuffer(err)
	}
	copy(dst, tag)
	return nil
}

func (c *WrapContext) Commit() { c.sponge.Commit() }

func (c *WrapContext) Guard(cond bool, msg string) error {
	if !cond {
		return guardError(msg)
	}
	return nil
}

func (c *WrapContext) Fork(body func(Context) error) error {
	saved := c.sponge
	c.sponge = saved.Fork()
	err := body(c)
	c.sponge = saved
	return err
}

func (c *WrapContext) Join(store link.Store, rel *link.Rel) error {
	if err := c.SkipBytes(rel[:]); err != nil {
		return err
	}
	entry, err := store.Lookup(*rel)
	if err != nil {
		return ErrLinkNotFound
	}
	c.sponge = duplex.Restore(entry.Inner)
	c.sponge.Absorb(rel[:])
	return nil
}

func (c *WrapContext) Repeated(n *Size, body func(Context, int) error) error {
	for i := 0; i < int(*n); i++ {
		if err := body(c, i); err != nil {
			return err
		}
	}
	return nil
}

func (c *WrapContext) KEMWrap(authorPriv *ristretto255.Scalar, recipientPub *ristretto255.Element, rand, key []byte) error {
	ct, err := kem.Seal(kemDomain, recipientPub, authorPriv, rand, key)
	if err != nil {
		return err
	}
	dst, err := c.out.TryAdvance(len(ct))
	if err != nil {
		return shortBuffer(err)
	}
	copy(dst, ct)
	c.sponge.Absorb(ct)
	return nil
}

func (c *WrapContext) KEMUnwrap(*ristretto255.Scalar, *ristretto255.Element, []byte) error {
	panic("ddml: KEMUnwrap called on a WrapContext")
}

func (c *WrapContext) SignWrap(signer *ristretto255.Scalar, rand, digest []byte) error {
	signature, err := sig.Sign(sigDomain, signer, rand, bytes.NewReader(digest))
	if err != nil {
		return err
	}
	dst, err := c.out.TryAdvance(len(signature))
	if err != nil {
		return shortBuffer(err)
	}
	copy(dst, signature)
	c.sponge.Absorb(signature)
	return nil
}

func (c *WrapContext) VerifyUnwrap(*ristretto255.Element, []byte) error {
	panic("ddml: VerifyUnwrap called on a WrapContext")
}

func (c *WrapContext) Drop(int) error {
	panic("ddml: Drop called on a WrapContext")
}

// ---------------------------------------------------------------------------------------------------------------
// UnwrapContext
// ---------------------------------------------------------------------------------------------------------------

// UnwrapContext parses an operator sequence while driving a live sponge, the dual of WrapContext.
type UnwrapContext struct {
	sponge *duplex.Sponge
	in     stream.IStream
}

// NewUnwrapContext returns an UnwrapContext that reads from in, starting from sponge's current state.
func NewUnwrapContext(sponge *duplex.Sponge, in stream.IStream) *UnwrapContext {
	return &UnwrapContext{sponge: sponge, in: in}
}

// Sponge returns the context's current sponge. Its identity changes across Fork/Join calls.
func (c *UnwrapContext) Sponge() *duplex.Sponge { return c.sponge }

func (c *UnwrapContext) Absorb(p []byte) error {
	src, err := c.in.TryAdvance(len(p))
	if err != nil {
		return shortBuffer(err)
	}
	copy(p, src)
	c.sponge.Absorb(p)
	return nil
}

func (c *UnwrapContext) AbsorbExternal(p []byte) error {
	c.sponge.Absorb(p)
	return nil
}

func (c *UnwrapContext) Mask(p []byte) error {
	src, err := c.in.TryAdvance(len(p))
	if err != nil {
		return shortBuffer(err)
	}
	c.sponge.Decrypt(p[:0], src)
	return nil
}

func (c *UnwrapContext) SkipBytes(p []byte) error {
	src, err := c.in.TryAdvance(len(p))
	if err != nil {
		return shortBuffer(err)
	}
	copy(p, src)
	return nil
}

func (c *UnwrapContext) SkipSize(n *Size) error {
	var buf []byte
	for {
		b, err := c.in.TryAdvance(1)
		if err != nil {
			return shortBuffer(err)
		}
		buf = append(buf, b[0])
		if b[0] < 0x80 {
			break
		}
		if len(buf) > binary.MaxVarintLen64 {
			return ErrMalformedSize
		}
	}
	v, ln := binary.Uvarint(buf)
	if ln <= 0 {
		return ErrMalformedSize
	}
	*n = Size(v)
	return nil
}

func (c *UnwrapContext) SqueezeExternal(out []byte) { c.sponge.SqueezeInto(out) }

func (c *UnwrapContext) SqueezeMac(n int) error {
	want := c.sponge.Squeeze(n)
	got, err := c.in.TryAdvance(n)
	if err != nil {
		return shortBuffer(err)
	}
	if subtle.ConstantTimeCompare(want, got) != 1 {
		return ErrBadMAC
	}
	return nil
}

func (c *UnwrapContext) Commit() { c.sponge.Commit() }

func (c *UnwrapContext) Guard(cond bool, msg string) error {
	if !cond {
		return guardError(msg)
	}
	return nil
}

func (c *UnwrapContext) Fork(body func(Context) error) error {
	saved := c.sponge
	c.sponge = saved.Fork()
	err := body(c)
	c.sponge = saved
	return err
}

func (c *UnwrapContext) Join(store link.Store, rel *link.Rel) error {
	if err := c.SkipBytes(rel[:]); err != nil {
		return err
	}
	entry, err := store.Lookup(*rel)
	if err != nil {
		return ErrLinkNotFound
	}
	c.sponge = duplex.Restore(entry.Inner)
	c.sponge.Absorb(rel[:])
	return nil
}

func (c *UnwrapContext) Repeated(n *Size, body func(Context, int) error) error {
	for i := 0; i < int(*n); i++ {
		if err := body(c, i); err != nil {
			return err
		}
	}
	return nil
}

func (c *UnwrapContext) KEMWrap(*ristretto255.Scalar, *ristretto255.Element, []byte, []byte) error {
	panic("ddml: KEMWrap called on an UnwrapContext")
}

func (c *UnwrapContext) KEMUnwrap(recipientPriv *ristretto255.Scalar, authorPub *ristretto255.Element, key []byte) error {
	n := kem.Overhead + len(key)
	src, err := c.in.TryAdvance(n)
	if err != nil {
		return shortBuffer(err)
	}
	plaintext, err := kem.Open(kemDomain, recipientPriv, authorPub, src)
	if err != nil || len(plaintext) != len(key) {
		return ErrKEMDecapFailed
	}
	copy(key, plaintext)
	c.sponge.Absorb(src)
	return nil
}

func (c *UnwrapContext) SignWrap(*ristretto255.Scalar, []byte, []byte) error {
	panic("ddml: SignWrap called on an UnwrapContext")
}

func (c *UnwrapContext) VerifyUnwrap(verifier *ristretto255.Element, digest []byte) error {
	src, err := c.in.TryAdvance(sig.Size)
	if err != nil {
		return shortBuffer(err)
	}
	ok, err := sig.Verify(sigDomain, verifier, src, bytes.NewReader(digest))
	if err != nil {
		return err
	}
	if !ok {
		return ErrBadSignature
	}
	c.sponge.Absorb(src)
	return nil
}

func (c *UnwrapContext) Drop(n int) error {
	_, err := c.in.TryAdvance(n)
	return shortBuffer(err)
}
