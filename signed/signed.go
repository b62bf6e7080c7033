// Package signed implements SignedPacket, a small sibling message type to keyload: it carries an arbitrary
// payload and a signature binding that payload to a known public identity.
//
// Keyload's own wire format never signs anything (see the keyload package's doc comment and spec.md's Open
// Question 2): a channel that wants sender authentication on top of a keyload layers a SignedPacket over or
// alongside it instead of baking signing into every message type. The operator shape here, absorb the payload,
// derive an external digest, then mssig over that digest, is the one the original's dropped "fork { skip oneof {
// null; MSSig } }" trailer sketched for exactly this purpose.
package signed

import (
	"github.com/gtank/ristretto255"

	"github.com/streamwrap/ddml/ddml"
	"github.com/streamwrap/ddml/hazmat/duplex"
	"github.com/streamwrap/ddml/stream"
)

// DigestSize is the length, in bytes, of the digest mssig actually signs. It is derived from the running sponge
// rather than carried on the wire, so its size is an internal implementation choice, not a wire constant.
const DigestSize = 32

// WrapParams collects everything Wrap needs to build one SignedPacket.
type WrapParams struct {
	Payload []byte
	Signer  *ristretto255.Scalar

	// Rand is optional hedge randomness mixed into the signing commitment. A nil or empty Rand still yields a
	// valid, but less hedge-resistant, signature.
	Rand []byte
}

// Size returns the number of wire bytes Wrap(p) would produce.
func Size(p WrapParams) int {
	sc := ddml.NewSizeContext()
	digest := make([]byte, DigestSize)
	_ = wrapSequence(sc, &p, digest)
	return sc.Size()
}

// Wrap serializes and signs a SignedPacket: the payload is absorbed in the clear (it is transmitted and
// authenticated, not hidden), then a digest is derived from the post-absorb sponge state and signed.
func Wrap(p WrapParams) ([]byte, error) {
	buf := make([]byte, Size(p))
	w := ddml.NewWrapContext(duplex.New(), stream.NewSliceWriter(buf))
	digest := make([]byte, DigestSize)
	if err := wrapSequence(w, &p, digest); err != nil {
		return nil, err
	}
	return buf, nil
}

func wrapSequence(ctx ddml.Context, p *WrapParams, digest []byte) error {
	n := ddml.Size(len(p.Payload))
	if err := ctx.SkipSize(&n); err != nil {
		return err
	}
	if err := ctx.Absorb(p.Payload); err != nil {
		return err
	}
	ctx.Commit()
	ctx.SqueezeExternal(digest)
	return ctx.SignWrap(p.Signer, p.Rand, digest)
}

// Result is what a successful Unwrap recovers.
type Result struct {
	Payload []byte
}

// Unwrap parses data as a SignedPacket, verifying its signature against verifier. It fails with
// ddml.ErrBadSignature if the signature does not match.
func Unwrap(data []byte, verifier *ristretto255.Element) (Result, error) {
	u := ddml.NewUnwrapContext(duplex.New(), stream.NewSliceReader(data))

	var n ddml.Size
	if err := u.SkipSize(&n); err != nil {
		return Result{}, err
	}
	payload := make([]byte, int(n))
	if err := u.Absorb(payload); err != nil {
		return Result{}, err
	}
	u.Commit()
	digest := make([]byte, DigestSize)
	u.SqueezeExternal(digest)
	if err := u.VerifyUnwrap(verifier, digest); err != nil {
		return Result{}, err
	}
	return Result{Payload: payload}, nil
}
