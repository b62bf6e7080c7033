// Package sig implements the concrete Schnorr signature scheme used as the DDML mssig realization: an EdDSA-style
// signature over Ristretto255, bound to an arbitrary message stream via a hazmat/duplex sponge rather than a
// transcript hash.
package sig

import (
	"bytes"
	"io"

	"github.com/gtank/ristretto255"

	"github.com/streamwrap/ddml/hazmat/duplex"
)

// Size is the length of a signature in bytes: a 32-byte commitment point followed by a 32-byte proof scalar.
const Size = 64

// absorbWriter adapts a *duplex.Sponge to io.Writer so a message can be streamed in via io.Copy instead of buffered
// in full first.
type absorbWriter struct{ s *duplex.Sponge }

func (w absorbWriter) Write(p []byte) (int, error) {
	w.s.Absorb(p)
	return len(p), nil
}

// Sign uses the given Ristretto255 private key and an optional slice of random data to generate a strongly
// unforgeable digital signature of the reader's contents.
//
// Returns any error from the underlying reader.
func Sign(domain string, d *ristretto255.Scalar, rand []byte, message io.Reader) ([]byte, error) {
	base := duplex.New()
	base.Absorb([]byte(domain))
	base.Absorb([]byte("signer"))
	base.Absorb(ristretto255.NewIdentityElement().ScalarBaseMult(d).Bytes())
	base.Absorb([]byte("message"))
	if _, err := io.Copy(absorbWriter{base}, message); err != nil {
		return nil, err
	}
	base.Commit()

	// Fork into prover/verifier roles, each absorbing a distinct role label so their derived outputs diverge.
	prover := base.Fork()
	prover.Absorb([]byte("role:prover"))
	prover.Absorb(d.Bytes())
	prover.Absorb(rand)
	prover.Commit()

	verifier := base.Fork()
	verifier.Absorb([]byte("role:verifier"))

	// Derive a commitment scalar that is unique for this signer, message, and (if given) random hedge data.
	prover.Absorb([]byte("commitment"))
	prover.Commit()
	k, _ := ristretto255.NewScalar().SetUniformBytes(prover.Squeeze(64))
	r := ristretto255.NewIdentityElement().ScalarBaseMult(k)
	rOut := r.Bytes()

	// Mix the commitment point into the verifier and derive the challenge scalar.
	verifier.Absorb([]byte("commitment"))
	verifier.Absorb(rOut)
	verifier.Commit()
	c, _ := ristretto255.NewScalar().SetUniformBytes(verifier.Squeeze(64))

	// Proof scalar: s = k + d*c.
	s := ristretto255.NewScalar().Multiply(d, c)
	s = s.Add(s, k)
	return append(rOut, s.Bytes()...), nil
}

// Verify uses the given Ristretto255 public key and signature to verify the contents of the given reader. Returns
// true if and only if the signature was made of the message by the holder of the signer's private key.
//
// Returns any error from the underlying reader.
func Verify(domain string, q *ristretto255.Element, signature []byte, message io.Reader) (bool, error) {
	if len(signature) != Size {
		return false, nil
	}

	base := duplex.New()
	base.Absorb([]byte(domain))
	base.Absorb([]byte("signer"))
	base.Absorb(q.Bytes())
	base.Absorb([]byte("message"))
	if _, err := io.Copy(absorbWriter{base}, message); err != nil {
		return false, err
	}
	base.Commit()

	verifier := base.Fork()
	verifier.Absorb([]byte("role:verifier"))

	verifier.Absorb([]byte("commitment"))
	verifier.Absorb(signature[:32])
	verifier.Commit()
	c, _ := ristretto255.NewScalar().SetUniformBytes(verifier.Squeeze(64))

	s, _ := ristretto255.NewScalar().SetCanonicalBytes(signature[32:])
	if s == nil {
		return false, nil
	}

	// Expected commitment point: R' = [s]G + [-c]Q.
	expectedR := ristretto255.NewIdentityElement().VarTimeDoubleScalarBaseMult(ristretto255.NewScalar().Negate(c), q, s)

	return bytes.Equal(signature[:32], expectedR.Bytes()), nil
}
