// Package kem implements the concrete key encapsulation scheme used as the DDML ntrukem realization: a
// static-ephemeral Diffie-Hellman construction over Ristretto255, with the shared secrets mixed into a hazmat/duplex
// sponge instead of a transcript hash.
//
// An attacker only in possession of public keys can neither read the encapsulated key nor forge an encapsulation.
// An attacker holding the sender's private key but not the receiver's cannot read the encapsulated key either. As
// with any static-ephemeral construction, an attacker holding the receiver's private key can forge an encapsulation
// that appears to come from any sender whose public key they know (Key Compromise Impersonation); DDML's `mssig`
// layer, applied by the separate signed package rather than inside Keyload, is what gives a recipient genuine
// sender authentication.
package kem

import (
	"crypto/subtle"
	"errors"

	"github.com/gtank/ristretto255"

	"github.com/streamwrap/ddml/hazmat/duplex"
)

// Overhead is the number of bytes Seal adds to a plaintext: a 32-byte ephemeral public key followed by a
// duplex.MacSize-byte tag.
const Overhead = 32 + duplex.MacSize

// ErrDecapFailed is returned by Open when the ciphertext cannot be decapsulated: a malformed ephemeral key, a forged
// tag, or simply the wrong recipient/sender keys.
var ErrDecapFailed = errors.New("kem: decapsulation failed")

// Seal encapsulates plaintext (ordinarily a session key) for the owner of the given public key, using the given
// sender's private key and caller-supplied random data.
//
// rand must be exactly 64 bytes.
func Seal(domain string, qR *ristretto255.Element, dS *ristretto255.Scalar, rand, plaintext []byte) ([]byte, error) {
	dE, err := ristretto255.NewScalar().SetUniformBytes(rand)
	if err != nil {
		return nil, err
	}
	qE := ristretto255.NewIdentityElement().ScalarBaseMult(dE)

	ssE := ristretto255.NewIdentityElement().ScalarMult(dE, qR)
	ssS := ristretto255.NewIdentityElement().ScalarMult(dS, qR)

	s := sponge(domain, ristretto255.NewIdentityElement().ScalarBaseMult(dS).Bytes(), qR.Bytes(), qE.Bytes(), ssE.Bytes(), ssS.Bytes())
	ciphertext := s.Encrypt(nil, plaintext)
	s.Commit()
	tag := s.Squeeze(duplex.MacSize)

	out := make([]byte, 0, 32+len(ciphertext)+duplex.MacSize)
	out = append(out, qE.Bytes()...)
	out = append(out, ciphertext...)
	out = append(out, tag...)
	return out, nil
}

// Open decapsulates a ciphertext produced by Seal.
func Open(domain string, dR *ristretto255.Scalar, qS *ristretto255.Element, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < Overhead {
		return nil, ErrDecapFailed
	}

	qE, err := ristretto255.NewIdentityElement().SetCanonicalBytes(ciphertext[:32])
	if err != nil || qE == nil {
		return nil, ErrDecapFailed
	}

	body := ciphertext[32 : len(ciphertext)-duplex.MacSize]
	wantTag := ciphertext[len(ciphertext)-duplex.MacSize:]

	ssE := ristretto255.NewIdentityElement().ScalarMult(dR, qE)
	ssS := ristretto255.NewIdentityElement().ScalarMult(dR, qS)

	s := sponge(domain, qS.Bytes(), ristretto255.NewIdentityElement().ScalarBaseMult(dR).Bytes(), qE.Bytes(), ssE.Bytes(), ssS.Bytes())
	plaintext := s.Decrypt(nil, body)
	s.Commit()
	gotTag := s.Squeeze(duplex.MacSize)

	if subtle.ConstantTimeCompare(gotTag, wantTag) != 1 {
		return nil, ErrDecapFailed
	}
	return plaintext, nil
}

func sponge(domain string, senderPub, receiverPub, ephemeralPub, ssE, ssS []byte) *duplex.Sponge {
	s := duplex.New()
	s.Absorb([]byte(domain))
	s.Absorb([]byte("sender"))
	s.Absorb(senderPub)
	s.Absorb([]byte("receiver"))
	s.Absorb(receiverPub)
	s.Absorb([]byte("ephemeral"))
	s.Absorb(ephemeralPub)
	s.Absorb([]byte("ephemeral ecdh"))
	s.Absorb(ssE)
	s.Absorb([]byte("static ecdh"))
	s.Absorb(ssS)
	s.Absorb([]byte("message"))
	s.Commit()
	return s
}
