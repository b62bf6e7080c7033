package signed_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gtank/ristretto255"

	"github.com/streamwrap/ddml/ddml"
	"github.com/streamwrap/ddml/signed"
)

func keyPair(b byte) (*ristretto255.Scalar, *ristretto255.Element) {
	seed := make([]byte, 64)
	for i := range seed {
		seed[i] = b
	}
	sk, err := ristretto255.NewScalar().SetUniformBytes(seed)
	if err != nil {
		panic(err)
	}
	return sk, ristretto255.NewIdentityElement().ScalarBaseMult(sk)
}

func TestSignedPacketRoundTrip(t *testing.T) {
	sk, pk := keyPair(0x5A)
	p := signed.WrapParams{
		Payload: []byte("a message the sender vouches for"),
		Signer:  sk,
		Rand:    []byte("fixed-hedge-for-test-determinism"),
	}

	data, err := signed.Wrap(p)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if len(data) != signed.Size(p) {
		t.Fatalf("len(data) = %d, want %d", len(data), signed.Size(p))
	}

	res, err := signed.Unwrap(data, pk)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if !bytes.Equal(res.Payload, p.Payload) {
		t.Fatalf("Payload = %q, want %q", res.Payload, p.Payload)
	}
}

func TestSignedPacketWrongVerifierFails(t *testing.T) {
	sk, _ := keyPair(0x01)
	_, wrongPK := keyPair(0x02)
	p := signed.WrapParams{Payload: []byte("payload"), Signer: sk}

	data, err := signed.Wrap(p)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if _, err := signed.Unwrap(data, wrongPK); !errors.Is(err, ddml.ErrBadSignature) {
		t.Fatalf("Unwrap with wrong verifier: err = %v, want ErrBadSignature", err)
	}
}

func TestSignedPacketTamperedPayloadFails(t *testing.T) {
	sk, pk := keyPair(0x03)
	p := signed.WrapParams{Payload: []byte("untampered payload here"), Signer: sk}

	data, err := signed.Wrap(p)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	data[1] ^= 0xFF // corrupt the first payload byte, right after the one-byte size prefix

	if _, err := signed.Unwrap(data, pk); !errors.Is(err, ddml.ErrBadSignature) {
		t.Fatalf("Unwrap after tamper: err = %v, want ErrBadSignature", err)
	}
}

func TestSignedPacketEmptyPayload(t *testing.T) {
	sk, pk := keyPair(0x04)
	p := signed.WrapParams{Signer: sk}

	data, err := signed.Wrap(p)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	res, err := signed.Unwrap(data, pk)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if len(res.Payload) != 0 {
		t.Fatalf("Payload = %q, want empty", res.Payload)
	}
}
