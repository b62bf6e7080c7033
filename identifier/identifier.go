// Package identifier implements the DDML tagged-union recipient identifier codec (spec.md §4.5): a one-byte
// variant tag followed by the variant's body, with the whole thing masked (confidential + authenticated) rather
// than absorbed in the clear.
//
// The raw recipient-id fields inside a Keyload are masked the same way (see keyload's doc comment); this codec is
// for identities that appear elsewhere in the surrounding protocol (e.g. an author or subscriber's public identity
// in a channel announcement) and need the same tagged-union framing.
package identifier

import (
	"github.com/gtank/ristretto255"

	"github.com/streamwrap/ddml/ddml"
)

// Variant tags.
const (
	TagPubKey      = 0
	TagPskID       = 1
	TagReservedDID = 2 // reserved; unwrap must reject it (spec.md open question 3).
)

// PubKeySize is the encoded length, in bytes, of a Ristretto255 public key.
const PubKeySize = 32

// PskIDSize is the length, in bytes, of a pre-shared-key identifier (spec.md §3: "27-tryte / 17-byte id").
const PskIDSize = 17

// PskID identifies a pre-shared key.
type PskID [PskIDSize]byte

// Identifier is a tagged union of the ways a recipient can be named: by their public key, or by a pre-shared-key
// identifier. A future DID variant is reserved at tag 2 but not implemented; unwrap rejects it like any other
// unknown tag.
type Identifier struct {
	Tag    byte
	PubKey *ristretto255.Element // set iff Tag == TagPubKey
	PskID  PskID                 // set iff Tag == TagPskID
}

// FromPubKey returns an Identifier naming a public-key recipient.
func FromPubKey(pk *ristretto255.Element) Identifier {
	return Identifier{Tag: TagPubKey, PubKey: pk}
}

// FromPskID returns an Identifier naming a pre-shared-key recipient.
func FromPskID(id PskID) Identifier {
	return Identifier{Tag: TagPskID, PskID: id}
}

// Wrap masks this identifier's tag and body onto ctx.
func (id Identifier) Wrap(ctx ddml.Context) error {
	tag := [1]byte{id.Tag}
	if err := ctx.Mask(tag[:]); err != nil {
		return err
	}
	switch id.Tag {
	case TagPubKey:
		body := append([]byte(nil), id.PubKey.Bytes()...)
		return ctx.Mask(body)
	case TagPskID:
		body := append([]byte(nil), id.PskID[:]...)
		return ctx.Mask(body)
	default:
		return ddml.ErrBadOneof
	}
}

// Unwrap reads and unmasks an Identifier from ctx, rejecting unknown tags (including the reserved DID tag 2)
// with ddml.ErrBadOneof.
func Unwrap(ctx ddml.Context) (Identifier, error) {
	var tag [1]byte
	if err := ctx.Mask(tag[:]); err != nil {
		return Identifier{}, err
	}
	switch tag[0] {
	case TagPubKey:
		var pkBytes [PubKeySize]byte
		if err := ctx.Mask(pkBytes[:]); err != nil {
			return Identifier{}, err
		}
		pk, err := ristretto255.NewIdentityElement().SetCanonicalBytes(pkBytes[:])
		if err != nil {
			return Identifier{}, ddml.ErrBadOneof
		}
		return Identifier{Tag: TagPubKey, PubKey: pk}, nil
	case TagPskID:
		var id PskID
		if err := ctx.Mask(id[:]); err != nil {
			return Identifier{}, err
		}
		return Identifier{Tag: TagPskID, PskID: id}, nil
	default:
		return Identifier{}, ddml.ErrBadOneof
	}
}
