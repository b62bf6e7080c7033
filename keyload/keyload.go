// Package keyload implements the Keyload message content codec (spec.md §4.4): the hardest concrete DDML message
// type, distributing one session key to a set of recipients named either by a pre-shared key or by a public key,
// using nested forks so that every recipient's entry is independently encrypted while still authenticated by one
// shared running sponge.
//
// Keyload ids (pskid and public-key id) are masked, not absorbed: each recipient fork calls Mask on its id just
// like it masks the key material that follows. spec.md §4.5's note 1 ("Keys identities are not encrypted and may
// be linked to recipients identities") is still a known, intentional property of the wire format this package
// preserves exactly, but the leak isn't from skipping encryption — every recipient fork branches from the identical
// parent sponge state at the fork point, so the mask keystream at that offset is the same for every entry, and an
// observer who can guess or brute-force one id can recognize the others by their position and ciphertext pattern
// rather than by reading plaintext. Keyload is also deliberately left unsigned; per spec.md's Open Question 2,
// sender authentication is layered on separately by the sibling signed package.
package keyload

import (
	"errors"

	"github.com/gtank/ristretto255"

	"github.com/streamwrap/ddml/ddml"
	"github.com/streamwrap/ddml/hazmat/duplex"
	"github.com/streamwrap/ddml/hazmat/kem"
	"github.com/streamwrap/ddml/hazmat/kt128"
	"github.com/streamwrap/ddml/identifier"
	"github.com/streamwrap/ddml/link"
	"github.com/streamwrap/ddml/prng"
	"github.com/streamwrap/ddml/stream"
)

// TypeString is the fixed message-type string a channel envelope uses to identify a Keyload (spec.md §6.2). It is
// not itself part of the operator sequence's wire bytes: like the rest of envelope/session bookkeeping, the type
// string lives one layer up, outside this core codec (spec.md §1's "higher-level user/session state").
const TypeString = "STREAMS9CHANNEL9KEYLOAD"

// PKIDSize is the length, in bytes, of a public-key recipient's identifier (spec.md §6.4: "a fixed-size digest of
// the public key").
const PKIDSize = 32

// EKeySize is the fixed wire length of one ntrukem-encapsulated session key.
const EKeySize = kem.Overhead + duplex.KeySize

// The two distinct drop byte counts spec.md's Open Question 1 calls out. Both are real and both are needed:
// dropRemainderAfterPSKIDMask runs *inside* a fork, after mask(pskid) has already consumed PskIDSize bytes, so
// only the remainder of that fork's wire bytes (skip the external absorb and commit, which cost nothing on the
// wire, down to the masked key) needs dropping. dropWholePSKEntry runs *outside* any fork, for an entry scanned
// after the key was already found elsewhere, so the pskid itself still needs dropping too.
const (
	dropRemainderAfterPSKIDMask = duplex.KeySize
	dropWholePSKEntry           = identifier.PskIDSize + dropRemainderAfterPSKIDMask

	dropRemainderAfterPKIDMask = EKeySize
	dropWholePKEntry           = PKIDSize + dropRemainderAfterPKIDMask
)

// ErrMissingRand is returned by Wrap when the message has one or more public-key recipients but no randomness
// source was supplied to drive their encapsulations.
var ErrMissingRand = errors.New("keyload: public-key recipients require a randomness source")

// PSKRecipient is one pre-shared-key entry: an id the unwrapper's lookup can recognize, and the shared secret
// itself.
type PSKRecipient struct {
	ID  identifier.PskID
	PSK [duplex.KeySize]byte
}

// PKRecipient is one public-key entry.
type PKRecipient struct {
	ID     [PKIDSize]byte
	PubKey *ristretto255.Element
}

// DerivePKID computes a public-key recipient's wire identifier as a KT128 digest of its encoded point, the
// concrete "fixed-size digest of the public key" spec.md §6.4 calls for.
func DerivePKID(pub *ristretto255.Element) [PKIDSize]byte {
	h := kt128.New()
	_, _ = h.Write(pub.Bytes())
	var id [PKIDSize]byte
	copy(id[:], h.Sum(nil))
	return id
}

// WrapParams collects everything Wrap needs to build one Keyload message.
type WrapParams struct {
	Store link.Store
	Link  link.Rel // the prior message this Keyload joins.

	Nonce [duplex.NonceSize]byte
	Key   [duplex.KeySize]byte

	PSKs []PSKRecipient
	PKs  []PKRecipient

	// AuthorPriv is the sender's static key, used to bind every ntrukem encapsulation to this author's identity.
	AuthorPriv *ristretto255.Scalar

	// Rand supplies fresh encapsulation randomness, one 64-byte draw per PK recipient. Required iff len(PKs) > 0.
	Rand *prng.Source
}

// Size returns the number of wire bytes Wrap(p) would produce, without encrypting or encapsulating anything. When
// p.Rand is set, it still takes one draw from it per public-key recipient, as Wrap does.
func Size(p WrapParams) int {
	if p.Rand == nil {
		p.Rand = prng.New([]byte("keyload-size-pass"))
	}
	sc := ddml.NewSizeContext()
	_ = wrapSequence(sc, &p)
	return sc.Size()
}

// Wrap serializes and authenticates a Keyload message per spec.md §4.4's wire layout.
func Wrap(p WrapParams) ([]byte, error) {
	if len(p.PKs) > 0 && p.Rand == nil {
		return nil, ErrMissingRand
	}
	buf := make([]byte, Size(p))
	w := ddml.NewWrapContext(duplex.New(), stream.NewSliceWriter(buf))
	if err := wrapSequence(w, &p); err != nil {
		return nil, err
	}
	return buf, nil
}

// wrapSequence is the §4.4 wire layout, written once so both Size (via a SizeContext) and Wrap (via a
// WrapContext) run the exact same sequence of operator calls.
func wrapSequence(ctx ddml.Context, p *WrapParams) error {
	rel := p.Link
	if err := ctx.Join(p.Store, &rel); err != nil {
		return err
	}

	if err := ctx.Absorb(p.Nonce[:]); err != nil {
		return err
	}

	npsks := ddml.Size(len(p.PSKs))
	if err := ctx.SkipSize(&npsks); err != nil {
		return err
	}
	for _, r := range p.PSKs {
		r := r
		if err := ctx.Fork(func(inner ddml.Context) error {
			if err := inner.Mask(r.ID[:]); err != nil {
				return err
			}
			if err := inner.AbsorbExternal(r.PSK[:]); err != nil {
				return err
			}
			inner.Commit()
			return inner.Mask(p.Key[:])
		}); err != nil {
			return err
		}
	}

	npks := ddml.Size(len(p.PKs))
	if err := ctx.SkipSize(&npks); err != nil {
		return err
	}
	for _, r := range p.PKs {
		r := r
		if err := ctx.Fork(func(inner ddml.Context) error {
			if err := inner.Mask(r.ID[:]); err != nil {
				return err
			}
			rnd := p.Rand.Next(64)
			key := p.Key
			return inner.KEMWrap(p.AuthorPriv, r.PubKey, rnd, key[:])
		}); err != nil {
			return err
		}
	}

	if err := ctx.AbsorbExternal(p.Key[:]); err != nil {
		return err
	}
	ctx.Commit()
	return nil
}

// LookupPSK returns the pre-shared key for id, if the caller recognizes it.
type LookupPSK func(id identifier.PskID) (psk [duplex.KeySize]byte, ok bool)

// LookupSK returns the secret key owning the public-key identifier id, if the caller holds it.
type LookupSK func(id [PKIDSize]byte) (sk *ristretto255.Scalar, ok bool)

// UnwrapParams collects everything Unwrap needs to parse and recover a key from one Keyload message.
type UnwrapParams struct {
	Store     link.Store
	LookupPSK LookupPSK
	LookupSK  LookupSK
	AuthorPub *ristretto255.Element
}

// Result is what a successful Unwrap recovers.
type Result struct {
	Link  link.Rel
	Nonce [duplex.NonceSize]byte
	Key   [duplex.KeySize]byte
}

// Unwrap parses data as a Keyload message, running the §4.4 unwrap state machine: it scans the pre-shared-key
// list, then the public-key list, stopping at the first recipient either lookup recognizes, but structurally
// draining every remaining entry so the consumed byte count always equals Size's prediction regardless of which
// recipient (if any) matched. It fails with ddml.ErrGuard (message "Key not found") if no recipient matches.
func Unwrap(data []byte, p UnwrapParams) (Result, error) {
	u := ddml.NewUnwrapContext(duplex.New(), stream.NewSliceReader(data))

	var res Result
	if err := u.Join(p.Store, &res.Link); err != nil {
		return Result{}, err
	}
	if err := u.Absorb(res.Nonce[:]); err != nil {
		return Result{}, err
	}

	var npsks ddml.Size
	if err := u.SkipSize(&npsks); err != nil {
		return Result{}, err
	}

	keyFound := false
	for i := 0; i < int(npsks); i++ {
		if !keyFound {
			if err := u.Fork(func(inner ddml.Context) error {
				var id identifier.PskID
				if err := inner.Mask(id[:]); err != nil {
					return err
				}
				if psk, ok := p.LookupPSK(id); ok {
					if err := inner.AbsorbExternal(psk[:]); err != nil {
						return err
					}
					inner.Commit()
					if err := inner.Mask(res.Key[:]); err != nil {
						return err
					}
					keyFound = true
					return nil
				}
				return inner.Drop(dropRemainderAfterPSKIDMask)
			}); err != nil {
				return Result{}, err
			}
		} else if err := u.Drop(dropWholePSKEntry); err != nil {
			return Result{}, err
		}
	}

	var npks ddml.Size
	if err := u.SkipSize(&npks); err != nil {
		return Result{}, err
	}

	for i := 0; i < int(npks); i++ {
		if !keyFound {
			if err := u.Fork(func(inner ddml.Context) error {
				var id [PKIDSize]byte
				if err := inner.Mask(id[:]); err != nil {
					return err
				}
				if sk, ok := p.LookupSK(id); ok {
					if err := inner.KEMUnwrap(sk, p.AuthorPub, res.Key[:]); err != nil {
						return err
					}
					keyFound = true
					return nil
				}
				return inner.Drop(dropRemainderAfterPKIDMask)
			}); err != nil {
				return Result{}, err
			}
		} else if err := u.Drop(dropWholePKEntry); err != nil {
			return Result{}, err
		}
	}

	if err := u.Guard(keyFound, "Key not found"); err != nil {
		return Result{}, err
	}
	if err := u.AbsorbExternal(res.Key[:]); err != nil {
		return Result{}, err
	}
	u.Commit()
	return res, nil
}
