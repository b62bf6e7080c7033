package ddml

import (
	"errors"
	"fmt"
)

// ErrShortBuffer is returned when a stream runs out of bytes mid-operator.
var ErrShortBuffer = errors.New("ddml: short buffer")

// ErrLinkNotFound is returned by Join when the link store has no entry for the requested link.
var ErrLinkNotFound = errors.New("ddml: link not found")

// ErrBadOneof is returned when a tagged-union discriminator names a variant the reader does not understand.
var ErrBadOneof = errors.New("ddml: unknown oneof tag")

// ErrBadMAC is returned when an inline squeeze(Mac(n)) tag fails to verify.
var ErrBadMAC = errors.New("ddml: bad MAC")

// ErrBadSignature is returned when an mssig verification fails.
var ErrBadSignature = errors.New("ddml: bad signature")

// ErrKEMDecapFailed is returned when a KEM decapsulation is rejected.
var ErrKEMDecapFailed = errors.New("ddml: KEM decapsulation failed")

// ErrMalformedSize is returned when a variable-length Size prefix cannot be decoded (too many continuation bytes,
// or the stream ran out mid-prefix in a way TryAdvance's own ErrShortBuffer didn't already report).
var ErrMalformedSize = errors.New("ddml: malformed size prefix")

// ErrGuard is the sentinel wrapped by a failed Guard call; use errors.Is against it, the formatted message carries
// the specific guard text.
var ErrGuard = errors.New("ddml: guard failed")

// guardError formats a Guard failure so errors.Is(err, ErrGuard) succeeds while the message is still visible.
func guardError(msg string) error {
	return fmt.Errorf("%w: %s", ErrGuard, msg)
}
