package ddml

// Uint8 is a one-byte tag value, used for small discriminators such as an identifier's variant tag.
type Uint8 byte

// Size is a non-negative integer transferred on the wire as a variable-length (LEB128/uvarint) prefix, per
// spec.md §3: "upper bound is implementation-defined (≥ 2^64 − 1 for 64-bit targets)". It is used both as a
// standalone count (e.g. the number of PSK/public-key recipients in a Keyload) and as Repeated's loop bound.
type Size uint64

// MacSize-equivalent constants, NBytes<N>, Bytes, External<T>, and Mac(n) from spec.md §3 are not modeled as
// distinct Go types here. NBytes<N> and Bytes are just caller-sized []byte buffers passed to Absorb/Mask/SkipBytes
// (the buffer's length *is* N, or for Bytes a length read via a preceding SkipSize); External<T> and Mac(n) are
// modeled as distinct operator methods (AbsorbExternal/SqueezeExternal/SqueezeMac) rather than wrapper types,
// since in Go the operator name already carries the distinction and a generic wrapper type would buy nothing.
