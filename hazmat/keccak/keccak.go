// Package keccak provides a portable implementation of the Keccak-p[1600,12] permutation.
package keccak

import "encoding/binary"

// Lanes is the number of permutations this package can perform in parallel. This is the portable build, with no SIMD
// acceleration, so it is always 1.
var Lanes = 1

// rounds is the number of rounds applied by P1600: Keccak-p[1600, 12], not the full 24-round Keccak-f[1600].
const rounds = 12

// rc holds the 24 Keccak-f[1600] round constants. Keccak-p[1600, nr] uses only the last nr of them.
var rc = [24]uint64{
	0x0000000000000001, 0x0000000000008082, 0x800000000000808A, 0x8000000080008000,
	0x000000000000808B, 0x0000000080000001, 0x8000000080008081, 0x8000000000008009,
	0x000000000000008A, 0x0000000000000088, 0x0000000080008009, 0x000000008000000A,
	0x000000008000808B, 0x800000000000008B, 0x8000000000008089, 0x8000000000008003,
	0x8000000000008002, 0x8000000000000080, 0x000000000000800A, 0x800000008000000A,
	0x8000000080008081, 0x8000000000008080, 0x0000000080000001, 0x8000000080008008,
}

// rotc and piln encode the rho and pi steps: piln[i] is the lane that receives the i'th rotated value, rotated by
// rotc[i] bits.
var rotc = [24]uint{1, 3, 6, 10, 15, 21, 28, 36, 45, 55, 2, 14, 27, 41, 56, 8, 25, 43, 62, 18, 39, 61, 20, 44}
var piln = [24]uint{10, 7, 11, 17, 18, 3, 5, 16, 8, 21, 24, 4, 15, 23, 19, 13, 12, 2, 20, 14, 22, 9, 6, 1}

// P1600 applies the Keccak-p[1600, 12] permutation to the state.
func P1600(state *[200]byte) {
	f1600Generic(state, rounds)
}

// P1600x2 applies the Keccak-p[1600, 12] permutation to the two states sequentially. There is no SIMD-accelerated
// path in this build; the x2/x4 entry points exist so callers (hazmat/treewrap) don't need two code paths depending on
// whether acceleration is available.
func P1600x2(state1, state2 *[200]byte) {
	f1600Generic(state1, rounds)
	f1600Generic(state2, rounds)
}

// P1600x4 applies the Keccak-p[1600, 12] permutation to the four states sequentially.
func P1600x4(state1, state2, state3, state4 *[200]byte) {
	f1600Generic(state1, rounds)
	f1600Generic(state2, rounds)
	f1600Generic(state3, rounds)
	f1600Generic(state4, rounds)
}

// f1600Generic applies the last n rounds of the Keccak-f[1600] permutation, per the Keccak-p[1600,n] definition, to
// the byte-serialized state.
func f1600Generic(a *[200]byte, n int) {
	var st [25]uint64
	for i := range st {
		st[i] = binary.LittleEndian.Uint64(a[i*8 : i*8+8])
	}

	for round := 24 - n; round < 24; round++ {
		// Theta
		var bc [5]uint64
		for i := 0; i < 5; i++ {
			bc[i] = st[i] ^ st[i+5] ^ st[i+10] ^ st[i+15] ^ st[i+20]
		}
		for i := 0; i < 5; i++ {
			t := bc[(i+4)%5] ^ rotl64(bc[(i+1)%5], 1)
			for j := 0; j < 25; j += 5 {
				st[j+i] ^= t
			}
		}

		// Rho and pi
		t := st[1]
		for i := 0; i < 24; i++ {
			j := piln[i]
			bc[0] = st[j]
			st[j] = rotl64(t, rotc[i])
			t = bc[0]
		}

		// Chi
		for j := 0; j < 25; j += 5 {
			for i := 0; i < 5; i++ {
				bc[i] = st[j+i]
			}
			for i := 0; i < 5; i++ {
				st[j+i] ^= ^bc[(i+1)%5] & bc[(i+2)%5]
			}
		}

		// Iota
		st[0] ^= rc[round]
	}

	for i := range st {
		binary.LittleEndian.PutUint64(a[i*8:i*8+8], st[i])
	}
}

func rotl64(x uint64, n uint) uint64 {
	return x<<n | x>>(64-n)
}
