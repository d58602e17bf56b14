package cryptostream

import (
	"crypto/cipher"
	"crypto/md5"
	"encoding/binary"
)

// tableStream implements the "table" method: a 256-byte permutation of the
// byte alphabet seeded from MD5(password), applied as a byte-wise lookup.
// It carries no per-connection state beyond the table itself, so the same
// table value serves every call to XORKeyStream regardless of position.
type tableStream struct {
	table [256]byte
}

// buildTable derives the forward permutation from the password by seeding a
// splitmix64 generator with the low 8 bytes of MD5(password) and running a
// Fisher-Yates shuffle over the identity permutation.
func buildTable(password []byte) [256]byte {
	sum := md5.Sum(password)
	state := binary.LittleEndian.Uint64(sum[:8])

	next := func() uint64 {
		state += 0x9E3779B97F4A7C15
		z := state
		z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
		z = (z ^ (z >> 27)) * 0x94D049BB133111EB
		return z ^ (z >> 31)
	}

	var table [256]byte
	for i := range table {
		table[i] = byte(i)
	}
	for i := 255; i > 0; i-- {
		j := int(next() % uint64(i+1))
		table[i], table[j] = table[j], table[i]
	}
	return table
}

func invertTable(table [256]byte) [256]byte {
	var inv [256]byte
	for i, v := range table {
		inv[v] = byte(i)
	}
	return inv
}

func (t *tableStream) XORKeyStream(dst, src []byte) {
	for i, b := range src {
		dst[i] = t.table[b]
	}
}

func newTableStream(key, _ []byte, dir Direction) (cipher.Stream, error) {
	fwd := buildTable(key)
	if dir == Encrypt {
		return &tableStream{table: fwd}, nil
	}
	return &tableStream{table: invertTable(fwd)}, nil
}

// dummyStream is the identity transform, used for testing the relay
// machinery without paying for real cryptography.
type dummyStream struct{}

func (dummyStream) XORKeyStream(dst, src []byte) { copy(dst, src) }

func newDummyStream(_, _ []byte, _ Direction) (cipher.Stream, error) {
	return dummyStream{}, nil
}
