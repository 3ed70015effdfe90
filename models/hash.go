package models

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const HashLength = 32

// Hash identifies a transaction everywhere in the DAG
type Hash [HashLength]byte

// HashOf derives a transaction identifier from arbitrary bytes
func HashOf(data ...[]byte) Hash {
	h, _ := blake2b.New256(nil)
	for _, d := range data {
		h.Write(d)
	}
	var ret Hash
	copy(ret[:], h.Sum(nil))
	return ret
}

// HashFromHex parses the hex representation produced by Hash.String
func HashFromHex(s string) (Hash, error) {
	var ret Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return ret, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	if len(b) != HashLength {
		return ret, fmt.Errorf("invalid hash %q: expected %d bytes, got %d", s, HashLength, len(b))
	}
	copy(ret[:], b)
	return ret, nil
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short is used in log lines
func (h Hash) Short() string {
	return h.String()[:8]
}

func (h Hash) Less(other Hash) bool {
	return bytes.Compare(h[:], other[:]) < 0
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := HashFromHex(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
