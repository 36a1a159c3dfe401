package common

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Digest algorithms accepted by NewHasher.
const (
	AlgoSHA256 = "sha256"
	AlgoBLAKE3 = "blake3"
)

func newHash(algo string) (hash.Hash, error) {
	switch algo {
	case "", AlgoSHA256:
		return sha256.New(), nil
	case AlgoBLAKE3:
		return blake3.New(), nil
	}
	return nil, fmt.Errorf("unknown digest algorithm %q", algo)
}

type Hasher struct {
	h hash.Hash
}

func NewHasher(algo string) (*Hasher, error) {
	h, err := newHash(algo)
	if err != nil {
		return nil, err
	}
	return &Hasher{h: h}, nil
}

func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

func (h *Hasher) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

// DigestOfFile returns the hex digest and size of the file at path.
func DigestOfFile(path, algo string) (string, int64, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), n, nil
}

func DigestOfBytes(b []byte, algo string) (string, error) {
	h, err := NewHasher(algo)
	if err != nil {
		return "", err
	}
	h.Write(b)
	return h.Sum(), nil
}
