// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// Algorithm names a supported hash function.
type Algorithm string

const (
	MD5     Algorithm = "md5"
	SHA256  Algorithm = "sha256"
	BLAKE3  Algorithm = "blake3"
	BLAKE2b Algorithm = "blake2b"
)

// size returns the digest length in bytes, or 0 for an unknown
// algorithm.
func (a Algorithm) size() int {
	switch a {
	case MD5:
		return md5.Size
	case SHA256:
		return sha256.Size
	case BLAKE3:
		return 32
	case BLAKE2b:
		return blake2b.Size256
	default:
		return 0
	}
}

// New returns a fresh hash.Hash for the algorithm.
func (a Algorithm) New() (hash.Hash, error) {
	switch a {
	case MD5:
		return md5.New(), nil
	case SHA256:
		return sha256.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	case BLAKE2b:
		return blake2b.New256(nil)
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q", string(a))
	}
}

// Digest is an algorithm plus the lowercase hex encoding of the sum.
type Digest struct {
	Algorithm Algorithm
	Hex       string
}

// String returns the canonical "algorithm:hex" form.
func (d Digest) String() string {
	return string(d.Algorithm) + ":" + d.Hex
}

// IsZero reports whether d is the zero Digest.
func (d Digest) IsZero() bool {
	return d.Algorithm == "" && d.Hex == ""
}

// Equal reports whether two digests use the same algorithm and sum.
func (d Digest) Equal(other Digest) bool {
	return d.Algorithm == other.Algorithm && d.Hex == other.Hex
}

// MarshalText writes the "algorithm:hex" form. The zero Digest
// marshals as empty text.
func (d Digest) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return nil, nil
	}
	return []byte(d.String()), nil
}

// UnmarshalText parses text with Parse. Empty text yields the zero
// Digest.
func (d *Digest) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = Digest{}
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Parse parses "algorithm:hex" or a bare hex string (md5 for 32
// characters, sha256 for 64). The hex part is lowercased and its
// length is validated against the algorithm.
func Parse(value string) (Digest, error) {
	value = strings.TrimSpace(value)
	var algorithm Algorithm
	encoded := value
	if name, rest, found := strings.Cut(value, ":"); found {
		algorithm = Algorithm(strings.ToLower(name))
		encoded = rest
	} else {
		switch len(value) {
		case 2 * md5.Size:
			algorithm = MD5
		case 2 * sha256.Size:
			algorithm = SHA256
		default:
			return Digest{}, fmt.Errorf("digest %q has no algorithm prefix and is not an md5 or sha256 hex string", value)
		}
	}

	size := algorithm.size()
	if size == 0 {
		return Digest{}, fmt.Errorf("unsupported digest algorithm %q", string(algorithm))
	}
	encoded = strings.ToLower(encoded)
	decoded, err := hex.DecodeString(encoded)
	if err != nil {
		return Digest{}, fmt.Errorf("parsing %s digest: %w", algorithm, err)
	}
	if len(decoded) != size {
		return Digest{}, fmt.Errorf("%s digest is %d bytes, want %d", algorithm, len(decoded), size)
	}
	return Digest{Algorithm: algorithm, Hex: encoded}, nil
}

// MustParse is Parse for package-level constants. It panics on error.
func MustParse(value string) Digest {
	parsed, err := Parse(value)
	if err != nil {
		panic("digest: " + err.Error())
	}
	return parsed
}

// Sum computes the digest of everything read from reader.
func Sum(algorithm Algorithm, reader io.Reader) (Digest, error) {
	hasher, err := algorithm.New()
	if err != nil {
		return Digest{}, err
	}
	if _, err := io.Copy(hasher, reader); err != nil {
		return Digest{}, err
	}
	return FromSum(algorithm, hasher.Sum(nil)), nil
}

// FromSum wraps a raw hash sum produced by algorithm.
func FromSum(algorithm Algorithm, sum []byte) Digest {
	return Digest{Algorithm: algorithm, Hex: hex.EncodeToString(sum)}
}

// Bytes computes the digest of data.
func Bytes(algorithm Algorithm, data []byte) (Digest, error) {
	return Sum(algorithm, bytes.NewReader(data))
}

// HashFile computes the digest of the file at path by streaming it
// through the hash.
func HashFile(algorithm Algorithm, path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	result, err := Sum(algorithm, file)
	if err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	return result, nil
}
