package storage

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/xerrors"
)

// NameGenerator maps a cache key to a file name.
// The mapping must be a pure function of the key.
type NameGenerator interface {
	GetName() string
	GenerateName(key string) string
}

type hashNameGenerator struct {
	name string
	hash func(data []byte) []byte
}

func (generator *hashNameGenerator) GetName() string {
	return generator.name
}

func (generator *hashNameGenerator) GenerateName(key string) string {
	return hex.EncodeToString(generator.hash([]byte(key)))
}

// NewMD5NameGenerator creates a generator producing hex md5 names
func NewMD5NameGenerator() NameGenerator {
	return &hashNameGenerator{
		name: "md5",
		hash: func(data []byte) []byte {
			sum := md5.Sum(data)
			return sum[:]
		},
	}
}

// NewSHA1NameGenerator creates a generator producing hex sha1 names
func NewSHA1NameGenerator() NameGenerator {
	return &hashNameGenerator{
		name: "sha1",
		hash: func(data []byte) []byte {
			sum := sha1.Sum(data)
			return sum[:]
		},
	}
}

// NewSHA256NameGenerator creates a generator producing hex sha256 names
func NewSHA256NameGenerator() NameGenerator {
	return &hashNameGenerator{
		name: "sha256",
		hash: func(data []byte) []byte {
			sum := sha256.Sum256(data)
			return sum[:]
		},
	}
}

// NewSHA384NameGenerator creates a generator producing hex sha384 names
func NewSHA384NameGenerator() NameGenerator {
	return &hashNameGenerator{
		name: "sha384",
		hash: func(data []byte) []byte {
			sum := sha512.Sum384(data)
			return sum[:]
		},
	}
}

// NewSHA512NameGenerator creates a generator producing hex sha512 names
func NewSHA512NameGenerator() NameGenerator {
	return &hashNameGenerator{
		name: "sha512",
		hash: func(data []byte) []byte {
			sum := sha512.Sum512(data)
			return sum[:]
		},
	}
}

// NewBLAKE3NameGenerator creates a generator producing hex blake3 names
func NewBLAKE3NameGenerator() NameGenerator {
	return &hashNameGenerator{
		name: "blake3",
		hash: func(data []byte) []byte {
			sum := blake3.Sum256(data)
			return sum[:]
		},
	}
}

// NewNameGenerator returns a generator by its configured name, empty means sha1
func NewNameGenerator(name string) (NameGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "md5":
		return NewMD5NameGenerator(), nil
	case "sha1", "":
		return NewSHA1NameGenerator(), nil
	case "sha256":
		return NewSHA256NameGenerator(), nil
	case "sha384":
		return NewSHA384NameGenerator(), nil
	case "sha512":
		return NewSHA512NameGenerator(), nil
	case "blake3":
		return NewBLAKE3NameGenerator(), nil
	default:
		return nil, xerrors.Errorf("unknown name generator %q", name)
	}
}
