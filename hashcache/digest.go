package hashcache

import (
	"crypto/md5"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"strings"

	"imagemanager/types"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"github.com/spaolacci/murmur3"
)

// DigestAlgorithm names a content fingerprint function
type DigestAlgorithm string

const (
	DigestMD5     DigestAlgorithm = "md5"
	DigestMurmur3 DigestAlgorithm = "murmur3"
	DigestXXHash  DigestAlgorithm = "xxhash"
)

// ParseDigestAlgorithm validates a digest algorithm name
func ParseDigestAlgorithm(name string) (DigestAlgorithm, error) {
	switch a := DigestAlgorithm(strings.ToLower(name)); a {
	case DigestMD5, DigestMurmur3, DigestXXHash:
		return a, nil
	}
	return "", errors.Errorf("unknown digest algorithm %q", name)
}

func (a DigestAlgorithm) newHash() hash.Hash {
	switch a {
	case DigestMurmur3:
		return murmur3.New128()
	case DigestXXHash:
		return xxhash.New()
	default:
		return md5.New()
	}
}

// Digest fingerprints the bytes read from r
func (a DigestAlgorithm) Digest(r io.Reader) (types.ContentDigest, error) {
	h := a.newHash()
	if _, err := io.Copy(h, r); err != nil {
		return "", errors.Wrap(err, "read content")
	}
	name := a
	if name == "" {
		name = DigestMD5
	}
	return types.ContentDigest(string(name) + ":" + hex.EncodeToString(h.Sum(nil))), nil
}

// DigestFile fingerprints the file at path
func DigestFile(path string, algo DigestAlgorithm) (types.ContentDigest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	d, err := algo.Digest(f)
	return d, errors.Wrapf(err, "digest %s", path)
}
