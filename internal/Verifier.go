package internal

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// VerifyBytes computes the SHA-256 digest of data and compares it byte for
// byte against the manifest-declared digest. Treating an empty expected
// digest as "verification not required" is the caller's rule; this
// function always compares what it is given.
func VerifyBytes(data []byte, expected []byte) bool {
	sum := sha256.Sum256(data)
	return bytes.Equal(sum[:], expected)
}

// VerifyFile computes the SHA-256 digest over the full content of the file
// at path and compares it against the manifest-declared digest.
func VerifyFile(path string, expected []byte) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, WrapError(KindDisk, err, "failed to open %s for verification", path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, WrapError(KindDisk, err, "failed to hash %s", path)
	}
	return bytes.Equal(h.Sum(nil), expected), nil
}

// VerifyWeakHash checks data against a hex-encoded xxh64 from the
// manifest's legacy weak-hash list. Unparseable expected values fail the
// check rather than passing it.
func VerifyWeakHash(data []byte, expectedHex string) bool {
	expected, err := hex.DecodeString(expectedHex)
	if err != nil || len(expected) != 8 {
		return false
	}
	h := xxhash.New()
	h.Write(data)
	return bytes.Equal(h.Sum(nil), expected)
}

// HexDigest renders a digest for log output.
func HexDigest(digest []byte) string {
	return hex.EncodeToString(digest)
}
