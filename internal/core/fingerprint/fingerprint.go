// Package fingerprint computes stable content identities for ingested
// documents: a SHA-256 content hash used as the deduplication key, and a
// best-effort DOI extracted from document text.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// hashChunkSize bounds per-read memory so hashing is independent of file size.
const hashChunkSize = 4096

// doiPattern matches the DOI grammar 10.NNNN+/suffix, case-insensitive.
var doiPattern = regexp.MustCompile(`(?i)\b10\.\d{4,9}/[-._;()/:a-z0-9]+`)

// Hash computes the hex-encoded SHA-256 digest of r, reading in bounded
// chunks. Identical bytes always yield an identical hash.
func Hash(r io.Reader) (string, error) {
	h := sha256.New()

	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile computes the content hash of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for hashing: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	return Hash(f)
}

// ExtractDOI returns the first DOI found in text, verbatim, and whether one
// was found. Absence is a normal outcome, not an error.
func ExtractDOI(text string) (string, bool) {
	match := doiPattern.FindString(text)
	if match == "" {
		return "", false
	}

	// DOIs embedded in prose often drag along sentence punctuation.
	match = strings.TrimRight(match, ".,;)")

	return match, true
}
