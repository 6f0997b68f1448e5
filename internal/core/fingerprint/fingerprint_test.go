package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_MatchesSingleShotDigest(t *testing.T) {
	// Content larger than one chunk so the bounded-read path is exercised.
	content := bytes.Repeat([]byte("medical literature "), 1024)

	got, err := Hash(bytes.NewReader(content))
	require.NoError(t, err)

	want := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(want[:]), got)
}

func TestHash_StableAcrossReads(t *testing.T) {
	content := []byte("identical bytes yield identical hashes")

	first, err := Hash(bytes.NewReader(content))
	require.NoError(t, err)

	second, err := Hash(bytes.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paper.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o600))

	fromFile, err := HashFile(path)
	require.NoError(t, err)

	fromReader, err := Hash(strings.NewReader("%PDF-1.4 fake"))
	require.NoError(t, err)

	assert.Equal(t, fromReader, fromFile)
}

func TestHashFile_Missing(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

func TestExtractDOI(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  string
		found bool
	}{
		{
			name:  "plain doi",
			text:  "This trial is registered under doi 10.1056/NEJMoa2007764 at NEJM.",
			want:  "10.1056/NEJMoa2007764",
			found: true,
		},
		{
			name:  "doi with trailing period",
			text:  "See 10.1001/jama.2020.1585.",
			want:  "10.1001/jama.2020.1585",
			found: true,
		},
		{
			name:  "case insensitive",
			text:  "DOI: 10.1016/S0140-6736(20)30183-5",
			want:  "10.1016/S0140-6736(20)30183-5",
			found: true,
		},
		{
			name:  "first of several",
			text:  "refs: 10.1136/bmj.m1985 and 10.1056/NEJMoa2021436",
			want:  "10.1136/bmj.m1985",
			found: true,
		},
		{
			name:  "no doi",
			text:  "An unremarkable abstract without identifiers.",
			found: false,
		},
		{
			name:  "prefix too short",
			text:  "10.12/notadoi",
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ExtractDOI(tt.text)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}
