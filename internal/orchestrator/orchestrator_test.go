//go:build linux

package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadCodeReturnsPlayerSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p0.py"), []byte("Main = {}"), 0o644))

	code, err := readCode(dir, "p0.py")
	require.NoError(t, err)
	require.Equal(t, "Main = {}", code)
}

// TestReadCodeMapsUndecodableBytesToEmptyString mirrors spec §6's
// "undecodable bytes are mapped to empty string", grounded on
// original_source/simulator/entry.py's get_code() catching
// UnicodeDecodeError.
func TestReadCodeMapsUndecodableBytesToEmptyString(t *testing.T) {
	dir := t.TempDir()
	invalidUTF8 := []byte{0xff, 0xfe, 0x00, 0x80}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.py"), invalidUTF8, 0o644))

	code, err := readCode(dir, "bad.py")
	require.NoError(t, err)
	require.Equal(t, "", code)
}

func TestReadCodeMissingFileErrors(t *testing.T) {
	_, err := readCode(t.TempDir(), "missing.py")
	require.Error(t, err)
}

func TestSanitizeFightTagStripsQuotesAndSpecialChars(t *testing.T) {
	require.Equal(t, "1234", sanitizeFightTag(json.RawMessage(`1234`)))
	require.Equal(t, "abc-def_1", sanitizeFightTag(json.RawMessage(`"abc-def_1"`)))
	require.Equal(t, "a_b_c", sanitizeFightTag(json.RawMessage(`"a/b c"`)))
}

func TestSanitizeFightTagDefaultsWhenEmpty(t *testing.T) {
	require.Equal(t, "fight", sanitizeFightTag(json.RawMessage(``)))
	require.Equal(t, "fight", sanitizeFightTag(json.RawMessage(`""`)))
}
