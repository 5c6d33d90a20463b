//go:build linux

package coderunner

import (
	"bufio"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestPipeAtDupsToRequestedFDNumbers exercises the low-level fd-pinning
// pipeAt performs during bootstrap (spec §4.B step 2): after the call,
// reading/writing must go through the exact fd numbers requested, not
// whatever pipe(2) happened to allocate.
func TestPipeAtDupsToRequestedFDNumbers(t *testing.T) {
	const wantR, wantW = 61, 62

	r, w, err := pipeAt(wantR, wantW)
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	require.Equal(t, uintptr(wantR), r.Fd())
	require.Equal(t, uintptr(wantW), w.Fd())

	_, err = w.WriteString("hello\n")
	require.NoError(t, err)

	line, err := readLine(bufio.NewReader(r))
	require.NoError(t, err)
	require.Equal(t, "hello", line)
}

func TestReadLineStripsTrailingNewline(t *testing.T) {
	r, w, err := pipeAt(63, 64)
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	_, err = w.WriteString("line-without-extra-newlines\n")
	require.NoError(t, err)

	got, err := readLine(bufio.NewReader(r))
	require.NoError(t, err)
	require.Equal(t, "line-without-extra-newlines", got)
}
