package memzero

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZero(t *testing.T) {
	b := []byte("exchanged key material")
	Zero(b)
	for i, v := range b {
		require.Zero(t, v, "byte %d survived the wipe", i)
	}

	// Nil and empty slices are fine to pass.
	Zero(nil)
	Zero([]byte{})
}
