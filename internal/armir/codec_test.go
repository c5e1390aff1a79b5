package armir

import (
	"testing"

	"armcache/mangle/internal/testing/require"
)

func TestPCBias(t *testing.T) {
	require.Equal(t, uint32(8), A32.PCBias())
	require.Equal(t, uint32(4), T32.PCBias())
}

func TestPCAsJmpTgtSetsThumbBit(t *testing.T) {
	require.Equal(t, uint32(0x1001), PCAsJmpTgt(T32, 0x1000))
	require.Equal(t, uint32(0x1000), PCAsJmpTgt(A32, 0x1000))
}
