package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("0x00000000000000000000000000000000000a11ce")
	require.NoError(t, err)
	assert.Equal(t, byte(0x11), a[18])

	_, err = ParseAddress("00000000000000000000000000000000000a11ce")
	assert.NoError(t, err)

	for _, bad := range []string{"", "0x1234", "alice", "0xzz000000000000000000000000000000000a11ce"} {
		_, err := ParseAddress(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseHash(t *testing.T) {
	const hex = "c0ffee0000000000000000000000000000000000000000000000000000000001"
	h, err := ParseHash("0x" + hex)
	require.NoError(t, err)
	assert.Equal(t, byte(0xc0), h[0])
	assert.Equal(t, byte(0x01), h[31])

	h2, err := ParseHash(hex)
	require.NoError(t, err)
	assert.Equal(t, h, h2)

	for _, bad := range []string{"", "0x", "0xabc", hex + "00", "0x" + hex[:62] + "zz"} {
		_, err := ParseHash(bad)
		assert.Error(t, err, bad)
	}
}
