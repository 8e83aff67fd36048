package tarfmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOctalFieldRoundTrip(t *testing.T) {
	cases := []int64{0, 1, 7, 8, 63, 4095, 0o777, 1 << 20}
	for _, v := range cases {
		var field [12]byte
		ok := formatOctalField(v, field[:])
		require.True(t, ok, "value %d should fit", v)
		got, err := parseOctalField(field[:])
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestOctalFieldTooLarge(t *testing.T) {
	var field [8]byte
	ok := formatOctalField(1<<40, field[:])
	assert.False(t, ok, "a value needing the binary form must not silently truncate")
}

func TestBinarySizeRoundTrip(t *testing.T) {
	cases := []int64{0, 1, 1 << 36, 1 << 40, 1<<62 - 1}
	for _, v := range cases {
		var field [12]byte
		formatBinarySize(v, field[:])
		assert.NotZero(t, field[0]&0x80, "binary form must set the high bit")
		got, err := parseBinarySize(field[:])
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestParseSizeFieldSelectsEncoding(t *testing.T) {
	var octalField [12]byte
	formatOctalField(511, octalField[:])
	got, err := parseSizeField("size", octalField[:])
	require.NoError(t, err)
	assert.Equal(t, int64(511), got)

	var binField [12]byte
	formatBinarySize(binarySizeThreshold+1, binField[:])
	got, err = parseSizeField("size", binField[:])
	require.NoError(t, err)
	assert.Equal(t, int64(binarySizeThreshold+1), got)
}

func TestChecksumRoundTrip(t *testing.T) {
	var blk rawBlock
	copy(blk.field(nameOffset, nameSize), "hello.txt")
	formatOctalField(0o644, blk.field(modeOffset, modeSize))
	blk.setChecksum()
	require.NoError(t, blk.verifyChecksum())

	blk[0] ^= 0xFF
	assert.Error(t, blk.verifyChecksum(), "mutating the block must invalidate its checksum")
}

func TestIsZero(t *testing.T) {
	var blk rawBlock
	assert.True(t, blk.isZero())
	blk[0] = 1
	assert.False(t, blk.isZero())
}

func TestRoundUp512(t *testing.T) {
	assert.Equal(t, int64(0), roundUp512(0))
	assert.Equal(t, int64(512), roundUp512(1))
	assert.Equal(t, int64(512), roundUp512(512))
	assert.Equal(t, int64(1024), roundUp512(513))
}
