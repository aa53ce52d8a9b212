package bx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLittleEndianAt(t *testing.T) {
	buf := make([]byte, 12)

	PutU32At(buf, 0, 0x01020304)
	PutU32At(buf, 6, 0xA0B0C0D0)

	// least-significant byte goes first
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, buf[0:4])
	assert.Equal(t, uint32(0x01020304), U32At(buf, 0))
	assert.Equal(t, uint32(0xA0B0C0D0), U32At(buf, 6))
}

func TestBigEndianValues(t *testing.T) {
	b := make([]byte, 8)

	PutI64BE(b, -2)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfe}, b)
	assert.Equal(t, int64(-2), I64BE(b))

	PutU32BE(b, 0x01020304)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, b[:4])
	assert.Equal(t, uint32(0x01020304), U32BE(b))
}

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3}
	Zero(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
}
