// stand for bytes helper
package bx

import "encoding/binary"

var (
	LE = binary.LittleEndian
	BE = binary.BigEndian
)

// --- LE: page headers ---
func U32At(b []byte, off int) uint32       { return LE.Uint32(b[off:]) }
func PutU32At(b []byte, off int, v uint32) { LE.PutUint32(b[off:], v) }

// --- BE: value payloads ---
func U32BE(b []byte) uint32       { return BE.Uint32(b) }
func U64BE(b []byte) uint64       { return BE.Uint64(b) }
func I64BE(b []byte) int64        { return int64(U64BE(b)) }
func PutU32BE(b []byte, v uint32) { BE.PutUint32(b, v) }
func PutU64BE(b []byte, v uint64) { BE.PutUint64(b, v) }
func PutI64BE(b []byte, v int64)  { PutU64BE(b, uint64(v)) }

// Zero clears b in place.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
