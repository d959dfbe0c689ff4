package xdr

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ============================================================================
// XDR Encoding Helpers - Go Values → Wire Format
// ============================================================================

// EncodeUint32 encodes a 4-byte big-endian unsigned integer.
func EncodeUint32(buf *bytes.Buffer, v uint32) error {
	return binary.Write(buf, binary.BigEndian, v)
}

// EncodeUint64 encodes an 8-byte big-endian unsigned integer (XDR hyper).
func EncodeUint64(buf *bytes.Buffer, v uint64) error {
	return binary.Write(buf, binary.BigEndian, v)
}

// EncodeBool encodes an XDR boolean as a uint32 holding 0 or 1.
func EncodeBool(buf *bytes.Buffer, v bool) error {
	var encoded uint32
	if v {
		encoded = 1
	}
	return binary.Write(buf, binary.BigEndian, encoded)
}

// EncodeOpaque encodes XDR variable-length opaque data.
//
// Format: [length:uint32][data:length bytes][padding:0-3 bytes]
// Padding aligns the next item to a 4-byte boundary.
//
// Parameters:
//   - buf: Output buffer for encoded data
//   - data: Opaque data to encode (nil encodes as zero length)
//
// Returns:
//   - error: Encoding error (oversized data)
func EncodeOpaque(buf *bytes.Buffer, data []byte) error {
	length := uint32(len(data))
	if length > MaxOpaqueLength {
		return fmt.Errorf("opaque length %d exceeds maximum %d", length, MaxOpaqueLength)
	}

	// Length
	if err := binary.Write(buf, binary.BigEndian, length); err != nil {
		return fmt.Errorf("write length: %w", err)
	}

	// Data
	if _, err := buf.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}

	// Padding to 4-byte boundary
	padding := (4 - (length % 4)) % 4
	for range padding {
		if err := buf.WriteByte(0); err != nil {
			return fmt.Errorf("write padding: %w", err)
		}
	}

	return nil
}

// EncodeString encodes an XDR variable-length string. Strings share the
// opaque wire format and are interpreted as UTF-8.
func EncodeString(buf *bytes.Buffer, s string) error {
	return EncodeOpaque(buf, []byte(s))
}
