// Package xdr implements the XDR (RFC 4506) primitives BSP message bodies
// are built from. Every variable-length decode validates the length field
// before allocating, so a hostile peer cannot force a large allocation with
// a four-byte header.
package xdr

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxOpaqueLength caps variable-length fields. It matches the frame payload
// cap: no legal field can be longer than the frame that carries it.
const MaxOpaqueLength = 1024 * 1024 // 1 MB

// ============================================================================
// XDR Decoding Helpers - Wire Format → Go Values
// ============================================================================

// DecodeUint32 decodes a 4-byte big-endian unsigned integer.
func DecodeUint32(reader io.Reader) (uint32, error) {
	var v uint32
	if err := binary.Read(reader, binary.BigEndian, &v); err != nil {
		return 0, fmt.Errorf("read uint32: %w", err)
	}
	return v, nil
}

// DecodeUint64 decodes an 8-byte big-endian unsigned integer (XDR hyper).
func DecodeUint64(reader io.Reader) (uint64, error) {
	var v uint64
	if err := binary.Read(reader, binary.BigEndian, &v); err != nil {
		return 0, fmt.Errorf("read uint64: %w", err)
	}
	return v, nil
}

// DecodeBool decodes an XDR boolean.
//
// Per RFC 4506 Section 4.4, booleans are encoded as a uint32 holding 0 or
// 1. Any other value is rejected rather than truncated, since it indicates
// a peer that is not actually speaking XDR.
func DecodeBool(reader io.Reader) (bool, error) {
	var v uint32
	if err := binary.Read(reader, binary.BigEndian, &v); err != nil {
		return false, fmt.Errorf("read bool: %w", err)
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("invalid bool value: %d", v)
	}
}

// DecodeOpaque decodes XDR variable-length opaque data.
//
// Per RFC 4506 Section 4.10 (Variable-Length Opaque Data):
// Format: [length:uint32][data:length bytes][padding:0-3 bytes]
// Padding aligns the next item to a 4-byte boundary.
//
// Parameters:
//   - reader: Input stream positioned at start of opaque data
//
// Returns:
//   - []byte: Decoded data (freshly allocated, never aliasing the input)
//   - error: Decoding error (EOF, short read, oversized length)
func DecodeOpaque(reader io.Reader) ([]byte, error) {
	// Read length (4 bytes)
	var length uint32
	if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("read length: %w", err)
	}

	// Validate before allocating (protect against malicious input)
	if length > MaxOpaqueLength {
		return nil, fmt.Errorf("opaque length %d exceeds maximum %d", length, MaxOpaqueLength)
	}

	// Read data
	data := make([]byte, length)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}

	// Skip padding to 4-byte boundary
	// Example: length=5 → padding=3, length=8 → padding=0
	padding := (4 - (length % 4)) % 4
	if padding > 0 {
		if _, err := io.CopyN(io.Discard, reader, int64(padding)); err != nil {
			return nil, fmt.Errorf("skip padding: %w", err)
		}
	}

	return data, nil
}

// DecodeString decodes an XDR variable-length string.
//
// Per RFC 4506 Section 4.11 (String):
// Strings use the same encoding as opaque data but are interpreted as UTF-8.
//
// Parameters:
//   - reader: Input stream positioned at start of string
//
// Returns:
//   - string: Decoded string (UTF-8)
//   - error: Decoding error
func DecodeString(reader io.Reader) (string, error) {
	data, err := DecodeOpaque(reader)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
