package bsp

import (
	"bytes"
	"fmt"

	"github.com/marmos91/blobnode/internal/protocol/bsp/xdr"
	"github.com/marmos91/blobnode/pkg/storage"
)

// Download and Delete share one request shape: an object reference of
// {objectId, relativePath}, encoded as two XDR strings. An unset field is
// an empty string; which one wins, and whether both may be empty, is the
// storage layer's call, not the codec's.

// EncodeObjectRef serializes an object reference request body.
func EncodeObjectRef(ref storage.ObjectRef) ([]byte, error) {
	var buf bytes.Buffer
	if err := xdr.EncodeString(&buf, ref.ObjectID); err != nil {
		return nil, fmt.Errorf("encode object id: %w", err)
	}
	if err := xdr.EncodeString(&buf, ref.RelativePath); err != nil {
		return nil, fmt.Errorf("encode relative path: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeObjectRef decodes an object reference request body.
func DecodeObjectRef(data []byte) (storage.ObjectRef, error) {
	reader := bytes.NewReader(data)

	id, err := xdr.DecodeString(reader)
	if err != nil {
		return storage.ObjectRef{}, fmt.Errorf("decode object id: %w", err)
	}
	path, err := xdr.DecodeString(reader)
	if err != nil {
		return storage.ObjectRef{}, fmt.Errorf("decode relative path: %w", err)
	}

	return storage.ObjectRef{ObjectID: id, RelativePath: path}, nil
}
