// Package bsp implements the Blob Streaming Protocol, the wire format the
// node speaks over TCP.
//
// # Wire Format
//
// Every message is a sequence of record-marked frames, SUN-RPC style. Each
// frame starts with a 4-byte big-endian header: bit 31 flags the last frame
// of the message, the low 31 bits carry the payload length. Payloads are
// capped at 1 MiB so a malicious length can never force a large allocation.
//
// All payload encoding is XDR (RFC 4506): big-endian integers, 4-byte
// alignment, length-prefixed opaque data and strings. Call and reply headers
// marshal through go-xdr; message bodies use the hand-rolled helpers in the
// xdr subpackage, which guard every length field before allocating.
//
// # Message Flows
//
// A call message opens with CallHeader{Xid, Version, Procedure}. Upload is
// the only multi-frame call: frame 1 carries the header plus a metadata
// unit, subsequent frames carry one chunk unit each, and the record-mark
// last bit finalizes the stream. Download replies stream in the opposite
// direction: frame 1 carries ReplyHeader plus the object size, then raw
// chunk frames follow until the last bit. Delete and Health are single-frame
// in both directions.
//
// Replies open with ReplyHeader{Xid, Status}. A non-OK reply carries exactly
// one string explaining the fault. Upload validation failures are not
// faults: they travel as an OK reply whose UploadResult has Success=false.
//
// # Layering
//
//   - Framing (frame.go): FrameReader/FrameWriter over any io.Reader/Writer
//   - Headers (header.go): call/reply header codecs and reply builders
//   - Messages (upload.go, download.go, delete.go, health.go, ref.go):
//     per-procedure body codecs
//   - Dispatch (dispatch.go): procedure table and the handlers bridging
//     decoded calls onto a storage.Service
//
// Connection lifecycle (listening, timeouts, shutdown) deliberately lives
// one layer up in pkg/adapter/bsp; this package never touches a net.Conn.
//
// # Buffer Management
//
// Frame payloads are read into pooled buffers (bufpool.go) sized by class.
// A payload returned by FrameReader.ReadFrame is valid only until the next
// ReadFrame call on the same reader; the body codecs copy what they keep, so
// decoded messages never alias pooled memory.
package bsp
