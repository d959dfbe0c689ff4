package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/marmos91/blobnode/internal/logger"
	"github.com/marmos91/blobnode/pkg/storage"
)

// Upload metadata travels in headers so the request body can stay a pure
// payload stream.
const (
	headerObjectID    = "X-Blobnode-Object-Id"
	headerCreatedAt   = "X-Blobnode-Created-At"
	headerContentType = "X-Blobnode-Content-Type"
	headerFilename    = "X-Blobnode-Filename"
)

// uploadChunkSize is how much body is read per storage chunk.
const uploadChunkSize = 256 << 10 // 256KB

type uploadResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	RelativePath string `json:"relativePath,omitempty"`
	Size         int64  `json:"size"`
	Checksum     string `json:"checksum,omitempty"`
}

type deleteResponse struct {
	Deleted bool `json:"deleted"`
}

type healthResponse struct {
	NodeID     string `json:"nodeId"`
	Alive      bool   `json:"alive"`
	FreeBytes  uint64 `json:"freeBytes"`
	TotalBytes uint64 `json:"totalBytes"`
}

func (s *RESTAdapter) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/objects", s.handleObjects)
	mux.HandleFunc("/objects/", s.handleObjectByID)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// handleObjects serves the collection route: PUT uploads, GET and DELETE
// address a specific version through the ?path= form.
func (s *RESTAdapter) handleObjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		s.handleUpload(w, r)

	case http.MethodGet, http.MethodDelete:
		relPath := r.URL.Query().Get("path")
		if relPath == "" {
			http.Error(w, "query parameter path is required", http.StatusBadRequest)
			return
		}
		ref := storage.ObjectRef{RelativePath: relPath}
		if r.Method == http.MethodGet {
			s.serveDownload(w, r, ref)
		} else {
			s.serveDelete(w, r, ref)
		}

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleObjectByID serves GET and DELETE /objects/{id}.
func (s *RESTAdapter) handleObjectByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/objects/")
	if id == "" {
		http.Error(w, "object id is required", http.StatusBadRequest)
		return
	}

	ref := storage.ObjectRef{ObjectID: id}
	switch r.Method {
	case http.MethodGet:
		s.serveDownload(w, r, ref)
	case http.MethodDelete:
		s.serveDelete(w, r, ref)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleUpload streams the request body through the upload coordinator.
// Validation failures come back as 200 with success=false, mirroring the
// wire protocol: a rejected upload is data the caller can inspect.
func (s *RESTAdapter) handleUpload(w http.ResponseWriter, r *http.Request) {
	meta := storage.ObjectMeta{
		ObjectID:         r.Header.Get(headerObjectID),
		CreatedAtUTC:     r.Header.Get(headerCreatedAt),
		ContentType:      r.Header.Get(headerContentType),
		OriginalFilename: r.Header.Get(headerFilename),
	}

	stream := &bodyStream{
		meta: meta,
		body: r.Body,
		buf:  make([]byte, uploadChunkSize),
	}

	result, err := s.service.Upload(r.Context(), stream)
	if err != nil {
		httpFault(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Success:      result.Success,
		Message:      result.Message,
		RelativePath: result.RelativePath,
		Size:         result.Size,
		Checksum:     result.Checksum,
	})
}

func (s *RESTAdapter) serveDownload(w http.ResponseWriter, r *http.Request, ref storage.ObjectRef) {
	sink := &responseSink{w: w}

	if err := s.service.Download(r.Context(), ref, sink); err != nil {
		if sink.began {
			// Status and headers are already on the wire; cutting the
			// body short is the only signal left.
			logger.Warn("REST download failed mid-stream: %v", err)
			return
		}
		httpFault(w, err)
	}
}

func (s *RESTAdapter) serveDelete(w http.ResponseWriter, r *http.Request, ref storage.ObjectRef) {
	deleted, err := s.service.Delete(r.Context(), ref)
	if err != nil {
		httpFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Deleted: deleted})
}

func (s *RESTAdapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := s.service.Health(r.Context())
	writeJSON(w, http.StatusOK, healthResponse{
		NodeID:     status.NodeID,
		Alive:      status.Alive,
		FreeBytes:  status.FreeBytes,
		TotalBytes: status.TotalBytes,
	})
}

// bodyStream adapts an HTTP request body to the upload stream contract:
// one metadata unit, then chunks sized by buf until the body ends. Chunk
// data aliases buf and is only valid until the next call, which the
// coordinator's consumption order guarantees.
type bodyStream struct {
	meta   storage.ObjectMeta
	body   io.Reader
	buf    []byte
	opened bool
	done   bool
}

func (s *bodyStream) Next(ctx context.Context) (storage.Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !s.opened {
		s.opened = true
		return storage.MetadataUnit{Meta: s.meta}, nil
	}
	if s.done {
		return nil, io.EOF
	}

	for {
		n, err := s.body.Read(s.buf)
		if n > 0 {
			if err == io.EOF {
				s.done = true
			}
			return storage.ChunkUnit{Data: s.buf[:n]}, nil
		}
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("read upload body: %w", err)
		}
		// Zero bytes with no error; the reader asks to be called again.
	}
}

// responseSink adapts an HTTP response to the download sink contract. The
// size announced by Begin becomes the Content-Length, so clients can
// detect a truncated stream.
type responseSink struct {
	w     http.ResponseWriter
	began bool
}

func (s *responseSink) Begin(size int64) error {
	s.w.Header().Set("Content-Type", "application/octet-stream")
	s.w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	s.began = true
	s.w.WriteHeader(http.StatusOK)
	return nil
}

func (s *responseSink) Send(data []byte, last bool) error {
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("write response chunk: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("REST response encoding failed: %v", err)
	}
}

// httpFault answers a failed operation with the HTTP status its storage
// code maps to.
func httpFault(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), httpStatusOf(err))
}

func httpStatusOf(err error) int {
	switch storage.CodeOf(err) {
	case storage.CodeInvalidArgument:
		return http.StatusBadRequest
	case storage.CodeNotFound:
		return http.StatusNotFound
	case storage.CodeNoSpace:
		return http.StatusInsufficientStorage
	case storage.CodeCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
