package vxtransport

import (
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/danmuck/vectorkeep/src/vxerr"
	"github.com/danmuck/vectorkeep/src/vxsnap"
	logs "github.com/danmuck/smplog"
)

// Server serves ranged reads against reader handles registered in a
// vxsnap.ReaderRegistry — the peer-exposing side of a chunked transfer.
type Server struct {
	readers *vxsnap.ReaderRegistry
	ln      net.Listener
}

// NewServer binds addr and returns a Server ready to Serve. Callers
// choose when to start accepting.
func NewServer(addr string, readers *vxsnap.ReaderRegistry) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, vxerr.Wrap(vxerr.Internal, "listen", err)
	}
	return &Server{readers: readers, ln: ln}, nil
}

// Addr returns the bound address, useful when addr was ":0".
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) Close() error { return s.ln.Close() }

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	var req GetFileRequest
	if err := readEnvelope(conn, &req); err != nil {
		logs.Warnf("vxtransport: read request: %v", err)
		return
	}

	meta, ok := s.readers.Get(req.ReaderID)
	if !ok {
		writeEnvelopeErr(conn, vxerr.New(vxerr.FileNotFoundReader, "unknown reader id").Error())
		return
	}

	resp, err := readChunk(filepath.Join(meta.Path(), req.Filename), req.Offset, req.Size)
	if err != nil {
		writeEnvelopeErr(conn, vxerr.Wrap(vxerr.FileRead, "read chunk", err).Error())
		return
	}
	if err := writeEnvelope(conn, resp); err != nil {
		logs.Warnf("vxtransport: write response: %v", err)
	}
}

func readChunk(path string, offset int64, size int) (GetFileResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return GetFileResponse{}, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return GetFileResponse{}, err
	}
	buf := make([]byte, size)
	n, err := f.Read(buf)
	eof := false
	if err == io.EOF {
		eof = true
		err = nil
	} else if err != nil {
		return GetFileResponse{}, err
	}
	if n < size {
		// A short, non-error read at the current offset also means EOF.
		if _, peekErr := f.Read(make([]byte, 1)); peekErr == io.EOF {
			eof = true
		}
	}
	return GetFileResponse{Data: buf[:n], ReadSize: n, EOF: eof}, nil
}
