// Package vxtransport implements the chunked file transport snapshot
// transfer rides on: a client pulls a named file from a remote reader
// handle in fixed-size chunks until EOF, a server resolves reader ids
// against a vxsnap.ReaderRegistry and serves ranged reads.
//
// Wire framing is a 4-byte big-endian length prefix followed by a
// single JSON-encoded envelope.
package vxtransport

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// GetFileRequest asks a peer for up to Size bytes of Filename starting
// at Offset, from the snapshot exposed under ReaderID.
type GetFileRequest struct {
	ReaderID uint64 `json:"reader_id"`
	Filename string `json:"filename"`
	Offset   int64  `json:"offset"`
	Size     int    `json:"size"`
}

// GetFileResponse carries the bytes read, how many of them there are,
// and whether the read reached end-of-file.
type GetFileResponse struct {
	Data     []byte `json:"data"`
	ReadSize int    `json:"read_size"`
	EOF      bool   `json:"eof"`
}

// envelope is the single frame shape exchanged in both directions;
// Err is set instead of Body on failure.
type envelope struct {
	Body json.RawMessage `json:"body,omitempty"`
	Err  string          `json:"err,omitempty"`
}

func readFrame(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("vxtransport: read frame length: %w", err)
	}
	const maxFrame = 64 << 20
	if length > maxFrame {
		return nil, fmt.Errorf("vxtransport: frame too large: %d bytes", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("vxtransport: read frame body: %w", err)
	}
	return buf, nil
}

func writeFrame(w io.Writer, data []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
		return fmt.Errorf("vxtransport: write frame length: %w", err)
	}
	_, err := w.Write(data)
	return err
}

func writeEnvelope(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("vxtransport: marshal body: %w", err)
	}
	env, err := json.Marshal(envelope{Body: body})
	if err != nil {
		return err
	}
	return writeFrame(w, env)
}

func writeEnvelopeErr(w io.Writer, msg string) error {
	env, err := json.Marshal(envelope{Err: msg})
	if err != nil {
		return err
	}
	return writeFrame(w, env)
}

func readEnvelope(r io.Reader, out any) error {
	raw, err := readFrame(r)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("vxtransport: unmarshal envelope: %w", err)
	}
	if env.Err != "" {
		return fmt.Errorf("vxtransport: peer error: %s", env.Err)
	}
	return json.Unmarshal(env.Body, out)
}
