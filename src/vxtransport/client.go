package vxtransport

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// DefaultChunkSize is the recognized-option default for
// file_transport_chunk_size.
const DefaultChunkSize = 4 << 20

// Client streams named files from a remote reader handle into a local
// directory, chunk by chunk, until the server reports EOF.
type Client struct {
	ChunkSize int
	Dial      func(endpoint string) (net.Conn, error)
}

func NewClient() *Client {
	return &Client{
		ChunkSize: DefaultChunkSize,
		Dial: func(endpoint string) (net.Conn, error) {
			return net.DialTimeout("tcp", endpoint, 10*time.Second)
		},
	}
}

// FetchFile downloads filename from endpoint/readerID into destDir,
// issuing one request per chunk until the server signals EOF. A failed
// chunk aborts the whole transfer — the caller is expected to discard
// destDir on error, admitting no partial snapshots.
func (c *Client) FetchFile(endpoint string, readerID uint64, filename, destDir string) error {
	out, err := os.Create(filepath.Join(destDir, filename))
	if err != nil {
		return fmt.Errorf("vxtransport: create dest file: %w", err)
	}
	defer out.Close()

	var offset int64
	for {
		conn, err := c.Dial(endpoint)
		if err != nil {
			return fmt.Errorf("vxtransport: dial %s: %w", endpoint, err)
		}

		req := GetFileRequest{ReaderID: readerID, Filename: filename, Offset: offset, Size: c.ChunkSize}
		if err := writeEnvelope(conn, req); err != nil {
			conn.Close()
			return fmt.Errorf("vxtransport: send request: %w", err)
		}

		var resp GetFileResponse
		err = readEnvelope(conn, &resp)
		conn.Close()
		if err != nil {
			return fmt.Errorf("vxtransport: fetch %s at offset %d: %w", filename, offset, err)
		}

		if resp.ReadSize > 0 {
			if _, err := out.Write(resp.Data[:resp.ReadSize]); err != nil {
				return fmt.Errorf("vxtransport: write local %s: %w", filename, err)
			}
		}
		offset += int64(resp.ReadSize)

		if resp.EOF {
			return nil
		}
	}
}
