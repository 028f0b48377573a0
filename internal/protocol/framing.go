package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxMessageSize bounds a single framed message. A 4K stereo frame with
// depth is under 40 MB; anything larger means the stream is corrupt.
const MaxMessageSize = 256 << 20

// WriteMessage writes payload to w with an 8-byte little-endian length
// prefix.
func WriteMessage(w io.Writer, payload []byte) error {
	var prefix [8]byte
	binary.LittleEndian.PutUint64(prefix[:], uint64(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed message from r. An EOF on the
// prefix boundary is returned as io.EOF; an EOF inside a message is
// io.ErrUnexpectedEOF, since the peer died mid-frame.
func ReadMessage(r io.Reader) ([]byte, error) {
	var prefix [8]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("read length prefix: %w", err)
		}
		return nil, err
	}
	size := binary.LittleEndian.Uint64(prefix[:])
	if size > MaxMessageSize {
		return nil, fmt.Errorf("message of %d bytes exceeds limit %d", size, uint64(MaxMessageSize))
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read %d byte payload: %w", size, err)
	}
	return payload, nil
}
