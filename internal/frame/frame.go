package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/blukai/snakeparty/internal/debug"
)

const (
	HeaderSize     = 4       // uint32 (4)
	DefaultMaxSize = 1 << 20 // 1 MiB; far above anything the game sends
)

var ErrFrameTooLarge = errors.New("frame too large")

// Append appends a length prefixed payload to dst.
func Append(dst, payload []byte) []byte {
	debug.Assert(uint64(len(payload)) <= uint64(^uint32(0)), "payload exceeds uint32")

	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

func Encode(payload []byte) []byte {
	return Append(make([]byte, 0, HeaderSize+len(payload)), payload)
}

// Write writes header and payload with a single Write call.
func Write(w io.Writer, payload []byte) error {
	_, err := w.Write(Encode(payload))
	return err
}

// Read reads one frame with DefaultMaxSize. See Reader.Read.
func Read(r io.Reader) ([]byte, error) {
	return (&Reader{R: r}).Read()
}

type Reader struct {
	R io.Reader
	// MaxSize caps the length field. Zero means DefaultMaxSize.
	MaxSize uint32

	header [HeaderSize]byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{R: r}
}

// Read returns the next payload. It returns io.EOF when the stream ends
// cleanly between frames and io.ErrUnexpectedEOF when it ends inside one.
// A zero length frame yields an empty, non-nil payload.
func (fr *Reader) Read() ([]byte, error) {
	// io.ReadFull reports io.EOF only when no bytes were read at all, which
	// is exactly the end of stream condition.
	if _, err := io.ReadFull(fr.R, fr.header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(fr.header[:])
	maxSize := fr.MaxSize
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}
	if size > maxSize {
		return nil, fmt.Errorf("%w (got %d; want <= %d)", ErrFrameTooLarge, size, maxSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(fr.R, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	return payload, nil
}
