package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame decode errors. FrameTooLargeError wraps ErrFrameTooLarge so callers
// can match either the sentinel or the typed error.
var (
	ErrFrameTooLarge = errors.New("frame payload too large")
	ErrTruncated     = errors.New("truncated frame")
	ErrTrailingBytes = errors.New("trailing bytes after frame")
)

// FrameTooLargeError reports a length prefix exceeding the active limit.
type FrameTooLargeError struct {
	Declared uint32
	Limit    uint32
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("frame payload too large (%d bytes > max_frame_bytes=%d)", e.Declared, e.Limit)
}

func (e *FrameTooLargeError) Unwrap() error { return ErrFrameTooLarge }

// EncodeFrame returns a new buffer holding the framed payload.
func EncodeFrame(payload []byte, limits Limits) ([]byte, error) {
	return AppendFrame(nil, payload, limits)
}

// AppendFrame appends the framed payload to dst and returns the extended
// buffer.
func AppendFrame(dst, payload []byte, limits Limits) ([]byte, error) {
	if len(payload) > int(limits.MaxFrameBytes) {
		return nil, &FrameTooLargeError{Declared: uint32(len(payload)), Limit: limits.MaxFrameBytes}
	}
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...), nil
}

// DecodeFrame decodes exactly one frame from buf. The buffer must contain
// the whole frame and nothing else; leftover bytes are an error.
func DecodeFrame(buf []byte, limits Limits) ([]byte, error) {
	if len(buf) < LenPrefixBytes {
		return nil, ErrTruncated
	}
	n := binary.LittleEndian.Uint32(buf[:LenPrefixBytes])
	if n > limits.MaxFrameBytes {
		return nil, &FrameTooLargeError{Declared: n, Limit: limits.MaxFrameBytes}
	}
	body := buf[LenPrefixBytes:]
	if uint32(len(body)) < n {
		return nil, ErrTruncated
	}
	if uint32(len(body)) > n {
		return nil, ErrTrailingBytes
	}
	out := make([]byte, n)
	copy(out, body)
	return out, nil
}

// WriteFrame writes one framed payload to w.
func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	if len(payload) > int(limits.MaxFrameBytes) {
		return &FrameTooLargeError{Declared: uint32(len(payload)), Limit: limits.MaxFrameBytes}
	}
	var prefix [LenPrefixBytes]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write frame prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// readChunkBytes caps each read when growing the payload buffer, so a
// hostile length prefix cannot force a single large allocation before any
// payload bytes have arrived.
const readChunkBytes = 1 * 1024 * 1024

// ReadFrame reads one framed payload from r. The declared length is checked
// against limits before any payload memory is allocated, and the buffer is
// grown incrementally as bytes actually arrive.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var prefix [LenPrefixBytes]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		return nil, err
	}
	n := binary.LittleEndian.Uint32(prefix[:])
	if n > limits.MaxFrameBytes {
		return nil, &FrameTooLargeError{Declared: n, Limit: limits.MaxFrameBytes}
	}
	if n == 0 {
		return []byte{}, nil
	}

	payload := make([]byte, 0, min(int(n), readChunkBytes))
	remaining := int(n)
	for remaining > 0 {
		chunk := min(remaining, readChunkBytes)
		start := len(payload)
		payload = append(payload, make([]byte, chunk)...)
		if _, err := io.ReadFull(r, payload[start:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, ErrTruncated
			}
			return nil, err
		}
		remaining -= chunk
	}
	return payload, nil
}
