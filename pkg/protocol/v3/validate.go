package v3

import (
	"errors"
	"fmt"
)

// Structural ceilings for incoming CBOR. The walk below enforces these
// from the raw bytes, before any decoder allocation happens, so a short
// frame cannot claim a billion-element array and drive memory use by the
// declared size instead of the received size.
const (
	maxCBORNesting  = 64
	maxCBORMapLen   = 1024
	maxCBORKeyBytes = 64
	minBytesPerElem = 1
)

var errMalformedCBOR = errors.New("malformed cbor")

// ValidateCBOR walks buf as a single CBOR item and rejects structures the
// decoder must not be exposed to: indefinite lengths, excessive nesting,
// oversized maps or keys, and any container or string whose claimed
// length cannot fit in the bytes that are actually present. It allocates
// nothing on the happy path.
func ValidateCBOR(buf []byte) error {
	w := walker{buf: buf}
	if err := w.item(0); err != nil {
		return err
	}
	if w.pos != len(w.buf) {
		return fmt.Errorf("%w: %d trailing bytes", errMalformedCBOR, len(w.buf)-w.pos)
	}
	return nil
}

type walker struct {
	buf []byte
	pos int
}

func (w *walker) remaining() int { return len(w.buf) - w.pos }

func (w *walker) byte() (byte, error) {
	if w.pos >= len(w.buf) {
		return 0, fmt.Errorf("%w: unexpected end of input", errMalformedCBOR)
	}
	b := w.buf[w.pos]
	w.pos++
	return b, nil
}

// head reads one item header and returns (major type, argument value).
func (w *walker) head() (byte, uint64, error) {
	ib, err := w.byte()
	if err != nil {
		return 0, 0, err
	}
	major := ib >> 5
	info := ib & 0x1f
	switch {
	case info < 24:
		return major, uint64(info), nil
	case info == 24, info == 25, info == 26, info == 27:
		n := 1 << (info - 24)
		var v uint64
		for i := 0; i < n; i++ {
			b, err := w.byte()
			if err != nil {
				return 0, 0, err
			}
			v = v<<8 | uint64(b)
		}
		return major, v, nil
	case info == 31:
		return 0, 0, fmt.Errorf("%w: indefinite length not allowed", errMalformedCBOR)
	default:
		return 0, 0, fmt.Errorf("%w: reserved additional info %d", errMalformedCBOR, info)
	}
}

func (w *walker) item(depth int) error {
	if depth > maxCBORNesting {
		return fmt.Errorf("%w: nesting exceeds %d", errMalformedCBOR, maxCBORNesting)
	}
	major, arg, err := w.head()
	if err != nil {
		return err
	}
	switch major {
	case 0, 1: // unsigned, negative int
		return nil
	case 2, 3: // byte string, text string
		if arg > uint64(w.remaining()) {
			return fmt.Errorf("%w: string length %d exceeds %d remaining bytes", errMalformedCBOR, arg, w.remaining())
		}
		w.pos += int(arg)
		return nil
	case 4: // array
		if arg > uint64(w.remaining())/minBytesPerElem {
			return fmt.Errorf("%w: array length %d exceeds %d remaining bytes", errMalformedCBOR, arg, w.remaining())
		}
		for i := uint64(0); i < arg; i++ {
			if err := w.item(depth + 1); err != nil {
				return err
			}
		}
		return nil
	case 5: // map
		if arg > maxCBORMapLen {
			return fmt.Errorf("%w: map length %d exceeds %d", errMalformedCBOR, arg, maxCBORMapLen)
		}
		if arg*2 > uint64(w.remaining()) {
			return fmt.Errorf("%w: map length %d exceeds %d remaining bytes", errMalformedCBOR, arg, w.remaining())
		}
		for i := uint64(0); i < arg; i++ {
			if err := w.key(depth + 1); err != nil {
				return err
			}
			if err := w.item(depth + 1); err != nil {
				return err
			}
		}
		return nil
	case 6: // tag
		return w.item(depth + 1)
	case 7: // simple values, floats
		return nil
	}
	return fmt.Errorf("%w: major type %d", errMalformedCBOR, major)
}

// key validates a map key, additionally bounding text key length.
func (w *walker) key(depth int) error {
	start := w.pos
	major := byte(0)
	if start < len(w.buf) {
		major = w.buf[start] >> 5
	}
	if err := w.item(depth); err != nil {
		return err
	}
	if major == 3 && w.pos-start > maxCBORKeyBytes+9 {
		return fmt.Errorf("%w: map key exceeds %d bytes", errMalformedCBOR, maxCBORKeyBytes)
	}
	return nil
}
