package legacy

import (
	"encoding/binary"
	"errors"
	"fmt"

	"mercator-hq/saturn/pkg/protocol"
)

// Wire layout, little-endian throughout:
//
//	u8/u32/u64    fixed width integers
//	bool          u8, 0 or 1
//	str16         u16 length + bytes (names, paths, queries, tokens)
//	str32         u32 length + bytes (file text)
//	optional T    u8 presence + T when present
//	list T        u32 count + elements
var (
	ErrUnknownTag    = errors.New("unknown message tag")
	ErrBadEncoding   = errors.New("malformed message")
	ErrTrailingBytes = errors.New("trailing bytes after message")
)

// Encode serializes msg into a fresh buffer.
func Encode(msg Message) ([]byte, error) {
	e := encoder{buf: []byte{msg.tag()}}
	switch m := msg.(type) {
	case *WorkerHello:
		e.u32(uint32(m.ShardID))
		e.optStr16(m.AuthToken, m.HasAuthToken)
		e.bool(m.HasCachedIndex)
	case *RouterHello:
		e.u32(uint32(m.WorkerID))
		e.u32(uint32(m.ShardID))
		e.u64(uint64(m.Revision))
		e.u32(m.ProtocolVersion)
	case *IndexShard:
		e.files(m.Files)
	case *LoadFiles:
		e.files(m.Files)
	case *UpdateFile:
		e.str16(m.Path)
		e.str32(m.Text)
	case *GetWorkerStats, *Ack, *Shutdown:
	case *SearchSymbols:
		e.str16(m.Query)
		e.u32(m.Limit)
	case *SearchSymbolsResult:
		e.u32(uint32(len(m.Symbols)))
		for i := range m.Symbols {
			e.str16(m.Symbols[i].Name)
			e.str16(m.Symbols[i].Path)
		}
	case *ShardIndexInfo:
		e.u32(uint32(m.Info.ShardID))
		e.u64(uint64(m.Info.Revision))
		e.u64(uint64(m.Info.IndexGeneration))
		e.u64(m.Info.SymbolCount)
	case *WorkerStats:
		e.u32(uint32(m.Stats.ShardID))
		e.u64(uint64(m.Stats.Revision))
		e.u64(uint64(m.Stats.IndexGeneration))
		e.u64(m.Stats.FileCount)
	case *Error:
		e.str16(m.Message)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownTag, msg)
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.buf, nil
}

// Decode parses exactly one message from buf. Leftover bytes are an error.
func Decode(buf []byte) (Message, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrBadEncoding)
	}
	d := decoder{buf: buf[1:]}
	var msg Message
	switch buf[0] {
	case tagWorkerHello:
		m := &WorkerHello{}
		m.ShardID = protocol.ShardID(d.u32())
		m.AuthToken, m.HasAuthToken = d.optStr16()
		m.HasCachedIndex = d.bool()
		msg = m
	case tagRouterHello:
		m := &RouterHello{}
		m.WorkerID = protocol.WorkerID(d.u32())
		m.ShardID = protocol.ShardID(d.u32())
		m.Revision = protocol.Revision(d.u64())
		m.ProtocolVersion = d.u32()
		msg = m
	case tagIndexShard:
		msg = &IndexShard{Files: d.files()}
	case tagLoadFiles:
		msg = &LoadFiles{Files: d.files()}
	case tagUpdateFile:
		m := &UpdateFile{}
		m.Path = d.str16()
		m.Text = d.str32()
		msg = m
	case tagGetWorkerStats:
		msg = &GetWorkerStats{}
	case tagSearchSymbols:
		m := &SearchSymbols{}
		m.Query = d.str16()
		m.Limit = d.u32()
		msg = m
	case tagSearchSymbolsResult:
		n := d.u32()
		if d.err == nil && n > protocol.MaxSearchResultsPerMessage {
			d.err = &protocol.LimitError{Field: "symbols", Got: int(n), Max: protocol.MaxSearchResultsPerMessage}
		}
		m := &SearchSymbolsResult{}
		for i := uint32(0); i < n && d.err == nil; i++ {
			var s protocol.Symbol
			s.Name = d.str16()
			s.Path = d.str16()
			m.Symbols = append(m.Symbols, s)
		}
		msg = m
	case tagShardIndexInfo:
		m := &ShardIndexInfo{}
		m.Info.ShardID = protocol.ShardID(d.u32())
		m.Info.Revision = protocol.Revision(d.u64())
		m.Info.IndexGeneration = protocol.IndexGeneration(d.u64())
		m.Info.SymbolCount = d.u64()
		msg = m
	case tagWorkerStats:
		m := &WorkerStats{}
		m.Stats.ShardID = protocol.ShardID(d.u32())
		m.Stats.Revision = protocol.Revision(d.u64())
		m.Stats.IndexGeneration = protocol.IndexGeneration(d.u64())
		m.Stats.FileCount = d.u64()
		msg = m
	case tagAck:
		msg = &Ack{}
	case tagError:
		msg = &Error{Message: d.str16()}
	case tagShutdown:
		msg = &Shutdown{}
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownTag, buf[0])
	}
	if d.err != nil {
		return nil, d.err
	}
	if len(d.buf) != 0 {
		return nil, ErrTrailingBytes
	}
	return msg, nil
}

type encoder struct {
	buf []byte
	err error
}

func (e *encoder) u32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *encoder) u64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }

func (e *encoder) bool(v bool) {
	b := byte(0)
	if v {
		b = 1
	}
	e.buf = append(e.buf, b)
}

func (e *encoder) str16(s string) {
	if e.err != nil {
		return
	}
	if len(s) > protocol.MaxSmallStringBytes {
		e.err = &protocol.LimitError{Field: "string", Got: len(s), Max: protocol.MaxSmallStringBytes}
		return
	}
	e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) str32(s string) {
	if e.err != nil {
		return
	}
	if len(s) > protocol.MaxFileTextBytes {
		e.err = &protocol.LimitError{Field: "file text", Got: len(s), Max: protocol.MaxFileTextBytes}
		return
	}
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) optStr16(s string, present bool) {
	e.bool(present)
	if present {
		e.str16(s)
	}
}

func (e *encoder) files(files []protocol.FileText) {
	if e.err != nil {
		return
	}
	if err := protocol.ValidateFiles(files); err != nil {
		e.err = err
		return
	}
	e.u32(uint32(len(files)))
	for i := range files {
		e.str16(files[i].Path)
		e.str32(files[i].Text)
	}
}

type decoder struct {
	buf []byte
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if len(d.buf) < n {
		d.err = fmt.Errorf("%w: need %d bytes, have %d", ErrBadEncoding, n, len(d.buf))
		return nil
	}
	out := d.buf[:n]
	d.buf = d.buf[n:]
	return out
}

func (d *decoder) u32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) u64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *decoder) bool() bool {
	b := d.take(1)
	if b == nil {
		return false
	}
	switch b[0] {
	case 0:
		return false
	case 1:
		return true
	default:
		d.err = fmt.Errorf("%w: bool byte 0x%02x", ErrBadEncoding, b[0])
		return false
	}
}

func (d *decoder) str16() string {
	b := d.take(2)
	if b == nil {
		return ""
	}
	n := int(binary.LittleEndian.Uint16(b))
	if n > protocol.MaxSmallStringBytes {
		d.err = &protocol.LimitError{Field: "string", Got: n, Max: protocol.MaxSmallStringBytes}
		return ""
	}
	return string(d.take(n))
}

func (d *decoder) str32() string {
	b := d.take(4)
	if b == nil {
		return ""
	}
	n := binary.LittleEndian.Uint32(b)
	if n > protocol.MaxFileTextBytes {
		d.err = &protocol.LimitError{Field: "file text", Got: int(n), Max: protocol.MaxFileTextBytes}
		return ""
	}
	return string(d.take(int(n)))
}

func (d *decoder) optStr16() (string, bool) {
	if !d.bool() {
		return "", false
	}
	return d.str16(), true
}

func (d *decoder) files() []protocol.FileText {
	n := d.u32()
	if d.err != nil {
		return nil
	}
	if n > protocol.MaxFilesPerMessage {
		d.err = &protocol.LimitError{Field: "files", Got: int(n), Max: protocol.MaxFilesPerMessage}
		return nil
	}
	var files []protocol.FileText
	for i := uint32(0); i < n && d.err == nil; i++ {
		var f protocol.FileText
		f.Path = d.str16()
		f.Text = d.str32()
		files = append(files, f)
	}
	return files
}
