package bytecode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"vasm/pkg/mem"
	"vasm/pkg/parser/codegen"

	"github.com/cespare/xxhash/v2"
)

// Magic opens every image
const Magic = "VASM"

// Version of the image layout
const Version uint16 = 1

// headerSize is magic + version + flags + checksum
const headerSize = 4 + 2 + 2 + 8

var (
	ErrBadMagic   = errors.New("not a vasm image")
	ErrVersion    = errors.New("unsupported image version")
	ErrChecksum   = errors.New("image checksum mismatch")
	ErrTruncated  = errors.New("truncated image")
	ErrBadOpcode  = errors.New("invalid operation in image")
	ErrOutOfRange = errors.New("value out of range for image")
)

// Encode serialises a program into a checksummed image
func Encode(p *codegen.Program) ([]byte, error) {
	var payload bytes.Buffer
	w := &writer{buf: &payload}

	w.u32(p.DataBase)
	w.u32(p.Entry)
	w.u32(len(p.Data))
	payload.Write(p.Data)

	w.u32(len(p.Code))
	for _, in := range p.Code {
		payload.WriteByte(byte(in.Op))
		payload.WriteByte(byte(in.Type))
		w.i64(in.Arg1)
		w.i64(in.Arg2)
		w.i64(int64(math.Float64bits(in.Float)))
		w.u32(in.Line)
		w.u16(in.Depth)
		w.str(in.Name)
	}

	names := p.Names()
	w.u32(len(names))
	for _, name := range names {
		w.str(name)
		w.u32(p.Labels[name])
	}

	if w.err != nil {
		return nil, w.err
	}

	out := make([]byte, headerSize, headerSize+payload.Len())
	copy(out, Magic)
	binary.LittleEndian.PutUint16(out[4:], Version)
	binary.LittleEndian.PutUint64(out[8:], xxhash.Sum64(payload.Bytes()))

	return append(out, payload.Bytes()...), nil
}

// Decode parses an image produced by Encode, verifying its checksum
func Decode(image []byte) (*codegen.Program, error) {
	if len(image) < headerSize {
		return nil, ErrTruncated
	}

	if string(image[:4]) != Magic {
		return nil, ErrBadMagic
	}

	if v := binary.LittleEndian.Uint16(image[4:]); v != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, v)
	}

	payload := image[headerSize:]
	if sum := binary.LittleEndian.Uint64(image[8:]); sum != xxhash.Sum64(payload) {
		return nil, ErrChecksum
	}

	r := &reader{b: payload}
	p := &codegen.Program{Labels: make(map[string]int)}

	p.DataBase = r.u32()
	p.Entry = r.u32()
	p.Data = append([]byte(nil), r.take(r.u32())...)

	count := r.u32()
	if r.err == nil {
		p.Code = make([]codegen.Instruction, 0, min(count, len(payload)))
	}

	for range count {
		if r.err != nil {
			break
		}

		var in codegen.Instruction
		in.Op = codegen.Operation(r.u8())
		in.Type = mem.Type(r.u8())
		in.Arg1 = r.i64()
		in.Arg2 = r.i64()
		in.Float = math.Float64frombits(uint64(r.i64()))
		in.Line = r.u32()
		in.Depth = r.u16()
		in.Name = r.str()

		if r.err == nil && !in.Op.Valid() {
			return nil, fmt.Errorf("%w: %d", ErrBadOpcode, in.Op)
		}

		p.Code = append(p.Code, in)
	}

	labels := r.u32()
	for range labels {
		if r.err != nil {
			break
		}

		name := r.str()
		p.Labels[name] = r.u32()
	}

	if r.err != nil {
		return nil, r.err
	}

	return p, nil
}

type writer struct {
	buf *bytes.Buffer
	err error
}

func (w *writer) u16(v int) {
	if v < 0 || v > math.MaxUint16 {
		w.fail(v)
	}
	w.buf.Write(binary.LittleEndian.AppendUint16(nil, uint16(v)))
}

func (w *writer) u32(v int) {
	if v < 0 || v > math.MaxUint32 {
		w.fail(v)
	}
	w.buf.Write(binary.LittleEndian.AppendUint32(nil, uint32(v)))
}

func (w *writer) i64(v int64) {
	w.buf.Write(binary.LittleEndian.AppendUint64(nil, uint64(v)))
}

func (w *writer) str(s string) {
	w.u16(len(s))
	w.buf.WriteString(s)
}

func (w *writer) fail(v int) {
	if w.err == nil {
		w.err = fmt.Errorf("%w: %d", ErrOutOfRange, v)
	}
}

type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}

	if n < 0 || r.off+n > len(r.b) {
		r.err = ErrTruncated
		return nil
	}

	out := r.b[r.off : r.off+n]
	r.off += n

	return out
}

func (r *reader) u8() int {
	b := r.take(1)
	if b == nil {
		return 0
	}

	return int(b[0])
}

func (r *reader) u16() int {
	b := r.take(2)
	if b == nil {
		return 0
	}

	return int(binary.LittleEndian.Uint16(b))
}

func (r *reader) u32() int {
	b := r.take(4)
	if b == nil {
		return 0
	}

	return int(binary.LittleEndian.Uint32(b))
}

func (r *reader) i64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}

	return int64(binary.LittleEndian.Uint64(b))
}

func (r *reader) str() string {
	return string(r.take(r.u16()))
}
