package rw

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
)

// ReaderWriter encodes and decodes little endian navmesh data.
// Reads never panic: the first short read is recorded and every later
// read returns zero values, so callers check Err once at the end.
type ReaderWriter struct {
	order   binary.ByteOrder
	dataBuf [8]byte
	rw      *bytes.Buffer
	err     error
}

func NewBinWriter() *ReaderWriter {
	return &ReaderWriter{order: binary.LittleEndian, rw: &bytes.Buffer{}}
}

func NewBinReader(data []byte) *ReaderWriter {
	return &ReaderWriter{order: binary.LittleEndian, rw: bytes.NewBuffer(data)}
}

func (w *ReaderWriter) Err() error {
	return w.err
}

func (w *ReaderWriter) next(n int) []byte {
	if w.err != nil {
		return nil
	}
	b := w.rw.Next(n)
	if len(b) < n {
		w.err = io.ErrUnexpectedEOF
		return nil
	}
	return b
}

func (w *ReaderWriter) ReadUInt8() uint8 {
	b := w.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (w *ReaderWriter) ReadUInt8s(value []uint8) {
	b := w.next(len(value))
	if b == nil {
		return
	}
	copy(value, b)
}

func (w *ReaderWriter) ReadUInt16() uint16 {
	b := w.next(2)
	if b == nil {
		return 0
	}
	return w.order.Uint16(b)
}

func (w *ReaderWriter) ReadUInt16s(value []uint16) {
	for i := range value {
		value[i] = w.ReadUInt16()
	}
}

func (w *ReaderWriter) ReadUInt32() uint32 {
	b := w.next(4)
	if b == nil {
		return 0
	}
	return w.order.Uint32(b)
}

func (w *ReaderWriter) ReadInt32() int32 {
	return int32(w.ReadUInt32())
}

func (w *ReaderWriter) ReadFloat32() float32 {
	return math.Float32frombits(w.ReadUInt32())
}

func (w *ReaderWriter) ReadFloat32s(value []float32) {
	for i := range value {
		value[i] = w.ReadFloat32()
	}
}

func (w *ReaderWriter) WriteUInt8(v uint8) {
	w.rw.WriteByte(v)
}

func (w *ReaderWriter) WriteUInt8s(v []uint8) {
	w.rw.Write(v)
}

func (w *ReaderWriter) WriteUInt16(v uint16) {
	w.order.PutUint16(w.dataBuf[:2], v)
	w.rw.Write(w.dataBuf[:2])
}

func (w *ReaderWriter) WriteUInt16s(v []uint16) {
	for _, tmp := range v {
		w.WriteUInt16(tmp)
	}
}

func (w *ReaderWriter) WriteUInt32(v uint32) {
	w.order.PutUint32(w.dataBuf[:4], v)
	w.rw.Write(w.dataBuf[:4])
}

func (w *ReaderWriter) WriteInt32(v int32) {
	w.WriteUInt32(uint32(v))
}

func (w *ReaderWriter) WriteFloat32(v float32) {
	w.WriteUInt32(math.Float32bits(v))
}

func (w *ReaderWriter) WriteFloat32s(v []float32) {
	for _, tmp := range v {
		w.WriteFloat32(tmp)
	}
}

func (w *ReaderWriter) Skip(size int) {
	w.next(size)
}

func (w *ReaderWriter) PadZero(n int) {
	for i := 0; i < n; i++ {
		w.rw.WriteByte(0)
	}
}

// Align4 pads the written stream, or skips the read stream, to a four byte boundary
// relative to the section start offset.
func (w *ReaderWriter) Align4(sectionLen int) {
	pad := Align4(sectionLen) - sectionLen
	if pad == 0 {
		return
	}
	w.PadZero(pad)
}

func (w *ReaderWriter) SkipAlign4(sectionLen int) {
	w.Skip(Align4(sectionLen) - sectionLen)
}

func (w *ReaderWriter) GetWriteBytes() []byte {
	return w.rw.Bytes()
}

// Len is the number of unread bytes.
func (w *ReaderWriter) Len() int {
	return w.rw.Len()
}

func Align4(x int) int { return (x + 3) &^ 3 }
