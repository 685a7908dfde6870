package persistence

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/hupe1980/classdb/internal/hash"
	"github.com/hupe1980/classdb/model"
)

const (
	tableMagic   = 0x43444254 // "CDBT"
	tableVersion = 1
	headerSize   = 20
)

const (
	flagRuntime  = 1 << 0
	flagVanished = 1 << 1
)

// encodeTable serializes a table.
// Format:
// Magic (4 bytes)
// Version (4 bytes)
// Compression (4 bytes)
// Checksum (4 bytes) - CRC32C of body
// BodyLength (4 bytes)
// Body: compressed block of the payload
//
//	Seq (8 bytes)
//	NumRecords (4 bytes)
//	Records...
//	  ID (8 bytes)
//	  Path (string)
//	  Hash (string)
//	  Flags (1 byte)
//	  State (1 byte)
//	  SupersededBy (8 bytes)
func encodeTable(t *table, c Compression) ([]byte, error) {
	pb := newPayloadBuffer(make([]byte, 0, 16+len(t.records)*96))

	pb.writeUint64(t.seq)
	pb.writeUint32(uint32(len(t.records)))
	for _, id := range t.sortedIDs() {
		pb.writeRecord(t.records[id])
	}
	if pb.err != nil {
		return nil, pb.err
	}

	body, err := compressBlock(pb.buf, c)
	if err != nil {
		return nil, fmt.Errorf("compress table: %w", err)
	}
	if uint64(len(body)) > math.MaxUint32 {
		return nil, fmt.Errorf("table too large: %d bytes", len(body))
	}

	out := make([]byte, headerSize, headerSize+len(body))
	binary.LittleEndian.PutUint32(out[0:4], tableMagic)
	binary.LittleEndian.PutUint32(out[4:8], tableVersion)
	binary.LittleEndian.PutUint32(out[8:12], uint32(c))
	binary.LittleEndian.PutUint32(out[12:16], hash.CRC32C(body))
	binary.LittleEndian.PutUint32(out[16:20], uint32(len(body)))
	return append(out, body...), nil
}

// decodeTable parses a table produced by encodeTable. Every validation
// failure is reported as ErrCorrupt.
func decodeTable(data []byte) (*table, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: short header", ErrCorrupt)
	}

	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != tableMagic {
		return nil, fmt.Errorf("%w: invalid magic: %x", ErrCorrupt, magic)
	}
	if version := binary.LittleEndian.Uint32(data[4:8]); version != tableVersion {
		return nil, fmt.Errorf("%w: unsupported version: %d", ErrCorrupt, version)
	}
	c := Compression(binary.LittleEndian.Uint32(data[8:12]))
	checksum := binary.LittleEndian.Uint32(data[12:16])
	length := binary.LittleEndian.Uint32(data[16:20])

	body := data[headerSize:]
	if uint64(len(body)) != uint64(length) {
		return nil, fmt.Errorf("%w: body length %d, want %d", ErrCorrupt, len(body), length)
	}
	if !hash.Verify(body, checksum) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	payload, err := decompressBlock(body, c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	pb := newPayloadBuffer(payload)
	t := newTable()
	t.seq = pb.readUint64()
	n := pb.readUint32()
	for i := uint32(0); i < n && pb.err == nil; i++ {
		r := pb.readRecord()
		t.records[r.ID] = r
	}
	if pb.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, pb.err)
	}
	if uint32(len(t.records)) != n {
		return nil, fmt.Errorf("%w: duplicate record ids", ErrCorrupt)
	}
	return t, nil
}

// MarshalRecord encodes a single record in the table's record format.
func MarshalRecord(r Record) ([]byte, error) {
	pb := newPayloadBuffer(make([]byte, 0, 32+len(r.Path)+len(r.Hash)))
	pb.writeRecord(r)
	return pb.buf, pb.err
}

// UnmarshalRecord decodes a record produced by MarshalRecord.
func UnmarshalRecord(data []byte) (Record, error) {
	pb := newPayloadBuffer(data)
	r := pb.readRecord()
	if pb.err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, pb.err)
	}
	if pb.pos != len(data) {
		return Record{}, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(data)-pb.pos)
	}
	return r, nil
}

func (p *payloadBuffer) writeRecord(r Record) {
	var flags uint8
	if r.Runtime {
		flags |= flagRuntime
	}
	if r.Vanished {
		flags |= flagVanished
	}

	p.writeUint64(uint64(r.ID))
	p.writeString(r.Path)
	p.writeString(r.Hash)
	p.writeUint8(flags)
	p.writeUint8(uint8(r.State))
	p.writeUint64(uint64(r.SupersededBy))
}

func (p *payloadBuffer) readRecord() Record {
	var r Record
	r.ID = model.LocationID(p.readUint64())
	r.Path = p.readString()
	r.Hash = p.readString()
	flags := p.readUint8()
	r.Runtime = flags&flagRuntime != 0
	r.Vanished = flags&flagVanished != 0
	r.State = model.State(p.readUint8())
	r.SupersededBy = model.LocationID(p.readUint64())
	return r
}

type payloadBuffer struct {
	buf []byte
	pos int
	err error
}

func newPayloadBuffer(b []byte) *payloadBuffer {
	return &payloadBuffer{buf: b}
}

func (p *payloadBuffer) writeUint64(v uint64) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint64(p.buf, v)
}

func (p *payloadBuffer) writeUint32(v uint32) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
}

func (p *payloadBuffer) writeUint8(v uint8) {
	if p.err != nil {
		return
	}
	p.buf = append(p.buf, v)
}

func (p *payloadBuffer) writeString(s string) {
	if p.err != nil {
		return
	}
	if len(s) > math.MaxUint16 {
		p.err = fmt.Errorf("string too long: %d", len(s))
		return
	}
	p.buf = binary.LittleEndian.AppendUint16(p.buf, uint16(len(s)))
	p.buf = append(p.buf, s...)
}

func (p *payloadBuffer) need(n int) bool {
	if p.err != nil {
		return false
	}
	if p.pos+n > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return false
	}
	return true
}

func (p *payloadBuffer) readUint64() uint64 {
	if !p.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(p.buf[p.pos:])
	p.pos += 8
	return v
}

func (p *payloadBuffer) readUint32() uint32 {
	if !p.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(p.buf[p.pos:])
	p.pos += 4
	return v
}

func (p *payloadBuffer) readUint8() uint8 {
	if !p.need(1) {
		return 0
	}
	v := p.buf[p.pos]
	p.pos++
	return v
}

func (p *payloadBuffer) readString() string {
	if !p.need(2) {
		return ""
	}
	l := int(binary.LittleEndian.Uint16(p.buf[p.pos:]))
	p.pos += 2

	if !p.need(l) {
		return ""
	}
	s := string(p.buf[p.pos : p.pos+l])
	p.pos += l
	return s
}
