// Package wire frames cached payloads together with the version they were
// written under, so a blob read back under a versioned key can be validated.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	format      byte = 1
	kindRecord  byte = 1
	kindIDs     byte = 2
	kindRecords byte = 3

	headerLen = 4 + 1 + 1 + 8
	maxItem   = 0xFFFFFFFF
)

var (
	ErrCorrupt = errors.New("recordcache: corrupt entry")
	magic4     = [...]byte{'R', 'C', 'C', '1'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

func header(buf *bytes.Buffer, kind byte, version uint64) {
	buf.Write(magic4[:])
	buf.WriteByte(format)
	buf.WriteByte(kind)
	var u8 [8]byte
	binary.BigEndian.PutUint64(u8[:], version)
	buf.Write(u8[:])
}

func readHeader(b []byte, kind byte) (uint64, error) {
	if len(b) < headerLen || !hasMagic(b) || b[4] != format || b[5] != kind {
		return 0, ErrCorrupt
	}
	return binary.BigEndian.Uint64(b[6:14]), nil
}

// Record: magic(4) | fmt(1) | kind(1) | version(u64 be) | vlen(u32 be) | payload(vlen)
func EncodeRecord(version uint64, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(headerLen + 4 + len(payload))
	header(&buf, kindRecord, version)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])
	buf.Write(payload)
	return buf.Bytes()
}

func DecodeRecord(b []byte) (version uint64, payload []byte, err error) {
	version, err = readHeader(b, kindRecord)
	if err != nil {
		return 0, nil, err
	}
	off := headerLen
	if off+4 > len(b) {
		return 0, nil, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off {
		return 0, nil, ErrCorrupt
	}
	return version, b[off:], nil
}

// IDs: header | n(u32 be) | (len(u16 be) | id(len)) * n
func EncodeIDs(version uint64, ids []string) ([]byte, error) {
	total := headerLen + 4
	for _, id := range ids {
		total += 2 + len(id)
	}
	var buf bytes.Buffer
	buf.Grow(total)
	header(&buf, kindIDs, version)

	var u4 [4]byte
	var u2 [2]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(ids)))
	buf.Write(u4[:])
	for _, id := range ids {
		if l := len(id); l == 0 || l > 0xFFFF {
			return nil, fmt.Errorf("recordcache: invalid id length %d in list", l)
		}
		binary.BigEndian.PutUint16(u2[:], uint16(len(id)))
		buf.Write(u2[:])
		buf.WriteString(id)
	}
	return buf.Bytes(), nil
}

func DecodeIDs(b []byte) (uint64, []string, error) {
	version, err := readHeader(b, kindIDs)
	if err != nil {
		return 0, nil, err
	}
	off := headerLen
	if off+4 > len(b) {
		return 0, nil, ErrCorrupt
	}
	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// each id takes at least 3 bytes; never trust n for preallocation beyond that
	if n > (len(b)-off)/3 {
		return 0, nil, ErrCorrupt
	}
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return 0, nil, ErrCorrupt
		}
		l := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if l == 0 || l > len(b)-off {
			return 0, nil, ErrCorrupt
		}
		ids = append(ids, string(b[off:off+l]))
		off += l
	}
	if off != len(b) {
		return 0, nil, ErrCorrupt
	}
	return version, ids, nil
}

// Records: header | n(u32 be) | (vlen(u32 be) | payload(vlen)) * n
func EncodeRecords(version uint64, payloads [][]byte) ([]byte, error) {
	total := headerLen + 4
	for _, p := range payloads {
		if uint64(len(p)) > maxItem {
			return nil, fmt.Errorf("recordcache: payload too large (%d bytes)", len(p))
		}
		total += 4 + len(p)
	}
	var buf bytes.Buffer
	buf.Grow(total)
	header(&buf, kindRecords, version)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payloads)))
	buf.Write(u4[:])
	for _, p := range payloads {
		binary.BigEndian.PutUint32(u4[:], uint32(len(p)))
		buf.Write(u4[:])
		buf.Write(p)
	}
	return buf.Bytes(), nil
}

func DecodeRecords(b []byte) (uint64, [][]byte, error) {
	version, err := readHeader(b, kindRecords)
	if err != nil {
		return 0, nil, err
	}
	off := headerLen
	if off+4 > len(b) {
		return 0, nil, ErrCorrupt
	}
	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if n > (len(b)-off)/4 {
		return 0, nil, ErrCorrupt
	}
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if off+4 > len(b) {
			return 0, nil, ErrCorrupt
		}
		vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if vlen < 0 || vlen > len(b)-off {
			return 0, nil, ErrCorrupt
		}
		out = append(out, b[off:off+vlen])
		off += vlen
	}
	if off != len(b) {
		return 0, nil, ErrCorrupt
	}
	return version, out, nil
}
