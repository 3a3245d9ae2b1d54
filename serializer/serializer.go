// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package serializer encodes and decodes Tables to the ISBD on-disk
// columnar format (spec §4.2):
//
//	MAGIC         4 bytes  = "ISBD"
//	VERSION       1 byte   = 1
//	NUM_COLS      2 bytes  u16
//	NUM_ROWS      8 bytes  u64
//	<column header> × NUM_COLS
//	<column data>  × NUM_COLS (in order)
//	FOOTER        4 bytes  = "ENDC"
//
// Each column header:
//
//	NAME_LEN       1 byte
//	NAME_BYTES     NAME_LEN bytes (UTF-8)
//	TYPE_TAG       1 byte   (0 = INT64, 1 = STRING, 2 = BOOL)
//	DATA_OFFSET    8 bytes  absolute file offset of column payload
//	DATA_LEN       8 bytes  byte length of column payload
//	[ LENGTHS_LEN  8 bytes  present only if TYPE_TAG = STRING ]
package serializer

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/isdb-project/isdb/codec"
	"github.com/isdb-project/isdb/table"
)

var magic = [4]byte{'I', 'S', 'B', 'D'}
var footer = [4]byte{'E', 'N', 'D', 'C'}

const version byte = 1

const (
	tagInt64  = 0
	tagString = 1
	tagBool   = 2
)

// Error is returned for I/O, codec, and format failures.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func invalidFormat(msg string) error {
	return &Error{Message: "invalid file format: " + msg}
}

func ioErr(msg string, cause error) error {
	return &Error{Message: msg, Cause: cause}
}

func codecErr(msg string, cause error) error {
	return &Error{Message: msg, Cause: cause}
}

// Serializer reads and writes tables using one codec pair. The codec
// identity is not recorded in the file itself (spec §4.1); a reader
// must be configured with the same codec pair the writer used.
type Serializer struct {
	Codecs codec.Pair
}

// New returns a Serializer using the production codec pair
// (VLE-delta ints, LZ4 strings).
func New() *Serializer {
	return &Serializer{Codecs: codec.Default()}
}

// NoCompression returns a Serializer using identity codecs.
func NoCompression() *Serializer {
	return &Serializer{Codecs: codec.NoCompression()}
}

type columnHeader struct {
	name          string
	tag           byte
	offsetPos     int64 // file position of the placeholder to backfill
	dataOffset    uint64
	dataLen       uint64
	lengthsLenPos int64
	lengthsLen    uint64
}

// Serialize writes table to path in the ISBD format.
func (s *Serializer) Serialize(path string, t *table.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return ioErr("create file", err)
	}
	defer f.Close()
	return s.writeTo(f, t)
}

func (s *Serializer) writeTo(f *os.File, t *table.Table) error {
	w := bufio.NewWriter(f)

	if _, err := w.Write(magic[:]); err != nil {
		return ioErr("write magic", err)
	}
	if err := w.WriteByte(version); err != nil {
		return ioErr("write version", err)
	}
	if err := writeUint16(w, uint16(len(t.Columns))); err != nil {
		return ioErr("write num cols", err)
	}
	if err := writeUint64(w, t.NumRows); err != nil {
		return ioErr("write num rows", err)
	}
	if err := w.Flush(); err != nil {
		return ioErr("flush header", err)
	}

	headers := make([]columnHeader, len(t.Columns))
	for i, col := range t.Columns {
		tag, err := typeTag(col.Data.Type)
		if err != nil {
			return err
		}
		headers[i].name = col.Name
		headers[i].tag = tag

		if err := w.WriteByte(byte(len(col.Name))); err != nil {
			return ioErr("write name len", err)
		}
		if _, err := w.WriteString(col.Name); err != nil {
			return ioErr("write name", err)
		}
		if err := w.WriteByte(tag); err != nil {
			return ioErr("write type tag", err)
		}
		if err := w.Flush(); err != nil {
			return ioErr("flush column header", err)
		}

		pos, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return ioErr("seek", err)
		}
		headers[i].offsetPos = pos

		if _, err := w.Write(make([]byte, 16)); err != nil { // DATA_OFFSET + DATA_LEN placeholders
			return ioErr("write placeholder", err)
		}
		if tag == tagString {
			if _, err := w.Write(make([]byte, 8)); err != nil { // LENGTHS_LEN placeholder
				return ioErr("write placeholder", err)
			}
		}
		if err := w.Flush(); err != nil {
			return ioErr("flush placeholder", err)
		}
	}

	for i, col := range t.Columns {
		pos, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return ioErr("seek", err)
		}
		headers[i].dataOffset = uint64(pos)

		switch col.Data.Type {
		case table.INT64:
			payload, err := s.Codecs.Int.Compress(col.Data.Ints)
			if err != nil {
				return codecErr("compress int column", err)
			}
			if _, err := w.Write(payload); err != nil {
				return ioErr("write int payload", err)
			}
			headers[i].dataLen = uint64(len(payload))

		case table.STRING:
			strData, err := s.Codecs.String.Compress(col.Data.Strs)
			if err != nil {
				return codecErr("compress string column", err)
			}
			if _, err := w.Write(strData.Data); err != nil {
				return ioErr("write string payload", err)
			}
			headers[i].dataLen = uint64(len(strData.Data))

			lengthsPayload, err := s.Codecs.Int.Compress(strData.Lengths)
			if err != nil {
				return codecErr("compress string lengths", err)
			}
			if _, err := w.Write(lengthsPayload); err != nil {
				return ioErr("write string lengths", err)
			}
			headers[i].lengthsLen = uint64(len(lengthsPayload))

		case table.BOOL:
			payload := encodeBools(col.Data.Bools)
			if _, err := w.Write(payload); err != nil {
				return ioErr("write bool payload", err)
			}
			headers[i].dataLen = uint64(len(payload))
		}
		if err := w.Flush(); err != nil {
			return ioErr("flush column data", err)
		}
	}

	if _, err := w.Write(footer[:]); err != nil {
		return ioErr("write footer", err)
	}
	if err := w.Flush(); err != nil {
		return ioErr("flush footer", err)
	}

	for _, h := range headers {
		if _, err := f.Seek(h.offsetPos, io.SeekStart); err != nil {
			return ioErr("seek to backfill", err)
		}
		var buf [24]byte
		binary.LittleEndian.PutUint64(buf[0:8], h.dataOffset)
		binary.LittleEndian.PutUint64(buf[8:16], h.dataLen)
		n := 16
		if h.tag == tagString {
			binary.LittleEndian.PutUint64(buf[16:24], h.lengthsLen)
			n = 24
		}
		if _, err := f.Write(buf[:n]); err != nil {
			return ioErr("backfill placeholder", err)
		}
	}

	return nil
}

// Deserialize reads a table from path, validating the ISBD framing.
func (s *Serializer) Deserialize(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioErr("open file", err)
	}
	defer f.Close()
	return s.readFrom(f)
}

type columnDescriptor struct {
	name       string
	tag        byte
	dataOffset uint64
	dataLen    uint64
	lengthsLen uint64
}

func (s *Serializer) readFrom(f *os.File) (*table.Table, error) {
	r := bufio.NewReader(f)

	var gotMagic [4]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil {
		return nil, ioErr("read magic", err)
	}
	if gotMagic != magic {
		return nil, invalidFormat("invalid file indicator")
	}

	if _, err := r.ReadByte(); err != nil { // version, currently unchecked beyond presence
		return nil, ioErr("read version", err)
	}

	numCols, err := readUint16(r)
	if err != nil {
		return nil, ioErr("read num cols", err)
	}
	numRows, err := readUint64(r)
	if err != nil {
		return nil, ioErr("read num rows", err)
	}

	descriptors := make([]columnDescriptor, numCols)
	for i := range descriptors {
		nameLen, err := r.ReadByte()
		if err != nil {
			return nil, ioErr("read name len", err)
		}
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBytes); err != nil {
			return nil, ioErr("read name", err)
		}

		tag, err := r.ReadByte()
		if err != nil {
			return nil, ioErr("read type tag", err)
		}
		if tag != tagInt64 && tag != tagString && tag != tagBool {
			return nil, invalidFormat(fmt.Sprintf("invalid column type at column %d", i))
		}

		dataOffset, err := readUint64(r)
		if err != nil {
			return nil, ioErr("read data offset", err)
		}
		dataLen, err := readUint64(r)
		if err != nil {
			return nil, ioErr("read data len", err)
		}

		var lengthsLen uint64
		if tag == tagString {
			lengthsLen, err = readUint64(r)
			if err != nil {
				return nil, ioErr("read lengths len", err)
			}
		}

		descriptors[i] = columnDescriptor{
			name:       string(nameBytes),
			tag:        tag,
			dataOffset: dataOffset,
			dataLen:    dataLen,
			lengthsLen: lengthsLen,
		}
	}

	columns := make([]table.Column, numCols)
	for i, desc := range descriptors {
		if _, err := f.Seek(int64(desc.dataOffset), io.SeekStart); err != nil {
			return nil, ioErr("seek to column payload", err)
		}
		buf := make([]byte, desc.dataLen)
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, ioErr("read column payload", err)
		}

		switch desc.tag {
		case tagInt64:
			ints, err := s.Codecs.Int.Decompress(buf)
			if err != nil {
				return nil, codecErr("decompress int column", err)
			}
			data := table.NewIntData(ints)
			data.Pad(int(numRows))
			columns[i] = table.Column{Name: desc.name, Data: data}

		case tagString:
			lenBuf := make([]byte, desc.lengthsLen)
			if _, err := io.ReadFull(f, lenBuf); err != nil {
				return nil, ioErr("read string lengths payload", err)
			}
			lengths, err := s.Codecs.Int.Decompress(lenBuf)
			if err != nil {
				return nil, codecErr("decompress string lengths", err)
			}
			strs, err := s.Codecs.String.Decompress(codec.StringData{Data: buf, Lengths: lengths})
			if err != nil {
				return nil, codecErr("decompress string column", err)
			}
			data := table.NewStringData(strs)
			data.Pad(int(numRows))
			columns[i] = table.Column{Name: desc.name, Data: data}

		case tagBool:
			bools := decodeBools(buf)
			data := table.NewBoolData(bools)
			data.Pad(int(numRows))
			columns[i] = table.Column{Name: desc.name, Data: data}
		}
	}

	// Column payloads were read through f directly, so r's buffer no
	// longer tracks the file position; the footer is the last 4 bytes.
	if _, err := f.Seek(-int64(len(footer)), io.SeekEnd); err != nil {
		return nil, ioErr("seek to footer", err)
	}
	var gotFooter [4]byte
	if _, err := io.ReadFull(f, gotFooter[:]); err != nil {
		return nil, ioErr("read footer", err)
	}
	if gotFooter != footer {
		return nil, invalidFormat("invalid file footer")
	}

	return &table.Table{NumRows: numRows, Columns: columns}, nil
}

func typeTag(t table.Type) (byte, error) {
	switch t {
	case table.INT64:
		return tagInt64, nil
	case table.STRING:
		return tagString, nil
	case table.BOOL:
		return tagBool, nil
	default:
		return 0, invalidFormat("unknown column type")
	}
}

func encodeBools(values []bool) []byte {
	out := make([]byte, len(values))
	for i, v := range values {
		if v {
			out[i] = 1
		}
	}
	return out
}

func decodeBools(data []byte) []bool {
	out := make([]bool, len(data))
	for i, b := range data {
		out[i] = b != 0
	}
	return out
}

func writeUint16(w *bufio.Writer, v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeUint64(w *bufio.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint16(r *bufio.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func readUint64(r *bufio.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
