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

package codec

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/pierrec/lz4/v4"
)

// StringData is a string column split into its two on-disk parts:
// a compressed byte blob and a parallel int64 length sidecar
// (spec §4.1).
type StringData struct {
	Data    []byte
	Lengths []int64
}

// StringCodec compresses/decompresses a column of strings.
type StringCodec interface {
	Name() string
	Compress(values []string) (StringData, error)
	Decompress(data StringData) ([]string, error)
}

func lengthsOf(values []string) []int64 {
	lengths := make([]int64, len(values))
	for i, v := range values {
		lengths[i] = int64(len(v))
	}
	return lengths
}

func sliceByLengths(raw []byte, lengths []int64) ([]string, error) {
	out := make([]string, 0, len(lengths))
	offset := 0
	for _, l := range lengths {
		if l < 0 {
			return nil, newErr(NegativeStringLength, "negative string length was passed")
		}
		end := offset + int(l)
		if end > len(raw) {
			return nil, newErr(WrongDataLength, "data length is shorter than declared string lengths")
		}
		slice := raw[offset:end]
		if !utf8.Valid(slice) {
			return nil, newErr(Utf8Decoding, "invalid utf-8 in string column")
		}
		out = append(out, string(slice))
		offset = end
	}
	return out, nil
}

// LZ4StringCodec LZ4-compresses the concatenation of all UTF-8 bytes
// in the column, prefixed with the uncompressed size as a 32-bit
// little-endian integer, so that decompression can size its output
// buffer without a side channel. If the block encoder writes nothing,
// the raw bytes are stored after the prefix instead and bit 31 of the
// prefix is set to mark them.
type LZ4StringCodec struct{}

func (LZ4StringCodec) Name() string { return "lz4" }

func (LZ4StringCodec) Compress(values []string) (StringData, error) {
	var raw []byte
	for _, v := range values {
		raw = append(raw, v...)
	}

	bound := lz4.CompressBlockBound(len(raw))
	out := make([]byte, 4+bound)
	binary.LittleEndian.PutUint32(out[:4], uint32(len(raw)))

	var compressor lz4.Compressor
	n, err := compressor.CompressBlock(raw, out[4:])
	if err != nil {
		return StringData{}, wrapErr(Lz4Decompression, "lz4 compression failed", err)
	}
	if n == 0 && len(raw) > 0 {
		// incompressible input: lz4 signals this by writing nothing;
		// fall back to storing the raw bytes with no block encoding.
		out = append(out[:4], raw...)
		binary.LittleEndian.PutUint32(out[:4], uint32(len(raw))|(1<<31))
	} else {
		out = out[:4+n]
	}

	return StringData{Data: out, Lengths: lengthsOf(values)}, nil
}

func (LZ4StringCodec) Decompress(data StringData) ([]string, error) {
	if len(data.Data) < 4 {
		return nil, newErr(WrongDataLength, "missing uncompressed-size prefix")
	}
	sizeField := binary.LittleEndian.Uint32(data.Data[:4])
	stored := sizeField&(1<<31) != 0
	uncompressedSize := int(sizeField &^ (1 << 31))

	var raw []byte
	switch {
	case uncompressedSize == 0:
		raw = nil
	case stored:
		raw = data.Data[4:]
		if len(raw) != uncompressedSize {
			return nil, newErr(WrongDataLength, "stored block size mismatch")
		}
	default:
		raw = make([]byte, uncompressedSize)
		n, err := lz4.UncompressBlock(data.Data[4:], raw)
		if err != nil {
			return nil, wrapErr(Lz4Decompression, "lz4 decompression failed", err)
		}
		raw = raw[:n]
	}

	return sliceByLengths(raw, data.Lengths)
}

// NoStringCodec concatenates the raw UTF-8 bytes with no compression.
type NoStringCodec struct{}

func (NoStringCodec) Name() string { return "none" }

func (NoStringCodec) Compress(values []string) (StringData, error) {
	var raw []byte
	for _, v := range values {
		raw = append(raw, v...)
	}
	return StringData{Data: raw, Lengths: lengthsOf(values)}, nil
}

func (NoStringCodec) Decompress(data StringData) ([]string, error) {
	return sliceByLengths(data.Data, data.Lengths)
}
