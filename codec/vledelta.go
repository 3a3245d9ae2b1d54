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

import "encoding/binary"

// IntCodec compresses/decompresses a column of int64 values into a
// byte slice.
type IntCodec interface {
	Name() string
	Compress(values []int64) ([]byte, error)
	Decompress(data []byte) ([]int64, error)
}

// VleDeltaIntCodec stores successive deltas between values as
// zig-zag varints (spec §4.1): deltas[i] = data[i] - data[i-1] with
// data[-1] = 0, each delta zig-zag-encoded LEB128-style.
type VleDeltaIntCodec struct{}

func (VleDeltaIntCodec) Name() string { return "vle-delta" }

func zigzagEncode(n int64) uint64 {
	return uint64((n << 1) ^ (n >> 63))
}

func zigzagDecode(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

func (VleDeltaIntCodec) Compress(values []int64) ([]byte, error) {
	out := make([]byte, 0, len(values)*2)
	var last int64
	var buf [binary.MaxVarintLen64]byte
	for _, v := range values {
		delta := v - last
		last = v
		n := binary.PutUvarint(buf[:], zigzagEncode(delta))
		out = append(out, buf[:n]...)
	}
	return out, nil
}

func (VleDeltaIntCodec) Decompress(data []byte) ([]int64, error) {
	values := make([]int64, 0, len(data))
	var last int64
	for len(data) > 0 {
		u, n := binary.Uvarint(data)
		if n <= 0 {
			return nil, newErr(VleDecoding, "decoder stopped before going through all data")
		}
		delta := zigzagDecode(u)
		last += delta
		values = append(values, last)
		data = data[n:]
	}
	return values, nil
}

// NoIntCodec stores values as raw little-endian 8-byte records.
type NoIntCodec struct{}

func (NoIntCodec) Name() string { return "none" }

func (NoIntCodec) Compress(values []int64) ([]byte, error) {
	out := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[i*8:], uint64(v))
	}
	return out, nil
}

func (NoIntCodec) Decompress(data []byte) ([]int64, error) {
	if len(data)%8 != 0 {
		return nil, newErr(WrongDataLength, "data length must be divisible by 8")
	}
	values := make([]int64, len(data)/8)
	for i := range values {
		values[i] = int64(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return values, nil
}
