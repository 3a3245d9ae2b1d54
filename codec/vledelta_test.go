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
	"errors"
	"reflect"
	"testing"
)

func TestVleDeltaRoundTrip(t *testing.T) {
	cases := [][]int64{
		nil,
		{0},
		{1, 2, 3, 4, 5},
		{-5, -4, -3, 10, 1000, -1000},
		{100, 101, 102, 103, 199},
	}
	c := VleDeltaIntCodec{}
	for _, values := range cases {
		compressed, err := c.Compress(values)
		if err != nil {
			t.Fatalf("compress: %v", err)
		}
		got, err := c.Decompress(compressed)
		if err != nil {
			t.Fatalf("decompress: %v", err)
		}
		if len(values) == 0 && len(got) == 0 {
			continue
		}
		if !reflect.DeepEqual(values, got) {
			t.Fatalf("round trip mismatch: want %v got %v", values, got)
		}
	}
}

func TestVleDeltaMonotonicColumnIsSmall(t *testing.T) {
	values := make([]int64, 100)
	for i := range values {
		values[i] = int64(100 + i)
	}
	c := VleDeltaIntCodec{}
	compressed, err := c.Compress(values)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if len(compressed) >= 100*8 {
		t.Fatalf("expected compressed size < %d, got %d", 100*8, len(compressed))
	}
	got, err := c.Decompress(compressed)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !reflect.DeepEqual(values, got) {
		t.Fatalf("round trip mismatch")
	}
}

func TestVleDeltaDecodeTruncated(t *testing.T) {
	c := VleDeltaIntCodec{}
	// 0x80 alone has the continuation bit set with no following byte.
	_, err := c.Decompress([]byte{0x80})
	if err == nil {
		t.Fatal("expected error on truncated varint stream")
	}
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Kind != VleDecoding {
		t.Fatalf("expected VleDecoding error, got %v", err)
	}
}

func TestNoIntCodecRoundTrip(t *testing.T) {
	values := []int64{1, 2, 3, -4, 5}
	c := NoIntCodec{}
	compressed, err := c.Compress(values)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	got, err := c.Decompress(compressed)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !reflect.DeepEqual(values, got) {
		t.Fatalf("round trip mismatch")
	}
}

func TestNoIntCodecWrongLength(t *testing.T) {
	c := NoIntCodec{}
	_, err := c.Decompress([]byte{1, 2, 3})
	if err == nil {
		t.Fatal("expected error for non-multiple-of-8 length")
	}
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Kind != WrongDataLength {
		t.Fatalf("expected WrongDataLength error, got %v", err)
	}
}
