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

// Pair bundles the int and string codec a Serializer uses for one
// table. The format itself only records a type tag and length
// fields per column (spec §4.2); codec identity is a property of the
// reader's configuration.
type Pair struct {
	Int    IntCodec
	String StringCodec
}

// Default returns the production codec pair: VLE-delta for ints,
// LZ4 for strings.
func Default() Pair {
	return Pair{Int: VleDeltaIntCodec{}, String: LZ4StringCodec{}}
}

// NoCompression returns the identity codec pair, used for format
// compatibility checks and benchmarking.
func NoCompression() Pair {
	return Pair{Int: NoIntCodec{}, String: NoStringCodec{}}
}
