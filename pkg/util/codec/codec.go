// Copyright 2026 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pingcap/joinstrategy/pkg/util/chunk"
	"github.com/twmb/murmur3"
)

// First byte in the encoded value which specifies the encoding type.
const (
	intFlag    byte = 3
	floatFlag  byte = 5
	stringFlag byte = 1
	boolFlag   byte = 9
)

const signMask uint64 = 0x8000000000000000

// EncodeKey appends the encoded join key of row to b. The columns are encoded
// one by one with a type flag, so keys of equal values are byte-equal.
// hasNull is true if any of the key columns is NULL, the returned key is
// meaningless in that case.
func EncodeKey(b []byte, row chunk.Row, keyCols []int) (_ []byte, hasNull bool) {
	for _, idx := range keyCols {
		v := row[idx]
		if v == nil {
			return b, true
		}
		b = encodeValue(b, v)
	}
	return b, false
}

func encodeValue(b []byte, v any) []byte {
	switch x := v.(type) {
	case int64:
		b = append(b, intFlag)
		return binary.BigEndian.AppendUint64(b, uint64(x)^signMask)
	case float64:
		if x == 0 {
			// -0 and +0 are equal.
			x = 0
		}
		b = append(b, floatFlag)
		return binary.BigEndian.AppendUint64(b, encodeFloatToCmpUint64(x))
	case string:
		b = append(b, stringFlag)
		b = binary.AppendUvarint(b, uint64(len(x)))
		return append(b, x...)
	case bool:
		if x {
			return append(b, boolFlag, 1)
		}
		return append(b, boolFlag, 0)
	}
	panic(fmt.Sprintf("unsupported key type %T", v))
}

func encodeFloatToCmpUint64(f float64) uint64 {
	u := math.Float64bits(f)
	if f >= 0 {
		u |= signMask
	} else {
		u = ^u
	}
	return u
}

// HashKey hashes an encoded key.
func HashKey(key []byte) uint32 {
	return murmur3.Sum32(key)
}

// PartitionOf returns the shuffle partition of an encoded key.
func PartitionOf(key []byte, partitionNum int) int {
	return int(HashKey(key) % uint32(partitionNum))
}
