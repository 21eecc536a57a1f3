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

package join

import (
	"github.com/dolthub/swiss"
	"github.com/pingcap/joinstrategy/pkg/util/memory"
)

const (
	// consumeBatchSize is the number of rows whose memory is consumed at once.
	consumeBatchSize = 256
	// hashKeySize approximates the overhead of one distinct key: its string
	// header, its offsets slice header and the swiss map slot.
	hashKeySize = 48
	// hashOffsetSize is the size of one row offset.
	hashOffsetSize = 4
)

// hashTable maps encoded join keys to the offsets of build rows. It is
// read-only once built, so it can be shared by probe workers.
type hashTable struct {
	rows []rowEntry
	m    *swiss.Map[string, []int32]
	// memUsage is the memory of the table itself, the rows are not included.
	memUsage int64
}

// newHashTable builds a hash table over rows. Rows with NULL keys are not
// inserted. If tracker is not nil, the memory of the table is consumed from
// it while the table grows.
func newHashTable(rows []rowEntry, tracker *memory.Tracker) *hashTable {
	ht := &hashTable{
		rows: rows,
		m:    swiss.NewMap[string, []int32](uint32(len(rows))),
	}
	var consumed int64
	for i := range rows {
		ent := &rows[i]
		if !ent.null {
			key := string(ent.key)
			offsets, ok := ht.m.Get(key)
			if !ok {
				consumed += int64(len(key)) + hashKeySize
			}
			ht.m.Put(key, append(offsets, int32(i)))
			consumed += hashOffsetSize
		}
		if (i+1)%consumeBatchSize == 0 {
			ht.consume(tracker, consumed)
			consumed = 0
		}
	}
	ht.consume(tracker, consumed)
	return ht
}

func (ht *hashTable) consume(tracker *memory.Tracker, bytes int64) {
	ht.memUsage += bytes
	if tracker != nil {
		tracker.Consume(bytes)
	}
}

// lookup returns the offsets of the build rows matching the probe row.
func (ht *hashTable) lookup(probe *rowEntry) []int32 {
	if probe.null {
		return nil
	}
	offsets, _ := ht.m.Get(string(probe.key))
	return offsets
}
