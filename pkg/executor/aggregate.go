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

package executor

import (
	"context"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/joinstrategy/pkg/relation"
	"github.com/pingcap/joinstrategy/pkg/types"
	"github.com/pingcap/joinstrategy/pkg/util/chunk"
	"github.com/pingcap/joinstrategy/pkg/util/dbterror/joinerrors"
)

// AggregateResult holds count(*), count(col) and sum(col) of a result set.
type AggregateResult struct {
	Count    int64
	CountCol int64
	// Sum is int64 or float64 according to the column type, nil if all
	// values are NULL or no column is aggregated.
	Sum     any
	Elapsed time.Duration
}

// Aggregate drains rs and aggregates column col. If col < 0 only count(*) is
// computed. rs is closed on return.
func Aggregate(ctx context.Context, rs *ResultSet, col int) (_ *AggregateResult, err error) {
	defer func() {
		if closeErr := rs.Close(); err == nil {
			err = closeErr
		}
	}()
	var tp types.EvalType
	if col >= 0 {
		if col >= rs.Schema().Len() {
			return nil, joinerrors.ErrInvalidJoinSpec.GenWithStackByArgs("aggregate column offset out of range")
		}
		tp = rs.Schema().Columns[col].Tp
		if tp != types.ETInt && tp != types.ETReal {
			return nil, joinerrors.ErrInvalidJoinSpec.GenWithStackByArgs("cannot sum column of type " + tp.String())
		}
	}
	var (
		res      AggregateResult
		intSum   int64
		floatSum float64
	)
	chk := rs.NewChunk(relation.DefaultChunkSize)
	for {
		if err := rs.Next(ctx, chk); err != nil {
			return nil, errors.Trace(err)
		}
		if chk.NumRows() == 0 {
			break
		}
		res.Count += int64(chk.NumRows())
		if col >= 0 {
			aggregateChunk(chk, col, &res.CountCol, &intSum, &floatSum)
		}
	}
	if res.CountCol > 0 {
		if tp == types.ETInt {
			res.Sum = intSum
		} else {
			res.Sum = floatSum
		}
	}
	res.Elapsed = rs.Elapsed()
	return &res, nil
}

func aggregateChunk(chk *chunk.Chunk, col int, count, intSum *int64, floatSum *float64) {
	for i := range chk.NumRows() {
		switch v := chk.GetRow(i)[col].(type) {
		case int64:
			*count++
			*intSum += v
		case float64:
			*count++
			*floatSum += v
		}
	}
}
