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
	"github.com/pingcap/joinstrategy/pkg/planner/logicalop"
	"github.com/pingcap/joinstrategy/pkg/planner/strategy"
	"github.com/pingcap/joinstrategy/pkg/util/dbterror/joinerrors"
)

// Build creates the executor of a strategy decision. The spec must be valid.
func Build(d strategy.Decision, spec *logicalop.JoinSpec, opts Options) (Executor, error) {
	if !d.Strategy.CompatibleWith(spec.PredicateKind()) {
		return nil, joinerrors.ErrUnsupportedJoinType.GenWithStackByArgs(string(d.Strategy) + " without equality keys")
	}
	switch d.Strategy {
	case strategy.ShuffleReplicateNL:
		return NewNestedLoopReplicateExec(spec, opts), nil
	case strategy.ShuffleMerge:
		return NewMergeJoinExec(spec, opts), nil
	case strategy.ShuffleHash:
		return NewShuffleHashJoinExec(spec, opts, d.BuildSide), nil
	case strategy.Broadcast:
		return NewBroadcastJoinExec(spec, opts, d.BuildSide), nil
	}
	return nil, joinerrors.ErrUnsupportedJoinType.GenWithStackByArgs("strategy " + string(d.Strategy))
}
