// Copyright 2018 PingCAP, Inc.
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

package memory

import (
	"sync"

	"github.com/docker/go-units"
	"github.com/pingcap/joinstrategy/pkg/util/dbterror/joinerrors"
	"github.com/pingcap/joinstrategy/pkg/util/logutil"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Tracker is used to track the memory usage of join executors.
// It contains an optional limit and can be arranged into a tree structure
// such that the consumption tracked by a Tracker is also tracked by
// its ancestors. The main idea comes from Apache Impala:
//
// https://github.com/cloudera/Impala/blob/cdh5-trunk/be/src/runtime/mem-tracker.h
//
// A typical sequence of calls for a single Tracker is:
// 1. NewTracker() / tracker.AttachTo()
// 2. tracker.Consume() / tracker.BytesConsumed()
//
// Consume, BytesConsumed, MaxConsumed and AttachTo are thread-safe.
type Tracker struct {
	parMu struct {
		sync.Mutex
		parent *Tracker
	}
	actionMu struct {
		sync.Mutex
		actionOnExceed ActionOnExceed
	}

	label         string
	bytesConsumed atomic.Int64
	bytesLimit    int64 // bytesLimit <= 0 means no limit.
	maxConsumed   atomic.Int64
}

// NewTracker creates a memory tracker.
//  1. "label" is the label used in the usage string and in errors.
//  2. "bytesLimit <= 0" means no limit.
//
// Exceeding the limit panics with joinerrors.ErrOutOfMemory by default, the
// panic is converted to an error by the worker that consumed the memory.
func NewTracker(label string, bytesLimit int64) *Tracker {
	t := &Tracker{
		label:      label,
		bytesLimit: bytesLimit,
	}
	t.actionMu.actionOnExceed = &PanicOnExceed{}
	return t
}

// Label gets the label of a Tracker.
func (t *Tracker) Label() string {
	return t.label
}

// SetActionOnExceed sets the action when memory usage exceeds bytesLimit.
func (t *Tracker) SetActionOnExceed(a ActionOnExceed) {
	t.actionMu.Lock()
	t.actionMu.actionOnExceed = a
	t.actionMu.Unlock()
}

// AttachTo attaches this memory tracker as a child to another Tracker. If it
// already has a parent, its consumption is moved from the old parent.
func (t *Tracker) AttachTo(parent *Tracker) {
	if old := t.getParent(); old != nil {
		old.Consume(-t.BytesConsumed())
	}
	t.setParent(parent)
	parent.Consume(t.BytesConsumed())
}

// Detach de-attach the tracker child from its parent and releases its
// consumption from all ancestors.
func (t *Tracker) Detach() {
	parent := t.getParent()
	if parent == nil {
		return
	}
	parent.Consume(-t.BytesConsumed())
	t.setParent(nil)
}

// Consume is used to consume a memory usage. "bytes" can be a negative value,
// which means this is a memory release operation. When memory usage of a tracker
// exceeds its bytesLimit, the tracker calls its action, so does each of its
// ancestors, from the tracker up to the root.
func (t *Tracker) Consume(bytes int64) {
	if bytes == 0 {
		return
	}
	var exceeded []*Tracker
	for tracker := t; tracker != nil; tracker = tracker.getParent() {
		consumed := tracker.bytesConsumed.Add(bytes)
		if bytes > 0 && tracker.bytesLimit > 0 && consumed > tracker.bytesLimit {
			exceeded = append(exceeded, tracker)
		}
		for {
			maxNow := tracker.maxConsumed.Load()
			if consumed <= maxNow || tracker.maxConsumed.CompareAndSwap(maxNow, consumed) {
				break
			}
		}
	}
	for _, tracker := range exceeded {
		tracker.actionMu.Lock()
		action := tracker.actionMu.actionOnExceed
		tracker.actionMu.Unlock()
		if action != nil {
			action.Action(tracker)
		}
	}
}

// BytesConsumed returns the consumed memory usage value in bytes.
func (t *Tracker) BytesConsumed() int64 {
	return t.bytesConsumed.Load()
}

// MaxConsumed returns max number of bytes consumed during execution.
func (t *Tracker) MaxConsumed() int64 {
	return t.maxConsumed.Load()
}

// String returns a short description of the tracker usage.
func (t *Tracker) String() string {
	s := t.label + " consumed " + units.BytesSize(float64(t.BytesConsumed()))
	if t.bytesLimit > 0 {
		s += " of " + units.BytesSize(float64(t.bytesLimit))
	}
	return s
}

func (t *Tracker) getParent() *Tracker {
	t.parMu.Lock()
	defer t.parMu.Unlock()
	return t.parMu.parent
}

func (t *Tracker) setParent(parent *Tracker) {
	t.parMu.Lock()
	defer t.parMu.Unlock()
	t.parMu.parent = parent
}

// ActionOnExceed is the action taken when memory usage exceeds memory quota.
// NOTE: All the implementors should be thread-safe.
type ActionOnExceed interface {
	// Action will be called when memory usage exceeds memory quota by the
	// corresponding Tracker.
	Action(t *Tracker)
}

// LogOnExceed logs a warning only once when memory usage exceeds memory quota.
type LogOnExceed struct {
	acted atomic.Bool
}

// Action logs a warning only once when memory usage exceeds memory quota.
func (a *LogOnExceed) Action(t *Tracker) {
	if a.acted.CompareAndSwap(false, true) {
		logutil.BgLogger().Warn("memory exceeds quota",
			zap.String("tracker", t.label),
			zap.Int64("consumed", t.BytesConsumed()),
			zap.Int64("quota", t.bytesLimit))
	}
}

// PanicOnExceed panics when memory usage exceeds memory quota.
type PanicOnExceed struct{}

// Action panics with joinerrors.ErrOutOfMemory.
func (*PanicOnExceed) Action(t *Tracker) {
	err := joinerrors.ErrOutOfMemory.GenWithStackByArgs(t.label, t.bytesLimit, t.BytesConsumed())
	logutil.BgLogger().Warn("memory exceeds quota", zap.Error(err))
	panic(err)
}
