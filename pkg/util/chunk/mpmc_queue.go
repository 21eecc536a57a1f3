// Copyright 2023 PingCAP, Inc.
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

package chunk

import (
	"container/list"
	"sync"
)

// Status is the status of a MPMCQueue.
type Status int

// Result is the result of Push and Pop.
type Result int

const (
	// Open means the queue is normal.
	Open Status = iota
	// Closed means no more items will be pushed, pending items can still be popped.
	Closed
	// Cancelled means the queue has been abandoned, pending items are dropped.
	Cancelled
)

const (
	// OK means that Push or Pop is successful
	OK Result = iota
	// Exhausted means the queue is closed and drained.
	Exhausted
	// Aborted means the queue has been cancelled.
	Aborted

	// DefaultMPMCQueueLimitNum is the default capacity of a MPMCQueue.
	DefaultMPMCQueueLimitNum = 100
)

// MPMCQueue means multi producer and multi consumer.
type MPMCQueue[T any] struct {
	lock  sync.Mutex
	cond  *sync.Cond
	queue list.List

	// Maximum number of items the queue could store.
	limitNum int

	status Status
}

// NewMPMCQueue creates a new MPMCQueue
func NewMPMCQueue[T any](limit int) *MPMCQueue[T] {
	if limit <= 0 {
		limit = DefaultMPMCQueueLimitNum
	}
	m := &MPMCQueue[T]{
		limitNum: limit,
		status:   Open,
	}
	m.cond = sync.NewCond(&m.lock)
	return m
}

// Push pushes an item into queue with thread safety. It blocks while the
// queue is full.
func (m *MPMCQueue[T]) Push(item T) Result {
	m.lock.Lock()
	defer m.lock.Unlock()

	for m.queue.Len() >= m.limitNum && m.status == Open {
		m.cond.Wait()
	}

	switch m.status {
	case Closed:
		panic("push to a closed MPMCQueue")
	case Cancelled:
		return Aborted
	}

	m.queue.PushBack(item)
	m.cond.Broadcast()
	return OK
}

// Pop pops an item from queue with thread safety. It blocks while the queue
// is empty and open.
func (m *MPMCQueue[T]) Pop() (item T, _ Result) {
	m.lock.Lock()
	defer m.lock.Unlock()

	for m.queue.Len() == 0 && m.status == Open {
		m.cond.Wait()
	}

	if m.status == Cancelled {
		return item, Aborted
	}
	if m.queue.Len() == 0 {
		return item, Exhausted
	}

	elem := m.queue.Front()
	m.queue.Remove(elem)
	m.cond.Broadcast()
	return elem.Value.(T), OK
}

// Close marks that no more items will be pushed.
func (m *MPMCQueue[T]) Close() {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.status == Open {
		m.status = Closed
	}
	m.cond.Broadcast()
}

// Cancel drops pending items and wakes up all blocked producers and consumers.
func (m *MPMCQueue[T]) Cancel() {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.status = Cancelled
	m.queue.Init()
	m.cond.Broadcast()
}
