package core

import "sync/atomic"

// Identifier hands out process-unique resource ids. Ids are never reused,
// so comparing two ids is enough to tell whether a GPU binding changed.
type Identifier struct {
	next atomic.Uint64
}

// InvalidID is never returned by Next.
const InvalidID uint64 = 0

func (i *Identifier) Next() uint64 {
	return i.next.Add(1)
}
