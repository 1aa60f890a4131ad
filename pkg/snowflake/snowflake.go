// Package snowflake generates 63-bit ids that sort by generation time.
// Ids issued by a single node are strictly increasing: the millisecond
// timestamp occupies the high bits and a per-millisecond sequence breaks
// ties, so the ledger can use them as its ordering authority.
package snowflake

import (
	"errors"
	"sync"
	"time"
)

const (
	workerBits       = 10
	seqBits          = 12
	workerMax        = -1 ^ (-1 << workerBits)
	seqMask          = -1 ^ (-1 << seqBits)
	timeShift        = workerBits + seqBits
	workerShift      = seqBits
	epoch      int64 = 1735689600000 // 2025-01-01 00:00:00 UTC
)

type Node struct {
	mu     sync.Mutex
	last   int64
	worker int64
	seq    int64
}

func NewNode(worker int64) (*Node, error) {
	if worker < 0 || worker > workerMax {
		return nil, errors.New("worker number must be between 0 and 1023")
	}
	return &Node{worker: worker}, nil
}

func (n *Node) Generate() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < n.last {
		// Clock moved backwards; keep issuing against the last
		// observed millisecond rather than going back in time.
		now = n.last
	}

	if now == n.last {
		n.seq = (n.seq + 1) & seqMask
		if n.seq == 0 {
			for now <= n.last {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		n.seq = 0
	}
	n.last = now

	return ((now - epoch) << timeShift) | (n.worker << workerShift) | n.seq
}

// Time returns the generation instant encoded in id.
func Time(id int64) time.Time {
	return time.UnixMilli((id >> timeShift) + epoch).UTC()
}
