package receipts

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryLog keeps every receipt in memory, indexed by subject.
type MemoryLog struct {
	mu        sync.RWMutex
	all       []Receipt
	bySubject map[common.Address][]int
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{bySubject: make(map[common.Address][]int)}
}

func (l *MemoryLog) Append(_ context.Context, batch []Receipt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range batch {
		l.all = append(l.all, r)
		subject := r.Subject
		if r.Kind == KindTransferSingle {
			subject = r.From
			if subject == (common.Address{}) {
				subject = r.To
			}
		}
		if subject != (common.Address{}) {
			l.bySubject[subject] = append(l.bySubject[subject], len(l.all)-1)
		}
	}
	return nil
}

// All returns every receipt in commit order.
func (l *MemoryLog) All() []Receipt {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Receipt{}, l.all...)
}

// BySubject returns the receipts about subject in commit order.
func (l *MemoryLog) BySubject(subject common.Address) []Receipt {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx := l.bySubject[subject]
	out := make([]Receipt, 0, len(idx))
	for _, i := range idx {
		out = append(out, l.all[i])
	}
	return out
}

// ByKind returns the receipts of the given kind in commit order.
func (l *MemoryLog) ByKind(kind Kind) []Receipt {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Receipt
	for _, r := range l.all {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of receipts recorded.
func (l *MemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.all)
}

func (l *MemoryLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = nil
	l.bySubject = make(map[common.Address][]int)
}
