// Package memory is an in-process exporter used when no spreadsheet is
// configured and in tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"matador/internal/core"
	ports "matador/internal/sheets"
)

var _ ports.TransactionExporter = (*Exporter)(nil)

type Exporter struct {
	mu      sync.Mutex
	rows    map[int64]core.Transaction
	upserts int
	deletes int
}

func New() *Exporter {
	return &Exporter{rows: make(map[int64]core.Transaction)}
}

// Upsert implements ports.TransactionExporter.
func (e *Exporter) Upsert(_ context.Context, t core.Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows[t.ID] = t
	e.upserts++
	return nil
}

// Delete implements ports.TransactionExporter.
func (e *Exporter) Delete(_ context.Context, id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rows[id]; ok {
		delete(e.rows, id)
		e.deletes++
	}
	return nil
}

// Get returns the exported row for id.
func (e *Exporter) Get(id int64) (core.Transaction, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.rows[id]
	return t, ok
}

// Rows returns every exported row ordered by id.
func (e *Exporter) Rows() []core.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]core.Transaction, 0, len(e.rows))
	for _, t := range e.rows {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Counts reports how many upserts and effective deletes were applied.
func (e *Exporter) Counts() (upserts, deletes int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.upserts, e.deletes
}
