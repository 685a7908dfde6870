package persistence

import (
	"maps"
	"slices"

	"github.com/hupe1980/classdb/model"
)

// table is the in-memory record table. A committed table is immutable;
// writers mutate a clone.
type table struct {
	seq     uint64
	records map[model.LocationID]Record
}

func newTable() *table {
	return &table{records: make(map[model.LocationID]Record)}
}

func (t *table) clone() *table {
	return &table{
		seq:     t.seq,
		records: maps.Clone(t.records),
	}
}

func (t *table) sortedIDs() []model.LocationID {
	return slices.Sorted(maps.Keys(t.records))
}

// tableTx implements Tx over a table.
type tableTx struct {
	t        *table
	writable bool
}

func (tx *tableTx) Get(id model.LocationID) (Record, bool, error) {
	r, ok := tx.t.records[id]
	return r, ok, nil
}

func (tx *tableTx) Scan(fn func(Record) bool) error {
	for _, id := range tx.t.sortedIDs() {
		if !fn(tx.t.records[id]) {
			return nil
		}
	}
	return nil
}

func (tx *tableTx) Put(rec Record) error {
	if !tx.writable {
		return ErrReadOnlyTx
	}
	if rec.ID == 0 {
		return ErrInvalidRecord
	}
	tx.t.records[rec.ID] = rec
	if uint64(rec.ID) > tx.t.seq {
		tx.t.seq = uint64(rec.ID)
	}
	return nil
}

func (tx *tableTx) Delete(id model.LocationID) error {
	if !tx.writable {
		return ErrReadOnlyTx
	}
	delete(tx.t.records, id)
	return nil
}

func (tx *tableTx) NextID() (model.LocationID, error) {
	if !tx.writable {
		return 0, ErrReadOnlyTx
	}
	tx.t.seq++
	return model.LocationID(tx.t.seq), nil
}
