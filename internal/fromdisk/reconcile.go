package fromdisk

import (
	"context"
	"hash/fnv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"prairielearn/backend/internal/telemetry"
)

// rankedTable describes a table whose rows mirror an ordered list within a
// scope. Every such table has an "id" primary key and a 1-based "number".
type rankedTable struct {
	name        string
	scopeColumn string
	keyColumns  []string // unique key, including scopeColumn
	updates     []string // columns overwritten when the key already exists
}

// reconcile makes the rows of one scope match rows, which must already carry
// their rank. Rows are upserted in order and receive their ids; afterwards
// every row of the scope ranked beyond len(rows), or not written by this run,
// is deleted. It must run inside the scope's transaction.
func reconcile[T any](ctx context.Context, tx *gorm.DB, table rankedTable, owner string, scopeID uint, rows []T, name func(*T) string, id func(*T) uint) (int64, error) {
	conflict := make([]clause.Column, len(table.keyColumns))
	for i, col := range table.keyColumns {
		conflict[i] = clause.Column{Name: col}
	}
	upsert := clause.OnConflict{
		Columns:   conflict,
		DoUpdates: clause.AssignmentColumns(table.updates),
	}

	ids := make([]uint, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		if err := tx.Omit(clause.Associations).Clauses(upsert).Create(row).Error; err != nil {
			return 0, &StoreError{Owner: owner, Table: table.name, Op: "upsert", Name: name(row), Rank: i + 1, Err: err}
		}
		ids = append(ids, id(row))
	}
	telemetry.Counter("sync.rows.upserted").Add(ctx, int64(len(rows)), telemetryTable(table))

	del := tx.Where(table.scopeColumn+" = ?", scopeID)
	if len(ids) > 0 {
		del = del.Where("(number > ? OR id NOT IN ?)", len(rows), ids)
	}
	res := del.Delete(new(T))
	if res.Error != nil {
		return 0, &StoreError{Owner: owner, Table: table.name, Op: "delete", Rank: len(rows), Err: res.Error}
	}
	telemetry.Counter("sync.rows.deleted").Add(ctx, res.RowsAffected, telemetryTable(table))
	return res.RowsAffected, nil
}

// lockScope serializes reconciliations of one scope across processes. Only
// postgres has advisory locks; other databases rely on in-process locking.
func lockScope(tx *gorm.DB, key string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return tx.Exec("SELECT pg_advisory_xact_lock(?)", int64(h.Sum64())).Error
}
