package mapper

// UnsavedID is the primary-key sentinel a fresh row carries before its
// first successful insert assigns a real id.
const UnsavedID int64 = -1

// BaseRow carries the mapper-managed bookkeeping every row type embeds:
// the primary-key value and the new/persisted flag. Field values are the
// row data; BaseRow is the row metadata, kept apart so serialization
// never sees it.
type BaseRow struct {
	ID int64 `db:"id" json:"id"`

	persisted bool
}

// IsNew is true until the row's first successful insert.
func (b *BaseRow) IsNew() bool {
	return !b.persisted
}

func (b *BaseRow) base() *BaseRow {
	return b
}

// markPersisted flips the row out of its fresh state after an insert.
func (b *BaseRow) markPersisted(id int64) {
	if id != 0 {
		b.ID = id
	}
	b.persisted = true
}

// Row is satisfied by any struct pointer embedding BaseRow.
type Row interface {
	base() *BaseRow
	IsNew() bool
}
