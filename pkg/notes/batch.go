package notes

import (
	"github.com/JackyZhang8/locknote/pkg/vault"
)

// Batch operations run in one transaction. The first unknown id fails the
// call with a ValidationError and nothing is written.

// BatchDeleteNotes moves every listed note to trash.
func (r *Repository) BatchDeleteNotes(ids []string) error {
	return r.v.Update("notes.BatchDeleteNotes", func(tx *vault.Tx) error {
		for _, id := range ids {
			if err := softDelete(tx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// BatchAddTagToNotes tags every listed note with tagID.
func (r *Repository) BatchAddTagToNotes(ids []string, tagID string) error {
	return r.v.Update("notes.BatchAddTagToNotes", func(tx *vault.Tx) error {
		t, err := loadTag(tx, tagID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			n, err := loadNote(tx, id)
			if err != nil {
				return err
			}
			if err := associate(tx, n, t); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetNotesNotebook files every listed note into notebookID, or makes them
// uncategorized when notebookID is empty.
func (r *Repository) SetNotesNotebook(ids []string, notebookID string) error {
	return r.v.Update("notes.SetNotesNotebook", func(tx *vault.Tx) error {
		for _, id := range ids {
			if err := setNotebook(tx, id, notebookID); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReorderNotes assigns sort orders following ids.
func (r *Repository) ReorderNotes(ids []string) error {
	return r.v.Update("notes.ReorderNotes", func(tx *vault.Tx) error {
		for i, id := range ids {
			n, err := loadNote(tx, id)
			if err != nil {
				return err
			}
			n.SortOrder = i
			if err := saveNote(tx, n); err != nil {
				return err
			}
		}
		return nil
	})
}
