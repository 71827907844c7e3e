package notes

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/JackyZhang8/locknote/pkg/vault"
)

// DefaultNotebookIcon is used when a notebook is created without an icon.
const DefaultNotebookIcon = "📓"

// Notebook groups notes. A note belongs to at most one notebook.
type Notebook struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	SortOrder int       `json:"sortOrder"`
	Pinned    bool      `json:"pinned"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type notebookRecord struct {
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	SortOrder int       `json:"sortOrder"`
	Pinned    bool      `json:"pinned"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (nb *Notebook) record() *notebookRecord {
	return &notebookRecord{
		Name:      nb.Name,
		Icon:      nb.Icon,
		SortOrder: nb.SortOrder,
		Pinned:    nb.Pinned,
		CreatedAt: nb.CreatedAt,
		UpdatedAt: nb.UpdatedAt,
	}
}

func notebookFrom(id string, rec *notebookRecord) *Notebook {
	return &Notebook{
		ID:        id,
		Name:      rec.Name,
		Icon:      rec.Icon,
		SortOrder: rec.SortOrder,
		Pinned:    rec.Pinned,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func loadNotebook(tx *vault.Tx, id string) (*Notebook, error) {
	var rec notebookRecord
	if err := tx.GetRecord(vault.TableNotebooks, id, &rec); err != nil {
		return nil, err
	}
	return notebookFrom(id, &rec), nil
}

func loadNotebooks(tx *vault.Tx) ([]*Notebook, error) {
	rows, err := tx.Query(`SELECT id, body FROM notebooks`)
	if err != nil {
		return nil, fmt.Errorf("notes: failed to list notebooks: %w", err)
	}
	defer rows.Close()

	var notebooks []*Notebook
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("notes: failed to scan notebook: %w", err)
		}
		var rec notebookRecord
		if err := tx.OpenRecord(vault.TableNotebooks, id, body, &rec); err != nil {
			return nil, err
		}
		notebooks = append(notebooks, notebookFrom(id, &rec))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(notebooks, func(i, j int) bool {
		a, b := notebooks[i], notebooks[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.Name < b.Name
	})
	return notebooks, nil
}

func saveNotebook(tx *vault.Tx, nb *Notebook) error {
	return tx.PutRecord(vault.TableNotebooks, nb.ID, nb.record())
}

// CreateNotebook stores a new notebook after the existing ones.
func (r *Repository) CreateNotebook(name, icon string) (*Notebook, error) {
	const op = "notes.CreateNotebook"
	name, err := cleanName(op, name)
	if err != nil {
		return nil, err
	}
	if icon == "" {
		icon = DefaultNotebookIcon
	}

	var nb *Notebook
	err = r.v.Update(op, func(tx *vault.Tx) error {
		existing, err := loadNotebooks(tx)
		if err != nil {
			return err
		}
		next := 0
		for _, e := range existing {
			if e.SortOrder >= next {
				next = e.SortOrder + 1
			}
		}

		now := tx.Now()
		nb = &Notebook{
			ID:        uuid.NewString(),
			Name:      name,
			Icon:      icon,
			SortOrder: next,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return saveNotebook(tx, nb)
	})
	if err != nil {
		return nil, err
	}
	return nb, nil
}

// UpdateNotebook renames a notebook. An empty icon keeps the current one.
func (r *Repository) UpdateNotebook(id, name, icon string) (*Notebook, error) {
	const op = "notes.UpdateNotebook"
	name, err := cleanName(op, name)
	if err != nil {
		return nil, err
	}

	var nb *Notebook
	err = r.v.Update(op, func(tx *vault.Tx) error {
		var err error
		nb, err = loadNotebook(tx, id)
		if err != nil {
			return err
		}
		nb.Name = name
		if icon != "" {
			nb.Icon = icon
		}
		nb.UpdatedAt = tx.Now()
		return saveNotebook(tx, nb)
	})
	if err != nil {
		return nil, err
	}
	return nb, nil
}

// DeleteNotebook removes a notebook. Its notes become uncategorized.
func (r *Repository) DeleteNotebook(id string) error {
	return r.v.Update("notes.DeleteNotebook", func(tx *vault.Tx) error {
		result, err := tx.Exec(`DELETE FROM notebooks WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("notes: failed to delete notebook: %w", err)
		}
		if err := vault.CheckRowsAffected(tx.Op(), "notebook", id, result); err != nil {
			return err
		}
		return forEachNoteRecord(tx, func(_ string, rec *noteRecord) (bool, error) {
			if rec.NotebookID == nil || *rec.NotebookID != id {
				return false, nil
			}
			rec.NotebookID = nil
			return true, nil
		})
	})
}

// ListNotebooks returns notebooks: pinned first, then by sort order.
func (r *Repository) ListNotebooks() ([]*Notebook, error) {
	var notebooks []*Notebook
	err := r.v.View("notes.ListNotebooks", func(tx *vault.Tx) error {
		var err error
		notebooks, err = loadNotebooks(tx)
		return err
	})
	return notebooks, err
}

// SetNotebookPinned sets the pinned flag of a notebook.
func (r *Repository) SetNotebookPinned(id string, pinned bool) error {
	return r.v.Update("notes.SetNotebookPinned", func(tx *vault.Tx) error {
		nb, err := loadNotebook(tx, id)
		if err != nil {
			return err
		}
		nb.Pinned = pinned
		nb.UpdatedAt = tx.Now()
		return saveNotebook(tx, nb)
	})
}

// ReorderNotebooks assigns sort orders following ids. Any unknown id
// aborts the whole reorder.
func (r *Repository) ReorderNotebooks(ids []string) error {
	return r.v.Update("notes.ReorderNotebooks", func(tx *vault.Tx) error {
		for i, id := range ids {
			nb, err := loadNotebook(tx, id)
			if err != nil {
				return err
			}
			nb.SortOrder = i
			if err := saveNotebook(tx, nb); err != nil {
				return err
			}
		}
		return nil
	})
}
