package notes

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/JackyZhang8/locknote/pkg/vault"
)

// DefaultTagColor is used when a tag is created without a color.
const DefaultTagColor = "#10b981"

// Tag labels notes. Names need not be unique.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type tagRecord struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func sortTags(tags []Tag) {
	sort.SliceStable(tags, func(i, j int) bool {
		return strings.ToLower(tags[i].Name) < strings.ToLower(tags[j].Name)
	})
}

func scanTag(tx *vault.Tx, rows *sql.Rows) (*Tag, error) {
	var (
		id   string
		body []byte
	)
	if err := rows.Scan(&id, &body); err != nil {
		return nil, fmt.Errorf("notes: failed to scan tag: %w", err)
	}
	var rec tagRecord
	if err := tx.OpenRecord(vault.TableTags, id, body, &rec); err != nil {
		return nil, err
	}
	return &Tag{ID: id, Name: rec.Name, Color: rec.Color}, nil
}

func loadTag(tx *vault.Tx, id string) (*Tag, error) {
	var rec tagRecord
	if err := tx.GetRecord(vault.TableTags, id, &rec); err != nil {
		return nil, err
	}
	return &Tag{ID: id, Name: rec.Name, Color: rec.Color}, nil
}

func loadTagMap(tx *vault.Tx) (map[string]*Tag, error) {
	rows, err := tx.Query(`SELECT id, body FROM tags`)
	if err != nil {
		return nil, fmt.Errorf("notes: failed to list tags: %w", err)
	}
	defer rows.Close()

	tags := make(map[string]*Tag)
	for rows.Next() {
		t, err := scanTag(tx, rows)
		if err != nil {
			return nil, err
		}
		tags[t.ID] = t
	}
	return tags, rows.Err()
}

func saveTag(tx *vault.Tx, t *Tag) error {
	return tx.PutRecord(vault.TableTags, t.ID, &tagRecord{Name: t.Name, Color: t.Color})
}

func cleanName(op, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", vault.Validation(op, ErrEmptyName)
	}
	return name, nil
}

// CreateTag stores a new tag. An empty color selects DefaultTagColor.
func (r *Repository) CreateTag(name, color string) (*Tag, error) {
	const op = "notes.CreateTag"
	name, err := cleanName(op, name)
	if err != nil {
		return nil, err
	}
	if color == "" {
		color = DefaultTagColor
	}

	t := &Tag{ID: uuid.NewString(), Name: name, Color: color}
	if err := r.v.Update(op, func(tx *vault.Tx) error { return saveTag(tx, t) }); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTag renames and recolors a tag. An empty color keeps the current one.
func (r *Repository) UpdateTag(id, name, color string) (*Tag, error) {
	const op = "notes.UpdateTag"
	name, err := cleanName(op, name)
	if err != nil {
		return nil, err
	}

	var t *Tag
	err = r.v.Update(op, func(tx *vault.Tx) error {
		var err error
		t, err = loadTag(tx, id)
		if err != nil {
			return err
		}
		t.Name = name
		if color != "" {
			t.Color = color
		}
		return saveTag(tx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteTag removes a tag and drops it from every note carrying it. Notes
// are kept.
func (r *Repository) DeleteTag(id string) error {
	return r.v.Update("notes.DeleteTag", func(tx *vault.Tx) error {
		result, err := tx.Exec(`DELETE FROM tags WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("notes: failed to delete tag: %w", err)
		}
		if err := vault.CheckRowsAffected(tx.Op(), "tag", id, result); err != nil {
			return err
		}
		return forEachNoteRecord(tx, func(_ string, rec *noteRecord) (bool, error) {
			kept := rec.TagIDs[:0]
			for _, tagID := range rec.TagIDs {
				if tagID != id {
					kept = append(kept, tagID)
				}
			}
			changed := len(kept) != len(rec.TagIDs)
			rec.TagIDs = kept
			return changed, nil
		})
	})
}

// ListTags returns every tag ordered by name.
func (r *Repository) ListTags() ([]*Tag, error) {
	var tags []*Tag
	err := r.v.View("notes.ListTags", func(tx *vault.Tx) error {
		m, err := loadTagMap(tx)
		if err != nil {
			return err
		}
		flat := make([]Tag, 0, len(m))
		for _, t := range m {
			flat = append(flat, *t)
		}
		sortTags(flat)
		tags = make([]*Tag, len(flat))
		for i := range flat {
			tags[i] = &flat[i]
		}
		return nil
	})
	return tags, err
}

// AddTagToNote associates a tag with a note. Adding it twice is a no-op.
func (r *Repository) AddTagToNote(noteID, tagID string) error {
	return r.v.Update("notes.AddTagToNote", func(tx *vault.Tx) error {
		n, err := loadNote(tx, noteID)
		if err != nil {
			return err
		}
		t, err := loadTag(tx, tagID)
		if err != nil {
			return err
		}
		return associate(tx, n, t)
	})
}

func associate(tx *vault.Tx, n *Note, t *Tag) error {
	if n.HasTag(t.ID) {
		return nil
	}
	n.Tags = append(n.Tags, *t)
	sortTags(n.Tags)
	return saveNote(tx, n)
}

// RemoveTagFromNote drops the association if present.
func (r *Repository) RemoveTagFromNote(noteID, tagID string) error {
	return r.v.Update("notes.RemoveTagFromNote", func(tx *vault.Tx) error {
		n, err := loadNote(tx, noteID)
		if err != nil {
			return err
		}
		if !n.HasTag(tagID) {
			return nil
		}
		kept := n.Tags[:0]
		for _, t := range n.Tags {
			if t.ID != tagID {
				kept = append(kept, t)
			}
		}
		n.Tags = kept
		return saveNote(tx, n)
	})
}

// forEachNoteRecord opens every note record and reseals the ones fn
// reports as changed.
func forEachNoteRecord(tx *vault.Tx, fn func(id string, rec *noteRecord) (bool, error)) error {
	rows, err := tx.Query(`SELECT id, body FROM notes`)
	if err != nil {
		return fmt.Errorf("notes: failed to list notes: %w", err)
	}
	changed := map[string]*noteRecord{}
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			rows.Close()
			return fmt.Errorf("notes: failed to scan note: %w", err)
		}
		rec := &noteRecord{}
		if err := tx.OpenRecord(vault.TableNotes, id, body, rec); err != nil {
			rows.Close()
			return err
		}
		ok, err := fn(id, rec)
		if err != nil {
			rows.Close()
			return err
		}
		if ok {
			changed[id] = rec
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for id, rec := range changed {
		if err := tx.PutRecord(vault.TableNotes, id, rec); err != nil {
			return err
		}
	}
	return nil
}
