package notes

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JackyZhang8/locknote/pkg/audit"
	"github.com/JackyZhang8/locknote/pkg/vault"
)

// Note is a decrypted note. DeletedAt is set while the note is in trash.
type Note struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Preview    string     `json:"preview"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	Pinned     bool       `json:"pinned"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty"`
	NotebookID *string    `json:"notebookId,omitempty"`
	Tags       []Tag      `json:"tags"`
	SortOrder  int        `json:"sortOrder"`
}

// IsDeleted reports whether the note is in trash.
func (n *Note) IsDeleted() bool { return n.DeletedAt != nil }

// HasTag reports whether the note carries tagID.
func (n *Note) HasTag(tagID string) bool {
	for _, t := range n.Tags {
		if t.ID == tagID {
			return true
		}
	}
	return false
}

// noteRecord is the sealed body of a notes row, including the notebook and
// tag references.
type noteRecord struct {
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	Pinned     bool       `json:"pinned"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty"`
	SortOrder  int        `json:"sortOrder"`
	NotebookID *string    `json:"notebookId,omitempty"`
	TagIDs     []string   `json:"tagIds,omitempty"`
}

func preview(content string) string {
	n := 0
	for i := range content {
		if n == PreviewLength {
			return content[:i]
		}
		n++
	}
	return content
}

func (n *Note) record() *noteRecord {
	rec := &noteRecord{
		Title:      n.Title,
		Content:    n.Content,
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
		Pinned:     n.Pinned,
		DeletedAt:  n.DeletedAt,
		SortOrder:  n.SortOrder,
		NotebookID: n.NotebookID,
	}
	for _, t := range n.Tags {
		rec.TagIDs = append(rec.TagIDs, t.ID)
	}
	return rec
}

// noteFrom builds a Note from its record. Tag references that resolve to
// no tag are dropped.
func noteFrom(id string, rec *noteRecord, resolve func(string) (*Tag, error)) (*Note, error) {
	n := &Note{
		ID:         id,
		Title:      rec.Title,
		Content:    rec.Content,
		Preview:    preview(rec.Content),
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
		Pinned:     rec.Pinned,
		DeletedAt:  rec.DeletedAt,
		SortOrder:  rec.SortOrder,
		NotebookID: rec.NotebookID,
		Tags:       []Tag{},
	}
	for _, tagID := range rec.TagIDs {
		t, err := resolve(tagID)
		if err != nil {
			return nil, err
		}
		if t != nil {
			n.Tags = append(n.Tags, *t)
		}
	}
	sortTags(n.Tags)
	return n, nil
}

func loadNote(tx *vault.Tx, id string) (*Note, error) {
	var body []byte
	err := tx.QueryRow(`SELECT body FROM notes WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vault.NotFound(tx.Op(), "note", id)
	}
	if err != nil {
		return nil, fmt.Errorf("notes: failed to read note: %w", err)
	}

	var rec noteRecord
	if err := tx.OpenRecord(vault.TableNotes, id, body, &rec); err != nil {
		return nil, err
	}
	return noteFrom(id, &rec, func(tagID string) (*Tag, error) {
		t, err := loadTag(tx, tagID)
		if errors.Is(err, vault.ErrNotFound) {
			return nil, nil
		}
		return t, err
	})
}

// loadAllNotes opens every note with its tags. Records that fail to open
// abort the listing with the IntegrityError.
func loadAllNotes(tx *vault.Tx) ([]*Note, error) {
	tags, err := loadTagMap(tx)
	if err != nil {
		return nil, err
	}
	resolve := func(tagID string) (*Tag, error) { return tags[tagID], nil }

	rows, err := tx.Query(`SELECT id, body FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("notes: failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("notes: failed to scan note: %w", err)
		}
		var rec noteRecord
		if err := tx.OpenRecord(vault.TableNotes, id, body, &rec); err != nil {
			return nil, err
		}
		n, err := noteFrom(id, &rec, resolve)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func saveNote(tx *vault.Tx, n *Note) error {
	if err := tx.PutRecord(vault.TableNotes, n.ID, n.record()); err != nil {
		return err
	}
	n.Preview = preview(n.Content)
	return nil
}

func sortNotes(notes []*Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		a, b := notes[i], notes[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	})
}

func filterNotes(notes []*Note, keep func(*Note) bool) []*Note {
	out := make([]*Note, 0, len(notes))
	for _, n := range notes {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

func active(n *Note) bool { return !n.IsDeleted() }

// CreateNote stores a new note with no tags and no notebook.
func (r *Repository) CreateNote(title, content string) (*Note, error) {
	var n *Note
	err := r.v.Update("notes.CreateNote", func(tx *vault.Tx) error {
		now := tx.Now()
		n = &Note{
			ID:        uuid.NewString(),
			Title:     title,
			Content:   content,
			CreatedAt: now,
			UpdatedAt: now,
			Tags:      []Tag{},
		}
		return saveNote(tx, n)
	})
	if err != nil {
		return nil, err
	}
	r.log.Debug("note created", zap.String("id", n.ID))
	return n, nil
}

// GetNote returns one note, active or trashed.
func (r *Repository) GetNote(id string) (*Note, error) {
	var n *Note
	err := r.v.View("notes.GetNote", func(tx *vault.Tx) error {
		var err error
		n, err = loadNote(tx, id)
		return err
	})
	return n, err
}

// UpdateNote replaces title and content. When either differs from the
// stored values the previous state is appended to the note history first.
// An update that changes nothing writes nothing.
func (r *Repository) UpdateNote(id, title, content string) (*Note, error) {
	var n *Note
	err := r.v.Update("notes.UpdateNote", func(tx *vault.Tx) error {
		var err error
		n, err = loadNote(tx, id)
		if err != nil {
			return err
		}
		if n.Title == title && n.Content == content {
			return nil
		}

		due, err := r.snapshotDue(tx, id)
		if err != nil {
			return err
		}
		if due {
			if err := r.appendVersion(tx, n, ""); err != nil {
				return err
			}
		}

		n.Title = title
		n.Content = content
		n.UpdatedAt = tx.Now()
		return saveNote(tx, n)
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// ListNotes returns active notes: pinned first, then by sort order, then
// most recently updated.
func (r *Repository) ListNotes() ([]*Note, error) {
	return r.listNotes("notes.ListNotes", active)
}

// ListDeletedNotes returns trashed notes, most recently deleted first.
func (r *Repository) ListDeletedNotes() ([]*Note, error) {
	var notes []*Note
	err := r.v.View("notes.ListDeletedNotes", func(tx *vault.Tx) error {
		all, err := loadAllNotes(tx)
		if err != nil {
			return err
		}
		notes = filterNotes(all, (*Note).IsDeleted)
		sort.SliceStable(notes, func(i, j int) bool {
			return notes[i].DeletedAt.After(*notes[j].DeletedAt)
		})
		return nil
	})
	return notes, err
}

// ListNotesInNotebook returns active notes of a notebook. An empty
// notebookID selects uncategorized notes.
func (r *Repository) ListNotesInNotebook(notebookID string) ([]*Note, error) {
	return r.listNotes("notes.ListNotesInNotebook", func(n *Note) bool {
		if !active(n) {
			return false
		}
		if notebookID == "" {
			return n.NotebookID == nil
		}
		return n.NotebookID != nil && *n.NotebookID == notebookID
	})
}

// ListNotesWithTag returns active notes carrying tagID.
func (r *Repository) ListNotesWithTag(tagID string) ([]*Note, error) {
	return r.listNotes("notes.ListNotesWithTag", func(n *Note) bool {
		return active(n) && n.HasTag(tagID)
	})
}

// Page is one slice of ListNotes.
type Page struct {
	Notes []*Note `json:"notes"`
	Total int     `json:"total"`
}

// ListNotesPage returns at most limit active notes starting at offset, in
// ListNotes order, and the total number of active notes.
func (r *Repository) ListNotesPage(limit, offset int) (*Page, error) {
	const op = "notes.ListNotesPage"
	if limit <= 0 || offset < 0 {
		return nil, vault.Validation(op, fmt.Errorf("notes: invalid page limit=%d offset=%d", limit, offset))
	}
	all, err := r.listNotes(op, active)
	if err != nil {
		return nil, err
	}

	page := &Page{Total: len(all), Notes: []*Note{}}
	if offset < len(all) {
		end := min(offset+limit, len(all))
		page.Notes = all[offset:end]
	}
	return page, nil
}

func (r *Repository) listNotes(op string, keep func(*Note) bool) ([]*Note, error) {
	var notes []*Note
	err := r.v.View(op, func(tx *vault.Tx) error {
		all, err := loadAllNotes(tx)
		if err != nil {
			return err
		}
		notes = filterNotes(all, keep)
		sortNotes(notes)
		return nil
	})
	return notes, err
}

// SoftDeleteNote moves a note to trash. History and tags are kept.
func (r *Repository) SoftDeleteNote(id string) error {
	return r.v.Update("notes.SoftDeleteNote", func(tx *vault.Tx) error {
		return softDelete(tx, id)
	})
}

func softDelete(tx *vault.Tx, id string) error {
	n, err := loadNote(tx, id)
	if err != nil {
		return err
	}
	if n.IsDeleted() {
		return nil
	}
	now := tx.Now()
	n.DeletedAt = &now
	return saveNote(tx, n)
}

// RestoreNote takes a note out of trash.
func (r *Repository) RestoreNote(id string) error {
	return r.v.Update("notes.RestoreNote", func(tx *vault.Tx) error {
		n, err := loadNote(tx, id)
		if err != nil {
			return err
		}
		if !n.IsDeleted() {
			return nil
		}
		n.DeletedAt = nil
		n.UpdatedAt = tx.Now()
		return saveNote(tx, n)
	})
}

// DeleteNote permanently removes a trashed note together with its history
// and tag associations. A note that is not in trash is refused.
func (r *Repository) DeleteNote(id string) error {
	const op = "notes.DeleteNote"
	err := r.v.Update(op, func(tx *vault.Tx) error {
		n, err := loadNote(tx, id)
		if err != nil {
			return err
		}
		if !n.IsDeleted() {
			return vault.State(op, fmt.Errorf("%w: %s", vault.ErrNotTrashed, id))
		}
		return purge(tx, id)
	})
	r.v.Audit(audit.OpNotePurge, id, err)
	return err
}

func purge(tx *vault.Tx, id string) error {
	result, err := tx.Exec(`DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("notes: failed to delete note: %w", err)
	}
	return vault.CheckRowsAffected(tx.Op(), "note", id, result)
}

// EmptyTrash permanently removes every trashed note and returns how many
// were removed.
func (r *Repository) EmptyTrash() (int, error) {
	count := 0
	err := r.v.Update("notes.EmptyTrash", func(tx *vault.Tx) error {
		all, err := loadAllNotes(tx)
		if err != nil {
			return err
		}
		for _, n := range filterNotes(all, (*Note).IsDeleted) {
			if err := purge(tx, n.ID); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.v.Audit(audit.OpNotePurge, fmt.Sprintf("trash:%d", count), nil)
	return count, nil
}

// SetNotePinned sets the pinned flag.
func (r *Repository) SetNotePinned(id string, pinned bool) error {
	return r.v.Update("notes.SetNotePinned", func(tx *vault.Tx) error {
		n, err := loadNote(tx, id)
		if err != nil {
			return err
		}
		if n.Pinned == pinned {
			return nil
		}
		n.Pinned = pinned
		n.UpdatedAt = tx.Now()
		return saveNote(tx, n)
	})
}

// SetNoteNotebook files a note into notebookID. An empty notebookID makes
// the note uncategorized.
func (r *Repository) SetNoteNotebook(id, notebookID string) error {
	return r.v.Update("notes.SetNoteNotebook", func(tx *vault.Tx) error {
		return setNotebook(tx, id, notebookID)
	})
}

func setNotebook(tx *vault.Tx, id, notebookID string) error {
	n, err := loadNote(tx, id)
	if err != nil {
		return err
	}
	n.NotebookID = nil
	if nb := strings.TrimSpace(notebookID); nb != "" {
		if _, err := loadNotebook(tx, nb); err != nil {
			return err
		}
		n.NotebookID = &nb
	}
	return saveNote(tx, n)
}
