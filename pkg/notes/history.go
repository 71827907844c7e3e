package notes

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JackyZhang8/locknote/pkg/vault"
)

// NoteVersion is an immutable snapshot of a note's earlier title and content.
type NoteVersion struct {
	ID        string    `json:"id"`
	NoteID    string    `json:"noteId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type versionRecord struct {
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func insertVersion(tx *vault.Tx, ver *NoteVersion) error {
	body, err := tx.SealRecord(vault.TableNoteVersions, vault.VersionKey(ver.NoteID, ver.ID), &versionRecord{
		Title:     ver.Title,
		Content:   ver.Content,
		CreatedAt: ver.CreatedAt,
	})
	if err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT INTO note_versions (id, note_id, body) VALUES (?, ?, ?)`, ver.ID, ver.NoteID, body)
	if err != nil {
		return fmt.Errorf("notes: failed to write version: %w", err)
	}
	return nil
}

// appendVersion snapshots the current state of n and prunes the oldest
// versions beyond the retention bound, never pruning keep.
func (r *Repository) appendVersion(tx *vault.Tx, n *Note, keep string) error {
	ver := &NoteVersion{
		ID:        uuid.NewString(),
		NoteID:    n.ID,
		Title:     n.Title,
		Content:   n.Content,
		CreatedAt: tx.Now(),
	}
	if err := insertVersion(tx, ver); err != nil {
		return err
	}
	if r.maxVersions <= 0 {
		return nil
	}
	_, err := tx.Exec(`DELETE FROM note_versions WHERE note_id = ? AND id != ? AND seq NOT IN (
			SELECT seq FROM note_versions WHERE note_id = ? ORDER BY seq DESC LIMIT ?)`,
		n.ID, keep, n.ID, r.maxVersions)
	if err != nil {
		return fmt.Errorf("notes: failed to prune history: %w", err)
	}
	return nil
}

// snapshotDue applies the minimum interval between automatic snapshots.
func (r *Repository) snapshotDue(tx *vault.Tx, noteID string) (bool, error) {
	if r.minVersionInterval <= 0 {
		return true, nil
	}
	var (
		id   string
		body []byte
	)
	err := tx.QueryRow(`SELECT id, body FROM note_versions WHERE note_id = ? ORDER BY seq DESC LIMIT 1`, noteID).
		Scan(&id, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("notes: failed to read history: %w", err)
	}
	var rec versionRecord
	if err := tx.OpenRecord(vault.TableNoteVersions, vault.VersionKey(noteID, id), body, &rec); err != nil {
		return false, err
	}
	return tx.Now().Sub(rec.CreatedAt) >= r.minVersionInterval, nil
}

func loadVersions(tx *vault.Tx, noteID string) ([]*NoteVersion, error) {
	rows, err := tx.Query(`SELECT id, body FROM note_versions WHERE note_id = ? ORDER BY seq ASC`, noteID)
	if err != nil {
		return nil, fmt.Errorf("notes: failed to read history: %w", err)
	}
	defer rows.Close()

	versions := []*NoteVersion{}
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		var rec versionRecord
		if err := tx.OpenRecord(vault.TableNoteVersions, vault.VersionKey(noteID, id), body, &rec); err != nil {
			return nil, err
		}
		versions = append(versions, &NoteVersion{
			ID:        id,
			NoteID:    noteID,
			Title:     rec.Title,
			Content:   rec.Content,
			CreatedAt: rec.CreatedAt,
		})
	}
	return versions, rows.Err()
}

// GetNoteHistory returns the versions of a note, oldest first.
func (r *Repository) GetNoteHistory(id string) ([]*NoteVersion, error) {
	var versions []*NoteVersion
	err := r.v.View("notes.GetNoteHistory", func(tx *vault.Tx) error {
		if _, err := loadNote(tx, id); err != nil {
			return err
		}
		var err error
		versions, err = loadVersions(tx, id)
		return err
	})
	return versions, err
}

// RestoreNoteFromHistory makes a version the current state of its note.
// The state being replaced is itself appended to history, so the restore
// can be undone. The restored version is kept.
func (r *Repository) RestoreNoteFromHistory(noteID, versionID string) (*Note, error) {
	var n *Note
	err := r.v.Update("notes.RestoreNoteFromHistory", func(tx *vault.Tx) error {
		var err error
		n, err = loadNote(tx, noteID)
		if err != nil {
			return err
		}

		var (
			owner string
			body  []byte
		)
		err = tx.QueryRow(`SELECT note_id, body FROM note_versions WHERE id = ?`, versionID).Scan(&owner, &body)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != noteID) {
			return vault.NotFound(tx.Op(), "version", versionID)
		}
		if err != nil {
			return fmt.Errorf("notes: failed to read version: %w", err)
		}
		var rec versionRecord
		if err := tx.OpenRecord(vault.TableNoteVersions, vault.VersionKey(noteID, versionID), body, &rec); err != nil {
			return err
		}

		if err := r.appendVersion(tx, n, versionID); err != nil {
			return err
		}
		n.Title = rec.Title
		n.Content = rec.Content
		n.UpdatedAt = tx.Now()
		return saveNote(tx, n)
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}
