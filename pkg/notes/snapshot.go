package notes

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/JackyZhang8/locknote/pkg/vault"
)

// Snapshot is the decrypted content of a vault as carried by a backup:
// active notes with their history, and every tag, notebook and smart view.
type Snapshot struct {
	Notes      []*Note         `json:"notes"`
	Versions   []*NoteVersion  `json:"versions"`
	Tags       []*Tag          `json:"tags"`
	Notebooks  []*Notebook     `json:"notebooks"`
	SmartViews []*SmartView    `json:"smartViews"`
	Settings   *vault.Settings `json:"settings,omitempty"`
}

// ReadSnapshot collects the snapshot inside tx.
func ReadSnapshot(tx *vault.Tx) (*Snapshot, error) {
	s := &Snapshot{Versions: []*NoteVersion{}, Tags: []*Tag{}}

	all, err := loadAllNotes(tx)
	if err != nil {
		return nil, err
	}
	s.Notes = filterNotes(all, active)
	sortNotes(s.Notes)
	for _, n := range s.Notes {
		versions, err := loadVersions(tx, n.ID)
		if err != nil {
			return nil, err
		}
		s.Versions = append(s.Versions, versions...)
	}

	tags, err := loadTagMap(tx)
	if err != nil {
		return nil, err
	}
	flat := make([]Tag, 0, len(tags))
	for _, t := range tags {
		flat = append(flat, *t)
	}
	sortTags(flat)
	for i := range flat {
		s.Tags = append(s.Tags, &flat[i])
	}
	if s.Notebooks, err = loadNotebooks(tx); err != nil {
		return nil, err
	}
	if s.SmartViews, err = loadSmartViews(tx); err != nil {
		return nil, err
	}
	if s.Settings, err = tx.LoadSettings(); err != nil {
		return nil, err
	}
	return s, nil
}

// ReplaceAll deletes every note, tag, notebook and smart view in tx and
// writes the snapshot in their place, keeping its ids.
func ReplaceAll(tx *vault.Tx, s *Snapshot) error {
	for _, table := range []string{vault.TableNotes, vault.TableTags, vault.TableNotebooks, vault.TableSmartViews} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("notes: failed to clear %s: %w", table, err)
		}
	}
	ids := identity{}
	if err := write(tx, s, ids.keep); err != nil {
		return err
	}
	if s.Settings != nil {
		return tx.SaveSettings(s.Settings)
	}
	return nil
}

// Merge adds the snapshot to the content in tx under fresh ids, remapping
// note, tag and notebook references. Settings are not merged. It returns
// the number of notes added.
func Merge(tx *vault.Tx, s *Snapshot) (int, error) {
	notebooks, err := loadNotebooks(tx)
	if err != nil {
		return 0, err
	}
	views, err := loadSmartViews(tx)
	if err != nil {
		return 0, err
	}
	nbOffset := 0
	for _, nb := range notebooks {
		nbOffset = max(nbOffset, nb.SortOrder+1)
	}
	svOffset := 0
	for _, sv := range views {
		svOffset = max(svOffset, sv.SortOrder+1)
	}

	shifted := *s
	shifted.Notebooks = make([]*Notebook, len(s.Notebooks))
	for i, nb := range s.Notebooks {
		c := *nb
		c.SortOrder += nbOffset
		shifted.Notebooks[i] = &c
	}
	shifted.SmartViews = make([]*SmartView, len(s.SmartViews))
	for i, sv := range s.SmartViews {
		c := *sv
		c.SortOrder += svOffset
		shifted.SmartViews[i] = &c
	}

	ids := identity{fresh: map[string]string{}}
	if err := write(tx, &shifted, ids.remap); err != nil {
		return 0, err
	}
	return len(s.Notes), nil
}

// identity maps snapshot ids to the ids they are stored under.
type identity struct {
	fresh map[string]string
}

func (identity) keep(id string) string { return id }

func (m identity) remap(id string) string {
	if mapped, ok := m.fresh[id]; ok {
		return mapped
	}
	mapped := uuid.NewString()
	m.fresh[id] = mapped
	return mapped
}

func write(tx *vault.Tx, s *Snapshot, mapID func(string) string) error {
	notebooks := make(map[string]bool)
	for _, nb := range s.Notebooks {
		c := *nb
		c.ID = mapID(nb.ID)
		if err := saveNotebook(tx, &c); err != nil {
			return err
		}
		notebooks[nb.ID] = true
	}

	tags := make(map[string]bool)
	for _, t := range s.Tags {
		c := *t
		c.ID = mapID(t.ID)
		if err := saveTag(tx, &c); err != nil {
			return err
		}
		tags[t.ID] = true
	}

	notes := make(map[string]bool)
	for _, n := range s.Notes {
		c := *n
		c.ID = mapID(n.ID)
		c.NotebookID = nil
		if n.NotebookID != nil && notebooks[*n.NotebookID] {
			nb := mapID(*n.NotebookID)
			c.NotebookID = &nb
		}
		c.Tags = []Tag{}
		for _, t := range n.Tags {
			if tags[t.ID] {
				mapped := t
				mapped.ID = mapID(t.ID)
				c.Tags = append(c.Tags, mapped)
			}
		}
		if err := saveNote(tx, &c); err != nil {
			return err
		}
		notes[n.ID] = true
	}

	for _, ver := range s.Versions {
		if !notes[ver.NoteID] {
			continue
		}
		c := *ver
		c.ID = mapID(ver.ID)
		c.NoteID = mapID(ver.NoteID)
		if err := insertVersion(tx, &c); err != nil {
			return err
		}
	}

	for _, sv := range s.SmartViews {
		c := *sv
		c.ID = mapID(sv.ID)
		c.Filter.TagIDs = nil
		for _, id := range sv.Filter.TagIDs {
			if tags[id] {
				c.Filter.TagIDs = append(c.Filter.TagIDs, mapID(id))
			}
		}
		if sv.Filter.NotebookID != nil {
			c.Filter.NotebookID = nil
			if notebooks[*sv.Filter.NotebookID] {
				nb := mapID(*sv.Filter.NotebookID)
				c.Filter.NotebookID = &nb
			}
		}
		if err := saveSmartView(tx, &c); err != nil {
			return err
		}
	}
	return nil
}
