package notes

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/JackyZhang8/locknote/pkg/vault"
)

// DefaultSmartViewIcon is used when a smart view is created without an icon.
const DefaultSmartViewIcon = "🔍"

// Condition is a free-form filter clause interpreted by the presentation layer.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Filter selects notes for a smart view. EvaluateSmartView applies the
// structured fields. Conditions and SearchQuery are stored for the UI.
type Filter struct {
	Conditions  []Condition `json:"conditions,omitempty"`
	TagIDs      []string    `json:"tagIds,omitempty"`
	NotebookID  *string     `json:"notebookId,omitempty"`
	DaysRecent  *int        `json:"daysRecent,omitempty"`
	PinnedOnly  bool        `json:"pinnedOnly,omitempty"`
	SearchQuery *string     `json:"searchQuery,omitempty"`
}

// Match reports whether n satisfies the structured part of f at time now.
// A note matches the tag filter when it carries any of TagIDs.
func (f *Filter) Match(n *Note, now time.Time) bool {
	if n.IsDeleted() {
		return false
	}
	if f.PinnedOnly && !n.Pinned {
		return false
	}
	if f.NotebookID != nil && (n.NotebookID == nil || *n.NotebookID != *f.NotebookID) {
		return false
	}
	if f.DaysRecent != nil && *f.DaysRecent > 0 {
		cutoff := now.AddDate(0, 0, -*f.DaysRecent)
		if n.UpdatedAt.Before(cutoff) {
			return false
		}
	}
	if len(f.TagIDs) > 0 {
		found := false
		for _, id := range f.TagIDs {
			if n.HasTag(id) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// SmartView is a saved note filter.
type SmartView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	Filter    Filter `json:"filter"`
	SortOrder int    `json:"sortOrder"`
}

type smartViewRecord struct {
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	Filter    Filter `json:"filter"`
	SortOrder int    `json:"sortOrder"`
}

func loadSmartView(tx *vault.Tx, id string) (*SmartView, error) {
	var rec smartViewRecord
	if err := tx.GetRecord(vault.TableSmartViews, id, &rec); err != nil {
		return nil, err
	}
	return &SmartView{ID: id, Name: rec.Name, Icon: rec.Icon, Filter: rec.Filter, SortOrder: rec.SortOrder}, nil
}

func loadSmartViews(tx *vault.Tx) ([]*SmartView, error) {
	rows, err := tx.Query(`SELECT id, body FROM smart_views`)
	if err != nil {
		return nil, fmt.Errorf("notes: failed to list smart views: %w", err)
	}
	defer rows.Close()

	var views []*SmartView
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		var rec smartViewRecord
		if err := tx.OpenRecord(vault.TableSmartViews, id, body, &rec); err != nil {
			return nil, err
		}
		views = append(views, &SmartView{ID: id, Name: rec.Name, Icon: rec.Icon, Filter: rec.Filter, SortOrder: rec.SortOrder})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].SortOrder < views[j].SortOrder })
	return views, nil
}

func saveSmartView(tx *vault.Tx, sv *SmartView) error {
	return tx.PutRecord(vault.TableSmartViews, sv.ID, &smartViewRecord{
		Name:      sv.Name,
		Icon:      sv.Icon,
		Filter:    sv.Filter,
		SortOrder: sv.SortOrder,
	})
}

// CreateSmartView stores a new smart view after the existing ones.
func (r *Repository) CreateSmartView(name, icon string, filter Filter) (*SmartView, error) {
	const op = "notes.CreateSmartView"
	name, err := cleanName(op, name)
	if err != nil {
		return nil, err
	}
	if icon == "" {
		icon = DefaultSmartViewIcon
	}

	var sv *SmartView
	err = r.v.Update(op, func(tx *vault.Tx) error {
		existing, err := loadSmartViews(tx)
		if err != nil {
			return err
		}
		next := 0
		if len(existing) > 0 {
			next = existing[len(existing)-1].SortOrder + 1
		}
		sv = &SmartView{ID: uuid.NewString(), Name: name, Icon: icon, Filter: filter, SortOrder: next}
		return saveSmartView(tx, sv)
	})
	if err != nil {
		return nil, err
	}
	return sv, nil
}

// UpdateSmartView replaces name and filter. An empty icon keeps the current one.
func (r *Repository) UpdateSmartView(id, name, icon string, filter Filter) (*SmartView, error) {
	const op = "notes.UpdateSmartView"
	name, err := cleanName(op, name)
	if err != nil {
		return nil, err
	}

	var sv *SmartView
	err = r.v.Update(op, func(tx *vault.Tx) error {
		var err error
		sv, err = loadSmartView(tx, id)
		if err != nil {
			return err
		}
		sv.Name = name
		if icon != "" {
			sv.Icon = icon
		}
		sv.Filter = filter
		return saveSmartView(tx, sv)
	})
	if err != nil {
		return nil, err
	}
	return sv, nil
}

// DeleteSmartView removes a smart view.
func (r *Repository) DeleteSmartView(id string) error {
	return r.v.Update("notes.DeleteSmartView", func(tx *vault.Tx) error {
		result, err := tx.Exec(`DELETE FROM smart_views WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("notes: failed to delete smart view: %w", err)
		}
		return vault.CheckRowsAffected(tx.Op(), "smart view", id, result)
	})
}

// GetSmartView returns one smart view.
func (r *Repository) GetSmartView(id string) (*SmartView, error) {
	var sv *SmartView
	err := r.v.View("notes.GetSmartView", func(tx *vault.Tx) error {
		var err error
		sv, err = loadSmartView(tx, id)
		return err
	})
	return sv, err
}

// ListSmartViews returns smart views in sort order.
func (r *Repository) ListSmartViews() ([]*SmartView, error) {
	var views []*SmartView
	err := r.v.View("notes.ListSmartViews", func(tx *vault.Tx) error {
		var err error
		views, err = loadSmartViews(tx)
		return err
	})
	return views, err
}

// EvaluateSmartView returns the active notes selected by a smart view, in
// ListNotes order.
func (r *Repository) EvaluateSmartView(id string) ([]*Note, error) {
	var notes []*Note
	err := r.v.View("notes.EvaluateSmartView", func(tx *vault.Tx) error {
		sv, err := loadSmartView(tx, id)
		if err != nil {
			return err
		}
		all, err := loadAllNotes(tx)
		if err != nil {
			return err
		}
		now := tx.Now()
		notes = filterNotes(all, func(n *Note) bool { return sv.Filter.Match(n, now) })
		sortNotes(notes)
		return nil
	})
	return notes, err
}
