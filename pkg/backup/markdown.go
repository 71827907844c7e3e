package backup

import (
	"errors"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/JackyZhang8/locknote/internal/fsutil"
	"github.com/JackyZhang8/locknote/pkg/audit"
	"github.com/JackyZhang8/locknote/pkg/importer"
	"github.com/JackyZhang8/locknote/pkg/notes"
	"github.com/JackyZhang8/locknote/pkg/vault"
)

// ImportMarkdown creates a note from a Markdown file. The first "# "
// heading becomes the title, otherwise the file name does.
func (m *Manager) ImportMarkdown(path string) (*notes.Note, error) {
	const op = "backup.ImportMarkdown"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, vault.IO(op, err)
	}
	doc, err := importer.Parse(filepath.Base(path), data)
	if err != nil {
		return nil, vault.Validation(op, err)
	}

	n, err := m.repo.CreateNote(doc.Title, doc.Content)
	if err != nil {
		m.v.Audit(audit.OpNoteImport, "", err)
		return nil, err
	}
	m.v.Audit(audit.OpNoteImport, n.ID, nil)
	return n, nil
}

// ImportMarkdownDir imports every Markdown file directly inside dir in
// name order. It stops at the first failure and returns the notes created
// so far.
func (m *Manager) ImportMarkdownDir(dir string) ([]*notes.Note, error) {
	const op = "backup.ImportMarkdownDir"

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, vault.IO(op, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && importer.IsMarkdown(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	imported := make([]*notes.Note, 0, len(names))
	for _, name := range names {
		n, err := m.ImportMarkdown(filepath.Join(dir, name))
		if err != nil {
			return imported, err
		}
		imported = append(imported, n)
	}
	m.log.Info("markdown imported", zap.String("dir", dir), zap.Int("notes", len(imported)))
	return imported, nil
}

// ExportNoteAsMarkdown writes a note to path and returns the path written.
// An empty path, or an existing directory, uses a file name derived from
// the note title.
func (m *Manager) ExportNoteAsMarkdown(id, path string) (string, error) {
	const op = "backup.ExportNoteAsMarkdown"

	n, err := m.repo.GetNote(id)
	if err != nil {
		return "", err
	}

	switch info, statErr := os.Stat(path); {
	case path == "":
		path = importer.SafeFileName(n.Title)
	case statErr == nil && info.IsDir():
		path = filepath.Join(path, importer.SafeFileName(n.Title))
	case statErr != nil && !errors.Is(statErr, os.ErrNotExist):
		return "", vault.IO(op, statErr)
	}

	if err := fsutil.WriteFileAtomic(path, importer.Render(n.Title, n.Content)); err != nil {
		err = vault.IO(op, err)
		m.v.Audit(audit.OpNoteExport, id, err)
		return "", err
	}
	m.v.Audit(audit.OpNoteExport, id, nil)
	return path, nil
}
