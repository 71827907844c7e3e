package mcp

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/JackyZhang8/locknote/pkg/notes"
)

// Tool names.
const (
	ToolNoteList     = "note_list"
	ToolNoteGet      = "note_get"
	ToolNoteCreate   = "note_create"
	ToolNotebookList = "notebook_list"
	ToolTagList      = "tag_list"
)

// ToolNames returns every tool the server registers.
func ToolNames() []string {
	return []string{ToolNoteList, ToolNoteGet, ToolNoteCreate, ToolNotebookList, ToolTagList}
}

// Limits on tool input.
const (
	maxListLimit     = 500
	maxTitleLength   = 500
	maxContentLength = 1 << 20
	maxTagIDs        = 20
)

// NoteListInput represents input for note_list tool.
type NoteListInput struct {
	NotebookID string `json:"notebook_id,omitempty"`
	TagID      string `json:"tag_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// NoteListOutput represents output for note_list tool.
type NoteListOutput struct {
	Notes []NoteInfo `json:"notes"`
	Total int        `json:"total"`
}

// NoteInfo is note metadata. Preview is set only when content is exposed.
type NoteInfo struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Preview    string   `json:"preview,omitempty"`
	Pinned     bool     `json:"pinned"`
	NotebookID string   `json:"notebook_id,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	CreatedAt  string   `json:"created_at"`
	UpdatedAt  string   `json:"updated_at"`
}

// NoteGetInput represents input for note_get tool.
type NoteGetInput struct {
	ID string `json:"id"`
}

// NoteGetOutput represents output for note_get tool.
type NoteGetOutput struct {
	NoteInfo
	Content   string `json:"content,omitempty"`
	Truncated bool   `json:"truncated"`
}

// NoteCreateInput represents input for note_create tool.
type NoteCreateInput struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	NotebookID string   `json:"notebook_id,omitempty"`
	TagIDs     []string `json:"tag_ids,omitempty"`
}

// NoteCreateOutput represents output for note_create tool.
type NoteCreateOutput struct {
	ID string `json:"id"`
}

type NotebookListInput struct{}

type NotebookListOutput struct {
	Notebooks []NotebookInfo `json:"notebooks"`
}

type NotebookInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	Pinned    bool   `json:"pinned"`
	NoteCount int    `json:"note_count"`
}

type TagListInput struct{}

type TagListOutput struct {
	Tags []TagInfo `json:"tags"`
}

type TagInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (s *Server) noteInfo(n *notes.Note) NoteInfo {
	info := NoteInfo{
		ID:        n.ID,
		Title:     n.Title,
		Pinned:    n.Pinned,
		CreatedAt: formatTime(n.CreatedAt),
		UpdatedAt: formatTime(n.UpdatedAt),
	}
	if s.policy.ContentExposed() {
		info.Preview = n.Preview
	}
	if n.NotebookID != nil {
		info.NotebookID = *n.NotebookID
	}
	for _, tag := range n.Tags {
		info.Tags = append(info.Tags, tag.Name)
	}
	return info
}

// visible drops the notes the policy hides.
func (s *Server) visible(list []*notes.Note) []*notes.Note {
	out := make([]*notes.Note, 0, len(list))
	for _, n := range list {
		if s.policy.NoteVisible(n) {
			out = append(out, n)
		}
	}
	return out
}

// handleNoteList handles the note_list tool call.
func (s *Server) handleNoteList(_ context.Context, _ *mcp.CallToolRequest, input NoteListInput) (*mcp.CallToolResult, NoteListOutput, error) {
	if err := s.begin(ToolNoteList, false); err != nil {
		return nil, NoteListOutput{}, err
	}
	if input.NotebookID != "" && input.TagID != "" {
		return nil, NoteListOutput{}, errors.New("notebook_id and tag_id are mutually exclusive")
	}
	if input.Limit < 0 || input.Limit > maxListLimit {
		return nil, NoteListOutput{}, fmt.Errorf("limit must be between 0 and %d", maxListLimit)
	}

	var (
		list []*notes.Note
		err  error
	)
	switch {
	case input.NotebookID != "":
		list, err = s.repo.ListNotesInNotebook(input.NotebookID)
	case input.TagID != "":
		list, err = s.repo.ListNotesWithTag(input.TagID)
	default:
		list, err = s.repo.ListNotes()
	}
	if err != nil {
		return nil, NoteListOutput{}, fmt.Errorf("failed to list notes: %w", err)
	}

	list = s.visible(list)
	output := NoteListOutput{Total: len(list)}
	if input.Limit > 0 && len(list) > input.Limit {
		list = list[:input.Limit]
	}
	output.Notes = make([]NoteInfo, 0, len(list))
	for _, n := range list {
		output.Notes = append(output.Notes, s.noteInfo(n))
	}
	return nil, output, nil
}

// handleNoteGet handles the note_get tool call. Trashed and hidden notes
// are reported as not found.
func (s *Server) handleNoteGet(_ context.Context, _ *mcp.CallToolRequest, input NoteGetInput) (*mcp.CallToolResult, NoteGetOutput, error) {
	if err := s.begin(ToolNoteGet, true); err != nil {
		return nil, NoteGetOutput{}, err
	}
	if input.ID == "" {
		return nil, NoteGetOutput{}, errors.New("id is required")
	}

	n, err := s.repo.GetNote(input.ID)
	if err != nil {
		return nil, NoteGetOutput{}, fmt.Errorf("failed to get note: %w", err)
	}
	if n.IsDeleted() || !s.policy.NoteVisible(n) {
		return nil, NoteGetOutput{}, fmt.Errorf("note not found: %s", input.ID)
	}

	output := NoteGetOutput{NoteInfo: s.noteInfo(n)}
	if s.policy.ContentExposed() {
		output.Content = n.Content
	}
	output.Truncated = !s.policy.ContentExposed() && n.Content != ""
	return nil, output, nil
}

// handleNoteCreate handles the note_create tool call.
func (s *Server) handleNoteCreate(_ context.Context, _ *mcp.CallToolRequest, input *NoteCreateInput) (*mcp.CallToolResult, NoteCreateOutput, error) {
	if err := s.begin(ToolNoteCreate, true); err != nil {
		return nil, NoteCreateOutput{}, err
	}
	if utf8.RuneCountInString(input.Title) > maxTitleLength {
		return nil, NoteCreateOutput{}, fmt.Errorf("title too long (max %d)", maxTitleLength)
	}
	if len(input.Content) > maxContentLength {
		return nil, NoteCreateOutput{}, fmt.Errorf("content too long (max %d bytes)", maxContentLength)
	}
	if len(input.TagIDs) > maxTagIDs {
		return nil, NoteCreateOutput{}, fmt.Errorf("too many tag_ids (max %d)", maxTagIDs)
	}
	if s.policy != nil && slices.Contains(s.policy.DeniedNotebooks, input.NotebookID) {
		return nil, NoteCreateOutput{}, fmt.Errorf("notebook %s is denied by policy", input.NotebookID)
	}

	n, err := s.repo.CreateNote(input.Title, input.Content)
	if err != nil {
		return nil, NoteCreateOutput{}, fmt.Errorf("failed to create note: %w", err)
	}
	// The note exists from here on; a failed association is reported but
	// leaves the note in place.
	if input.NotebookID != "" {
		if err := s.repo.SetNoteNotebook(n.ID, input.NotebookID); err != nil {
			return nil, NoteCreateOutput{ID: n.ID}, fmt.Errorf("note %s created but notebook not set: %w", n.ID, err)
		}
	}
	for _, tagID := range input.TagIDs {
		if err := s.repo.AddTagToNote(n.ID, tagID); err != nil {
			return nil, NoteCreateOutput{ID: n.ID}, fmt.Errorf("note %s created but tag %s not added: %w", n.ID, tagID, err)
		}
	}
	return nil, NoteCreateOutput{ID: n.ID}, nil
}

// handleNotebookList handles the notebook_list tool call.
func (s *Server) handleNotebookList(_ context.Context, _ *mcp.CallToolRequest, _ NotebookListInput) (*mcp.CallToolResult, NotebookListOutput, error) {
	if err := s.begin(ToolNotebookList, false); err != nil {
		return nil, NotebookListOutput{}, err
	}

	notebooks, err := s.repo.ListNotebooks()
	if err != nil {
		return nil, NotebookListOutput{}, fmt.Errorf("failed to list notebooks: %w", err)
	}
	all, err := s.repo.ListNotes()
	if err != nil {
		return nil, NotebookListOutput{}, fmt.Errorf("failed to list notes: %w", err)
	}
	counts := map[string]int{}
	for _, n := range s.visible(all) {
		if n.NotebookID != nil {
			counts[*n.NotebookID]++
		}
	}

	output := NotebookListOutput{Notebooks: make([]NotebookInfo, 0, len(notebooks))}
	for _, nb := range notebooks {
		if s.policy != nil && slices.Contains(s.policy.DeniedNotebooks, nb.ID) {
			continue
		}
		output.Notebooks = append(output.Notebooks, NotebookInfo{
			ID:        nb.ID,
			Name:      nb.Name,
			Icon:      nb.Icon,
			Pinned:    nb.Pinned,
			NoteCount: counts[nb.ID],
		})
	}
	return nil, output, nil
}

// handleTagList handles the tag_list tool call.
func (s *Server) handleTagList(_ context.Context, _ *mcp.CallToolRequest, _ TagListInput) (*mcp.CallToolResult, TagListOutput, error) {
	if err := s.begin(ToolTagList, false); err != nil {
		return nil, TagListOutput{}, err
	}

	tags, err := s.repo.ListTags()
	if err != nil {
		return nil, TagListOutput{}, fmt.Errorf("failed to list tags: %w", err)
	}
	output := TagListOutput{Tags: make([]TagInfo, 0, len(tags))}
	for _, t := range tags {
		if s.policy != nil && slices.Contains(s.policy.DeniedTags, t.ID) {
			continue
		}
		output.Tags = append(output.Tags, TagInfo{ID: t.ID, Name: t.Name, Color: t.Color})
	}
	return nil, output, nil
}
