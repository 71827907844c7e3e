package mcp

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/JackyZhang8/locknote/pkg/notes"
)

// Policy controls what an MCP client may see and do. It is read from
// PolicyFileName in the vault directory.
//
// Read-only listing tools are available unless denied. Gated tools, which
// return note content or write to the vault, must be allowed explicitly,
// either by allowed_tools or by default_action: allow.
type Policy struct {
	Version       int      `yaml:"version"`
	DefaultAction string   `yaml:"default_action"`
	AllowedTools  []string `yaml:"allowed_tools"`
	DeniedTools   []string `yaml:"denied_tools"`

	// ExposeContent lets note_get return full content and note_list return
	// previews. Without it only titles and metadata leave the vault.
	ExposeContent bool `yaml:"expose_content"`

	// Notes in these notebooks, or carrying any of these tags, are invisible.
	DeniedNotebooks []string `yaml:"denied_notebooks"`
	DeniedTags      []string `yaml:"denied_tags"`
}

// PolicyFileName is the name of the policy file
const PolicyFileName = "mcp-policy.yaml"

// Policy action constants
const (
	ActionAllow = "allow"
	ActionDeny  = "deny"
)

// ErrPolicyNotFound is returned when no policy file exists
var ErrPolicyNotFound = errors.New("MCP policy file not found")

// ErrPolicyInsecure is returned when policy file has insecure permissions
var ErrPolicyInsecure = errors.New("MCP policy file has insecure permissions")

// ErrPolicySymlink is returned when policy file is a symlink
var ErrPolicySymlink = errors.New("MCP policy file is a symlink")

// ErrPolicyNotOwnedByUser is returned when policy file is not owned by current user
var ErrPolicyNotOwnedByUser = errors.New("MCP policy file not owned by current user")

// LoadPolicy loads the MCP policy from the vault directory. The file is
// opened without following symlinks and checked through the open
// descriptor, so it cannot be swapped between the check and the read.
func LoadPolicy(vaultPath string) (*Policy, error) {
	f, err := openPolicyFile(filepath.Join(vaultPath, PolicyFileName))
	if err != nil {
		if errors.Is(err, ErrPolicyNotFound) || errors.Is(err, ErrPolicySymlink) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open policy file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat policy file: %w", err)
	}

	if perm := info.Mode().Perm(); perm != 0600 {
		return nil, fmt.Errorf("%w: %o (expected 0600)", ErrPolicyInsecure, perm)
	}
	if err := checkFileOwnership(f); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(content, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	if policy.DefaultAction == "" {
		policy.DefaultAction = ActionDeny
	}
	if err := policy.ValidatePolicy(); err != nil {
		return nil, err
	}
	return &policy, nil
}

// IsToolAllowed evaluates a gated tool: denied_tools first, then
// allowed_tools, then default_action.
func (p *Policy) IsToolAllowed(tool string) (allowed bool, reason string) {
	if slices.Contains(p.DeniedTools, tool) {
		return false, fmt.Sprintf("tool '%s' is in denied_tools", tool)
	}
	if slices.Contains(p.AllowedTools, tool) {
		return true, ""
	}
	if p.DefaultAction == ActionAllow {
		return true, ""
	}
	return false, fmt.Sprintf("tool '%s' not in allowed_tools list", tool)
}

// IsDenied reports whether tool is listed in denied_tools.
func (p *Policy) IsDenied(tool string) bool {
	return p != nil && slices.Contains(p.DeniedTools, tool)
}

// NoteVisible reports whether n may be shown to the client.
func (p *Policy) NoteVisible(n *notes.Note) bool {
	if p == nil {
		return true
	}
	if n.NotebookID != nil && slices.Contains(p.DeniedNotebooks, *n.NotebookID) {
		return false
	}
	for _, tagID := range p.DeniedTags {
		if n.HasTag(tagID) {
			return false
		}
	}
	return true
}

// ContentExposed reports whether note content may leave the vault.
func (p *Policy) ContentExposed() bool {
	return p != nil && p.ExposeContent
}

// ValidatePolicy validates the policy configuration
func (p *Policy) ValidatePolicy() error {
	if p.Version != 1 {
		return fmt.Errorf("unsupported policy version: %d", p.Version)
	}

	if p.DefaultAction != ActionDeny && p.DefaultAction != ActionAllow {
		return fmt.Errorf("invalid default_action: %s (must be '%s' or '%s')", p.DefaultAction, ActionDeny, ActionAllow)
	}

	for _, tool := range append(slices.Clone(p.AllowedTools), p.DeniedTools...) {
		if !slices.Contains(ToolNames(), tool) {
			return fmt.Errorf("unknown tool in policy: %s", tool)
		}
	}
	return nil
}
