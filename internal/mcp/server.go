// Package mcp implements the MCP (Model Context Protocol) stdio server
// that lets a local AI agent read, and when the policy allows, write notes.
//
// The vault is unlocked once at startup and guarded by a session.Guard for
// the lifetime of the server. Once the guard locks the vault every tool
// call fails until the server is restarted.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/JackyZhang8/locknote/pkg/audit"
	"github.com/JackyZhang8/locknote/pkg/notes"
	"github.com/JackyZhang8/locknote/pkg/session"
	"github.com/JackyZhang8/locknote/pkg/vault"
)

// EnvPassword is read, then cleared, when no password is passed in.
const EnvPassword = "LOCKNOTE_PASSWORD"

// Version is reported to MCP clients.
const Version = "0.1.0"

// Server is the MCP server for one vault.
type Server struct {
	server *mcp.Server
	vault  *vault.Vault
	repo   *notes.Repository
	guard  *session.Guard
	policy *Policy
	log    *zap.Logger
}

// ServerOptions contains configuration options for the MCP server.
type ServerOptions struct {
	// VaultPath is the vault directory. It defaults to ~/.locknote.
	VaultPath string

	// Password unlocks the vault. When empty, EnvPassword is used.
	Password string

	Logger      *zap.Logger
	VaultOpts   []vault.Option
	NotesOpts   []notes.Option
	SessionOpts []session.Option
}

// NewServer opens and unlocks the vault and registers the tools.
func NewServer(opts *ServerOptions) (*Server, error) {
	if opts == nil {
		opts = &ServerOptions{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	vaultPath := opts.VaultPath
	if vaultPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		vaultPath = filepath.Join(home, ".locknote")
	}

	// Policy load failure is not fatal; the server runs in restricted mode.
	policy, err := LoadPolicy(vaultPath)
	if err != nil {
		if !errors.Is(err, ErrPolicyNotFound) {
			log.Warn("failed to load MCP policy, running restricted", zap.Error(err))
		}
		policy = nil
	}

	password := opts.Password
	if password == "" {
		password = os.Getenv(EnvPassword)
		os.Unsetenv(EnvPassword)
	}
	if password == "" {
		return nil, fmt.Errorf("no password provided: set %s environment variable", EnvPassword)
	}

	vaultOpts := append([]vault.Option{
		vault.WithLogger(log),
		vault.WithAuditLogger(audit.NewLogger(filepath.Join(vaultPath, audit.DirName)), audit.SourceMCP),
	}, opts.VaultOpts...)
	v, err := vault.Open(vaultPath, vaultOpts...)
	if err != nil {
		return nil, err
	}

	ok, err := v.Unlock(password)
	if err != nil {
		v.Close()
		return nil, fmt.Errorf("failed to unlock vault: %w", err)
	}
	if !ok {
		v.Close()
		return nil, errors.New("failed to unlock vault: incorrect password")
	}

	settings, err := v.Settings()
	if err != nil {
		v.Close()
		return nil, err
	}

	guardOpts := append([]session.Option{
		session.WithLogger(log),
		session.WithPolicy(session.PolicyFromSettings(settings)),
	}, opts.SessionOpts...)

	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{Name: "locknote", Version: Version}, nil),
		vault:  v,
		repo:   notes.New(v, append([]notes.Option{notes.WithLogger(log)}, opts.NotesOpts...)...),
		guard:  session.New(v, guardOpts...),
		policy: policy,
		log:    log,
	}
	s.guard.Subscribe(func(e session.Event) {
		log.Warn("vault locked, MCP tools unavailable until restart", zap.String("reason", e.Reason))
	})

	v.Audit(audit.OpMCPSessionOpen, "", nil)
	s.registerTools()
	return s, nil
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolNoteList,
		Description: "List notes with title, tags, notebook and timestamps. Optional notebook_id or tag_id filter. Previews are included only when the policy exposes content.",
	}, s.handleNoteList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolNotebookList,
		Description: "List notebooks with their note counts.",
	}, s.handleNotebookList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolTagList,
		Description: "List tags.",
	}, s.handleTagList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolNoteGet,
		Description: "Get one note by id. Returns full content only when the policy exposes content. Requires policy approval.",
	}, s.handleNoteGet)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolNoteCreate,
		Description: "Create a note, optionally in a notebook and with tags. Requires policy approval.",
	}, s.handleNoteCreate)
}

// Run serves over stdio until ctx is done or the client disconnects.
// The session guard runs for the same lifetime and the vault is locked on
// return.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.vault.Lock()

	go s.guard.Run(ctx)
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close locks the vault and closes its database.
func (s *Server) Close() error {
	return s.vault.Close()
}

// begin is called at the start of every tool call.
func (s *Server) begin(tool string, gated bool) error {
	if !s.vault.IsUnlocked() {
		return errors.New("vault is locked; restart the MCP server to unlock it")
	}
	if s.policy.IsDenied(tool) {
		return fmt.Errorf("tool '%s' is denied by policy", tool)
	}
	if gated {
		if s.policy == nil {
			return fmt.Errorf("MCP policy not configured. Create %s in the vault directory to enable %s", PolicyFileName, tool)
		}
		if allowed, reason := s.policy.IsToolAllowed(tool); !allowed {
			return fmt.Errorf("tool not allowed by policy: %s", reason)
		}
	}
	s.guard.UpdateActivity()
	return nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }
