// Package notes stores notes, their version history, tags, notebooks and
// smart views inside an unlocked vault.
//
// Every method runs in a single vault transaction, so a version append and
// the update that caused it, or every element of a batch, become visible
// together or not at all.
package notes

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JackyZhang8/locknote/pkg/vault"
)

const (
	// DefaultMaxVersions is how many history snapshots are kept per note.
	DefaultMaxVersions = 20

	// PreviewLength is the rune length of Note.Preview.
	PreviewLength = 200
)

// ErrEmptyName is returned for a tag, notebook or smart view without a name.
var ErrEmptyName = errors.New("notes: name must not be empty")

// Repository is the note store of one vault.
type Repository struct {
	v   *vault.Vault
	log *zap.Logger

	maxVersions        int
	minVersionInterval time.Duration
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) { r.log = l }
}

// WithMaxVersions bounds the history kept per note. n <= 0 keeps everything.
func WithMaxVersions(n int) Option {
	return func(r *Repository) { r.maxVersions = n }
}

// WithMinVersionInterval suppresses a history snapshot when the previous
// one is younger than d. Restores from history always snapshot.
func WithMinVersionInterval(d time.Duration) Option {
	return func(r *Repository) { r.minVersionInterval = d }
}

// New returns the repository backed by v.
func New(v *vault.Vault, opts ...Option) *Repository {
	r := &Repository{
		v:           v,
		log:         zap.NewNop(),
		maxVersions: DefaultMaxVersions,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Vault returns the underlying vault.
func (r *Repository) Vault() *vault.Vault { return r.v }
