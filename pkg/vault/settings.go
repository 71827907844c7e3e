package vault

import (
	"github.com/go-playground/validator/v10"
)

const settingsID = "app"

// Settings are the user preferences stored inside the vault.
type Settings struct {
	// AutoLockMinutes is the idle time before locking. 0 disables idle lock.
	AutoLockMinutes int  `json:"autoLockMinutes" yaml:"auto_lock_minutes" validate:"gte=0,lte=1440"`
	LockOnMinimize  bool `json:"lockOnMinimize" yaml:"lock_on_minimize"`
	LockOnSleep     bool `json:"lockOnSleep" yaml:"lock_on_sleep"`
}

// DefaultSettings returns the settings of a new vault.
func DefaultSettings() *Settings {
	return &Settings{
		AutoLockMinutes: 5,
		LockOnMinimize:  false,
		LockOnSleep:     true,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return Validation("settings.Validate", err)
	}
	return nil
}

// LoadSettings reads the settings record, falling back to defaults when the
// row is missing.
func (t *Tx) LoadSettings() (*Settings, error) {
	s := &Settings{}
	var body []byte
	err := t.QueryRow(`SELECT body FROM settings WHERE id = ?`, settingsID).Scan(&body)
	if err != nil {
		if isNoRows(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}
	if err := t.OpenRecord(TableSettings, settingsID, body, s); err != nil {
		return nil, err
	}
	return s, nil
}

// SaveSettings validates and stores s.
func (t *Tx) SaveSettings(s *Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return t.PutRecord(TableSettings, settingsID, s)
}

// Settings returns the current settings.
func (v *Vault) Settings() (*Settings, error) {
	var s *Settings
	err := v.View("vault.Settings", func(tx *Tx) error {
		var err error
		s, err = tx.LoadSettings()
		return err
	})
	return s, err
}

// UpdateSettings validates and stores s.
func (v *Vault) UpdateSettings(s *Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return v.Update("vault.UpdateSettings", func(tx *Tx) error {
		return tx.SaveSettings(s)
	})
}
