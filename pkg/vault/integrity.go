package vault

import (
	"database/sql"
	"errors"
	"fmt"
)

// IntegrityReport is the result of CheckIntegrity.
type IntegrityReport struct {
	DatabaseOK      bool
	DatabaseMessage string
	SchemaVersion   int64
	RecordsChecked  int
	// Failures lists every record that failed to open. Nothing is skipped.
	Failures []*IntegrityError
}

// OK reports whether the database and every record verified.
func (r *IntegrityReport) OK() bool {
	return r.DatabaseOK && len(r.Failures) == 0
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// CheckIntegrity runs sqlite's integrity check and then opens every sealed
// record under the master key. It requires an unlocked vault.
func (v *Vault) CheckIntegrity() (*IntegrityReport, error) {
	const op = "vault.CheckIntegrity"
	report := &IntegrityReport{}

	version, err := v.SchemaVersion()
	if err != nil {
		return nil, IO(op, err)
	}
	report.SchemaVersion = version

	err = v.View(op, func(tx *Tx) error {
		var msg string
		if err := tx.QueryRow(`PRAGMA integrity_check`).Scan(&msg); err != nil {
			return fmt.Errorf("vault: integrity check failed: %w", err)
		}
		report.DatabaseMessage = msg
		report.DatabaseOK = msg == "ok"

		if _, err := tx.Meta(); err != nil {
			var ie *IntegrityError
			if errors.As(err, &ie) {
				report.Failures = append(report.Failures, ie)
			} else {
				return err
			}
		}

		for _, table := range sealedTables {
			if err := checkTable(tx, table, report); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func checkTable(tx *Tx, table string, report *IntegrityReport) error {
	key := "id"
	if expr, ok := recordKeys[table]; ok {
		key = expr
	}
	rows, err := tx.Query(`SELECT ` + key + `, body FROM ` + table)
	if err != nil {
		return fmt.Errorf("vault: failed to scan %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			return fmt.Errorf("vault: failed to scan %s: %w", table, err)
		}
		report.RecordsChecked++

		var discard map[string]any
		if err := tx.OpenRecord(table, id, body, &discard); err != nil {
			var ie *IntegrityError
			if !errors.As(err, &ie) {
				return err
			}
			report.Failures = append(report.Failures, ie)
		}
	}
	return rows.Err()
}
