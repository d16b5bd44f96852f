package storage

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixtures seeds a local SQLite store with cases and staff so the app can
// be exercised without access to the remote store.
type Fixtures struct {
	Cases []FixtureCase  `yaml:"cases"`
	Staff []FixtureStaff `yaml:"staff"`
}

type FixtureCase struct {
	CaseNumber      string `yaml:"case_number"`
	ParticipantName string `yaml:"participant_name"`
	AccountName     string `yaml:"account_name"`
	CareAgent       string `yaml:"care_agent"`
}

type FixtureStaff struct {
	Name       string `yaml:"name"`
	Department string `yaml:"department"`
	Active     *bool  `yaml:"active"` // defaults to true
}

func LoadFixtures(path string) (Fixtures, error) {
	var f Fixtures
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read fixtures: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse fixtures yaml: %w", err)
	}
	for i, c := range f.Cases {
		if c.CaseNumber == "" {
			return f, fmt.Errorf("fixture case %d has no case_number", i)
		}
	}
	return f, nil
}

// ImportFixtures inserts the fixture rows in one transaction. Cases already
// present by case number are skipped so a restart does not duplicate them.
func (s *Store) ImportFixtures(ctx context.Context, f Fixtures) (int, error) {
	if s.connErr != nil {
		return 0, s.unavailable("fixture import")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	existsQuery := s.rebind(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE CASE_NUMBER = ?`, s.tables.Cases))
	caseInsert := s.rebind(fmt.Sprintf(
		`INSERT INTO %s (CASE_NUMBER, PARTICIPANT_NAME, ACCOUNT_NAME, CARE_AGENT) VALUES (?, ?, ?, ?)`,
		s.tables.Cases,
	))
	staffExists := s.rebind(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE NAME = ?`, s.tables.Staff))
	staffInsert := s.rebind(fmt.Sprintf(
		`INSERT INTO %s (NAME, DEPARTMENT, IS_ACTIVE) VALUES (?, ?, ?)`,
		s.tables.Staff,
	))

	inserted := 0
	for _, c := range f.Cases {
		var count int
		if err := tx.QueryRowContext(ctx, existsQuery, c.CaseNumber).Scan(&count); err != nil {
			return inserted, err
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, caseInsert, c.CaseNumber, c.ParticipantName, c.AccountName, c.CareAgent); err != nil {
			return inserted, err
		}
		inserted++
	}
	for _, m := range f.Staff {
		var count int
		if err := tx.QueryRowContext(ctx, staffExists, m.Name).Scan(&count); err != nil {
			return inserted, err
		}
		if count > 0 {
			continue
		}
		active := true
		if m.Active != nil {
			active = *m.Active
		}
		if _, err := tx.ExecContext(ctx, staffInsert, m.Name, m.Department, active); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, tx.Commit()
}
