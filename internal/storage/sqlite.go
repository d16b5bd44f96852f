package storage

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens a SQLite store and creates the case, staff and notes tables
// if they do not exist yet. It stands in for the remote store in local runs
// and tests.
func InitDB(path string, tables Tables) (*sql.DB, error) {
	if err := tables.validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// One writer; keeps in-memory databases on a single connection.
	db.SetMaxOpenConns(1)

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		CASE_NUMBER      TEXT NOT NULL,
		PARTICIPANT_NAME TEXT,
		ACCOUNT_NAME     TEXT,
		CARE_AGENT       TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_%[4]s_case_number ON %[1]s(CASE_NUMBER);

	CREATE TABLE IF NOT EXISTS %[2]s (
		NAME       TEXT,
		DEPARTMENT TEXT,
		IS_ACTIVE  BOOLEAN NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS %[3]s (
		ID           INTEGER PRIMARY KEY AUTOINCREMENT,
		COMMENTER    TEXT NOT NULL,
		DATE_CREATED TEXT NOT NULL,
		CASE_NUMBER  TEXT NOT NULL,
		SENTIMENT    TEXT NOT NULL CHECK (SENTIMENT IN ('Good', 'Bad')),
		NOTES        TEXT NOT NULL CHECK (length(NOTES) BETWEEN 1 AND 499),
		FOLLOW_UP    TEXT NOT NULL CHECK (FOLLOW_UP IN ('Y', 'N'))
	);
	CREATE INDEX IF NOT EXISTS idx_%[5]s_case_number ON %[3]s(CASE_NUMBER);
	CREATE INDEX IF NOT EXISTS idx_%[5]s_date_created ON %[3]s(DATE_CREATED);
	`, tables.Cases, tables.Staff, tables.Notes, indexSuffix(tables.Cases), indexSuffix(tables.Notes))

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func indexSuffix(table string) string {
	return strings.ReplaceAll(strings.ToLower(table), ".", "_")
}
