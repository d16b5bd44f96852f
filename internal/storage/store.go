package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"csatnotes/internal/config"
	"csatnotes/internal/domain"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*){0,2}$`)

// Tables names the three relations the app touches. Identifiers cannot be
// bound as parameters, so every name is checked against identifierRegex
// before it is placed in a query.
type Tables struct {
	Cases string
	Staff string
	Notes string
}

func (t Tables) validate() error {
	for label, name := range map[string]string{"case_table": t.Cases, "staff_table": t.Staff, "notes_table": t.Notes} {
		if !identifierRegex.MatchString(name) {
			return fmt.Errorf("invalid %s %q", label, name)
		}
	}
	return nil
}

func TablesFromConfig(cfg config.Config) Tables {
	return Tables{Cases: cfg.CaseTable, Staff: cfg.StaffTable, Notes: cfg.NotesTable}
}

// Store is the case, directory and notes store. A Store built by
// Unavailable answers every call with a *domain.ConnectionError.
type Store struct {
	db      *sql.DB
	driver  string
	tables  Tables
	connErr error
}

// Open connects to the store described by cfg. Failures come back as
// *domain.ConnectionError so callers can fall back to Unavailable.
func Open(ctx context.Context, cfg config.Config) (*Store, error) {
	tables := TablesFromConfig(cfg)
	if err := tables.validate(); err != nil {
		return nil, &domain.ConnectionError{Op: "open", Err: err}
	}

	var (
		db  *sql.DB
		err error
	)
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		db, err = InitDB(cfg.DBPath, tables)
	case config.StoreDriverPostgres:
		db, err = ConnectPostgres(ctx, cfg)
	default:
		err = fmt.Errorf("store_driver must be '%s' or '%s', got '%s'", config.StoreDriverSQLite, config.StoreDriverPostgres, cfg.StoreDriver)
	}
	if err != nil {
		return nil, &domain.ConnectionError{Op: "open", Err: err}
	}
	return New(db, cfg.StoreDriver, tables), nil
}

func New(db *sql.DB, driver string, tables Tables) *Store {
	return &Store{db: db, driver: driver, tables: tables}
}

func Unavailable(err error) *Store {
	if err == nil {
		err = errors.New("store not configured")
	}
	var connErr *domain.ConnectionError
	if errors.As(err, &connErr) {
		err = connErr.Err
	}
	return &Store{connErr: err}
}

func (s *Store) Available() bool {
	return s.connErr == nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) unavailable(op string) error {
	return &domain.ConnectionError{Op: op, Err: s.connErr}
}

func (s *Store) LookupCase(ctx context.Context, caseNumber string) (domain.LookupResult, error) {
	if s.connErr != nil {
		return domain.NotFound(), s.unavailable("case lookup")
	}
	query := s.rebind(fmt.Sprintf(
		`SELECT CASE_NUMBER, PARTICIPANT_NAME, ACCOUNT_NAME, CARE_AGENT
		 FROM %s
		 WHERE CASE_NUMBER = ?`,
		s.tables.Cases,
	))

	var rec domain.CaseRecord
	var participant, account, agent sql.NullString
	err := s.db.QueryRowContext(ctx, query, caseNumber).Scan(&rec.CaseNumber, &participant, &account, &agent)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFound(), nil
	}
	if err != nil {
		return domain.NotFound(), s.readError("case lookup", err)
	}
	rec.ParticipantName = participant.String
	rec.AccountName = account.String
	rec.CareAgent = agent.String
	return domain.Found(rec), nil
}

// ListEligibleCommenters returns active staff in care or payments
// departments, sorted by name. No rows yields an empty, non-nil slice.
func (s *Store) ListEligibleCommenters(ctx context.Context) ([]string, error) {
	if s.connErr != nil {
		return nil, s.unavailable("commenter directory")
	}
	query := s.rebind(fmt.Sprintf(
		`SELECT DISTINCT NAME
		 FROM %s
		 WHERE (LOWER(DEPARTMENT) LIKE ? OR LOWER(DEPARTMENT) LIKE ?)
		   AND IS_ACTIVE = TRUE
		   AND NAME IS NOT NULL
		 ORDER BY NAME`,
		s.tables.Staff,
	))
	rows, err := s.db.QueryContext(ctx, query, "%care%", "%payment%")
	if err != nil {
		return nil, s.readError("commenter directory", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, s.readError("commenter directory", err)
		}
		if strings.TrimSpace(name) != "" {
			names = append(names, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, s.readError("commenter directory", err)
	}
	return names, nil
}

// InsertNote appends one row to the notes table. Every failure is a
// *domain.WriteError carrying the driver's message; transport failures also
// wrap a *domain.ConnectionError so errors.As matches them as LookupCase's do.
func (s *Store) InsertNote(ctx context.Context, n domain.Note) error {
	if s.connErr != nil {
		return s.unavailable("note insert")
	}
	query := s.rebind(fmt.Sprintf(
		`INSERT INTO %s (COMMENTER, DATE_CREATED, CASE_NUMBER, SENTIMENT, NOTES, FOLLOW_UP)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.tables.Notes,
	))
	_, err := s.db.ExecContext(ctx, query,
		n.Commenter, n.DateCreated, n.CaseNumber, string(n.Sentiment), n.Notes, string(n.FollowUp),
	)
	if err != nil {
		cause := err
		if isConnectionError(err) {
			cause = &domain.ConnectionError{Op: "note insert", Err: err}
		}
		return &domain.WriteError{Message: err.Error(), Err: cause}
	}
	return nil
}

// ListFollowUpsBetween returns notes flagged for follow-up with
// from <= DATE_CREATED < to, oldest first. Consecutive windows sharing a
// bound never return the same note twice.
func (s *Store) ListFollowUpsBetween(ctx context.Context, from, to string) ([]domain.Note, error) {
	if s.connErr != nil {
		return nil, s.unavailable("follow-up query")
	}
	query := s.rebind(fmt.Sprintf(
		`SELECT COMMENTER, DATE_CREATED, CASE_NUMBER, SENTIMENT, NOTES, FOLLOW_UP
		 FROM %s
		 WHERE FOLLOW_UP = ? AND DATE_CREATED >= ? AND DATE_CREATED < ?
		 ORDER BY DATE_CREATED, CASE_NUMBER`,
		s.tables.Notes,
	))
	rows, err := s.db.QueryContext(ctx, query, string(domain.FollowUpYes), from, to)
	if err != nil {
		return nil, s.readError("follow-up query", err)
	}
	defer rows.Close()

	var out []domain.Note
	for rows.Next() {
		var n domain.Note
		var sentiment, followUp string
		if err := rows.Scan(&n.Commenter, &n.DateCreated, &n.CaseNumber, &sentiment, &n.Notes, &followUp); err != nil {
			return nil, s.readError("follow-up query", err)
		}
		n.Sentiment = domain.Sentiment(sentiment)
		n.FollowUp = domain.FollowUp(followUp)
		out = append(out, n)
	}
	return out, s.readError("follow-up query", rows.Err())
}

func (s *Store) readError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isConnectionError(err) {
		return &domain.ConnectionError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// rebind rewrites ? placeholders to $n for postgres. Queries in this
// package never contain a literal question mark.
func (s *Store) rebind(query string) string {
	if s.driver != config.StoreDriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isConnectionError reports transport and authentication failures, as
// opposed to the store rejecting a well-formed request.
func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "28", "57":
			// connection exception, invalid authorization, operator intervention
			return true
		}
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrNotADB, sqlite3.ErrAuth, sqlite3.ErrIoErr:
			return true
		}
	}
	return false
}
