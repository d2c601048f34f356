/*
Package sqlite provides a SQLite-backed implementation of the absence stores.

PURPOSE:
  Implements approval.Store and the catalogue operations of the HTTP API
  (rights, collections, departments, users) on SQLite. The same SQL runs
  on PostgreSQL with minor dialect changes.

KEY TABLES:
  rights:          Right definitions; rules and renewals as JSON columns
  collections:     Named sets of rights offered to accounts
  departments:     Hierarchy (parent_id) and direct managers (JSON)
  users:           Requesters, with an optional account profile
  requests:        Absence requests
  approval_steps:  Ordered workflow steps of each request

STEP IMMUTABILITY:
  Steps are inserted with their request and never inserted or deleted
  afterwards. The only UPDATE on approval_steps is the status change done
  by TransitionStep.

COMPARE-AND-SET:
  TransitionStep runs in one transaction and updates the step only if it
  is still waiting and every earlier step of the request is accepted:

    UPDATE approval_steps SET status = ? ...
    WHERE id = ? AND status = 'waiting'
      AND NOT EXISTS (earlier step not accepted)

  Zero rows affected means another action won; the caller receives a
  TransitionError and nothing is written.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, on top of the CAS above. In
  production with PostgreSQL, database-level concurrency control handles
  this instead.

USAGE:
  store, err := sqlite.New("./data/absence.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  service := approval.NewService(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - approval/store.go: Interface definition
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/absence-engine/absence"
	"github.com/warp/absence-engine/approval"
	"github.com/warp/absence-engine/generic"
	"github.com/warp/absence-engine/org"
)

// Store implements approval.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ approval.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.HasPrefix(dbPath, ":memory:") {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Rights (leave quotas)
	CREATE TABLE IF NOT EXISTS rights (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		quantity_value TEXT NOT NULL,
		quantity_unit TEXT NOT NULL,
		rules_json TEXT NOT NULL,
		renewals_json TEXT NOT NULL,
		cycle_month INTEGER,
		cycle_day INTEGER,
		hidden_from_accounts INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Collections of rights
	CREATE TABLE IF NOT EXISTS collections (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		rights_json TEXT NOT NULL
	);

	-- Departments
	CREATE TABLE IF NOT EXISTS departments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		parent_id TEXT,
		managers_json TEXT NOT NULL
	);

	-- Users, with optional account profile
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		department_id TEXT,
		has_account INTEGER NOT NULL DEFAULT 0,
		birth_date TEXT,
		seniority TEXT,
		collection_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_department
		ON users(department_id);

	-- Requests
	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		right_id TEXT NOT NULL,
		department_id TEXT NOT NULL,
		dtstart TEXT,
		dtend TEXT,
		time_created TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_user
		ON requests(user_id, time_created);

	-- Approval steps (status is the only mutable column)
	CREATE TABLE IF NOT EXISTS approval_steps (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		department_id TEXT NOT NULL,
		approvers_json TEXT NOT NULL,
		status TEXT NOT NULL,
		decided_by TEXT,
		decided_at TEXT,
		UNIQUE(request_id, position)
	);

	-- Waiting lists scan step status per request
	CREATE INDEX IF NOT EXISTS idx_steps_request_status
		ON approval_steps(request_id, status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RIGHT STORE
// =============================================================================

// ruleRecord is the JSON form of a rule inside rights.rules_json.
type ruleRecord struct {
	Title string `json:"title"`
	Type  string `json:"type"`
	Min   *int   `json:"min,omitempty"`
	Max   *int   `json:"max,omitempty"`
}

type periodRecord struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SaveRight inserts or replaces a right.
func (s *Store) SaveRight(ctx context.Context, r *absence.Right) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRight(ctx, s.db, r)
}

// UpdateRight reads the right, applies fn and writes it back in one
// transaction. Nothing is written when fn returns an error.
func (s *Store) UpdateRight(ctx context.Context, id generic.RightID, fn func(*absence.Right) error) (*absence.Right, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	r, err := scanRight(sqlTx.QueryRowContext(ctx, "SELECT "+rightColumns+" FROM rights WHERE id = ?", string(id)))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("right %s: %w", id, generic.ErrRightNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := fn(r); err != nil {
		return nil, err
	}
	if err := saveRight(ctx, sqlTx, r); err != nil {
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, err
	}
	return r, nil
}

func saveRight(ctx context.Context, db execer, r *absence.Right) error {
	rules := make([]ruleRecord, len(r.Rules))
	for i, rule := range r.Rules {
		rules[i] = ruleRecord{Title: rule.Title, Type: rule.Kind.String(), Min: rule.Interval.Min, Max: rule.Interval.Max}
	}
	rulesJSON, err := json.Marshal(rules)
	if err != nil {
		return err
	}

	renewals := make([]periodRecord, len(r.Renewals))
	for i, p := range r.Renewals {
		renewals[i] = periodRecord{Start: formatTime(p.Start), End: formatTime(p.End)}
	}
	renewalsJSON, err := json.Marshal(renewals)
	if err != nil {
		return err
	}

	var month, day sql.NullInt64
	if r.Cycle != nil {
		month = sql.NullInt64{Int64: int64(r.Cycle.Month), Valid: true}
		day = sql.NullInt64{Int64: int64(r.Cycle.Day), Valid: true}
	}

	query := `
		INSERT INTO rights (id, name, quantity_value, quantity_unit, rules_json, renewals_json,
			cycle_month, cycle_day, hidden_from_accounts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			quantity_value = excluded.quantity_value,
			quantity_unit = excluded.quantity_unit,
			rules_json = excluded.rules_json,
			renewals_json = excluded.renewals_json,
			cycle_month = excluded.cycle_month,
			cycle_day = excluded.cycle_day,
			hidden_from_accounts = excluded.hidden_from_accounts,
			updated_at = excluded.updated_at
	`

	now := formatTime(time.Now())
	_, err = db.ExecContext(ctx, query,
		string(r.ID), r.Name, r.Quantity.Value.String(), string(r.Quantity.Unit),
		string(rulesJSON), string(renewalsJSON), month, day, r.HiddenFromAccounts, now, now,
	)
	return err
}

const rightColumns = `id, name, quantity_value, quantity_unit, rules_json, renewals_json,
	cycle_month, cycle_day, hidden_from_accounts`

// GetRight retrieves a right by ID.
func (s *Store) GetRight(ctx context.Context, id generic.RightID) (*absence.Right, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+rightColumns+" FROM rights WHERE id = ?", string(id))
	r, err := scanRight(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("right %s: %w", id, generic.ErrRightNotFound)
	}
	return r, err
}

// ListRights returns all rights, by name.
func (s *Store) ListRights(ctx context.Context) ([]*absence.Right, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+rightColumns+" FROM rights ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rights []*absence.Right
	for rows.Next() {
		r, err := scanRight(rows)
		if err != nil {
			return nil, err
		}
		rights = append(rights, r)
	}
	return rights, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRight(row scanner) (*absence.Right, error) {
	var (
		r                      absence.Right
		id, value, unit        string
		rulesJSON, renewalJSON string
		month, day             sql.NullInt64
	)
	if err := row.Scan(&id, &r.Name, &value, &unit, &rulesJSON, &renewalJSON, &month, &day, &r.HiddenFromAccounts); err != nil {
		return nil, err
	}
	r.ID = generic.RightID(id)

	quantity, err := generic.ParseAmount(value, generic.Unit(unit))
	if err != nil {
		return nil, fmt.Errorf("right %s quantity: %w", id, err)
	}
	r.Quantity = quantity

	var rules []ruleRecord
	if err := json.Unmarshal([]byte(rulesJSON), &rules); err != nil {
		return nil, fmt.Errorf("right %s rules: %w", id, err)
	}
	for _, rec := range rules {
		kind, err := absence.ParseKind(rec.Type)
		if err != nil {
			return nil, fmt.Errorf("right %s: %w", id, err)
		}
		r.Rules = append(r.Rules, absence.Rule{
			Title:    rec.Title,
			Kind:     kind,
			Interval: absence.Interval{Min: rec.Min, Max: rec.Max},
		})
	}

	var renewals []periodRecord
	if err := json.Unmarshal([]byte(renewalJSON), &renewals); err != nil {
		return nil, fmt.Errorf("right %s renewals: %w", id, err)
	}
	for _, rec := range renewals {
		start, err := parseTime(rec.Start)
		if err != nil {
			return nil, fmt.Errorf("right %s renewal start: %w", id, err)
		}
		end, err := parseTime(rec.End)
		if err != nil {
			return nil, fmt.Errorf("right %s renewal end: %w", id, err)
		}
		r.Renewals = append(r.Renewals, generic.Period{Start: start, End: end})
	}

	if month.Valid && day.Valid {
		r.Cycle = &generic.AnnualCycle{Month: time.Month(month.Int64), Day: int(day.Int64)}
	}
	return &r, nil
}

// =============================================================================
// COLLECTION STORE
// =============================================================================

// SaveCollection inserts or replaces a collection.
func (s *Store) SaveCollection(ctx context.Context, c *absence.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rightsJSON, err := json.Marshal(c.Rights)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO collections (id, name, rights_json) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, rights_json = excluded.rights_json
	`, string(c.ID), c.Name, string(rightsJSON))
	return err
}

// GetCollection retrieves a collection by ID.
func (s *Store) GetCollection(ctx context.Context, id generic.CollectionID) (*absence.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c absence.Collection
	var rightsJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT name, rights_json FROM collections WHERE id = ?", string(id),
	).Scan(&c.Name, &rightsJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("collection %s: %w", id, generic.ErrCollectionNotFound)
	}
	if err != nil {
		return nil, err
	}

	c.ID = id
	if err := json.Unmarshal([]byte(rightsJSON), &c.Rights); err != nil {
		return nil, err
	}
	return &c, nil
}

// =============================================================================
// DEPARTMENT STORE
// =============================================================================

// SaveDepartment inserts or replaces a department.
func (s *Store) SaveDepartment(ctx context.Context, d org.Department) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	managers := d.Managers
	if managers == nil {
		managers = []generic.UserID{}
	}
	managersJSON, err := json.Marshal(managers)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO departments (id, name, parent_id, managers_json) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			parent_id = excluded.parent_id,
			managers_json = excluded.managers_json
	`, string(d.ID), d.Name, nullString(string(d.Parent)), string(managersJSON))
	return err
}

// ListDepartments returns all departments, by id.
func (s *Store) ListDepartments(ctx context.Context) ([]org.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, parent_id, managers_json FROM departments ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var departments []org.Department
	for rows.Next() {
		var d org.Department
		var id, managersJSON string
		var parent sql.NullString
		if err := rows.Scan(&id, &d.Name, &parent, &managersJSON); err != nil {
			return nil, err
		}
		d.ID = generic.DepartmentID(id)
		d.Parent = generic.DepartmentID(parent.String)
		if err := json.Unmarshal([]byte(managersJSON), &d.Managers); err != nil {
			return nil, err
		}
		if len(d.Managers) == 0 {
			d.Managers = nil
		}
		departments = append(departments, d)
	}
	return departments, rows.Err()
}

// =============================================================================
// USER STORE
// =============================================================================

// SaveUser inserts or replaces a user and its account profile.
func (s *Store) SaveUser(ctx context.Context, u *absence.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var birth, seniority, collection sql.NullString
	hasAccount := u.Account != nil
	if hasAccount {
		birth = nullTime(u.Account.BirthDate)
		seniority = nullTime(u.Account.Seniority)
		collection = nullString(string(u.Account.Collection))
	}

	query := `
		INSERT INTO users (id, name, email, department_id, has_account, birth_date, seniority, collection_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			department_id = excluded.department_id,
			has_account = excluded.has_account,
			birth_date = excluded.birth_date,
			seniority = excluded.seniority,
			collection_id = excluded.collection_id
	`

	_, err := s.db.ExecContext(ctx, query,
		string(u.ID), u.Name, nullString(u.Email), nullString(string(u.Department)),
		hasAccount, birth, seniority, collection,
		formatTime(time.Now()),
	)
	return err
}

const userColumns = "id, name, email, department_id, has_account, birth_date, seniority, collection_id"

// GetUser retrieves a user by ID, with its account profile loaded.
func (s *Store) GetUser(ctx context.Context, id generic.UserID) (*absence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", string(id)))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", id, generic.ErrUserNotFound)
	}
	return u, err
}

// ListUsers returns all users, by id.
func (s *Store) ListUsers(ctx context.Context) ([]*absence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*absence.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row scanner) (*absence.User, error) {
	var (
		u                                         absence.User
		id                                        string
		email, dept, birth, seniority, collection sql.NullString
		hasAccount                                bool
	)
	if err := row.Scan(&id, &u.Name, &email, &dept, &hasAccount, &birth, &seniority, &collection); err != nil {
		return nil, err
	}
	u.ID = generic.UserID(id)
	u.Email = email.String
	u.Department = generic.DepartmentID(dept.String)
	if hasAccount {
		birthDate, err := timePtr(birth)
		if err != nil {
			return nil, fmt.Errorf("user %s birth date: %w", id, err)
		}
		seniorityDate, err := timePtr(seniority)
		if err != nil {
			return nil, fmt.Errorf("user %s seniority: %w", id, err)
		}
		u.Account = &absence.Account{
			BirthDate:  birthDate,
			Seniority:  seniorityDate,
			Collection: generic.CollectionID(collection.String),
		}
	}
	return &u, nil
}

// =============================================================================
// REQUEST STORE
// =============================================================================

// SaveRequest inserts a request and all of its steps atomically.
func (s *Store) SaveRequest(ctx context.Context, req *approval.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO requests (id, user_id, right_id, department_id, dtstart, dtend, time_created)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(req.ID), string(req.User), string(req.Right), string(req.Department),
		nullString(formatTime(req.DTStart)), nullString(formatTime(req.DTEnd)), formatTime(req.TimeCreated))
	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}

	for i, step := range req.Steps {
		approversJSON, err := json.Marshal(step.Approvers)
		if err != nil {
			return err
		}
		_, err = sqlTx.ExecContext(ctx, `
			INSERT INTO approval_steps (id, request_id, position, department_id, approvers_json, status, decided_by, decided_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, string(step.ID), string(req.ID), i, string(step.Department), string(approversJSON),
			string(step.Status), nullString(string(step.DecidedBy)), nullString(formatTime(step.DecidedAt)))
		if err != nil {
			return fmt.Errorf("failed to insert approval step: %w", err)
		}
	}

	return sqlTx.Commit()
}

// GetRequest retrieves a request with its steps.
func (s *Store) GetRequest(ctx context.Context, id generic.RequestID) (*approval.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRequest(ctx, s.db, id)
}

// ListRequestsByUser returns the user's requests, oldest first.
func (s *Store) ListRequestsByUser(ctx context.Context, user generic.UserID) ([]*approval.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRequests(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE user_id = ?
		ORDER BY time_created, id
	`, string(user))
}

// ListPendingRequests returns requests with a waiting step and no
// rejected step, oldest first.
func (s *Store) ListPendingRequests(ctx context.Context) ([]*approval.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRequests(ctx, `
		SELECT `+requestColumns+` FROM requests r
		WHERE EXISTS (SELECT 1 FROM approval_steps w WHERE w.request_id = r.id AND w.status = 'waiting')
		  AND NOT EXISTS (SELECT 1 FROM approval_steps x WHERE x.request_id = r.id AND x.status = 'rejected')
		ORDER BY time_created, id
	`)
}

// TransitionStep applies one accept/reject action with a compare-and-set
// on the step status.
func (s *Store) TransitionStep(ctx context.Context, requestID generic.RequestID, stepID generic.StepID, actor generic.UserID, to approval.StepStatus, at time.Time) (*approval.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	req, err := getRequest(ctx, sqlTx, requestID)
	if err != nil {
		return nil, err
	}
	if err := req.Transition(stepID, actor, to, at); err != nil {
		return nil, err
	}

	res, err := sqlTx.ExecContext(ctx, `
		UPDATE approval_steps
		SET status = ?, decided_by = ?, decided_at = ?
		WHERE id = ? AND request_id = ? AND status = 'waiting'
		  AND NOT EXISTS (
			SELECT 1 FROM approval_steps e
			WHERE e.request_id = approval_steps.request_id
			  AND e.position < approval_steps.position
			  AND e.status != 'accepted'
		  )
	`, string(to), string(actor), formatTime(at), string(stepID), string(requestID))
	if err != nil {
		return nil, fmt.Errorf("failed to update approval step: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, &generic.TransitionError{
			RequestID: requestID, StepID: stepID, Actor: actor,
			Reason: "step was decided by a concurrent action",
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, err
	}
	return req, nil
}

const requestColumns = "id, user_id, right_id, department_id, dtstart, dtend, time_created"

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) queryRequests(ctx context.Context, query string, args ...any) ([]*approval.Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}

	var requests []*approval.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Steps are loaded after the cursor is closed; :memory: runs on a
	// single connection.
	for _, req := range requests {
		if req.Steps, err = loadSteps(ctx, s.db, req.ID); err != nil {
			return nil, err
		}
	}
	return requests, nil
}

func getRequest(ctx context.Context, q querier, id generic.RequestID) (*approval.Request, error) {
	req, err := scanRequest(q.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM requests WHERE id = ?", string(id)))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("request %s: %w", id, generic.ErrRequestNotFound)
	}
	if err != nil {
		return nil, err
	}
	if req.Steps, err = loadSteps(ctx, q, id); err != nil {
		return nil, err
	}
	return req, nil
}

func scanRequest(row scanner) (*approval.Request, error) {
	var (
		req                   approval.Request
		id, user, right, dept string
		dtstart, dtend        sql.NullString
		created               string
	)
	if err := row.Scan(&id, &user, &right, &dept, &dtstart, &dtend, &created); err != nil {
		return nil, err
	}
	req.ID = generic.RequestID(id)
	req.User = generic.UserID(user)
	req.Right = generic.RightID(right)
	req.Department = generic.DepartmentID(dept)

	var err error
	if req.DTStart, err = parseTime(dtstart.String); err != nil {
		return nil, fmt.Errorf("request %s dtstart: %w", id, err)
	}
	if req.DTEnd, err = parseTime(dtend.String); err != nil {
		return nil, fmt.Errorf("request %s dtend: %w", id, err)
	}
	if req.TimeCreated, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("request %s time_created: %w", id, err)
	}
	return &req, nil
}

func loadSteps(ctx context.Context, q querier, requestID generic.RequestID) ([]approval.Step, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, department_id, approvers_json, status, decided_by, decided_at
		FROM approval_steps WHERE request_id = ? ORDER BY position
	`, string(requestID))
	if err != nil {
		return nil, fmt.Errorf("failed to query approval steps: %w", err)
	}
	defer rows.Close()

	var steps []approval.Step
	for rows.Next() {
		var step approval.Step
		var id, dept, approversJSON, status string
		var decidedBy, decidedAt sql.NullString
		if err := rows.Scan(&id, &dept, &approversJSON, &status, &decidedBy, &decidedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(approversJSON), &step.Approvers); err != nil {
			return nil, err
		}
		step.ID = generic.StepID(id)
		step.Department = generic.DepartmentID(dept)
		step.Status = approval.StepStatus(status)
		step.DecidedBy = generic.UserID(decidedBy.String)
		if step.DecidedAt, err = parseTime(decidedAt.String); err != nil {
			return nil, fmt.Errorf("step %s decided_at: %w", id, err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"approval_steps", "requests", "users", "departments", "collections", "rights"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return nullString(formatTime(*t))
}

func timePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// timeLayout keeps nanoseconds with a fixed width, so stored times sort
// as strings in ORDER BY.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime keeps the zero time as "", so it maps to NULL.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// parseTime also reads rows written without fractional seconds.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
