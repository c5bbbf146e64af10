// Copyright 2025 The Weft Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"

	"github.com/weftworks/weft/pkg/agent"

	// SQL drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLService implements Service using a SQL database.
// Concurrency is handled by database-level locking (transactions).
type SQLService struct {
	db      *sql.DB
	dialect string
}

// sessionRow maps to the sessions table.
type sessionRow struct {
	AppName   string
	UserID    string
	ID        string
	StateJSON string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// eventRow maps to the session_events table.
type eventRow struct {
	ID           string
	AppName      string
	UserID       string
	SessionID    string
	Author       string
	InvocationID string
	Branch       string

	Role        string
	ContentJSON string // message parts as JSON

	StateDeltaJSON    string
	ArtifactDeltaJSON string
	TransferToAgent   string
	Escalate          bool
	SkipSummarization bool

	Partial      bool
	TurnComplete bool

	ErrorCode    string
	ErrorMessage string

	MetadataJSON string

	SequenceNum int
	CreatedAt   time.Time
}

const createSessionsSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    app_name VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    id VARCHAR(255) NOT NULL,
    state_json TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (app_name, user_id, id)
)`

const createSessionsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(app_name, user_id)`

const createAppStatesSchemaSQL = `
CREATE TABLE IF NOT EXISTS app_states (
    app_name VARCHAR(255) PRIMARY KEY,
    state_json TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

const createUserStatesSchemaSQL = `
CREATE TABLE IF NOT EXISTS user_states (
    app_name VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    state_json TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (app_name, user_id)
)`

const createEventsSchemaSQL = `
CREATE TABLE IF NOT EXISTS session_events (
    id VARCHAR(255) NOT NULL,
    app_name VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    session_id VARCHAR(255) NOT NULL,
    author VARCHAR(255),
    invocation_id VARCHAR(255),
    branch VARCHAR(255),
    role VARCHAR(50),
    content_json TEXT,
    state_delta_json TEXT,
    artifact_delta_json TEXT,
    transfer_to_agent VARCHAR(255),
    escalate BOOLEAN DEFAULT FALSE,
    skip_summarization BOOLEAN DEFAULT FALSE,
    partial BOOLEAN DEFAULT FALSE,
    turn_complete BOOLEAN DEFAULT FALSE,
    error_code VARCHAR(100),
    error_message TEXT,
    metadata_json TEXT,
    sequence_num INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (app_name, user_id, session_id, id)
)`

const createEventsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_events_session ON session_events(app_name, user_id, session_id, sequence_num)`

const createEventsCreatedAtIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_events_created_at ON session_events(app_name, user_id, session_id, created_at)`

// NewSQLService creates a SQL-backed session service and initializes the
// schema. Supported dialects: postgres, mysql, sqlite.
func NewSQLService(db *sql.DB, dialect string) (*SQLService, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite", "sqlite3":
		if dialect == "sqlite3" {
			dialect = "sqlite"
		}
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLService{
		db:      db,
		dialect: dialect,
	}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the required tables if they don't exist.
func (s *SQLService) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// One statement per exec for SQLite compatibility.
	statements := []string{
		createSessionsSchemaSQL,
		createSessionsIndexSQL,
		createAppStatesSchemaSQL,
		createUserStatesSchemaSQL,
		createEventsSchemaSQL,
		createEventsIndexSQL,
		createEventsCreatedAtIndexSQL,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLService) Close() error {
	return s.db.Close()
}

// Get retrieves an existing session with app and user state merged in.
func (s *SQLService) Get(ctx context.Context, req *GetRequest) (*GetResponse, error) {
	session, err := s.getSession(ctx, req.AppName, req.UserID, req.SessionID)
	if err != nil {
		return nil, err
	}

	appState, err := s.getAppState(ctx, req.AppName)
	if err != nil {
		return nil, fmt.Errorf("failed to get app state: %w", err)
	}

	userState, err := s.getUserState(ctx, req.AppName, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user state: %w", err)
	}

	mergedState := mergeStates(appState, userState, session.state.data)
	session.state = newMemoryState(mergedState)

	events, err := s.getEventsFiltered(ctx, req.AppName, req.UserID, req.SessionID, req.NumRecentEvents, req.After)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	session.events = &memoryEvents{events: events}

	return &GetResponse{Session: session}, nil
}

// Create creates a new session, routing prefixed initial state to the
// app and user scopes.
func (s *SQLService) Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	now := time.Now()

	appDelta, userDelta, sessionState := extractStateDeltas(req.State)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(appDelta) > 0 {
		if err := s.upsertAppStateTx(ctx, tx, req.AppName, appDelta); err != nil {
			return nil, fmt.Errorf("failed to save app state: %w", err)
		}
	}

	if len(userDelta) > 0 {
		if err := s.upsertUserStateTx(ctx, tx, req.AppName, req.UserID, userDelta); err != nil {
			return nil, fmt.Errorf("failed to save user state: %w", err)
		}
	}

	stateJSON, err := json.Marshal(sessionState)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}

	query := s.insertSessionQuery()
	_, err = tx.ExecContext(ctx, query,
		req.AppName, req.UserID, sessionID, string(stateJSON), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	appState, _ := s.getAppState(ctx, req.AppName)
	userState, _ := s.getUserState(ctx, req.AppName, req.UserID)
	mergedState := mergeStates(appState, userState, sessionState)

	session := &memorySession{
		id:             sessionID,
		appName:        req.AppName,
		userID:         req.UserID,
		state:          newMemoryState(mergedState),
		events:         &memoryEvents{},
		lastUpdateTime: now,
	}

	return &CreateResponse{Session: session}, nil
}

// ErrStaleSession is returned when attempting to modify a session that has
// been updated elsewhere since it was loaded.
var ErrStaleSession = fmt.Errorf("stale session: session has been modified since it was loaded")

// AppendEvent adds an event to the session history, persists the state
// delta to the right scopes, and updates the in-memory session mirror.
// Uses optimistic concurrency control to detect stale sessions.
func (s *SQLService) AppendEvent(ctx context.Context, session Session, event *agent.Event) error {
	if session == nil {
		return fmt.Errorf("session is nil")
	}
	if event == nil {
		return fmt.Errorf("event is nil")
	}

	// Streaming chunks are never persisted.
	if event.Partial {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Stale session check. Second-level precision avoids false positives
	// from engines that truncate sub-second timestamps (SQLite stores
	// them as TEXT).
	if ms, ok := session.(*memorySession); ok {
		dbUpdatedAt, err := s.getSessionUpdatedAtTx(ctx, tx, session.AppName(), session.UserID(), session.ID())
		if err != nil {
			return fmt.Errorf("failed to check session staleness: %w", err)
		}

		if dbUpdatedAt.Unix() > ms.LastUpdateTime().Unix()+1 {
			return fmt.Errorf("%w: db=%s, local=%s", ErrStaleSession,
				dbUpdatedAt.Format(time.RFC3339),
				ms.LastUpdateTime().Format(time.RFC3339))
		}
	}

	stateDelta := trimTempState(event.Actions.StateDelta)

	appDelta, userDelta, sessionDelta := extractStateDeltas(stateDelta)

	if len(appDelta) > 0 {
		if err := s.upsertAppStateTx(ctx, tx, session.AppName(), appDelta); err != nil {
			return fmt.Errorf("failed to save app state: %w", err)
		}
	}

	if len(userDelta) > 0 {
		if err := s.upsertUserStateTx(ctx, tx, session.AppName(), session.UserID(), userDelta); err != nil {
			return fmt.Errorf("failed to save user state: %w", err)
		}
	}

	if len(sessionDelta) > 0 {
		if err := s.updateSessionStateTx(ctx, tx, session.AppName(), session.UserID(), session.ID(), sessionDelta); err != nil {
			return fmt.Errorf("failed to update session state: %w", err)
		}
	}

	seqNum, err := s.getNextSequenceNumTx(ctx, tx, session.AppName(), session.UserID(), session.ID())
	if err != nil {
		return fmt.Errorf("failed to get sequence number: %w", err)
	}

	if err := s.insertEventTx(ctx, tx, session, event, seqNum); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	now := time.Now()
	if err := s.touchSessionTx(ctx, tx, session.AppName(), session.UserID(), session.ID(), now); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if ms, ok := session.(*memorySession); ok {
		ms.state.apply(stateDelta)
		ms.appendEvent(event)
	}

	return nil
}

// List returns sessions matching the filter criteria.
func (s *SQLService) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	query := `SELECT app_name, user_id, id, state_json, created_at, updated_at
              FROM sessions WHERE app_name = ?`
	args := []any{req.AppName}

	if req.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, req.UserID)
	}

	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var row sessionRow
		if err := rows.Scan(&row.AppName, &row.UserID, &row.ID, &row.StateJSON, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		session, err := s.rowToSession(&row)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return &ListResponse{Sessions: sessions}, nil
}

// Delete removes a session and its events.
func (s *SQLService) Delete(ctx context.Context, req *DeleteRequest) error {
	eventQuery := `DELETE FROM session_events WHERE app_name = ? AND user_id = ? AND session_id = ?`
	if s.dialect == "postgres" {
		eventQuery = convertToPostgresPlaceholders(eventQuery)
	}
	if _, err := s.db.ExecContext(ctx, eventQuery, req.AppName, req.UserID, req.SessionID); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}

	query := `DELETE FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`
	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}
	if _, err := s.db.ExecContext(ctx, query, req.AppName, req.UserID, req.SessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

func (s *SQLService) getSession(ctx context.Context, appName, userID, sessionID string) (*memorySession, error) {
	query := `SELECT app_name, user_id, id, state_json, created_at, updated_at
              FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`
	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}

	var row sessionRow
	err := s.db.QueryRowContext(ctx, query, appName, userID, sessionID).Scan(
		&row.AppName, &row.UserID, &row.ID, &row.StateJSON, &row.CreatedAt, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return s.rowToSession(&row)
}

func (s *SQLService) rowToSession(row *sessionRow) (*memorySession, error) {
	var state map[string]any
	if row.StateJSON != "" {
		if err := json.Unmarshal([]byte(row.StateJSON), &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal state: %w", err)
		}
	}
	if state == nil {
		state = make(map[string]any)
	}

	return &memorySession{
		id:             row.ID,
		appName:        row.AppName,
		userID:         row.UserID,
		state:          newMemoryState(state),
		events:         &memoryEvents{},
		lastUpdateTime: row.UpdatedAt,
	}, nil
}

func (s *SQLService) getAppState(ctx context.Context, appName string) (map[string]any, error) {
	query := `SELECT state_json FROM app_states WHERE app_name = ?`
	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}

	var stateJSON string
	err := s.db.QueryRowContext(ctx, query, appName).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return make(map[string]any), nil
	}
	if err != nil {
		return nil, err
	}

	var state map[string]any
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *SQLService) getUserState(ctx context.Context, appName, userID string) (map[string]any, error) {
	query := `SELECT state_json FROM user_states WHERE app_name = ? AND user_id = ?`
	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}

	var stateJSON string
	err := s.db.QueryRowContext(ctx, query, appName, userID).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return make(map[string]any), nil
	}
	if err != nil {
		return nil, err
	}

	var state map[string]any
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *SQLService) getSessionUpdatedAtTx(ctx context.Context, tx *sql.Tx, appName, userID, sessionID string) (time.Time, error) {
	query := `SELECT updated_at FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`
	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}

	var updatedAt time.Time
	err := tx.QueryRowContext(ctx, query, appName, userID, sessionID).Scan(&updatedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, ErrSessionNotFound
	}
	return updatedAt, err
}

func (s *SQLService) upsertAppStateTx(ctx context.Context, tx *sql.Tx, appName string, delta map[string]any) error {
	query := `SELECT state_json FROM app_states WHERE app_name = ?`
	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}

	var stateJSON string
	err := tx.QueryRowContext(ctx, query, appName).Scan(&stateJSON)
	existing := make(map[string]any)
	if err == nil && stateJSON != "" {
		_ = json.Unmarshal([]byte(stateJSON), &existing)
	}

	maps.Copy(existing, delta)
	newStateJSON, err := json.Marshal(existing)
	if err != nil {
		return err
	}

	upsertQuery := s.upsertAppStateQuery()
	_, err = tx.ExecContext(ctx, upsertQuery, appName, string(newStateJSON), time.Now())
	return err
}

func (s *SQLService) upsertUserStateTx(ctx context.Context, tx *sql.Tx, appName, userID string, delta map[string]any) error {
	query := `SELECT state_json FROM user_states WHERE app_name = ? AND user_id = ?`
	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}

	var stateJSON string
	err := tx.QueryRowContext(ctx, query, appName, userID).Scan(&stateJSON)
	existing := make(map[string]any)
	if err == nil && stateJSON != "" {
		_ = json.Unmarshal([]byte(stateJSON), &existing)
	}

	maps.Copy(existing, delta)
	newStateJSON, err := json.Marshal(existing)
	if err != nil {
		return err
	}

	upsertQuery := s.upsertUserStateQuery()
	_, err = tx.ExecContext(ctx, upsertQuery, appName, userID, string(newStateJSON), time.Now())
	return err
}

func (s *SQLService) updateSessionStateTx(ctx context.Context, tx *sql.Tx, appName, userID, sessionID string, delta map[string]any) error {
	query := `SELECT state_json FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`
	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}

	var stateJSON string
	if err := tx.QueryRowContext(ctx, query, appName, userID, sessionID).Scan(&stateJSON); err != nil {
		return err
	}

	var existing map[string]any
	if stateJSON != "" {
		if err := json.Unmarshal([]byte(stateJSON), &existing); err != nil {
			return err
		}
	}
	if existing == nil {
		existing = make(map[string]any)
	}

	maps.Copy(existing, delta)

	newStateJSON, err := json.Marshal(existing)
	if err != nil {
		return err
	}

	updateQuery := `UPDATE sessions SET state_json = ? WHERE app_name = ? AND user_id = ? AND id = ?`
	if s.dialect == "postgres" {
		updateQuery = convertToPostgresPlaceholders(updateQuery)
	}
	_, err = tx.ExecContext(ctx, updateQuery, string(newStateJSON), appName, userID, sessionID)
	return err
}

func (s *SQLService) getNextSequenceNumTx(ctx context.Context, tx *sql.Tx, appName, userID, sessionID string) (int, error) {
	query := `SELECT COALESCE(MAX(sequence_num), 0) + 1 FROM session_events
              WHERE app_name = ? AND user_id = ? AND session_id = ?`
	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}

	var seqNum int
	if err := tx.QueryRowContext(ctx, query, appName, userID, sessionID).Scan(&seqNum); err != nil {
		return 0, err
	}
	return seqNum, nil
}

func (s *SQLService) insertEventTx(ctx context.Context, tx *sql.Tx, session Session, event *agent.Event, seqNum int) error {
	row, err := eventToRow(session, event, seqNum)
	if err != nil {
		return err
	}

	query := s.insertEventQuery()
	_, err = tx.ExecContext(ctx, query,
		row.ID, row.AppName, row.UserID, row.SessionID,
		row.Author, row.InvocationID, row.Branch,
		row.Role, row.ContentJSON,
		row.StateDeltaJSON, row.ArtifactDeltaJSON,
		row.TransferToAgent, row.Escalate, row.SkipSummarization,
		row.Partial, row.TurnComplete,
		row.ErrorCode, row.ErrorMessage,
		row.MetadataJSON,
		row.SequenceNum, row.CreatedAt)
	return err
}

func (s *SQLService) touchSessionTx(ctx context.Context, tx *sql.Tx, appName, userID, sessionID string, now time.Time) error {
	query := `UPDATE sessions SET updated_at = ? WHERE app_name = ? AND user_id = ? AND id = ?`
	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}
	_, err := tx.ExecContext(ctx, query, now, appName, userID, sessionID)
	return err
}

func (s *SQLService) getEventsFiltered(ctx context.Context, appName, userID, sessionID string, numRecent int, after time.Time) ([]*agent.Event, error) {
	cols := `id, app_name, user_id, session_id, author, invocation_id, branch,
              role, content_json, state_delta_json, artifact_delta_json,
              transfer_to_agent, escalate, skip_summarization,
              partial, turn_complete,
              error_code, error_message, metadata_json,
              sequence_num, created_at`

	var query string
	var args []any

	if numRecent > 0 {
		// Subquery keeps the N most recent events in chronological order
		// without loading everything and reversing.
		query = `SELECT ` + cols + ` FROM (
			SELECT ` + cols + ` FROM session_events
			WHERE app_name = ? AND user_id = ? AND session_id = ?`
		args = []any{appName, userID, sessionID}

		if !after.IsZero() {
			query += " AND created_at >= ?"
			args = append(args, after)
		}

		query += ` ORDER BY sequence_num DESC LIMIT ?
		) sub ORDER BY sequence_num ASC`
		args = append(args, numRecent)
	} else {
		query = `SELECT ` + cols + ` FROM session_events
              WHERE app_name = ? AND user_id = ? AND session_id = ?`
		args = []any{appName, userID, sessionID}

		if !after.IsZero() {
			query += " AND created_at >= ?"
			args = append(args, after)
		}

		query += " ORDER BY sequence_num ASC"
	}

	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*agent.Event
	for rows.Next() {
		var row eventRow
		if err := rows.Scan(
			&row.ID, &row.AppName, &row.UserID, &row.SessionID,
			&row.Author, &row.InvocationID, &row.Branch,
			&row.Role, &row.ContentJSON,
			&row.StateDeltaJSON, &row.ArtifactDeltaJSON,
			&row.TransferToAgent, &row.Escalate, &row.SkipSummarization,
			&row.Partial, &row.TurnComplete,
			&row.ErrorCode, &row.ErrorMessage, &row.MetadataJSON,
			&row.SequenceNum, &row.CreatedAt,
		); err != nil {
			return nil, err
		}

		event, err := rowToEvent(&row)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, nil
}

func (s *SQLService) insertSessionQuery() string {
	switch s.dialect {
	case "postgres":
		return `INSERT INTO sessions (app_name, user_id, id, state_json, created_at, updated_at)
                VALUES ($1, $2, $3, $4, $5, $6)`
	default:
		return `INSERT INTO sessions (app_name, user_id, id, state_json, created_at, updated_at)
                VALUES (?, ?, ?, ?, ?, ?)`
	}
}

func (s *SQLService) upsertAppStateQuery() string {
	switch s.dialect {
	case "postgres":
		return `INSERT INTO app_states (app_name, state_json, updated_at)
                VALUES ($1, $2, $3)
                ON CONFLICT (app_name) DO UPDATE SET state_json = $2, updated_at = $3`
	case "mysql":
		return `INSERT INTO app_states (app_name, state_json, updated_at)
                VALUES (?, ?, ?)
                ON DUPLICATE KEY UPDATE state_json = VALUES(state_json), updated_at = VALUES(updated_at)`
	default: // sqlite
		return `INSERT INTO app_states (app_name, state_json, updated_at)
                VALUES (?, ?, ?)
                ON CONFLICT (app_name) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at`
	}
}

func (s *SQLService) upsertUserStateQuery() string {
	switch s.dialect {
	case "postgres":
		return `INSERT INTO user_states (app_name, user_id, state_json, updated_at)
                VALUES ($1, $2, $3, $4)
                ON CONFLICT (app_name, user_id) DO UPDATE SET state_json = $3, updated_at = $4`
	case "mysql":
		return `INSERT INTO user_states (app_name, user_id, state_json, updated_at)
                VALUES (?, ?, ?, ?)
                ON DUPLICATE KEY UPDATE state_json = VALUES(state_json), updated_at = VALUES(updated_at)`
	default: // sqlite
		return `INSERT INTO user_states (app_name, user_id, state_json, updated_at)
                VALUES (?, ?, ?, ?)
                ON CONFLICT (app_name, user_id) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at`
	}
}

func (s *SQLService) insertEventQuery() string {
	if s.dialect == "postgres" {
		return `INSERT INTO session_events (
                id, app_name, user_id, session_id,
                author, invocation_id, branch,
                role, content_json,
                state_delta_json, artifact_delta_json,
                transfer_to_agent, escalate, skip_summarization,
                partial, turn_complete,
                error_code, error_message, metadata_json,
                sequence_num, created_at)
                VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`
	}
	return `INSERT INTO session_events (
            id, app_name, user_id, session_id,
            author, invocation_id, branch,
            role, content_json,
            state_delta_json, artifact_delta_json,
            transfer_to_agent, escalate, skip_summarization,
            partial, turn_complete,
            error_code, error_message, metadata_json,
            sequence_num, created_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
}

func eventToRow(session Session, event *agent.Event, seqNum int) (*eventRow, error) {
	row := &eventRow{
		ID:           event.ID,
		AppName:      session.AppName(),
		UserID:       session.UserID(),
		SessionID:    session.ID(),
		Author:       event.Author,
		InvocationID: event.InvocationID,
		Branch:       event.Branch,
		SequenceNum:  seqNum,
		CreatedAt:    event.Timestamp,
	}

	if event.Message != nil {
		row.Role = string(event.Message.Role)
		if len(event.Message.Parts) > 0 {
			partsJSON, err := json.Marshal(event.Message.Parts)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal message parts: %w", err)
			}
			row.ContentJSON = string(partsJSON)
		}
	}

	if len(event.Actions.StateDelta) > 0 {
		b, _ := json.Marshal(event.Actions.StateDelta)
		row.StateDeltaJSON = string(b)
	}
	if len(event.Actions.ArtifactDelta) > 0 {
		b, _ := json.Marshal(event.Actions.ArtifactDelta)
		row.ArtifactDeltaJSON = string(b)
	}
	row.TransferToAgent = event.Actions.TransferToAgent
	row.Escalate = event.Actions.Escalate
	row.SkipSummarization = event.Actions.SkipSummarization

	row.Partial = event.Partial
	row.TurnComplete = event.TurnComplete

	row.ErrorCode = event.ErrorCode
	row.ErrorMessage = event.ErrorMessage

	if len(event.CustomMetadata) > 0 {
		b, _ := json.Marshal(event.CustomMetadata)
		row.MetadataJSON = string(b)
	}

	return row, nil
}

func rowToEvent(row *eventRow) (*agent.Event, error) {
	event := &agent.Event{
		ID:           row.ID,
		Timestamp:    row.CreatedAt,
		InvocationID: row.InvocationID,
		Branch:       row.Branch,
		Author:       row.Author,
		Partial:      row.Partial,
		TurnComplete: row.TurnComplete,
		ErrorCode:    row.ErrorCode,
		ErrorMessage: row.ErrorMessage,
		Actions: agent.EventActions{
			TransferToAgent:   row.TransferToAgent,
			Escalate:          row.Escalate,
			SkipSummarization: row.SkipSummarization,
		},
	}

	if row.ContentJSON != "" {
		var rawParts []json.RawMessage
		if err := json.Unmarshal([]byte(row.ContentJSON), &rawParts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal content: %w", err)
		}

		var parts a2a.ContentParts
		for _, raw := range rawParts {
			part, err := parseContentPart(raw)
			if err != nil {
				return nil, fmt.Errorf("failed to parse part: %w", err)
			}
			if part != nil {
				parts = append(parts, part)
			}
		}

		if len(parts) > 0 {
			event.Message = &a2a.Message{
				Role:  a2a.MessageRole(row.Role),
				Parts: parts,
			}
		}
	}

	if row.StateDeltaJSON != "" {
		var delta map[string]any
		if err := json.Unmarshal([]byte(row.StateDeltaJSON), &delta); err != nil {
			return nil, err
		}
		event.Actions.StateDelta = delta
	}
	if row.ArtifactDeltaJSON != "" {
		var delta map[string]int64
		if err := json.Unmarshal([]byte(row.ArtifactDeltaJSON), &delta); err != nil {
			return nil, err
		}
		event.Actions.ArtifactDelta = delta
	}

	if row.MetadataJSON != "" {
		var meta map[string]any
		if err := json.Unmarshal([]byte(row.MetadataJSON), &meta); err != nil {
			return nil, err
		}
		event.CustomMetadata = meta
	}

	return event, nil
}

// extractStateDeltas splits state by prefix into app, user, and session deltas.
func extractStateDeltas(state map[string]any) (appDelta, userDelta, sessionDelta map[string]any) {
	appDelta = make(map[string]any)
	userDelta = make(map[string]any)
	sessionDelta = make(map[string]any)

	for key, value := range state {
		if strings.HasPrefix(key, KeyPrefixApp) {
			appDelta[strings.TrimPrefix(key, KeyPrefixApp)] = value
		} else if strings.HasPrefix(key, KeyPrefixUser) {
			userDelta[strings.TrimPrefix(key, KeyPrefixUser)] = value
		} else if !strings.HasPrefix(key, KeyPrefixTemp) {
			sessionDelta[key] = value
		}
	}

	return
}

// mergeStates combines app, user, and session states with proper prefixes.
func mergeStates(appState, userState, sessionState map[string]any) map[string]any {
	merged := make(map[string]any, len(appState)+len(userState)+len(sessionState))

	maps.Copy(merged, sessionState)

	for k, v := range appState {
		merged[KeyPrefixApp+k] = v
	}

	for k, v := range userState {
		merged[KeyPrefixUser+k] = v
	}

	return merged
}

// trimTempState removes temporary keys from a state delta.
func trimTempState(state map[string]any) map[string]any {
	if state == nil {
		return nil
	}

	result := make(map[string]any, len(state))
	for k, v := range state {
		if !strings.HasPrefix(k, KeyPrefixTemp) {
			result[k] = v
		}
	}
	return result
}

// convertToPostgresPlaceholders converts ? to $1, $2, etc. in a single pass.
func convertToPostgresPlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 20)
	paramNum := 1
	for _, c := range query {
		if c == '?' {
			b.WriteString(fmt.Sprintf("$%d", paramNum))
			paramNum++
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// parseContentPart parses a raw JSON message part by its "kind" field.
func parseContentPart(raw json.RawMessage) (a2a.Part, error) {
	var peek struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &peek); err != nil {
		return nil, fmt.Errorf("failed to peek part kind: %w", err)
	}

	switch peek.Kind {
	case "text":
		var part a2a.TextPart
		if err := json.Unmarshal(raw, &part); err != nil {
			return nil, err
		}
		return part, nil
	case "file":
		var part a2a.FilePart
		if err := json.Unmarshal(raw, &part); err != nil {
			return nil, err
		}
		return part, nil
	case "data":
		var part a2a.DataPart
		if err := json.Unmarshal(raw, &part); err != nil {
			return nil, err
		}
		return part, nil
	default:
		slog.Debug("Unknown part kind in stored event", "kind", peek.Kind)
		return nil, nil
	}
}

// Compile-time interface check
var _ Service = (*SQLService)(nil)
