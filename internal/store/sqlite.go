package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/swiss-ai-registry/event-processor/internal/model"
	"github.com/swiss-ai-registry/event-processor/pkg/logger"
)

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path and ensures
// the schema exists. Parent directories are created as well.
func NewSQLiteStore(path string, log *logger.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logger.Global()
	}
	log = log.Named("store")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: log}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	log.Info("SQLite store initialized", zap.String("path", path))
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id                     TEXT PRIMARY KEY,
			user_id                TEXT NOT NULL,
			agent_id               TEXT NOT NULL,
			status                 TEXT NOT NULL DEFAULT 'active',
			adk_session_id         TEXT,
			adk_session_expires_at TEXT,
			total_messages         INTEGER NOT NULL DEFAULT 0,
			total_tokens           INTEGER NOT NULL DEFAULT 0,
			created_at             TEXT NOT NULL,
			updated_at             TEXT NOT NULL,

			CHECK (status IN ('active', 'completed'))
		);

		CREATE TABLE IF NOT EXISTS agent_sessions (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			adk_session_id  TEXT NOT NULL UNIQUE,
			status          TEXT NOT NULL,
			expires_at      TEXT NOT NULL,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL,

			CHECK (status IN ('active', 'expired', 'terminated'))
		);

		CREATE INDEX IF NOT EXISTS idx_agent_sessions_conversation
			ON agent_sessions(conversation_id, status);

		CREATE TABLE IF NOT EXISTS messages (
			id                 TEXT PRIMARY KEY,
			conversation_id    TEXT NOT NULL REFERENCES conversations(id),
			role               TEXT NOT NULL,
			content            TEXT NOT NULL,
			tokens_used        INTEGER NOT NULL DEFAULT 0,
			processing_time_ms INTEGER NOT NULL DEFAULT 0,
			metadata           TEXT,
			created_at         TEXT NOT NULL,

			CHECK (role IN ('user', 'assistant'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS conversation_events (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			event_type      TEXT NOT NULL,
			payload         TEXT,
			metadata        TEXT,
			status          TEXT NOT NULL DEFAULT 'pending',
			error_message   TEXT,
			processed_at    TEXT,
			created_at      TEXT NOT NULL,

			CHECK (status IN ('pending', 'processed', 'failed'))
		);

		CREATE INDEX IF NOT EXISTS idx_conversation_events_status
			ON conversation_events(status, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// CreateEvent inserts a new event. An empty status defaults to pending.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *model.ConversationEvent) error {
	if event.Status == "" {
		event.Status = model.EventStatusPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_events (id, conversation_id, event_type, payload, metadata, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.ConversationID,
		string(event.Type),
		nullJSON(event.Payload),
		nullJSON(event.Metadata),
		string(event.Status),
		formatTime(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// GetEvent retrieves an event by ID.
func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*model.ConversationEvent, error) {
	var (
		event               model.ConversationEvent
		eventType, status   string
		payload, metadata   sql.NullString
		errMsg, processedAt sql.NullString
		createdAt           string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, event_type, payload, metadata, status, error_message, processed_at, created_at
		FROM conversation_events
		WHERE id = ?`, id,
	).Scan(&event.ID, &event.ConversationID, &eventType, &payload, &metadata, &status, &errMsg, &processedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}

	event.Type = model.EventType(eventType)
	event.Status = model.EventStatus(status)
	if payload.Valid {
		event.Payload = json.RawMessage(payload.String)
	}
	if metadata.Valid {
		event.Metadata = json.RawMessage(metadata.String)
	}
	if errMsg.Valid {
		event.ErrorMessage = &errMsg.String
	}
	if event.ProcessedAt, err = parseNullTime(processedAt); err != nil {
		return nil, fmt.Errorf("parsing processed_at: %w", err)
	}
	if event.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &event, nil
}

// MarkEventProcessed implements the mark_event_processed procedure.
func (s *SQLiteStore) MarkEventProcessed(ctx context.Context, eventID string, errMsg *string) error {
	status := model.EventStatusProcessed
	var msg sql.NullString
	if errMsg != nil {
		status = model.EventStatusFailed
		msg = sql.NullString{String: *errMsg, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE conversation_events
		SET status = ?, error_message = ?, processed_at = ?
		WHERE id = ?`,
		string(status), msg, formatTime(time.Now()), eventID,
	)
	if err != nil {
		return fmt.Errorf("marking event: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}

	s.logger.Debug("marked event", zap.String("event_id", eventID), zap.String("status", string(status)))
	return nil
}

// CreateConversation inserts a new conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	if conv.Status == "" {
		conv.Status = model.ConversationStatusActive
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, agent_id, status, adk_session_id, adk_session_expires_at,
			total_messages, total_tokens, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID,
		conv.UserID,
		conv.AgentID,
		string(conv.Status),
		nullString(conv.AdkSessionID),
		nullTime(conv.AdkSessionExpiresAt),
		conv.TotalMessages,
		conv.TotalTokens,
		formatTime(conv.CreatedAt),
		formatTime(conv.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var (
		conv                 model.Conversation
		status               string
		adkID, adkExpires    sql.NullString
		createdAt, updatedAt string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, agent_id, status, adk_session_id, adk_session_expires_at,
			total_messages, total_tokens, created_at, updated_at
		FROM conversations
		WHERE id = ?`, id,
	).Scan(&conv.ID, &conv.UserID, &conv.AgentID, &status, &adkID, &adkExpires,
		&conv.TotalMessages, &conv.TotalTokens, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	conv.Status = model.ConversationStatus(status)
	if adkID.Valid {
		conv.AdkSessionID = &adkID.String
	}
	if conv.AdkSessionExpiresAt, err = parseNullTime(adkExpires); err != nil {
		return nil, fmt.Errorf("parsing adk_session_expires_at: %w", err)
	}
	if conv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if conv.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &conv, nil
}

// SetConversationSession stores the current session lease on a conversation.
func (s *SQLiteStore) SetConversationSession(ctx context.Context, conversationID, adkSessionID string, expiresAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET adk_session_id = ?, adk_session_expires_at = ?, updated_at = ?
		WHERE id = ?`,
		adkSessionID, formatTime(expiresAt), formatTime(time.Now()), conversationID,
	)
	if err != nil {
		return fmt.Errorf("updating conversation session: %w", err)
	}
	return requireRow(result)
}

// SetConversationStatus updates the lifecycle status of a conversation.
func (s *SQLiteStore) SetConversationStatus(ctx context.Context, conversationID string, status model.ConversationStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), conversationID,
	)
	if err != nil {
		return fmt.Errorf("updating conversation status: %w", err)
	}
	return requireRow(result)
}

// UpdateConversationTotals implements the update_conversation_totals procedure.
func (s *SQLiteStore) UpdateConversationTotals(ctx context.Context, conversationID string, tokens int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET total_messages = total_messages + 1,
			total_tokens = total_tokens + ?,
			updated_at = ?
		WHERE id = ?`,
		tokens, formatTime(time.Now()), conversationID,
	)
	if err != nil {
		return fmt.Errorf("updating conversation totals: %w", err)
	}
	return requireRow(result)
}

// CreateSession inserts a new agent session row.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *model.AgentSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_sessions (id, conversation_id, adk_session_id, status, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.ConversationID,
		session.AdkSessionID,
		string(session.Status),
		formatTime(session.ExpiresAt),
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting agent session: %w", err)
	}

	s.logger.Debug("created agent session",
		zap.String("conversation_id", session.ConversationID),
		zap.String("adk_session_id", session.AdkSessionID),
	)
	return nil
}

// GetSessionByAdkID retrieves a session by its external session id.
func (s *SQLiteStore) GetSessionByAdkID(ctx context.Context, adkSessionID string) (*model.AgentSession, error) {
	var (
		session                         model.AgentSession
		status                          string
		expiresAt, createdAt, updatedAt string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, adk_session_id, status, expires_at, created_at, updated_at
		FROM agent_sessions
		WHERE adk_session_id = ?`, adkSessionID,
	).Scan(&session.ID, &session.ConversationID, &session.AdkSessionID, &status, &expiresAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent session: %w", err)
	}

	session.Status = model.SessionStatus(status)
	if session.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if session.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &session, nil
}

// RefreshSession extends a session lease if nobody else has since it was read.
func (s *SQLiteStore) RefreshSession(ctx context.Context, id string, prevExpiresAt, expiresAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE agent_sessions
		SET expires_at = ?, status = 'active', updated_at = ?
		WHERE id = ? AND expires_at = ?`,
		formatTime(expiresAt), formatTime(time.Now()), id, formatTime(prevExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("refreshing agent session: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// SetSessionStatus updates the status of a session.
func (s *SQLiteStore) SetSessionStatus(ctx context.Context, id string, status model.SessionStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE agent_sessions SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating agent session status: %w", err)
	}
	return requireRow(result)
}

// ExpireActiveSessions marks every active session of a conversation expired
// and returns how many rows changed.
func (s *SQLiteStore) ExpireActiveSessions(ctx context.Context, conversationID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE agent_sessions SET status = 'expired', updated_at = ?
		WHERE conversation_id = ? AND status = 'active'`,
		formatTime(time.Now()), conversationID,
	)
	if err != nil {
		return 0, fmt.Errorf("expiring agent sessions: %w", err)
	}
	return result.RowsAffected()
}

// CreateMessage appends a message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *model.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, tokens_used, processing_time_ms, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.ConversationID,
		string(msg.Role),
		msg.Content,
		msg.TokensUsed,
		msg.ProcessingTimeMs,
		nullJSON(msg.Metadata),
		formatTime(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// ListMessages returns the messages of a conversation, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, tokens_used, processing_time_ms, metadata, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC`, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		var (
			msg       model.Message
			role      string
			metadata  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content,
			&msg.TokensUsed, &msg.ProcessingTimeMs, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Role = model.Role(role)
		if metadata.Valid {
			msg.Metadata = json.RawMessage(metadata.String)
		}
		if msg.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return messages, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Fixed-width so stored values sort lexically and a value read back
// compares equal in conditional updates.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
