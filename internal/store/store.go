package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "github.com/lib/pq"
	"github.com/mohammad-safakhou/simplexity/models"
	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// currentSlot is the only row used in conversation_pointer.
const currentSlot = "current"

// Store is the Postgres Persistence. Messages are kept as a jsonb document per
// conversation.
type Store struct {
	DB *sql.DB
}

var (
	metricsOnce    sync.Once
	saveCounter    otelmetric.Int64Counter
	metricsInitErr error
)

func initStoreMetrics() {
	meter := otel.Meter("store")
	saveCounter, metricsInitErr = meter.Int64Counter("conversation_saves_total")
}

// NewWithDSN opens and pings a Postgres connection.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

func scanConversation(row interface{ Scan(...any) error }) (models.Conversation, error) {
	var (
		c     models.Conversation
		title sql.NullString
		raw   []byte
	)
	if err := row.Scan(&c.ID, &title, &c.CreatedAt, &raw); err != nil {
		return models.Conversation{}, err
	}
	c.Title = title.String
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c.Messages); err != nil {
			return models.Conversation{}, fmt.Errorf("decode messages of %s: %w", c.ID, err)
		}
	}
	if c.Messages == nil {
		c.Messages = []models.Message{}
	}
	return c, nil
}

func (s *Store) GetAll(ctx context.Context) ([]models.Conversation, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, title, created_at, messages FROM conversations ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (models.Conversation, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT id, title, created_at, messages FROM conversations WHERE id = $1`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, models.ErrConversationNotFound
	}
	return c, err
}

// SaveAll replaces the stored set in a single transaction.
func (s *Store) SaveAll(ctx context.Context, convs []models.Conversation) (err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM conversations`); err != nil {
		return err
	}
	for i, c := range convs {
		msgs := c.Messages
		if msgs == nil {
			msgs = []models.Message{}
		}
		var raw []byte
		raw, err = json.Marshal(msgs)
		if err != nil {
			return fmt.Errorf("encode messages of %s: %w", c.ID, err)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO conversations (id, title, created_at, position, messages) VALUES ($1,$2,$3,$4,$5)`,
			c.ID, c.Title, c.CreatedAt, i, raw); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}

	metricsOnce.Do(initStoreMetrics)
	if metricsInitErr == nil {
		saveCounter.Add(ctx, 1)
	}
	return nil
}

func (s *Store) CurrentID(ctx context.Context) (string, error) {
	var id sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT conversation_id FROM conversation_pointer WHERE slot = $1`, currentSlot).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id.String, nil
}

func (s *Store) SetCurrentID(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO conversation_pointer (slot, conversation_id) VALUES ($1, $2)
ON CONFLICT (slot) DO UPDATE SET conversation_id = EXCLUDED.conversation_id`, currentSlot, id)
	return err
}

func (s *Store) ClearCurrentID(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM conversation_pointer WHERE slot = $1`, currentSlot)
	return err
}
