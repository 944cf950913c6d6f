package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/mvalkon/chatwarden/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

const (
	domainAntiDelete    = "anti_delete"
	domainViewOnce      = "view_once"
	domainAutoResponder = "auto_responder"
)

// SQLStore implements Storage over database/sql. The driver is chosen from
// the database URL: anything containing "postgres" uses lib/pq, everything
// else is treated as a sqlite file path.
type SQLStore struct {
	db     *sql.DB
	driver string
}

func NewSQLStore(databaseURL string) (*SQLStore, error) {
	driver, dsn := "sqlite", databaseURL
	if strings.Contains(databaseURL, "postgres") {
		driver = "postgres"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	store := &SQLStore{db: db, driver: driver}
	if err := store.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return store, nil
}

func (s *SQLStore) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
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

func (s *SQLStore) getSettings(ctx context.Context, domain string, out any) (bool, error) {
	var payload string
	query := s.rebind(`SELECT payload FROM settings WHERE domain = ?`)
	err := s.db.QueryRowContext(ctx, query, domain).Scan(&payload)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error querying %s settings: %w", domain, err)
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return false, fmt.Errorf("error decoding %s settings: %w", domain, err)
	}
	return true, nil
}

func (s *SQLStore) saveSettings(ctx context.Context, domain string, in any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("error encoding %s settings: %w", domain, err)
	}
	query := s.rebind(`
		INSERT INTO settings (domain, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (domain) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, query, domain, string(payload), time.Now().UTC()); err != nil {
		return fmt.Errorf("error saving %s settings: %w", domain, err)
	}
	return nil
}

func (s *SQLStore) AntiDeleteSettings(ctx context.Context) (*models.AntiDeleteSettings, error) {
	settings := &models.AntiDeleteSettings{Mode: models.ForwardOff}
	if _, err := s.getSettings(ctx, domainAntiDelete, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *SQLStore) SaveAntiDeleteSettings(ctx context.Context, settings *models.AntiDeleteSettings) error {
	return s.saveSettings(ctx, domainAntiDelete, settings)
}

func (s *SQLStore) ViewOnceSettings(ctx context.Context) (*models.ViewOnceSettings, error) {
	settings := &models.ViewOnceSettings{Mode: models.ForwardOff}
	if _, err := s.getSettings(ctx, domainViewOnce, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *SQLStore) SaveViewOnceSettings(ctx context.Context, settings *models.ViewOnceSettings) error {
	return s.saveSettings(ctx, domainViewOnce, settings)
}

func (s *SQLStore) AutoResponderSettings(ctx context.Context) (*models.AutoResponderSettings, error) {
	settings := &models.AutoResponderSettings{}
	if _, err := s.getSettings(ctx, domainAutoResponder, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *SQLStore) SaveAutoResponderSettings(ctx context.Context, settings *models.AutoResponderSettings) error {
	return s.saveSettings(ctx, domainAutoResponder, settings)
}

func (s *SQLStore) Conversation(ctx context.Context, chatID string) (*models.Conversation, error) {
	var (
		payload      string
		lastActivity time.Time
	)
	query := s.rebind(`SELECT context, last_activity FROM conversations WHERE chat_id = ?`)
	err := s.db.QueryRowContext(ctx, query, chatID).Scan(&payload, &lastActivity)
	if err == sql.ErrNoRows {
		return &models.Conversation{ChatID: chatID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying conversation: %w", err)
	}

	conv := &models.Conversation{ChatID: chatID, LastActivity: lastActivity}
	if err := json.Unmarshal([]byte(payload), &conv.Turns); err != nil {
		return nil, fmt.Errorf("error decoding conversation context: %w", err)
	}
	return conv, nil
}

func (s *SQLStore) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	turns := conv.Turns
	if turns == nil {
		turns = []models.Turn{}
	}
	payload, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("error encoding conversation context: %w", err)
	}
	query := s.rebind(`
		INSERT INTO conversations (chat_id, context, last_activity)
		VALUES (?, ?, ?)
		ON CONFLICT (chat_id) DO UPDATE SET context = excluded.context, last_activity = excluded.last_activity`)
	if _, err := s.db.ExecContext(ctx, query, conv.ChatID, string(payload), conv.LastActivity.UTC()); err != nil {
		return fmt.Errorf("error saving conversation: %w", err)
	}
	return nil
}

func (s *SQLStore) ClearConversation(ctx context.Context, chatID string) error {
	return s.SaveConversation(ctx, &models.Conversation{ChatID: chatID, LastActivity: time.Now()})
}

func (s *SQLStore) StickerBinding(ctx context.Context, fingerprint string) (*models.StickerBinding, error) {
	binding := &models.StickerBinding{}
	query := s.rebind(`
		SELECT fingerprint, command, created_by, created_at
		FROM sticker_bindings WHERE fingerprint = ?`)
	err := s.db.QueryRowContext(ctx, query, fingerprint).Scan(
		&binding.Fingerprint,
		&binding.Command,
		&binding.CreatedBy,
		&binding.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying sticker binding: %w", err)
	}
	return binding, nil
}

func (s *SQLStore) SaveStickerBinding(ctx context.Context, binding *models.StickerBinding) error {
	if binding.CreatedAt.IsZero() {
		binding.CreatedAt = time.Now()
	}
	query := s.rebind(`
		INSERT INTO sticker_bindings (fingerprint, command, created_by, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET command = excluded.command`)
	if _, err := s.db.ExecContext(ctx, query,
		binding.Fingerprint, binding.Command, binding.CreatedBy, binding.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("error saving sticker binding: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteStickerBinding(ctx context.Context, fingerprint string) (bool, error) {
	query := s.rebind(`DELETE FROM sticker_bindings WHERE fingerprint = ?`)
	result, err := s.db.ExecContext(ctx, query, fingerprint)
	if err != nil {
		return false, fmt.Errorf("error deleting sticker binding: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *SQLStore) ListStickerBindings(ctx context.Context) ([]*models.StickerBinding, error) {
	query := s.rebind(`
		SELECT fingerprint, command, created_by, created_at
		FROM sticker_bindings ORDER BY created_at DESC`)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying sticker bindings: %w", err)
	}
	defer rows.Close()

	var bindings []*models.StickerBinding
	for rows.Next() {
		binding := &models.StickerBinding{}
		if err := rows.Scan(
			&binding.Fingerprint,
			&binding.Command,
			&binding.CreatedBy,
			&binding.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning sticker binding: %w", err)
		}
		bindings = append(bindings, binding)
	}
	return bindings, rows.Err()
}

func (s *SQLStore) Credentials(ctx context.Context) ([]byte, error) {
	var encoded string
	query := s.rebind(`SELECT blob FROM credentials WHERE id = 1`)
	err := s.db.QueryRowContext(ctx, query).Scan(&encoded)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying credentials: %w", err)
	}
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("error decoding credentials: %w", err)
	}
	return blob, nil
}

func (s *SQLStore) SaveCredentials(ctx context.Context, blob []byte) error {
	query := s.rebind(`
		INSERT INTO credentials (id, blob, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, query, base64.StdEncoding.EncodeToString(blob), time.Now().UTC()); err != nil {
		return fmt.Errorf("error saving credentials: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
