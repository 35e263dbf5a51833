package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"pixelbatch/core"
	"pixelbatch/logging"
)

// CredentialsSettingKey is the settings row holding the credential pool as
// a JSON array of strings.
const CredentialsSettingKey = "gemini-pixel-api-keys-v1"

// ErrCredentialIndex is returned by RemoveCredential for an index outside
// the pool.
var ErrCredentialIndex = errors.New("db: credential index out of range")

// CredentialRepository persists the ordered credential pool.
type CredentialRepository struct {
	db  *Database
	log *logging.Logger
}

// NewCredentialRepository creates a CredentialRepository.
func NewCredentialRepository(database *Database, log *logging.Logger) *CredentialRepository {
	if log == nil {
		log = logging.NewNop()
	}
	return &CredentialRepository{db: database, log: log.Named("credentials")}
}

var _ core.CredentialStore = (*CredentialRepository)(nil)

// LoadCredentials returns the stored pool in order. A missing row is an
// empty pool. A row that is not a JSON array of strings is logged, deleted
// and treated as empty.
func (r *CredentialRepository) LoadCredentials(ctx context.Context) ([]string, error) {
	var raw string
	err := r.db.DB().QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, CredentialsSettingKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db: load credentials: %w", err)
	}

	keys, perr := parseCredentials(raw)
	if perr != nil {
		r.log.Warn("malformed credential data, clearing", zap.Error(perr))
		if _, err := r.db.DB().ExecContext(ctx,
			`DELETE FROM settings WHERE key = ?`, CredentialsSettingKey); err != nil {
			return nil, fmt.Errorf("db: clear malformed credentials: %w", err)
		}
		return []string{}, nil
	}
	return keys, nil
}

func parseCredentials(raw string) ([]string, error) {
	var items []any
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode credential list: %w", err)
	}
	keys := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("credential %d is %T, not a string", i, item)
		}
		keys = append(keys, s)
	}
	return keys, nil
}

// SaveCredentials replaces the stored pool. Keys are trimmed, blanks and
// duplicates dropped; an empty result removes the row.
func (r *CredentialRepository) SaveCredentials(ctx context.Context, keys []string) error {
	keys = NormalizeCredentials(keys)

	if len(keys) == 0 {
		if _, err := r.db.DB().ExecContext(ctx,
			`DELETE FROM settings WHERE key = ?`, CredentialsSettingKey); err != nil {
			return fmt.Errorf("db: clear credentials: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("db: encode credentials: %w", err)
	}
	_, err = r.db.DB().ExecContext(ctx, `
INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		CredentialsSettingKey, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("db: save credentials: %w", err)
	}
	r.log.Info("credentials saved", zap.Int("key_count", len(keys)))
	return nil
}

// AddCredential appends key to the pool unless it is blank or already
// present. It reports whether the pool changed.
func (r *CredentialRepository) AddCredential(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, nil
	}
	keys, err := r.LoadCredentials(ctx)
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		if k == key {
			return false, nil
		}
	}
	return true, r.SaveCredentials(ctx, append(keys, key))
}

// RemoveCredential deletes the key at the zero-based index.
func (r *CredentialRepository) RemoveCredential(ctx context.Context, index int) error {
	keys, err := r.LoadCredentials(ctx)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(keys) {
		return fmt.Errorf("%w: %d (have %d)", ErrCredentialIndex, index, len(keys))
	}
	return r.SaveCredentials(ctx, append(keys[:index:index], keys[index+1:]...))
}

// NormalizeCredentials trims every key and drops blanks and repeats while
// keeping first-seen order.
func NormalizeCredentials(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// MaskCredential hides all but the last four characters of key.
func MaskCredential(key string) string {
	const mask = "••••••••"
	if len(key) <= 4 {
		return mask + key
	}
	return mask + key[len(key)-4:]
}
