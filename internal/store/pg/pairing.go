package pg

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// PGPairingStore implements store.PairingStore backed by Postgres, for
// managed-mode installations where multiple gateway replicas must share
// pairing state.
type PGPairingStore struct {
	db *sql.DB
}

func NewPGPairingStore(db *sql.DB) *PGPairingStore {
	return &PGPairingStore{db: db}
}

func (s *PGPairingStore) Issue(role string, ttl time.Duration) (string, time.Time, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, fmt.Errorf("generate pairing token: %w", err)
	}
	token := hex.EncodeToString(raw)
	hash := hashToken(token)
	now := time.Now()
	expiresAt := now.Add(ttl)

	_, err := s.db.Exec(
		`INSERT INTO pairing_tokens (token_hash, role, issued_at, expires_at, consumed)
		 VALUES ($1, $2, $3, $4, false)`,
		hash, role, now, expiresAt,
	)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("insert pairing token: %w", err)
	}
	return token, expiresAt, nil
}

func (s *PGPairingStore) Consume(token string) (string, bool, error) {
	hash := hashToken(token)

	tx, err := s.db.Begin()
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback()

	var role string
	var expiresAt time.Time
	var consumed bool
	err = tx.QueryRow(
		`SELECT role, expires_at, consumed FROM pairing_tokens WHERE token_hash = $1 FOR UPDATE`,
		hash,
	).Scan(&role, &expiresAt, &consumed)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if consumed || time.Now().After(expiresAt) {
		return "", false, nil
	}

	if _, err := tx.Exec(`UPDATE pairing_tokens SET consumed = true WHERE token_hash = $1`, hash); err != nil {
		return "", false, err
	}
	if err := tx.Commit(); err != nil {
		return "", false, err
	}
	return role, true, nil
}

func (s *PGPairingStore) List() ([]store.PairingRecord, error) {
	rows, err := s.db.Query(
		`SELECT role, issued_at, expires_at, consumed FROM pairing_tokens
		 WHERE consumed = true OR expires_at > now()
		 ORDER BY issued_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.PairingRecord
	for rows.Next() {
		var rec store.PairingRecord
		if err := rows.Scan(&rec.Role, &rec.IssuedAt, &rec.ExpiresAt, &rec.Consumed); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *PGPairingStore) Revoke(token string) error {
	hash := hashToken(token)
	res, err := s.db.Exec(`DELETE FROM pairing_tokens WHERE token_hash = $1`, hash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("pairing token not found")
	}
	return nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
