package file

import (
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/pairing"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// FilePairingStore adapts a pairing.Service (disk-backed) to store.PairingStore.
type FilePairingStore struct {
	svc *pairing.Service
}

// NewFilePairingStore wraps an already-loaded pairing service.
func NewFilePairingStore(svc *pairing.Service) *FilePairingStore {
	return &FilePairingStore{svc: svc}
}

func (f *FilePairingStore) Issue(role string, ttl time.Duration) (string, time.Time, error) {
	return f.svc.Issue(role, ttl)
}

func (f *FilePairingStore) Consume(token string) (string, bool, error) {
	role, ok := f.svc.Consume(token)
	return role, ok, nil
}

func (f *FilePairingStore) List() ([]store.PairingRecord, error) {
	recs := f.svc.List()
	out := make([]store.PairingRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, store.PairingRecord{
			Role:      r.Role,
			IssuedAt:  r.IssuedAt,
			ExpiresAt: r.ExpiresAt,
			Consumed:  r.Consumed,
		})
	}
	return out, nil
}

func (f *FilePairingStore) Revoke(token string) error {
	return f.svc.Revoke(token)
}
