package file

import (
	"github.com/nextlevelbuilder/goclaw/internal/cron"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// FileCronStore adapts a cron.Service (disk-backed) to store.CronStore.
type FileCronStore struct {
	svc *cron.Service
}

// NewFileCronStore wraps an already-loaded cron service.
func NewFileCronStore(svc *cron.Service) *FileCronStore {
	return &FileCronStore{svc: svc}
}

func (f *FileCronStore) Start() error                             { return f.svc.Start() }
func (f *FileCronStore) Stop()                                     { f.svc.Stop() }
func (f *FileCronStore) SetOnJob(fn func(job store.CronJobSpec))   { f.svc.SetOnJob(fn) }
func (f *FileCronStore) List() ([]store.CronJobSpec, error)        { return f.svc.List() }
func (f *FileCronStore) Upsert(job store.CronJobSpec) error        { return f.svc.Upsert(job) }
func (f *FileCronStore) Remove(name string) error                  { return f.svc.Remove(name) }

// SetRetryConfig passes through to the wrapped service; cmd/gateway.go
// reaches this via an interface type assertion since store.CronStore
// itself doesn't declare it (the PG-backed store has no retry concept of
// its own — only the file-backed delivery loop needs backoff).
func (f *FileCronStore) SetRetryConfig(cfg cron.RetryConfig) { f.svc.SetRetryConfig(cfg) }
