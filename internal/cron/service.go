// Package cron is the standalone-mode (file-backed) counterpart to
// internal/store/pg's PGCronStore: it persists scheduled jobs as JSON on
// disk and polls them once a minute, using the same gronx cron-expression
// matching and the same retry-with-backoff contract around job delivery.
package cron

import (
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// RetryConfig controls how many times — and how long to wait between
// attempts — a failed job delivery is retried before being dropped.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig matches config.CronConfig's documented defaults: 3
// retries, 2s base backoff, 30s cap.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
}

func (c RetryConfig) delay(attempt int) time.Duration {
	d := time.Duration(float64(c.BaseDelay) * math.Pow(2, float64(attempt)))
	if d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

// Service persists store.CronJobSpec rows in a single JSON file and fires
// OnJob for any enabled job whose schedule matches the current minute.
type Service struct {
	mu    sync.Mutex
	path  string
	jobs  map[string]store.CronJobSpec
	onJob func(store.CronJobSpec)
	retry RetryConfig
	stop  chan struct{}
}

// NewService loads (or initializes) a cron job store backed by path. seed
// jobs are only used the first time the file doesn't exist yet; afterwards
// the on-disk file is the source of truth.
func NewService(path string, seed []store.CronJobSpec) *Service {
	s := &Service{path: path, jobs: make(map[string]store.CronJobSpec), retry: DefaultRetryConfig()}
	if !s.load() {
		for _, j := range seed {
			s.jobs[j.Name] = j
		}
		s.save()
	}
	return s
}

func (s *Service) load() bool {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false
	}
	var jobs map[string]store.CronJobSpec
	if err := json.Unmarshal(data, &jobs); err != nil {
		return false
	}
	s.jobs = jobs
	return true
}

// save must be called with s.mu held.
func (s *Service) save() error {
	data, err := json.MarshalIndent(s.jobs, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "cron-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return err
	}
	cleanup = false
	return nil
}

// SetRetryConfig overrides the default retry backoff used when a job's
// delivery callback fails (detected as a panic — onJob itself has no error
// return, matching store.CronStore's callback signature).
func (s *Service) SetRetryConfig(cfg RetryConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retry = cfg
}

func (s *Service) SetOnJob(fn func(store.CronJobSpec)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onJob = fn
}

func (s *Service) Start() error {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return nil
	}
	s.stop = make(chan struct{})
	s.mu.Unlock()

	go s.pollLoop()
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

func (s *Service) pollLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Service) tick() {
	jobs, err := s.List()
	if err != nil {
		return
	}
	s.mu.Lock()
	onJob, retry := s.onJob, s.retry
	s.mu.Unlock()
	if onJob == nil {
		return
	}

	now := time.Now()
	for _, job := range jobs {
		if !job.Enabled {
			continue
		}
		due, err := gronx.IsDue(job.Schedule, now)
		if err != nil || !due {
			continue
		}
		go s.deliver(job, onJob, retry)
	}
}

// deliver invokes onJob, retrying with exponential backoff if the callback
// panics (the only failure signal available across store.CronStore's
// error-less callback contract).
func (s *Service) deliver(job store.CronJobSpec, onJob func(store.CronJobSpec), retry RetryConfig) {
	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		if s.tryDeliver(job, onJob) {
			return
		}
		if attempt < retry.MaxRetries {
			time.Sleep(retry.delay(attempt))
		}
	}
	slog.Warn("cron job delivery failed after retries", "job", job.Name, "attempts", retry.MaxRetries+1)
}

func (s *Service) tryDeliver(job store.CronJobSpec, onJob func(store.CronJobSpec)) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("cron job handler panicked", "job", job.Name, "recover", r)
			ok = false
		}
	}()
	onJob(job)
	return true
}

func (s *Service) List() ([]store.CronJobSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.CronJobSpec, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (s *Service) Upsert(job store.CronJobSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Name] = job
	return s.save()
}

func (s *Service) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, name)
	return s.save()
}
