package pg

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// PGCronStore persists scheduled jobs in Postgres and polls them once a
// minute, firing OnJob for any job whose schedule matches the current
// minute. gronx does the cron-expression matching; the store itself only
// owns persistence and the poll loop.
type PGCronStore struct {
	db *sql.DB

	mu    sync.Mutex
	onJob func(store.CronJobSpec)
	stop  chan struct{}
}

func NewPGCronStore(db *sql.DB) *PGCronStore {
	return &PGCronStore{db: db}
}

func (s *PGCronStore) SetOnJob(fn func(store.CronJobSpec)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onJob = fn
}

func (s *PGCronStore) Start() error {
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

func (s *PGCronStore) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

func (s *PGCronStore) pollLoop() {
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

func (s *PGCronStore) tick() {
	ctx := context.Background()
	jobs, err := s.List()
	if err != nil {
		return
	}
	s.mu.Lock()
	onJob := s.onJob
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
		onJob(job)
	}
	_ = ctx
}

func (s *PGCronStore) List() ([]store.CronJobSpec, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT name, schedule, agent_id, message, enabled FROM cron_jobs ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []store.CronJobSpec
	for rows.Next() {
		var j store.CronJobSpec
		if err := rows.Scan(&j.Name, &j.Schedule, &j.AgentID, &j.Message, &j.Enabled); err != nil {
			continue
		}
		result = append(result, j)
	}
	return result, nil
}

func (s *PGCronStore) Upsert(job store.CronJobSpec) error {
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO cron_jobs (name, schedule, agent_id, message, enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (name) DO UPDATE SET
		   schedule = EXCLUDED.schedule, agent_id = EXCLUDED.agent_id,
		   message = EXCLUDED.message, enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at`,
		job.Name, job.Schedule, job.AgentID, job.Message, job.Enabled, time.Now())
	return err
}

func (s *PGCronStore) Remove(name string) error {
	_, err := s.db.ExecContext(context.Background(), `DELETE FROM cron_jobs WHERE name = $1`, name)
	return err
}
