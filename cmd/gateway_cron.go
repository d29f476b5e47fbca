package cmd

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/goclaw/internal/agent"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/scheduler"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// makeCronJobHandler creates a store.CronStore OnJob callback that routes
// a fired job through the scheduler's cron lane, so a cron-triggered run
// gets the same per-session concurrency control (and interacts correctly
// with /stop, /stopall) as any channel-triggered run.
func makeCronJobHandler(sched *scheduler.Scheduler, cfg *config.Config) func(job store.CronJobSpec) {
	return func(job store.CronJobSpec) {
		agentID := job.AgentID
		if agentID == "" {
			agentID = cfg.ResolveDefaultAgentID()
		} else {
			agentID = config.NormalizeAgentID(agentID)
		}

		runID := store.GenNewID().String()
		sessionKey := sessions.BuildCronSessionKey(agentID, job.Name, runID)

		outCh := sched.Schedule(context.Background(), scheduler.LaneCron, agent.RunRequest{
			SessionKey: sessionKey,
			Message:    job.Message,
			Channel:    "cron",
			RunID:      fmt.Sprintf("cron:%s:%s", job.Name, runID),
			Stream:     false,
			TraceName:  fmt.Sprintf("Cron [%s] - %s", job.Name, agentID),
			TraceTags:  []string{"cron"},
		})

		<-outCh // block until the scheduled run completes; errors are already logged by the loop
	}
}
