package tools

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// CronTool lets the agent manage its own scheduled jobs: list, create or
// update (upsert, keyed by name), and remove.
type CronTool struct {
	cron store.CronStore
}

func NewCronTool(cron store.CronStore) *CronTool {
	return &CronTool{cron: cron}
}

func (t *CronTool) Name() string { return "cron" }
func (t *CronTool) Description() string {
	return "List, create, update, or remove scheduled jobs that send a message to an agent on a cron schedule"
}
func (t *CronTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"list", "upsert", "remove"},
				"description": "Operation to perform",
			},
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Job name (required for upsert/remove)",
			},
			"schedule": map[string]interface{}{
				"type":        "string",
				"description": "Cron expression (required for upsert)",
			},
			"agent_id": map[string]interface{}{
				"type":        "string",
				"description": "Agent the job fires against (defaults to the current agent)",
			},
			"message": map[string]interface{}{
				"type":        "string",
				"description": "Message delivered to the agent when the job fires",
			},
			"enabled": map[string]interface{}{
				"type":        "boolean",
				"description": "Whether the job is active (defaults to true)",
			},
		},
		"required": []string{"action"},
	}
}

func (t *CronTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.cron == nil {
		return ErrorResult("cron is not configured")
	}
	action, _ := args["action"].(string)

	switch action {
	case "list":
		jobs, err := t.cron.List()
		if err != nil {
			return ErrorResult(fmt.Sprintf("failed to list jobs: %v", err))
		}
		if len(jobs) == 0 {
			return SilentResult("no scheduled jobs")
		}
		out := ""
		for _, j := range jobs {
			out += fmt.Sprintf("- %s: %q (agent=%s, enabled=%t)\n", j.Name, j.Schedule, j.AgentID, j.Enabled)
		}
		return SilentResult(out)

	case "upsert":
		name, _ := args["name"].(string)
		schedule, _ := args["schedule"].(string)
		if name == "" || schedule == "" {
			return ErrorResult("name and schedule are required")
		}
		agentID, _ := args["agent_id"].(string)
		if agentID == "" {
			agentID = ToolAgentKeyFromCtx(ctx)
		}
		message, _ := args["message"].(string)
		enabled := true
		if v, ok := args["enabled"].(bool); ok {
			enabled = v
		}
		job := store.CronJobSpec{Name: name, Schedule: schedule, AgentID: agentID, Message: message, Enabled: enabled}
		if err := t.cron.Upsert(job); err != nil {
			return ErrorResult(fmt.Sprintf("failed to upsert job: %v", err))
		}
		return SilentResult(fmt.Sprintf("job %q scheduled: %s", name, schedule))

	case "remove":
		name, _ := args["name"].(string)
		if name == "" {
			return ErrorResult("name is required")
		}
		if err := t.cron.Remove(name); err != nil {
			return ErrorResult(fmt.Sprintf("failed to remove job: %v", err))
		}
		return SilentResult(fmt.Sprintf("job %q removed", name))

	default:
		return ErrorResult(fmt.Sprintf("unknown action %q", action))
	}
}
