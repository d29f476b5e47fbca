package methods

import (
	"context"
	"encoding/json"

	"github.com/nextlevelbuilder/goclaw/internal/gateway"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

// CronMethods exposes cron job CRUD + enable/disable over the gateway's
// RPC channel, matching the agent-facing cron_tool's job model.
type CronMethods struct {
	store store.CronStore
}

// NewCronMethods creates a new handler for cron job management.
func NewCronMethods(s store.CronStore) *CronMethods {
	return &CronMethods{store: s}
}

// Register binds the cron.* methods.
func (m *CronMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodCronList, m.handleList)
	router.Register(protocol.MethodCronCreate, m.handleCreate)
	router.Register(protocol.MethodCronUpdate, m.handleUpdate)
	router.Register(protocol.MethodCronDelete, m.handleDelete)
	router.Register(protocol.MethodCronToggle, m.handleToggle)
}

func (m *CronMethods) handleList(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	jobs, err := m.store.List()
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, "failed to list cron jobs: "+err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{"jobs": jobs}))
}

func (m *CronMethods) handleCreate(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var job store.CronJobSpec
	if req.Params != nil {
		json.Unmarshal(req.Params, &job)
	}
	if job.Name == "" || job.Schedule == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "name and schedule are required"))
		return
	}
	job.Enabled = true
	if err := m.store.Upsert(job); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, "failed to create cron job: "+err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, job))
}

func (m *CronMethods) handleUpdate(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var job store.CronJobSpec
	if req.Params != nil {
		json.Unmarshal(req.Params, &job)
	}
	if job.Name == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "name is required"))
		return
	}
	if err := m.store.Upsert(job); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, "failed to update cron job: "+err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, job))
}

func (m *CronMethods) handleDelete(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Name string `json:"name"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if err := m.store.Remove(params.Name); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, "failed to delete cron job: "+err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{"status": "deleted"}))
}

func (m *CronMethods) handleToggle(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Name    string `json:"name"`
		Enabled bool   `json:"enabled"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}

	jobs, err := m.store.List()
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, "failed to load cron jobs: "+err.Error()))
		return
	}
	for _, job := range jobs {
		if job.Name == params.Name {
			job.Enabled = params.Enabled
			if err := m.store.Upsert(job); err != nil {
				client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, "failed to toggle cron job: "+err.Error()))
				return
			}
			client.SendResponse(protocol.NewOKResponse(req.ID, job))
			return
		}
	}
	client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrNotFound, "cron job not found: "+params.Name))
}
