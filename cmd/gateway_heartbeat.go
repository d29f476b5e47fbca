package cmd

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/agent"
	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// defaultHeartbeatAckMaxChars bounds how much trailing text after
// HEARTBEAT_OK is still treated as a silent acknowledgement.
const defaultHeartbeatAckMaxChars = 300

// HeartbeatService runs each configured agent's periodic self-check turn:
// on its own ticker, it injects the agent's heartbeat prompt into its main
// session and, unless the reply is just a bare HEARTBEAT_OK acknowledgement,
// forwards the reply to the agent's last-used channel.
type HeartbeatService struct {
	cfg       *config.Config
	agents    *agent.Router
	sessStore store.SessionStore
	msgBus    *bus.MessageBus
	workspace string

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// setupHeartbeat builds a heartbeat service for every agent with a
// non-disabled heartbeat interval configured (config.json
// agents.defaults.heartbeat / agents.list[id].heartbeat). Returns nil if no
// agent has heartbeats enabled.
func setupHeartbeat(cfg *config.Config, agents *agent.Router, sessStore store.SessionStore, msgBus *bus.MessageBus, workspace string) *HeartbeatService {
	hasAny := false
	for _, agentID := range agents.List() {
		if hb := cfg.ResolveAgent(agentID).Heartbeat; hb != nil {
			if d, err := parseHeartbeatInterval(hb.Every); err == nil && d > 0 {
				hasAny = true
				break
			}
		}
	}
	if !hasAny {
		return nil
	}
	return &HeartbeatService{cfg: cfg, agents: agents, sessStore: sessStore, msgBus: msgBus, workspace: workspace}
}

// Start launches one ticker goroutine per heartbeat-enabled agent.
func (h *HeartbeatService) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	for _, agentID := range h.agents.List() {
		hb := h.cfg.ResolveAgent(agentID).Heartbeat
		if hb == nil {
			continue
		}
		interval, err := parseHeartbeatInterval(hb.Every)
		if err != nil || interval <= 0 {
			continue
		}
		h.wg.Add(1)
		go h.run(ctx, agentID, hb, interval)
	}
}

// Stop cancels every running heartbeat goroutine and waits for them to exit.
func (h *HeartbeatService) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
}

func (h *HeartbeatService) run(ctx context.Context, agentID string, hb *config.HeartbeatConfig, interval time.Duration) {
	defer h.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !withinActiveHours(hb.ActiveHours, time.Now()) {
				continue
			}
			h.fire(ctx, agentID, hb)
		}
	}
}

func (h *HeartbeatService) fire(ctx context.Context, agentID string, hb *config.HeartbeatConfig) {
	ag, err := h.agents.Get(agentID)
	if err != nil {
		slog.Warn("heartbeat: agent unavailable", "agent", agentID, "error", err)
		return
	}

	sessionKey := sessions.BuildAgentMainSessionKey(agentID, hb.Session)
	prompt := hb.Prompt
	if prompt == "" {
		prompt = "This is your periodic heartbeat check. Review HEARTBEAT.md for what to do. " +
			"If there is nothing to report, reply with exactly HEARTBEAT_OK and nothing else."
	}

	result, err := ag.Run(ctx, agent.RunRequest{
		SessionKey: sessionKey,
		Message:    prompt,
		Channel:    "heartbeat",
		RunID:      "heartbeat:" + strconv.FormatInt(time.Now().UnixNano(), 36),
		TraceName:  "Heartbeat [" + agentID + "]",
		TraceTags:  []string{"heartbeat"},
	})
	if err != nil {
		slog.Warn("heartbeat: run failed", "agent", agentID, "error", err)
		return
	}
	if result == nil {
		return
	}

	ackMax := hb.AckMaxChars
	if ackMax <= 0 {
		ackMax = defaultHeartbeatAckMaxChars
	}
	reply := strings.TrimSpace(result.Content)
	if strings.HasPrefix(reply, "HEARTBEAT_OK") && len(reply) <= len("HEARTBEAT_OK")+ackMax {
		slog.Debug("heartbeat: silent ack", "agent", agentID)
		return
	}
	if hb.Target == "none" || reply == "" {
		return
	}

	channel, chatID := h.targetChannel(agentID, hb)
	if channel == "" || chatID == "" {
		slog.Debug("heartbeat: no delivery target, dropping reply", "agent", agentID)
		return
	}

	h.msgBus.PublishOutbound(bus.OutboundMessage{
		Channel:  channel,
		ChatID:   chatID,
		Content:  reply,
		Metadata: map[string]string{"heartbeat_agent": agentID},
	})
}

// targetChannel resolves where a non-silent heartbeat reply should be
// delivered: an explicit target channel (hb.Target) with hb.To as the chat
// ID, or the agent's last-used
// channel (the "last" default).
func (h *HeartbeatService) targetChannel(agentID string, hb *config.HeartbeatConfig) (channel, chatID string) {
	if hb.Target != "" && hb.Target != "last" {
		channel = hb.Target
		chatID = hb.To
		return
	}
	return h.sessStore.LastUsedChannel(agentID)
}

func parseHeartbeatInterval(every string) (time.Duration, error) {
	if every == "" {
		return 30 * time.Minute, nil
	}
	d, err := time.ParseDuration(every)
	if err != nil {
		return 0, err
	}
	return d, nil
}

func withinActiveHours(ah *config.ActiveHoursConfig, now time.Time) bool {
	if ah == nil || ah.Start == "" || ah.End == "" {
		return true
	}
	loc := time.Local
	if ah.Timezone != "" {
		if tz, err := time.LoadLocation(ah.Timezone); err == nil {
			loc = tz
		}
	}
	local := now.In(loc)
	start, err1 := time.ParseInLocation("15:04", ah.Start, loc)
	end, err2 := time.ParseInLocation("15:04", ah.End, loc)
	if err1 != nil || err2 != nil {
		return true
	}
	cur := local.Hour()*60 + local.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	if startMin <= endMin {
		return cur >= startMin && cur < endMin
	}
	// Window wraps past midnight.
	return cur >= startMin || cur < endMin
}
