// Package session owns the per-visitor chat state machine: turn handling,
// lead field merging, the idle close sequence and the one-shot notification.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"leadchat/internal/agent"
	"leadchat/internal/domain"
	"leadchat/internal/extract"
	"leadchat/internal/metrics"
	"leadchat/internal/theme"
)

var (
	ErrSessionComplete = errors.New("session already complete")
	ErrAgentBusy       = errors.New("agent reply still pending")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrSessionNotFound = errors.New("session not found")
)

type Agent interface {
	Reply(ctx context.Context, req agent.Request) (agent.Reply, error)
}

type Notifier interface {
	Notify(ctx context.Context, n domain.LeadNotification) error
}

// Recorder persists session history. Calls run on a per-session queue in
// submission order; failures are logged and never reach the visitor.
type Recorder interface {
	StartSession(ctx context.Context, sessionID string, th domain.Theme, at time.Time) error
	SaveTurn(ctx context.Context, sessionID string, seq int, turn domain.Turn) error
	SaveLead(ctx context.Context, n domain.LeadNotification) error
}

type Config struct {
	Idle          IdleConfig
	NotifyTimeout time.Duration
	RecordTimeout time.Duration
	SessionTTL    time.Duration
}

func (c Config) withDefaults() Config {
	c.Idle = c.Idle.withDefaults()
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 15 * time.Second
	}
	if c.RecordTimeout <= 0 {
		c.RecordTimeout = 5 * time.Second
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = time.Hour
	}
	return c
}

type Deps struct {
	Agent    Agent
	Notifier Notifier
	Recorder Recorder
	Catalog  theme.Catalog
	Logger   *slog.Logger
}

type recordOp struct {
	name string
	fn   func(ctx context.Context) error
}

const recordQueueSize = 64

type Controller struct {
	id        string
	theme     domain.Theme
	themeCopy theme.Copy
	agent     Agent
	notifier  Notifier
	recorder  Recorder
	cfg       Config
	logger    *slog.Logger
	timer     *IdleTimer

	mu           sync.Mutex
	record       domain.LeadRecord
	transcript   []domain.Turn
	phase        domain.Phase
	pending      bool
	closeReason  domain.CloseReason
	armedGen     uint64
	idleDeadline time.Time
	countdown    int
	lastActivity time.Time
	closed       bool
	recordQ      chan recordOp
	subs         map[int]chan Event
	nextSub      int
	done         chan struct{}
}

// NewController starts a session in the collecting phase with the theme's greeting as the first turn.
func NewController(id string, th domain.Theme, cfg Config, deps Deps) *Controller {
	cfg = cfg.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	catalog := deps.Catalog
	if catalog == nil {
		catalog = theme.Default()
	}

	c := &Controller{
		id:           id,
		theme:        th,
		themeCopy:    catalog.For(th),
		agent:        deps.Agent,
		notifier:     deps.Notifier,
		recorder:     deps.Recorder,
		cfg:          cfg,
		logger:       logger,
		phase:        domain.PhaseCollecting,
		lastActivity: time.Now(),
		subs:         make(map[int]chan Event),
		done:         make(chan struct{}),
	}
	c.timer = NewIdleTimer(cfg.Idle, c.onIdleTick, c.onIdleExpire)

	if c.recorder != nil {
		c.recordQ = make(chan recordOp, recordQueueSize)
		go c.runRecorder(c.recordQ)
	}

	c.mu.Lock()
	startedAt := c.lastActivity
	c.recordLocked("start_session", func(ctx context.Context) error {
		return c.recorder.StartSession(ctx, id, th, startedAt)
	})
	c.appendTurnLocked(domain.SpeakerAgent, c.themeCopy.Greeting)
	c.mu.Unlock()
	return c
}

func (c *Controller) ID() string {
	return c.id
}

// Done is closed when the session reaches the complete phase.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) Snapshot() domain.SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// HandleMessage runs one user turn. The agent call and the rule-based
// extraction run concurrently outside the lock; at most one agent call is in
// flight per session.
func (c *Controller) HandleMessage(ctx context.Context, text string) (domain.SessionSnapshot, error) {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	switch {
	case c.phase == domain.PhaseComplete:
		c.mu.Unlock()
		return domain.SessionSnapshot{}, ErrSessionComplete
	case c.pending:
		c.mu.Unlock()
		return domain.SessionSnapshot{}, ErrAgentBusy
	case text == "":
		c.mu.Unlock()
		return domain.SessionSnapshot{}, ErrEmptyMessage
	}

	c.cancelIdleLocked()
	c.lastActivity = time.Now()
	c.appendTurnLocked(domain.SpeakerUser, text)
	end := extract.IsEnd(text)

	if end && c.record.Complete() {
		c.finalizeLocked(domain.CloseReasonUserEnded)
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, nil
	}

	c.pending = true
	known := c.record.Known()
	req := agent.Request{
		SessionID:  c.id,
		Theme:      c.theme,
		Transcript: append([]domain.Turn(nil), c.transcript...),
		Record:     c.record,
		Fallback:   c.themeCopy.Fallback,
	}
	c.mu.Unlock()

	var (
		reply     agent.Reply
		heuristic domain.PartialLead
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reply = c.askAgent(gctx, req)
		return nil
	})
	g.Go(func() error {
		heuristic = extract.Extract(text, known)
		return nil
	})
	_ = g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = false
	c.lastActivity = time.Now()
	if c.phase == domain.PhaseComplete || c.closed {
		return c.snapshotLocked(), nil
	}

	c.mergeLocked(reply.Extraction, heuristic)

	if end && c.record.Complete() {
		c.finalizeLocked(domain.CloseReasonUserEnded)
		return c.snapshotLocked(), nil
	}

	display := strings.TrimSpace(reply.DisplayText)
	if display == "" {
		display = c.themeCopy.Acknowledge
	}
	c.appendTurnLocked(domain.SpeakerAgent, display)
	if c.record.Complete() {
		c.armIdleLocked()
	}
	return c.snapshotLocked(), nil
}

// Notice is the themed text shown to the visitor for a rejected message.
func (c *Controller) Notice(err error) string {
	switch {
	case errors.Is(err, ErrAgentBusy) && c.themeCopy.Busy != "":
		return c.themeCopy.Busy
	case errors.Is(err, ErrSessionComplete) && c.themeCopy.Closed != "":
		return c.themeCopy.Closed
	}
	return err.Error()
}

// Touch restarts a running idle sequence, e.g. while the visitor is typing.
func (c *Controller) Touch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == domain.PhaseComplete || c.armedGen == 0 {
		return false
	}
	c.lastActivity = time.Now()
	c.armIdleLocked()
	return true
}

// Close stops the timer and the persistence queue without finalizing. Used
// when a session is evicted.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.cancelIdleLocked()
	c.closeRecorderLocked()
	c.closeSubscribersLocked()
	c.closed = true
}

func (c *Controller) askAgent(ctx context.Context, req agent.Request) agent.Reply {
	if c.agent == nil {
		return agent.Reply{DisplayText: req.Fallback, Extraction: domain.PartialLead{}}
	}
	start := time.Now()
	reply, err := c.agent.Reply(ctx, req)
	metrics.AgentLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AgentFailures.Inc()
		c.logger.Warn("agent reply failed, using fallback", "session_id", c.id, "error", err)
		if strings.TrimSpace(reply.DisplayText) == "" {
			reply.DisplayText = req.Fallback
		}
	}
	return reply
}

// mergeLocked applies one turn's findings. Within the turn the agent's value
// beats the rule-based one; a field set in an earlier turn is never replaced.
func (c *Controller) mergeLocked(fromAgent, fromRules domain.PartialLead) {
	known := c.record.Known()
	agentPart := fromAgent.Without(known)
	merged := agentPart.Merge(fromRules.Without(known))
	filled := c.record.Fill(merged)
	if len(filled) == 0 {
		return
	}
	names := make([]string, 0, len(filled))
	for _, f := range filled {
		source := "rules"
		if agentPart[f] != "" {
			source = "agent"
		}
		metrics.FieldsCaptured.WithLabelValues(string(f), source).Inc()
		names = append(names, string(f))
	}
	c.logger.Info("lead fields captured", "session_id", c.id, "fields", strings.Join(names, ","), "complete", c.record.Complete())
}

func (c *Controller) appendTurnLocked(speaker domain.Speaker, text string) {
	turn := domain.Turn{Speaker: speaker, Text: text, At: time.Now()}
	c.transcript = append(c.transcript, turn)
	seq := len(c.transcript)
	c.recordLocked("save_turn", func(ctx context.Context) error {
		return c.recorder.SaveTurn(ctx, c.id, seq, turn)
	})
	c.publishLocked(Event{Type: EventTurn, Turn: &turn})
}

func (c *Controller) armIdleLocked() {
	c.armedGen = c.timer.Reset()
	c.idleDeadline = time.Now().Add(c.cfg.Idle.Total())
	c.countdown = 0
	c.phase = domain.PhaseCollecting
}

func (c *Controller) cancelIdleLocked() {
	if c.armedGen == 0 {
		return
	}
	c.timer.Stop()
	c.armedGen = 0
	c.idleDeadline = time.Time{}
	c.countdown = 0
	if c.phase == domain.PhaseAwaitingIdleConfirm {
		c.phase = domain.PhaseCollecting
	}
}

func (c *Controller) onIdleTick(gen uint64, remaining int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.armedGen || c.phase == domain.PhaseComplete {
		return
	}
	c.phase = domain.PhaseAwaitingIdleConfirm
	c.countdown = remaining
	c.publishLocked(Event{Type: EventCountdown, Remaining: remaining})
}

func (c *Controller) onIdleExpire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.armedGen || c.phase == domain.PhaseComplete {
		return
	}
	c.finalizeLocked(domain.CloseReasonIdleTimeout)
}

// finalizeLocked is the only path into the complete phase, so the
// notification goes out exactly once.
func (c *Controller) finalizeLocked(reason domain.CloseReason) {
	if c.phase == domain.PhaseComplete {
		return
	}
	c.cancelIdleLocked()
	c.phase = domain.PhaseComplete
	c.closeReason = reason
	c.lastActivity = time.Now()
	c.appendTurnLocked(domain.SpeakerAgent, c.themeCopy.Summary(c.record, reason))

	note := domain.NewLeadNotification(c.id, c.theme, c.record, reason, c.lastActivity)
	c.recordLocked("save_lead", func(ctx context.Context) error {
		return c.recorder.SaveLead(ctx, note)
	})
	c.closeRecorderLocked()

	metrics.SessionsFinalized.WithLabelValues(string(reason)).Inc()
	c.logger.Info("session finalized", "session_id", c.id, "reason", reason, "theme", c.theme)

	snap := c.snapshotLocked()
	c.publishLocked(Event{Type: EventComplete, Snapshot: &snap})
	c.closeSubscribersLocked()
	close(c.done)

	go c.dispatch(note)
}

func (c *Controller) dispatch(note domain.LeadNotification) {
	if c.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.NotifyTimeout)
	defer cancel()
	if err := c.notifier.Notify(ctx, note); err != nil {
		c.logger.Error("lead notification failed", "session_id", c.id, "error", err)
		return
	}
	c.logger.Info("lead notification sent", "session_id", c.id)
}

func (c *Controller) recordLocked(name string, fn func(ctx context.Context) error) {
	if c.recordQ == nil {
		return
	}
	select {
	case c.recordQ <- recordOp{name: name, fn: fn}:
	default:
		c.logger.Warn("persist queue full, dropping write", "session_id", c.id, "op", name)
	}
}

func (c *Controller) closeRecorderLocked() {
	if c.recordQ == nil {
		return
	}
	close(c.recordQ)
	c.recordQ = nil
}

func (c *Controller) runRecorder(q <-chan recordOp) {
	for op := range q {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RecordTimeout)
		if err := op.fn(ctx); err != nil {
			c.logger.Warn("persist failed", "session_id", c.id, "op", op.name, "error", err)
		}
		cancel()
	}
}

func (c *Controller) snapshotLocked() domain.SessionSnapshot {
	snap := domain.SessionSnapshot{
		SessionID:    c.id,
		Theme:        c.theme,
		Phase:        c.phase,
		Record:       c.record,
		Missing:      c.record.Missing(),
		Transcript:   append([]domain.Turn(nil), c.transcript...),
		AgentPending: c.pending,
		Countdown:    c.countdown,
		CloseReason:  c.closeReason,
	}
	if c.armedGen != 0 && !c.idleDeadline.IsZero() {
		deadline := c.idleDeadline
		snap.IdleDeadline = &deadline
	}
	return snap
}

func (c *Controller) idleSince(now time.Time) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending {
		return 0, false
	}
	return now.Sub(c.lastActivity), true
}
