package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"leadchat/internal/domain"
)

type HubConfig struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// LeadAcker records that a downstream consumer confirmed a lead.
type LeadAcker interface {
	MarkLeadAcked(ctx context.Context, sessionID string, at time.Time) error
}

type Hub struct {
	cfg    HubConfig
	client paho.Client
	acker  LeadAcker
	logger *slog.Logger
}

func NewHub(cfg HubConfig, acker LeadAcker, logger *slog.Logger) *Hub {
	return &Hub{
		cfg:    cfg,
		acker:  acker,
		logger: logger,
	}
}

func (h *Hub) Start(ctx context.Context) error {
	statusTopic := TopicServerStatus(h.cfg.TopicPrefix, h.cfg.ClientID)
	opts := paho.NewClientOptions().
		AddBroker(h.cfg.BrokerURL).
		SetClientID(h.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetWill(statusTopic, "offline", 1, true)

	if h.cfg.Username != "" {
		opts.SetUsername(h.cfg.Username)
		opts.SetPassword(h.cfg.Password)
	}

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		h.logger.Error("mqtt connection lost", "error", err)
	})

	h.client = paho.NewClient(opts)
	if token := h.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	if token := h.client.Subscribe(TopicLeadAcks(h.cfg.TopicPrefix), 1, h.handleLeadAck); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	if token := h.client.Publish(statusTopic, 1, true, "online"); token.Wait() && token.Error() != nil {
		h.logger.Warn("publish server status failed", "error", token.Error())
	}

	go func() {
		<-ctx.Done()
		if token := h.client.Publish(statusTopic, 1, true, "offline"); token.WaitTimeout(time.Second) && token.Error() != nil {
			h.logger.Warn("publish server status failed", "error", token.Error())
		}
		h.client.Disconnect(100)
	}()

	return nil
}

func (h *Hub) PublishLead(ctx context.Context, n domain.LeadNotification) error {
	return h.publishJSON(ctx, TopicLead(h.cfg.TopicPrefix, n.SessionID), n)
}

func (h *Hub) PublishStrategyCall(ctx context.Context, req domain.StrategyCallRequest) error {
	return h.publishJSON(ctx, TopicStrategyCall(h.cfg.TopicPrefix, req.ID), req)
}

func (h *Hub) publishJSON(ctx context.Context, topic string, v any) error {
	if h.client == nil {
		return fmt.Errorf("mqtt hub not started")
	}
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	token := h.client.Publish(topic, 1, false, body)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	}
}

func (h *Hub) handleLeadAck(_ paho.Client, msg paho.Message) {
	sessionID, err := ParseAckSessionID(msg.Topic(), h.cfg.TopicPrefix)
	if err != nil {
		h.logger.Warn("skip invalid ack topic", "topic", msg.Topic(), "error", err)
		return
	}
	h.logger.Info("lead acknowledged", "session_id", sessionID)
	if h.acker == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.acker.MarkLeadAcked(ctx, sessionID, time.Now().UTC()); err != nil {
		h.logger.Warn("mark lead acked failed", "session_id", sessionID, "error", err)
	}
}
