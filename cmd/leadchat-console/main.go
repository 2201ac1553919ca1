package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"leadchat/internal/config"
	"leadchat/internal/domain"
	"leadchat/internal/mqtt"
)

type serverEvent struct {
	Type      string                  `json:"type"`
	Turn      *domain.Turn            `json:"turn,omitempty"`
	Remaining int                     `json:"remaining,omitempty"`
	Snapshot  *domain.SessionSnapshot `json:"snapshot,omitempty"`
	Message   string                  `json:"message,omitempty"`
}

type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) println(lines ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range lines {
		fmt.Fprintln(p.out, l)
	}
}

type apiClient struct {
	baseURL string
	http    *http.Client
	dialer  *websocket.Dialer
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	config.LoadEnvFiles(".env", ".env.local")
	cfg := config.LoadConsoleConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := &printer{out: os.Stdout}
	if cfg.MQTTBrokerURL != "" {
		client, err := startLeadWatcher(cfg, out, logger)
		if err != nil {
			logger.Error("start lead watcher failed", "error", err)
			os.Exit(1)
		}
		defer client.Disconnect(100)
	}

	api := &apiClient{
		baseURL: cfg.APIBaseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
		dialer:  websocket.DefaultDialer,
	}
	if err := run(ctx, api, cfg.Theme, os.Stdin, out); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("console stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, api *apiClient, theme string, in io.Reader, out *printer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		conn, err := api.open(ctx, theme)
		if err != nil {
			return err
		}
		events := make(chan serverEvent, 16)
		go readEvents(conn, events)
		out.println("(ketik /new untuk sesi baru, /quit untuk keluar)")

		next, err := chatLoop(ctx, conn, lines, events, out)
		_ = conn.Close()
		if err != nil || !next {
			return err
		}
	}
}

// chatLoop drives one session. It reports true when the user asked for a new
// session.
func chatLoop(ctx context.Context, conn *websocket.Conn, lines <-chan string, events <-chan serverEvent, out *printer) (bool, error) {
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				out.println("(koneksi ditutup)")
				continue
			}
			out.println(renderEvent(ev)...)
		case line, ok := <-lines:
			if !ok {
				return false, nil
			}
			switch text := strings.TrimSpace(line); text {
			case "":
			case "/quit":
				return false, nil
			case "/new":
				return true, nil
			default:
				if events == nil {
					out.println("! sesi sudah ditutup, ketik /new")
					continue
				}
				if err := conn.WriteJSON(map[string]string{"type": "message", "text": text}); err != nil {
					return false, fmt.Errorf("send message: %w", err)
				}
			}
		}
	}
}

func readEvents(conn *websocket.Conn, events chan<- serverEvent) {
	defer close(events)
	for {
		var ev serverEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}
		events <- ev
	}
}

func (a *apiClient) open(ctx context.Context, theme string) (*websocket.Conn, error) {
	body, _ := json.Marshal(domain.CreateSessionRequest{Theme: theme})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("create session: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var snap domain.SessionSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	target, err := wsURL(a.baseURL, snap.SessionID)
	if err != nil {
		return nil, err
	}
	conn, _, err := a.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial session websocket: %w", err)
	}
	return conn, nil
}

func wsURL(base, sessionID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported api scheme: %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/sessions/" + url.PathEscape(sessionID) + "/ws"
	return u.String(), nil
}

func renderEvent(ev serverEvent) []string {
	switch ev.Type {
	case "snapshot":
		if ev.Snapshot == nil {
			return nil
		}
		lines := []string{fmt.Sprintf("[sesi %s, tema %s]", ev.Snapshot.SessionID, ev.Snapshot.Theme)}
		for _, t := range ev.Snapshot.Transcript {
			lines = append(lines, renderTurn(t))
		}
		return lines
	case "turn":
		if ev.Turn == nil || ev.Turn.Speaker == domain.SpeakerUser {
			return nil
		}
		return []string{renderTurn(*ev.Turn)}
	case "countdown":
		return []string{fmt.Sprintf("[sesi berakhir dalam %d detik]", ev.Remaining)}
	case "complete":
		if ev.Snapshot == nil {
			return []string{"[selesai]"}
		}
		return []string{fmt.Sprintf("[selesai: %s]", ev.Snapshot.CloseReason)}
	case "error":
		return []string{"! " + ev.Message}
	default:
		return nil
	}
}

func renderTurn(t domain.Turn) string {
	if t.Speaker == domain.SpeakerUser {
		return "kamu> " + t.Text
	}
	return "agen> " + t.Text
}

// startLeadWatcher prints every lead the server publishes and acknowledges it.
func startLeadWatcher(cfg config.ConsoleConfig, out *printer, logger *slog.Logger) (paho.Client, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.MQTTBrokerURL).
		SetClientID(cfg.MQTTClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	if token := client.Subscribe(mqtt.TopicLeads(cfg.MQTTTopicPrefix), 1, func(c paho.Client, msg paho.Message) {
		lead, err := decodeLead(msg.Payload())
		if err != nil {
			logger.Error("invalid lead payload", "topic", msg.Topic(), "error", err)
			return
		}
		out.println(renderLead(lead)...)
		ackTopic := mqtt.TopicLeadAck(cfg.MQTTTopicPrefix, lead.SessionID)
		if tk := c.Publish(ackTopic, 1, false, []byte("ok")); tk.Wait() && tk.Error() != nil {
			logger.Error("publish lead ack failed", "session_id", lead.SessionID, "error", tk.Error())
		}
	}); token.Wait() && token.Error() != nil {
		client.Disconnect(100)
		return nil, token.Error()
	}
	return client, nil
}

func decodeLead(payload []byte) (domain.LeadNotification, error) {
	var n domain.LeadNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return domain.LeadNotification{}, err
	}
	if n.SessionID == "" {
		return domain.LeadNotification{}, errors.New("lead without session id")
	}
	return n, nil
}

func renderLead(n domain.LeadNotification) []string {
	return []string{
		fmt.Sprintf("== lead baru (%s, %s) ==", n.Theme, n.SessionID),
		"   nama     : " + n.Name,
		"   email    : " + n.Email,
		"   telepon  : " + n.Phone,
		"   kebutuhan: " + n.Need,
	}
}
