package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"leadchat/internal/domain"
)

func TestWSURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{base: "http://localhost:9020", want: "ws://localhost:9020/v1/sessions/s-1/ws"},
		{base: "https://chat.example.com/api/", want: "wss://chat.example.com/api/v1/sessions/s-1/ws"},
		{base: "ftp://x", wantErr: true},
	}
	for _, tt := range tests {
		got, err := wsURL(tt.base, "s-1")
		if tt.wantErr {
			if err == nil {
				t.Fatalf("wsURL(%q) expected error", tt.base)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("wsURL(%q)=%q,%v want %q", tt.base, got, err, tt.want)
		}
	}
}

func TestRenderEvent(t *testing.T) {
	snap := &domain.SessionSnapshot{
		SessionID:   "s-1",
		Theme:       domain.ThemeLogic,
		Transcript:  []domain.Turn{{Speaker: domain.SpeakerAgent, Text: "Halo!"}},
		CloseReason: domain.CloseReasonIdleTimeout,
	}

	if got := renderEvent(serverEvent{Type: "snapshot", Snapshot: snap}); len(got) != 2 || got[1] != "agen> Halo!" {
		t.Fatalf("snapshot render=%v", got)
	}
	if got := renderEvent(serverEvent{Type: "turn", Turn: &domain.Turn{Speaker: domain.SpeakerUser, Text: "hai"}}); got != nil {
		t.Fatalf("user turns are already on screen, got %v", got)
	}
	if got := renderEvent(serverEvent{Type: "countdown", Remaining: 3}); got[0] != "[sesi berakhir dalam 3 detik]" {
		t.Fatalf("countdown render=%v", got)
	}
	if got := renderEvent(serverEvent{Type: "complete", Snapshot: snap}); got[0] != "[selesai: idle_timeout]" {
		t.Fatalf("complete render=%v", got)
	}
}

func TestDecodeLead(t *testing.T) {
	n, err := decodeLead([]byte(`{"session_id":"s-1","name":"Rudi","theme":"logic"}`))
	if err != nil || n.Name != "Rudi" {
		t.Fatalf("decodeLead=%+v,%v", n, err)
	}
	if lines := renderLead(n); !strings.Contains(lines[1], "Rudi") {
		t.Fatalf("renderLead=%v", lines)
	}
	if _, err := decodeLead([]byte(`{"name":"Rudi"}`)); err == nil {
		t.Fatalf("expected error without session id")
	}
	if _, err := decodeLead([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

func TestAPIClientOpen(t *testing.T) {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		var in domain.CreateSessionRequest
		_ = json.NewDecoder(r.Body).Decode(&in)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(domain.SessionSnapshot{SessionID: "s-1", Theme: domain.Theme(in.Theme)})
	})
	mux.HandleFunc("/v1/sessions/s-1/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_ = ws.WriteJSON(serverEvent{Type: "countdown", Remaining: 2})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	api := &apiClient{baseURL: ts.URL, http: ts.Client(), dialer: websocket.DefaultDialer}
	conn, err := api.open(context.Background(), "satisfaction")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	var ev serverEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != "countdown" || ev.Remaining != 2 {
		t.Fatalf("event=%+v", ev)
	}
}
