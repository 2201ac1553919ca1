package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"leadchat/internal/domain"
	"leadchat/internal/theme"
)

type stubProvider struct {
	content string
	err     error
	last    domain.LLMRequest
}

func (s *stubProvider) Complete(_ context.Context, req domain.LLMRequest) (domain.LLMResponse, error) {
	s.last = req
	if s.err != nil {
		return domain.LLMResponse{}, s.err
	}
	return domain.LLMResponse{Content: s.content}, nil
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantDisplay string
		wantData    domain.PartialLead
		wantOK      bool
	}{
		{
			name:        "valid block",
			raw:         "Salam kenal Rudi! Boleh minta emailnya?\n[LEAD_DATA]{\"name\":\"Rudi\",\"email\":\"\",\"phone\":null,\"need\":\"\"}[/LEAD_DATA]",
			wantDisplay: "Salam kenal Rudi! Boleh minta emailnya?",
			wantData:    domain.PartialLead{domain.FieldName: "Rudi"},
			wantOK:      true,
		},
		{
			name:        "indonesian keys and fenced json",
			raw:         "Siap.\n[lead_data]\n```json\n{\"nama\":\"Siti\",\"telepon\":\"0812-3456-7890\",\"kebutuhan\":\"toko online\"}\n```\n[/lead_data]",
			wantDisplay: "Siap.",
			wantData:    domain.PartialLead{domain.FieldName: "Siti", domain.FieldPhone: "081234567890", domain.FieldNeed: "toko online"},
			wantOK:      true,
		},
		{
			name:        "canonical key wins over alias",
			raw:         "Oke [LEAD_DATA]{\"nama\":\"Budi\",\"name\":\"Rudi\",\"whatsapp\":\"0811111111\",\"phone\":\"0812-2222-2222\"}[/LEAD_DATA]",
			wantDisplay: "Oke",
			wantData:    domain.PartialLead{domain.FieldName: "Rudi", domain.FieldPhone: "081222222222"},
			wantOK:      true,
		},
		{
			name:        "alias used when canonical key is a placeholder",
			raw:         "Oke [LEAD_DATA]{\"name\":\"-\",\"nama\":\"Budi\"}[/LEAD_DATA]",
			wantDisplay: "Oke",
			wantData:    domain.PartialLead{domain.FieldName: "Budi"},
			wantOK:      true,
		},
		{
			name:        "missing block",
			raw:         "  Halo, ada yang bisa dibantu?  ",
			wantDisplay: "Halo, ada yang bisa dibantu?",
			wantData:    domain.PartialLead{},
		},
		{
			name:        "malformed block keeps raw text",
			raw:         "Oke [LEAD_DATA]{name: Rudi[/LEAD_DATA]",
			wantDisplay: "Oke [LEAD_DATA]{name: Rudi[/LEAD_DATA]",
			wantData:    domain.PartialLead{},
		},
		{
			name:        "placeholder values ignored",
			raw:         "Baik [LEAD_DATA]{\"name\":\"-\",\"email\":\"unknown\",\"need\":\"null\"}[/LEAD_DATA]",
			wantDisplay: "Baik",
			wantData:    domain.PartialLead{},
			wantOK:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			display, data, ok := ParseReply(tt.raw)
			if display != tt.wantDisplay {
				t.Fatalf("display=%q, want %q", display, tt.wantDisplay)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok=%v, want %v", ok, tt.wantOK)
			}
			if len(data) != len(tt.wantData) {
				t.Fatalf("data=%v, want %v", data, tt.wantData)
			}
			for f, v := range tt.wantData {
				if data[f] != v {
					t.Fatalf("data[%s]=%q, want %q", f, data[f], v)
				}
			}
		})
	}
}

func TestClientReplyFailureReturnsFallback(t *testing.T) {
	p := &stubProvider{err: errors.New("dial tcp: connection refused")}
	c := New(p, theme.Default(), Config{Model: "m"})

	reply, err := c.Reply(context.Background(), Request{
		Theme:      domain.ThemeLogic,
		Transcript: []domain.Turn{{Speaker: domain.SpeakerUser, Text: "halo"}},
		Fallback:   "fallback text",
	})
	if err == nil {
		t.Fatalf("expected error to be surfaced")
	}
	if reply.DisplayText != "fallback text" {
		t.Fatalf("display=%q, want fallback", reply.DisplayText)
	}
	if len(reply.Extraction) != 0 {
		t.Fatalf("extraction=%v, want empty", reply.Extraction)
	}
}

func TestClientReplyBuildsRequest(t *testing.T) {
	p := &stubProvider{content: "Halo Rudi! [LEAD_DATA]{\"name\":\"Rudi\"}[/LEAD_DATA]"}
	c := New(p, theme.Default(), Config{Model: "gpt-test", HistoryLimit: 2})

	reply, err := c.Reply(context.Background(), Request{
		Theme: domain.ThemeSatisfaction,
		Transcript: []domain.Turn{
			{Speaker: domain.SpeakerAgent, Text: "greeting"},
			{Speaker: domain.SpeakerUser, Text: "hai"},
			{Speaker: domain.SpeakerAgent, Text: "siapa namamu?"},
			{Speaker: domain.SpeakerUser, Text: "nama saya Rudi"},
		},
		Record: domain.LeadRecord{Email: "rudi@test.com"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.DisplayText != "Halo Rudi!" || reply.Extraction[domain.FieldName] != "Rudi" || !reply.Structured {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if p.last.Model != "gpt-test" {
		t.Fatalf("model=%s, want gpt-test", p.last.Model)
	}
	if len(p.last.Messages) != 2 || p.last.Messages[0].Role != "assistant" || p.last.Messages[1].Role != "user" {
		t.Fatalf("history not trimmed to limit: %+v", p.last.Messages)
	}
	if !strings.Contains(p.last.System, "rudi@test.com") {
		t.Fatalf("system prompt should list known fields")
	}
	if !strings.Contains(p.last.System, BlockOpen) {
		t.Fatalf("system prompt should describe the data block")
	}
}
