// Package agent talks to the completion service on behalf of a chat session
// and turns its free text into a display reply plus structured lead fields.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadchat/internal/domain"
	"leadchat/internal/llm"
	"leadchat/internal/theme"
)

type Request struct {
	SessionID  string
	Theme      domain.Theme
	Transcript []domain.Turn
	Record     domain.LeadRecord
	// Fallback is shown to the user when the completion call fails.
	Fallback string
}

type Reply struct {
	DisplayText string
	Extraction  domain.PartialLead
	Structured  bool
}

type Config struct {
	Model        string
	HistoryLimit int
	Timeout      time.Duration
	MaxTokens    int
	Temperature  float64
}

type Client struct {
	provider     llm.Provider
	catalog      theme.Catalog
	model        string
	historyLimit int
	timeout      time.Duration
	maxTokens    int
	temperature  float64
}

func New(provider llm.Provider, catalog theme.Catalog, cfg Config) *Client {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 600
	}
	return &Client{
		provider:     provider,
		catalog:      catalog,
		model:        cfg.Model,
		historyLimit: cfg.HistoryLimit,
		timeout:      cfg.Timeout,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
	}
}

// Reply never returns an empty Reply: on failure it carries req.Fallback and
// an empty extraction alongside the error so the caller can log it and carry on.
func (c *Client) Reply(ctx context.Context, req Request) (Reply, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.provider.Complete(callCtx, domain.LLMRequest{
		Model:       c.model,
		System:      buildSystemPrompt(c.catalog.For(req.Theme), req.Record),
		Messages:    toMessages(req.Transcript, c.historyLimit),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return Reply{DisplayText: req.Fallback, Extraction: domain.PartialLead{}}, fmt.Errorf("agent completion: %w", err)
	}

	display, data, ok := ParseReply(resp.Content)
	return Reply{DisplayText: display, Extraction: data, Structured: ok}, nil
}

func toMessages(turns []domain.Turn, limit int) []domain.Message {
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]domain.Message, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Speaker == domain.SpeakerAgent {
			role = "assistant"
		}
		out = append(out, domain.Message{Role: role, Content: t.Text})
	}
	return out
}

func buildSystemPrompt(cp theme.Copy, rec domain.LeadRecord) string {
	var sb strings.Builder
	sb.WriteString("Kamu adalah asisten virtual BAROD.Y, seorang Hybrid Solution Architect. Tugasmu mengobrol dengan calon klien dan mengumpulkan empat data: nama lengkap, email, nomor telepon/WhatsApp, dan kebutuhan proyek.\n\n")
	if persona := strings.TrimSpace(cp.Persona); persona != "" {
		sb.WriteString("Gaya bahasa: ")
		sb.WriteString(persona)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Data yang sudah tercatat:\n")
	known := rec.Known()
	if len(known) == 0 {
		sb.WriteString("- (belum ada)\n")
	}
	for _, f := range domain.RequiredFields {
		if known.Has(f) {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", cp.Labels.For(f), rec.Get(f)))
		}
	}
	if missing := rec.Missing(); len(missing) > 0 {
		labels := make([]string, 0, len(missing))
		for _, f := range missing {
			labels = append(labels, cp.Labels.For(f))
		}
		sb.WriteString("Data yang masih kurang: ")
		sb.WriteString(strings.Join(labels, ", "))
		sb.WriteString("\n")
	} else {
		sb.WriteString("Semua data sudah lengkap. Tanyakan apakah ada hal lain, dan persilakan user mengakhiri percakapan.\n")
	}

	sb.WriteString("\nAturan:\n")
	sb.WriteString("1) Tanyakan satu data yang kurang dalam satu waktu, jangan menanyakan ulang data yang sudah tercatat.\n")
	sb.WriteString("2) Jawab singkat, maksimal tiga kalimat, dalam Bahasa Indonesia.\n")
	sb.WriteString("3) Jangan mengarang data yang tidak disebutkan user.\n")
	sb.WriteString("4) Di akhir setiap balasan, tambahkan blok ")
	sb.WriteString(BlockOpen)
	sb.WriteString(`{"name":"","email":"","phone":"","need":""}`)
	sb.WriteString(BlockClose)
	sb.WriteString(" berisi data yang kamu temukan dari pesan terakhir user. Kosongkan nilai yang tidak diketahui. Blok ini tidak ditampilkan ke user.\n")
	return sb.String()
}
