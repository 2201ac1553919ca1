package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"leadchat/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

type MailConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	AdminEmail  string
	Timeout     time.Duration
}

type envelope struct {
	fromName string
	to       string
	replyTo  string
	subject  string
	html     string
}

// MailSink sends the admin lead mail and the visitor thank-you mail over SMTP.
type MailSink struct {
	cfg  MailConfig
	tmpl *template.Template
	send func(ctx context.Context, envs ...envelope) error
	now  func() time.Time
}

func NewMailSink(cfg MailConfig) (*MailSink, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	s := &MailSink{cfg: cfg, tmpl: tmpl, now: time.Now}
	s.send = func(ctx context.Context, envs ...envelope) error {
		msgs := make([]*mail.Msg, 0, len(envs))
		for _, env := range envs {
			m, err := s.buildMsg(env)
			if err != nil {
				return err
			}
			msgs = append(msgs, m)
		}
		return client.DialAndSendWithContext(ctx, msgs...)
	}
	return s, nil
}

func (s *MailSink) Name() string {
	return "mail"
}

func (s *MailSink) Notify(ctx context.Context, n domain.LeadNotification) error {
	view := leadView{
		Lead:          n,
		ModeLabel:     modeLabel(n.Theme),
		Accent:        accentFor(n.Theme),
		Reason:        reasonLabel(n.Reason),
		SubmittedAt:   formatWIB(n.SubmittedAt),
		SignatureName: "Barod Yoedistira",
	}

	adminHTML, err := s.render("admin_lead", view)
	if err != nil {
		return err
	}
	envs := []envelope{{
		fromName: s.fromName("BAROD.Y Website"),
		to:       s.cfg.AdminEmail,
		replyTo:  n.Email,
		subject:  "🤖 New Chat Lead: " + n.Name,
		html:     adminHTML,
	}}

	if strings.TrimSpace(n.Email) != "" {
		clientHTML, err := s.render("client_thanks", view)
		if err != nil {
			return err
		}
		envs = append(envs, envelope{
			fromName: view.SignatureName,
			to:       n.Email,
			subject:  "🙏 Terima Kasih Telah Menghubungi BAROD.Y!",
			html:     clientHTML,
		})
	}

	if err := s.send(ctx, envs...); err != nil {
		return fmt.Errorf("send lead mail: %w", err)
	}
	return nil
}

func (s *MailSink) SendStrategyCall(ctx context.Context, req domain.StrategyCallRequest) error {
	at := req.SubmittedAt
	if at.IsZero() {
		at = s.now()
	}
	html, err := s.render("strategy_call", strategyView{
		Phone:         req.FormattedPhone(),
		PreferredTime: req.PreferredTime(),
		SubmittedAt:   formatWIB(at),
	})
	if err != nil {
		return err
	}
	if err := s.send(ctx, envelope{
		fromName: s.fromName("BAROD.Y Website"),
		to:       s.cfg.AdminEmail,
		subject:  "🚀 New Strategy Call Request",
		html:     html,
	}); err != nil {
		return fmt.Errorf("send strategy call mail: %w", err)
	}
	return nil
}

func (s *MailSink) fromName(fallback string) string {
	if strings.TrimSpace(s.cfg.FromName) != "" {
		return s.cfg.FromName
	}
	return fallback
}

func (s *MailSink) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (s *MailSink) buildMsg(env envelope) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(env.fromName, s.cfg.FromAddress); err != nil {
		return nil, fmt.Errorf("mail from: %w", err)
	}
	if err := m.To(env.to); err != nil {
		return nil, fmt.Errorf("mail to %q: %w", env.to, err)
	}
	if env.replyTo != "" {
		if err := m.ReplyTo(env.replyTo); err != nil {
			return nil, fmt.Errorf("mail reply-to %q: %w", env.replyTo, err)
		}
	}
	m.Subject(env.subject)
	m.SetBodyString(mail.TypeTextHTML, env.html)
	return m, nil
}

type accent struct {
	Background template.CSS
	Title      template.CSS
	Subtitle   template.CSS
}

type leadView struct {
	Lead          domain.LeadNotification
	ModeLabel     string
	Accent        accent
	Reason        string
	SubmittedAt   string
	SignatureName string
}

type strategyView struct {
	Phone         string
	PreferredTime string
	SubmittedAt   string
}

func accentFor(th domain.Theme) accent {
	if th == domain.ThemeSatisfaction {
		return accent{Background: "linear-gradient(135deg, #fdf2f8 0%, #fce7f3 100%)", Title: "#f43f5e", Subtitle: "#be123c"}
	}
	return accent{Background: "linear-gradient(135deg, #0f172a 0%, #1e293b 100%)", Title: "#22d3ee", Subtitle: "#94a3b8"}
}

func modeLabel(th domain.Theme) string {
	if th == domain.ThemeSatisfaction {
		return "Satisfaction Mode"
	}
	return "Logic Mode"
}

func reasonLabel(r domain.CloseReason) string {
	switch r {
	case domain.CloseReasonUserEnded:
		return "visitor"
	case domain.CloseReasonIdleTimeout:
		return "idle timeout"
	}
	return ""
}

var (
	wib        = time.FixedZone("WIB", 7*60*60)
	idWeekdays = [...]string{"Minggu", "Senin", "Selasa", "Rabu", "Kamis", "Jumat", "Sabtu"}
	idMonths   = [...]string{"Januari", "Februari", "Maret", "April", "Mei", "Juni", "Juli", "Agustus", "September", "Oktober", "November", "Desember"}
)

// formatWIB renders t in Jakarta time with Indonesian day and month names.
func formatWIB(t time.Time) string {
	t = t.In(wib)
	return fmt.Sprintf("%s, %d %s %d %02d.%02d", idWeekdays[t.Weekday()], t.Day(), idMonths[t.Month()-1], t.Year(), t.Hour(), t.Minute())
}
