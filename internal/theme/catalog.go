// Package theme loads the per-theme copy used by the chat: greeting, fallback
// and closing summary text, and the tone hint handed to the agent.
package theme

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"leadchat/internal/domain"
)

//go:embed default.yaml
var defaultCatalog []byte

type Labels struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Phone string `yaml:"phone"`
	Need  string `yaml:"need"`
}

func (l Labels) For(f domain.Field) string {
	switch f {
	case domain.FieldName:
		return l.Name
	case domain.FieldEmail:
		return l.Email
	case domain.FieldPhone:
		return l.Phone
	case domain.FieldNeed:
		return l.Need
	}
	return string(f)
}

type Copy struct {
	Greeting           string `yaml:"greeting"`
	Persona            string `yaml:"persona"`
	Fallback           string `yaml:"fallback"`
	Acknowledge        string `yaml:"acknowledge"`
	Busy               string `yaml:"busy"`
	Closed             string `yaml:"closed"`
	SummaryUserEnded   string `yaml:"summary_user_ended"`
	SummaryIdleTimeout string `yaml:"summary_idle_timeout"`
	SummaryFooter      string `yaml:"summary_footer"`
	Labels             Labels `yaml:"labels"`
}

type Catalog map[domain.Theme]Copy

// Default returns the embedded catalog.
func Default() Catalog {
	cat, err := LoadFromBytes(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded theme catalog is invalid: %v", err))
	}
	return cat
}

// Load reads a YAML override from path and layers it over the embedded catalog.
// An empty path returns the embedded catalog.
func Load(path string) (Catalog, error) {
	base := Default()
	if strings.TrimSpace(path) == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read theme file %s: %w", path, err)
	}
	override, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse theme file %s: %w", path, err)
	}
	for th, c := range override {
		base[th] = merge(base[th], c)
	}
	return base, base.validate()
}

func LoadFromBytes(data []byte) (Catalog, error) {
	cat, err := parse(data)
	if err != nil {
		return nil, err
	}
	return cat, cat.validate()
}

func parse(data []byte) (Catalog, error) {
	var raw map[string]Copy
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	cat := make(Catalog, len(raw))
	for k, c := range raw {
		th, ok := domain.ParseTheme(k)
		if !ok {
			return nil, fmt.Errorf("unknown theme %q", k)
		}
		cat[th] = c
	}
	return cat, nil
}

func (c Catalog) validate() error {
	for _, th := range []domain.Theme{domain.ThemeLogic, domain.ThemeSatisfaction} {
		cp, ok := c[th]
		if !ok {
			return fmt.Errorf("theme %s is missing", th)
		}
		if strings.TrimSpace(cp.Greeting) == "" || strings.TrimSpace(cp.Fallback) == "" {
			return fmt.Errorf("theme %s: greeting and fallback are required", th)
		}
	}
	return nil
}

// For never returns an empty Copy for a known theme.
func (c Catalog) For(th domain.Theme) Copy {
	if cp, ok := c[th]; ok {
		return cp
	}
	return c[domain.ThemeLogic]
}

func merge(base, over Copy) Copy {
	pick := func(a, b string) string {
		if strings.TrimSpace(b) != "" {
			return b
		}
		return a
	}
	return Copy{
		Greeting:           pick(base.Greeting, over.Greeting),
		Persona:            pick(base.Persona, over.Persona),
		Fallback:           pick(base.Fallback, over.Fallback),
		Acknowledge:        pick(base.Acknowledge, over.Acknowledge),
		Busy:               pick(base.Busy, over.Busy),
		Closed:             pick(base.Closed, over.Closed),
		SummaryUserEnded:   pick(base.SummaryUserEnded, over.SummaryUserEnded),
		SummaryIdleTimeout: pick(base.SummaryIdleTimeout, over.SummaryIdleTimeout),
		SummaryFooter:      pick(base.SummaryFooter, over.SummaryFooter),
		Labels: Labels{
			Name:  pick(base.Labels.Name, over.Labels.Name),
			Email: pick(base.Labels.Email, over.Labels.Email),
			Phone: pick(base.Labels.Phone, over.Labels.Phone),
			Need:  pick(base.Labels.Need, over.Labels.Need),
		},
	}
}

// Summary renders the closing message listing all collected fields.
func (c Copy) Summary(rec domain.LeadRecord, reason domain.CloseReason) string {
	header := c.SummaryUserEnded
	if reason == domain.CloseReasonIdleTimeout {
		header = c.SummaryIdleTimeout
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(header))
	sb.WriteString("\n")
	for _, f := range domain.RequiredFields {
		sb.WriteString(fmt.Sprintf("• %s: %s\n", c.Labels.For(f), rec.Get(f)))
	}
	if footer := strings.TrimSpace(c.SummaryFooter); footer != "" {
		sb.WriteString(footer)
	}
	return strings.TrimSpace(sb.String())
}
