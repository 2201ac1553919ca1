// Package extract holds the rule-based layer that reads lead fields and
// closing intent out of free-form Indonesian chat messages. It is a best-effort
// fallback behind the agent's structured output, not a source of truth.
package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"leadchat/internal/domain"
)

const (
	minNeedLen          = 5
	needFallbackMinLen  = 40
	needResidualMinLen  = 20
	nameCandidateMaxLen = 30
)

var (
	emailRE = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRE = regexp.MustCompile(`(?:^|[^\d+])((?:\+62|62|0)(?:[\s\-]?\d){8,13})(?:\D|$)`)

	namePhraseRE = regexp.MustCompile(`(?i)\bnama(?:\s+lengkap)?(?:nya|ku|\s+(?:saya|aku|gue|gw))?\b\s*(?:adalah|ialah)?\s*:?\s*(\p{L}[\p{L} ]{1,29})`)
	nameSelfRE   = regexp.MustCompile(`(?i)^(?:saya|aku|nama)\s+(\p{L}+(?:\s+\p{L}+)?)[\s.!,]*$`)
	nameBareRE   = regexp.MustCompile(`^(\p{L}+(?:\s+\p{L}+)?)[\s.!,]*$`)
)

// needPatterns are tried in order; the first capture of at least minNeedLen wins.
var needPatterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{kind: "intent", re: regexp.MustCompile(`(?i)\b(?:butuh|butuhkan|membutuhkan|perlu|memerlukan|ingin|mau|pengen|pengin)\s+([^\n]+)`)},
	{kind: "problem", re: regexp.MustCompile(`(?i)\b(?:kebutuhan|masalah|permasalahan|kendala)(?:\s+(?:saya|kami|aku|ku))?\s*(?:adalah|yaitu|ialah|:)\s*([^\n]+)`)},
	{kind: "build", re: regexp.MustCompile(`(?i)\b((?:buat|bikin|membuat|develop|bangun|membangun|rancang)\s+[^\n]+)`)},
	{kind: "domain", re: regexp.MustCompile(`(?i)\b((?:website|web|aplikasi|app|sistem|dashboard|landing page)\b[^\n]*)`)},
	{kind: "request", re: regexp.MustCompile(`(?i)\b(?:cari|mencari|minta|tolong|bantu|bantuan)\s+([^\n]+)`)},
	{kind: "category", re: regexp.MustCompile(`(?i)\b(company profile|toko online|online shop|e-?commerce|sistem informasi|point of sale|portfolio|aplikasi kasir)\b`)},
}

var needKeywords = []string{
	"website", "web", "aplikasi", "app", "sistem", "toko", "bisnis", "usaha",
	"online", "digital", "software", "platform", "proyek", "project", "desain",
	"design", "marketing", "seo", "server", "database", "integrasi", "otomasi",
	"automation", "chatbot", "dashboard",
}

// nameStopWords are words that show up as one- or two-word replies but are not names.
var nameStopWords = map[string]struct{}{
	"halo": {}, "hallo": {}, "hai": {}, "hi": {}, "hello": {}, "pagi": {}, "siang": {}, "sore": {}, "malam": {},
	"ok": {}, "oke": {}, "okay": {}, "ya": {}, "iya": {}, "yes": {}, "no": {}, "baik": {}, "siap": {}, "boleh": {},
	"tidak": {}, "ga": {}, "gak": {}, "nggak": {}, "belum": {}, "sudah": {}, "udah": {}, "dah": {},
	"terima": {}, "kasih": {}, "makasih": {}, "thanks": {}, "cukup": {}, "selesai": {}, "bye": {},
	"butuh": {}, "perlu": {}, "ingin": {}, "mau": {}, "tanya": {}, "info": {}, "website": {}, "aplikasi": {},
	"sistem": {}, "toko": {}, "bisnis": {}, "nomor": {}, "hp": {}, "wa": {}, "email": {}, "telepon": {},
}

// Extract returns the fields it can infer from message. Fields in known are
// skipped; callers still own the no-overwrite rule.
func Extract(message string, known domain.FieldSet) domain.PartialLead {
	msg := strings.TrimSpace(message)
	out := domain.PartialLead{}
	if msg == "" {
		return out
	}

	if !known.Has(domain.FieldEmail) {
		if v := FindEmail(msg); v != "" {
			out[domain.FieldEmail] = v
		}
	}
	if !known.Has(domain.FieldPhone) {
		if v := FindPhone(msg); v != "" {
			out[domain.FieldPhone] = v
		}
	}
	if !known.Has(domain.FieldName) {
		if v := findName(msg); v != "" {
			out[domain.FieldName] = v
		}
	}
	if !known.Has(domain.FieldNeed) {
		if v := findNeed(msg); v != "" {
			out[domain.FieldNeed] = v
		}
	}
	return out
}

func FindEmail(msg string) string {
	return emailRE.FindString(msg)
}

// FindPhone looks for an Indonesian mobile number, ignoring digits that are part of an email.
func FindPhone(msg string) string {
	m := phoneRE.FindStringSubmatch(emailRE.ReplaceAllString(msg, " "))
	if len(m) < 2 {
		return ""
	}
	return NormalizePhone(m[1])
}

// NormalizePhone keeps digits and a leading plus sign.
func NormalizePhone(v string) string {
	v = strings.TrimSpace(v)
	var sb strings.Builder
	for i, r := range v {
		if r == '+' && i == 0 {
			sb.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func findName(msg string) string {
	if m := namePhraseRE.FindStringSubmatch(msg); len(m) == 2 {
		if name := cleanName(m[1]); name != "" && !hasContactKeyword(name) {
			return name
		}
	}
	for _, re := range []*regexp.Regexp{nameSelfRE, nameBareRE} {
		m := re.FindStringSubmatch(msg)
		if len(m) != 2 {
			continue
		}
		name := cleanName(m[1])
		if name == "" || hasContactKeyword(name) || hasStopWord(name) || IsEnd(name) {
			continue
		}
		return name
	}
	return ""
}

func cleanName(v string) string {
	name := strings.Join(strings.Fields(v), " ")
	if utf8.RuneCountInString(name) > nameCandidateMaxLen {
		return ""
	}
	return name
}

func hasContactKeyword(v string) bool {
	lower := strings.ToLower(v)
	return strings.Contains(lower, "email") || strings.Contains(lower, "telepon")
}

func hasStopWord(v string) bool {
	for _, w := range strings.Fields(strings.ToLower(v)) {
		if _, ok := nameStopWords[w]; ok {
			return true
		}
	}
	return false
}

func findNeed(msg string) string {
	for _, p := range needPatterns {
		m := p.re.FindStringSubmatch(msg)
		if len(m) < 2 {
			continue
		}
		need := trimNeed(m[1])
		if utf8.RuneCountInString(need) >= minNeedLen {
			return need
		}
	}

	if utf8.RuneCountInString(msg) <= needFallbackMinLen {
		return ""
	}
	residual := phoneRE.ReplaceAllString(emailRE.ReplaceAllString(msg, " "), " ")
	if utf8.RuneCountInString(strings.TrimSpace(residual)) <= needResidualMinLen {
		return ""
	}
	if !hasNeedKeyword(msg) {
		return ""
	}
	return strings.TrimSpace(msg)
}

func trimNeed(v string) string {
	return strings.TrimFunc(v, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(".,!?;:", r)
	})
}

func hasNeedKeyword(msg string) bool {
	words := strings.FieldsFunc(strings.ToLower(msg), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		for _, k := range needKeywords {
			if w == k {
				return true
			}
		}
	}
	return false
}
