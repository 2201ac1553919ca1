package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"leadchat/internal/domain"
	"leadchat/internal/extract"
)

const (
	BlockOpen  = "[LEAD_DATA]"
	BlockClose = "[/LEAD_DATA]"
)

var blockRE = regexp.MustCompile(`(?is)\[LEAD_DATA\](.*?)\[/LEAD_DATA\]`)

// blockKeys is visited in order, so canonical keys win over their aliases.
var blockKeys = []struct {
	key   string
	field domain.Field
}{
	{key: "name", field: domain.FieldName},
	{key: "email", field: domain.FieldEmail},
	{key: "phone", field: domain.FieldPhone},
	{key: "need", field: domain.FieldNeed},
	{key: "nama", field: domain.FieldName},
	{key: "phone_number", field: domain.FieldPhone},
	{key: "telepon", field: domain.FieldPhone},
	{key: "whatsapp", field: domain.FieldPhone},
	{key: "kebutuhan", field: domain.FieldNeed},
}

var emptyValues = map[string]struct{}{
	"": {}, "-": {}, "null": {}, "none": {}, "n/a": {}, "unknown": {}, "tidak diketahui": {}, "belum ada": {},
}

// ParseReply splits raw completion text into the user-facing text and the
// structured block. A missing or unparseable block yields an empty partial and
// the raw text unchanged; ok reports whether a block was parsed.
func ParseReply(raw string) (display string, data domain.PartialLead, ok bool) {
	data = domain.PartialLead{}
	loc := blockRE.FindStringSubmatchIndex(raw)
	if loc == nil {
		return strings.TrimSpace(raw), data, false
	}

	body := stripFence(raw[loc[2]:loc[3]])
	var payload map[string]any
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return strings.TrimSpace(raw), data, false
	}

	values := make(map[string]any, len(payload))
	for key, v := range payload {
		values[strings.ToLower(strings.TrimSpace(key))] = v
	}

	for _, bk := range blockKeys {
		field := bk.field
		if _, set := data[field]; set {
			continue
		}
		s, isString := values[bk.key].(string)
		if !isString {
			continue
		}
		s = strings.TrimSpace(s)
		if _, empty := emptyValues[strings.ToLower(s)]; empty {
			continue
		}
		if field == domain.FieldPhone {
			s = extract.NormalizePhone(s)
			if s == "" {
				continue
			}
		}
		data[field] = s
	}

	display = strings.TrimSpace(raw[:loc[0]] + raw[loc[1]:])
	return display, data, true
}

func stripFence(body string) string {
	body = strings.TrimSpace(body)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}
