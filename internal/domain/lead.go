package domain

import "strings"

type Field string

const (
	FieldName  Field = "name"
	FieldEmail Field = "email"
	FieldPhone Field = "phone"
	FieldNeed  Field = "need"
)

// RequiredFields is also the display order of the closing summary.
var RequiredFields = []Field{FieldName, FieldEmail, FieldPhone, FieldNeed}

type FieldSet map[Field]struct{}

func (s FieldSet) Has(f Field) bool {
	_, ok := s[f]
	return ok
}

// LeadRecord is the contact information assembled across one conversation.
type LeadRecord struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Need  string `json:"need"`
}

func (r LeadRecord) Get(f Field) string {
	switch f {
	case FieldName:
		return r.Name
	case FieldEmail:
		return r.Email
	case FieldPhone:
		return r.Phone
	case FieldNeed:
		return r.Need
	}
	return ""
}

func (r *LeadRecord) set(f Field, v string) {
	switch f {
	case FieldName:
		r.Name = v
	case FieldEmail:
		r.Email = v
	case FieldPhone:
		r.Phone = v
	case FieldNeed:
		r.Need = v
	}
}

func (r LeadRecord) Known() FieldSet {
	out := make(FieldSet, len(RequiredFields))
	for _, f := range RequiredFields {
		if strings.TrimSpace(r.Get(f)) != "" {
			out[f] = struct{}{}
		}
	}
	return out
}

func (r LeadRecord) Missing() []Field {
	var out []Field
	for _, f := range RequiredFields {
		if strings.TrimSpace(r.Get(f)) == "" {
			out = append(out, f)
		}
	}
	return out
}

func (r LeadRecord) Complete() bool {
	return len(r.Missing()) == 0
}

// Fill copies values from p into fields that are still empty and reports
// which fields were written. A non-empty field is never replaced.
func (r *LeadRecord) Fill(p PartialLead) []Field {
	var filled []Field
	for _, f := range RequiredFields {
		v := strings.TrimSpace(p[f])
		if v == "" || strings.TrimSpace(r.Get(f)) != "" {
			continue
		}
		r.set(f, v)
		filled = append(filled, f)
	}
	return filled
}

// PartialLead holds the fields inferred from a single source in a single turn.
type PartialLead map[Field]string

// Merge returns a new partial where p's non-empty values take priority over lower's.
func (p PartialLead) Merge(lower PartialLead) PartialLead {
	out := make(PartialLead, len(p)+len(lower))
	for f, v := range lower {
		if strings.TrimSpace(v) != "" {
			out[f] = v
		}
	}
	for f, v := range p {
		if strings.TrimSpace(v) != "" {
			out[f] = v
		}
	}
	return out
}

// Without drops every field contained in known.
func (p PartialLead) Without(known FieldSet) PartialLead {
	out := make(PartialLead, len(p))
	for f, v := range p {
		if known.Has(f) || strings.TrimSpace(v) == "" {
			continue
		}
		out[f] = v
	}
	return out
}
