package normalize

import (
	"strconv"
	"strings"

	"github.com/climateseal/carbonmatch/internal/domain/record"
	"github.com/climateseal/carbonmatch/internal/domain/row"
)

// DefaultChineseNameField is the column used for content_zh when configured empty.
const DefaultChineseNameField = "activity_name_zh"

// Outcome classifies a normalized row.
type Outcome int

// Row outcomes.
const (
	Accepted Outcome = iota
	// SkippedEmpty means every cell was absent or blank.
	SkippedEmpty
	// SkippedNoText means the row had fields but no text to embed.
	SkippedNoText
)

// Normalizer turns cleaned rows into catalog records without ID, vector or provenance.
type Normalizer struct {
	zhField string
}

// New creates a normalizer. zhField names the Chinese activity name column.
func New(zhField string) *Normalizer {
	if zhField == "" {
		zhField = DefaultChineseNameField
	}
	return &Normalizer{zhField: zhField}
}

// Fields drops absent cells, trims strings and drops cells without a cleaned name.
func Fields(r row.Row) map[string]any {
	fields := make(map[string]any, len(r.Cells))
	for _, c := range r.Cells {
		if c.Name == "" {
			continue
		}
		if f, ok := c.Value.Float(); ok {
			fields[c.Name] = f
			continue
		}
		if s, ok := c.Value.Text(); ok {
			if s = strings.TrimSpace(s); s != "" {
				fields[c.Name] = s
			}
		}
	}
	return fields
}

// Normalize maps a row with cleaned column names to a record.
func (n *Normalizer) Normalize(r row.Row) (record.Record, Outcome) {
	fields := Fields(r)
	if len(fields) == 0 {
		return record.Record{}, SkippedEmpty
	}

	rec := record.Record{Extra: make(map[string]any, len(fields))}
	for k, v := range fields {
		switch k {
		case record.FieldActivityName:
			rec.ActivityName = display(v)
		case record.FieldGeography:
			rec.Geography = display(v)
		case record.FieldUnit:
			rec.Unit = display(v)
		case record.FieldKgCO2eq:
			if f, ok := v.(float64); ok {
				rec.KgCO2eq = &f
			} else {
				rec.Extra[k] = v
			}
		case record.FieldContentZH, record.FieldContentEN, record.FieldVector:
			// synthesized below
		default:
			rec.Extra[k] = v
		}
	}

	rec.ContentEN = joinPresent(rec.ActivityName, rec.Geography)
	if zh, ok := fields[n.zhField]; ok {
		rec.ContentZH = joinPresent(display(zh), rec.Geography)
	}

	if rec.EmbeddingText() == "" {
		return record.Record{}, SkippedNoText
	}
	return rec, Accepted
}

func display(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func joinPresent(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
