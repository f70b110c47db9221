package record

import (
	"fmt"
	"strconv"
	"time"

	"github.com/climateseal/carbonmatch/internal/domain"
)

// Reserved catalog field names.
const (
	FieldActivityName = "activity_name"
	FieldGeography    = "geography"
	FieldKgCO2eq      = "kg_co2eq"
	FieldUnit         = "reference_product_unit"
	FieldContentZH    = "content_zh"
	FieldContentEN    = "content_en"
	FieldVector       = "content_vector"
	FieldTimestamp    = "@timestamp"
	FieldImportDate   = "import_date"
	FieldDataSource   = "data_source"
	FieldVersion      = "version"
	FieldImportRun    = "import_run"
)

// DateLayout is the import_date format.
const DateLayout = "2006-01-02"

// Provenance describes where and when a record was imported.
type Provenance struct {
	DataSource string
	Version    string
	ImportedAt time.Time
	ImportRun  string
}

// Record is one catalog entry: an emission factor plus its search text and vector.
type Record struct {
	ID           string
	ActivityName string
	Geography    string
	KgCO2eq      *float64
	Unit         string
	ContentZH    string
	ContentEN    string
	Vector       []float32
	Provenance   Provenance
	// Extra holds every other normalized column (float64 or string values).
	Extra map[string]any
}

// Validate checks identity and vector length against the index dimension.
func (r *Record) Validate(dims int) error {
	if r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if err := domain.CheckDimension(r.Vector, dims); err != nil {
		return fmt.Errorf("record %s: %w", r.ID, err)
	}
	return nil
}

// Document renders the record as the backend document body.
// Reserved fields take precedence over same-named extras.
func (r *Record) Document() map[string]any {
	doc := make(map[string]any, len(r.Extra)+12)
	for k, v := range r.Extra {
		doc[k] = v
	}
	setString(doc, FieldActivityName, r.ActivityName)
	setString(doc, FieldGeography, r.Geography)
	setString(doc, FieldUnit, r.Unit)
	setString(doc, FieldContentZH, r.ContentZH)
	setString(doc, FieldContentEN, r.ContentEN)
	if r.KgCO2eq != nil {
		doc[FieldKgCO2eq] = *r.KgCO2eq
	}
	if r.Vector != nil {
		doc[FieldVector] = r.Vector
	}

	p := r.Provenance
	if !p.ImportedAt.IsZero() {
		doc[FieldTimestamp] = p.ImportedAt.Format(time.RFC3339Nano)
		doc[FieldImportDate] = p.ImportedAt.Format(DateLayout)
	}
	setString(doc, FieldDataSource, p.DataSource)
	setString(doc, FieldVersion, p.Version)
	setString(doc, FieldImportRun, p.ImportRun)
	return doc
}

// FromSource rebuilds a record from a stored document (vector usually excluded).
func FromSource(id string, src map[string]any) Record {
	r := Record{ID: id, Extra: make(map[string]any)}
	for k, v := range src {
		switch k {
		case FieldActivityName:
			r.ActivityName = asString(v)
		case FieldGeography:
			r.Geography = asString(v)
		case FieldUnit:
			r.Unit = asString(v)
		case FieldContentZH:
			r.ContentZH = asString(v)
		case FieldContentEN:
			r.ContentEN = asString(v)
		case FieldKgCO2eq:
			if f, ok := asFloat(v); ok {
				r.KgCO2eq = &f
			}
		case FieldDataSource:
			r.Provenance.DataSource = asString(v)
		case FieldVersion:
			r.Provenance.Version = asString(v)
		case FieldImportRun:
			r.Provenance.ImportRun = asString(v)
		case FieldTimestamp:
			if t, err := time.Parse(time.RFC3339Nano, asString(v)); err == nil {
				r.Provenance.ImportedAt = t
			}
		case FieldImportDate, FieldVector:
		default:
			r.Extra[k] = v
		}
	}
	return r
}

func setString(doc map[string]any, key, val string) {
	if val != "" {
		doc[key] = val
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// EmbeddingText returns the text the content vector is computed from:
// content_en, or content_zh when no English text exists.
func (r *Record) EmbeddingText() string {
	if r.ContentEN != "" {
		return r.ContentEN
	}
	return r.ContentZH
}
