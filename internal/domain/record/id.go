package record

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

// IDStrategy selects how document IDs are derived during ingestion.
type IDStrategy string

// ID strategies.
const (
	// IDByRow keys documents by row position: stable across unchanged re-runs only.
	IDByRow IDStrategy = "row"
	// IDByContent keys documents by a hash of every normalized field.
	IDByContent IDStrategy = "content"
)

// IsValid reports whether s is a known strategy.
func (s IDStrategy) IsValid() bool { return s == IDByRow || s == IDByContent }

// DocumentID derives the ID of r stored in index at the given row position.
func (s IDStrategy) DocumentID(index string, position int, r *Record) (string, error) {
	switch s {
	case IDByRow, "":
		return index + "_" + strconv.Itoa(position), nil
	case IDByContent:
		fp, err := r.Fingerprint()
		if err != nil {
			return "", err
		}
		return index + "_" + fp[:16], nil
	default:
		return "", fmt.Errorf("unknown id strategy %q", s)
	}
}

// Fingerprint hashes the record's catalog content: reserved fields, the factor
// and every extra column. Provenance and the vector are left out, so the same
// row imported twice hashes the same.
func (r *Record) Fingerprint() (string, error) {
	doc := r.Document()
	for _, k := range []string{FieldVector, FieldTimestamp, FieldImportDate, FieldDataSource, FieldVersion, FieldImportRun} {
		delete(doc, k)
	}
	// map keys marshal in sorted order
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("fingerprint record: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
