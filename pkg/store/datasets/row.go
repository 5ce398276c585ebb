package datasets

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cfahlgren1/observers/pkg/record"
)

// encodeRow renders rec as one JSON object with keys in column order.
// synced_at is always null; JSON fields are encoded as JSON strings; image
// fields are written under folder/images and replaced by a path reference.
// It returns the images written, relative to folder.
func encodeRow(rec record.Record, folder string) ([]byte, []string, error) {
	values := rec.Values()
	jsonFields := rec.JSONFields()
	imageFields := rec.ImageFields()

	var images []string
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range rec.Columns() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(col.Name)
		buf.Write(key)
		buf.WriteByte(':')

		v := values[col.Name]
		var (
			out any
			err error
		)
		switch {
		case col.Name == "synced_at":
			out = nil
		case record.Contains(imageFields, col.Name):
			out, err = writeImage(rec, v, folder, &images)
		case record.Contains(jsonFields, col.Name):
			var s *string
			s, err = record.EncodeJSON(v)
			if s != nil {
				out = *s
			}
		default:
			out = plainValue(v)
		}
		if err != nil {
			return nil, nil, err
		}

		b, err := json.Marshal(out)
		if err != nil {
			return nil, nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), images, nil
}

func plainValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return nil
		}
		return val.UTC().Format(time.RFC3339Nano)
	case map[string]any:
		if len(val) == 0 {
			return nil
		}
	}
	return v
}

// imageRef is how image columns reference files in the repository.
type imageRef struct {
	Path  string  `json:"path"`
	Bytes *[]byte `json:"bytes"`
}

func writeImage(rec record.Record, v any, folder string, written *[]string) (any, error) {
	data, ok := v.([]byte)
	if !ok || len(data) == 0 {
		return nil, nil
	}

	name, err := contentHash(rec)
	if err != nil {
		return nil, err
	}
	rel := filepath.ToSlash(filepath.Join("images", name+".png"))
	abs := filepath.Join(folder, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return nil, err
	}
	*written = append(*written, rel)
	return imageRef{Path: rel}, nil
}

// contentHash identifies a record by its values, excluding the image payload,
// its data URI and the id.
func contentHash(rec record.Record) (string, error) {
	values := rec.Values()
	delete(values, "image")
	delete(values, "uri")
	delete(values, "id")

	// encoding/json sorts map keys, which makes the hash stable.
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
