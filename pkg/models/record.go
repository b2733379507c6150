package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Field is one labeled value in page order. Labels are the site's own
// (Traditional Chinese) strings, treated as opaque keys.
type Field struct {
	Label string
	Value Value
}

// DetailRecord is the parsed detail page for one entity: an ordered mapping
// from field label to value plus the synthetic id and crawl timestamp. Once
// persisted it is immutable except for full overwrite on re-crawl.
type DetailRecord struct {
	ID        EntityID
	CrawledAt time.Time

	fields []Field
	index  map[string]int
}

// NewDetailRecord returns an empty record.
func NewDetailRecord() *DetailRecord {
	return &DetailRecord{index: make(map[string]int)}
}

// Set stores a value under label, replacing any existing value but keeping
// the label's original position.
func (r *DetailRecord) Set(label string, v Value) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[label]; ok {
		r.fields[i].Value = v
		return
	}
	r.index[label] = len(r.fields)
	r.fields = append(r.fields, Field{Label: label, Value: v})
}

// Get returns the value stored under label.
func (r *DetailRecord) Get(label string) (Value, bool) {
	i, ok := r.index[label]
	if !ok {
		return Value{}, false
	}
	return r.fields[i].Value, true
}

// Len returns the number of parsed fields (synthetic fields excluded).
func (r *DetailRecord) Len() int { return len(r.fields) }

// Fields returns the fields in page order.
func (r *DetailRecord) Fields() []Field { return r.fields }

// MarshalJSON emits one flat JSON object: parsed fields in page order, then
// "id" and "crawled_at".
func (r *DetailRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for _, f := range r.fields {
		// The synthetic keys always win; a parsed label that collides with
		// one would otherwise produce duplicate keys and shadow it on reload.
		if f.Label == "id" || f.Label == "crawled_at" {
			continue
		}
		key, err := json.Marshal(f.Label)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
		buf.WriteByte(',')
	}
	id, err := json.Marshal(string(r.ID))
	if err != nil {
		return nil, err
	}
	crawledAt, err := json.Marshal(r.CrawledAt)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`"id":`)
	buf.Write(id)
	buf.WriteString(`,"crawled_at":`)
	buf.Write(crawledAt)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores a record preserving the field order of the file.
func (r *DetailRecord) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("detail record: expected JSON object, got %v", tok)
	}

	r.fields = nil
	r.index = make(map[string]int)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("detail record: non-string key %v", keyTok)
		}
		switch key {
		case "id":
			var id string
			if err := dec.Decode(&id); err != nil {
				return err
			}
			r.ID = EntityID(id)
		case "crawled_at":
			if err := dec.Decode(&r.CrawledAt); err != nil {
				return err
			}
		default:
			var v Value
			if err := dec.Decode(&v); err != nil {
				return fmt.Errorf("detail record field %q: %w", key, err)
			}
			r.Set(key, v)
		}
	}
	// Consume closing brace
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
