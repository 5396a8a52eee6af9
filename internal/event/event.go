// Package event parses the storage notifications that trigger report
// aggregation.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
)

// Record locates one stored object.
type Record struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Notification is the trigger payload: an object landed, aggregate the
// report it belongs to. The first record is authoritative; senders that
// batch more records only get the first one acted on.
type Notification struct {
	Records []Record `json:"records"`
}

// Parse decodes a notification. Decoding is strict: unknown fields, an
// empty records list, or an undecodable key are all errors, since a
// trigger that cannot be attributed to an object is not actionable.
// Object keys arrive URL-form-encoded and are unescaped here, so callers
// always see plain keys.
func Parse(r io.Reader) (*Notification, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var n Notification
	if err := dec.Decode(&n); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if len(n.Records) == 0 {
		return nil, errors.New("decode event: no records")
	}
	for i, rec := range n.Records {
		key, err := url.QueryUnescape(rec.Key)
		if err != nil {
			return nil, fmt.Errorf("unescape key %q: %w", rec.Key, err)
		}
		n.Records[i].Key = key
	}
	return &n, nil
}

// First returns the authoritative record.
func (n *Notification) First() Record {
	return n.Records[0]
}

// ReportID derives the report unit from a snapshot key by walking two path
// levels up, past the object name and its raw/ folder. The id itself may
// contain slashes ("alice/2024-05-01/raw/leetcode.gz" belongs to
// "alice/2024-05-01").
func ReportID(key string) (string, error) {
	id := path.Dir(path.Dir(key))
	switch id {
	case ".", "/":
		return "", fmt.Errorf("key %q has no report id (want <report>/raw/<platform>.gz)", key)
	}
	return id, nil
}
