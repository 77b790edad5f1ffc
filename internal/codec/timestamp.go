package codec

import (
	"encoding/json"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Timestamp is a point in time that survives a round trip even when the
// stored text cannot be parsed. Unparseable input is kept verbatim so that
// rewrites never lose it.
type Timestamp struct {
	t   time.Time
	raw string
}

func At(t time.Time) Timestamp {
	return Timestamp{t: t}
}

// ParseTimestamp accepts RFC 3339 and naive ISO-8601 forms. Naive values are
// read in the local zone.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Time returns the parsed instant and whether it is known.
func (ts Timestamp) Time() (time.Time, bool) {
	if ts.t.IsZero() {
		return time.Time{}, false
	}
	return ts.t, true
}

func (ts Timestamp) Valid() bool {
	return !ts.t.IsZero()
}

// Raw returns the unparsed text for an invalid timestamp.
func (ts Timestamp) Raw() string {
	return ts.raw
}

func (ts Timestamp) String() string {
	if ts.Valid() {
		return ts.t.Format(time.RFC3339Nano)
	}
	return ts.raw
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.String())
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Numbers and other shapes are preserved as their literal text.
		*ts = Timestamp{raw: strings.TrimSpace(string(data))}
		return nil
	}
	if t, ok := ParseTimestamp(s); ok {
		*ts = Timestamp{t: t}
		return nil
	}
	*ts = Timestamp{raw: s}
	return nil
}
