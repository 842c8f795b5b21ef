package swing

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultRolloverThreshold is how far before the session start a packed
// timestamp may fall before it is taken to belong to the next day.
const DefaultRolloverThreshold = 6 * time.Hour

// Largest epoch-millisecond value accepted (9999-12-31T23:59:59.999Z).
const maxEpochMillis = 253402300799999

// RawTimestamp is a device-local timestamp as received: a packed
// HHMMSSmmm value, an ISO-8601 string or Unix epoch milliseconds. JSON
// numbers and strings both decode into it.
type RawTimestamp string

// UnmarshalJSON accepts a JSON number, string or null.
func (r *RawTimestamp) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "" || s == "null":
		*r = ""
		return nil
	case strings.HasPrefix(s, `"`):
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*r = RawTimestamp(strings.TrimSpace(str))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("timestamp must be a number or string: %w", err)
	}
	*r = RawTimestamp(n.String())
	return nil
}

// Codec resolves raw timestamps for one session.
type Codec struct {
	// Location is the session-local timezone; packed values are wall-clock
	// times in it.
	Location          *time.Location
	RolloverThreshold time.Duration
}

// NewCodec returns a Codec, defaulting to UTC and DefaultRolloverThreshold.
func NewCodec(loc *time.Location, threshold time.Duration) Codec {
	if loc == nil {
		loc = time.UTC
	}
	if threshold <= 0 {
		threshold = DefaultRolloverThreshold
	}
	return Codec{Location: loc, RolloverThreshold: threshold}
}

// ParseTimestamp decodes raw against the session start using the default
// rollover threshold.
func ParseTimestamp(raw RawTimestamp, sessionStart time.Time, loc *time.Location) (time.Time, bool) {
	return NewCodec(loc, 0).Parse(raw, sessionStart)
}

// Resolve returns the reading's pre-resolved time if present, otherwise the
// decoded raw timestamp.
func (c Codec) Resolve(r SensorReading, sessionStart time.Time) (time.Time, bool) {
	if r.ResolvedTime != nil && !r.ResolvedTime.IsZero() {
		return *r.ResolvedTime, true
	}
	return c.Parse(r.Timestamp, sessionStart)
}

// Parse decodes raw. Packed HHMMSSmmm values are placed on the calendar date
// of sessionStart and moved forward a day when they would otherwise precede
// sessionStart by more than the rollover threshold.
func (c Codec) Parse(raw RawTimestamp, sessionStart time.Time) (time.Time, bool) {
	if c.Location == nil {
		c = NewCodec(nil, c.RolloverThreshold)
	}
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return time.Time{}, false
	}

	if packed, ok := packedDigits(s); ok {
		if h, m, sec, ms, ok := splitPacked(packed); ok {
			start := sessionStart.In(c.Location)
			t := time.Date(start.Year(), start.Month(), start.Day(), h, m, sec, ms*int(time.Millisecond), c.Location)
			if sessionStart.Sub(t) > c.RolloverThreshold {
				t = t.Add(24 * time.Hour)
			}
			return t, true
		}
	}

	if t, ok := c.parseISO(s); ok {
		return t, true
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > maxEpochMillis {
		return time.Time{}, false
	}
	whole := math.Floor(v)
	t := time.UnixMilli(int64(whole)).Add(time.Duration((v - whole) * float64(time.Millisecond)))
	return t.In(c.Location), true
}

var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
}

func (c Codec) parseISO(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, c.Location); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SecondsFromMidnight decodes a packed HHMMSSmmm value of up to nine digits.
func SecondsFromMidnight(packed string) (float64, bool) {
	digits, ok := packedDigits(strings.TrimSpace(packed))
	if !ok {
		return 0, false
	}
	h, m, s, ms, ok := splitPacked(digits)
	if !ok {
		return 0, false
	}
	return float64(h*3600+m*60+s) + float64(ms)/1000, true
}

// EncodePacked renders t's wall-clock time as nine HHMMSSmmm digits.
func EncodePacked(t time.Time) string {
	return fmt.Sprintf("%02d%02d%02d%03d", t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/int(time.Millisecond))
}

// packedDigits returns s as packed HHMMSSmmm digits. Integral float forms
// such as "93015123.0" or "9.3015123e7", which JSON encoders emit for
// numeric columns, are accepted alongside plain digit strings.
func packedDigits(s string) (string, bool) {
	if isDigits(s) {
		return s, len(s) <= 9
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v >= 1e9 || v != math.Trunc(v) {
		return "", false
	}
	return strconv.FormatInt(int64(v), 10), true
}

func splitPacked(s string) (h, m, sec, ms int, ok bool) {
	p := strings.Repeat("0", 9-len(s)) + s
	h, _ = strconv.Atoi(p[0:2])
	m, _ = strconv.Atoi(p[2:4])
	sec, _ = strconv.Atoi(p[4:6])
	ms, _ = strconv.Atoi(p[6:9])
	if h > 23 || m > 59 || sec > 59 {
		return 0, 0, 0, 0, false
	}
	return h, m, sec, ms, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
