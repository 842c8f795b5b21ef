package swing

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestParseTimestampPacked(t *testing.T) {
	got, ok := ParseTimestamp("101530250", testDay, time.UTC)
	if !ok {
		t.Fatal("expected packed timestamp to parse")
	}
	want := time.Date(2024, 3, 1, 10, 15, 30, 250*int(time.Millisecond), time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseTimestampShortPackedIsZeroPadded(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 1, 0, time.UTC)
	got, ok := ParseTimestamp("5123", start, time.UTC)
	if !ok {
		t.Fatal("expected short packed timestamp to parse")
	}
	want := time.Date(2024, 3, 1, 0, 0, 5, 123*int(time.Millisecond), time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseTimestampPackedFloatForms(t *testing.T) {
	want := time.Date(2024, 3, 1, 9, 30, 15, 123*int(time.Millisecond), time.UTC)
	for _, in := range []string{`93015123.0`, `9.3015123e7`, `"93015123.0"`, `93015123`} {
		var raw RawTimestamp
		if err := json.Unmarshal([]byte(in), &raw); err != nil {
			t.Fatalf("Unmarshal(%s): %v", in, err)
		}
		got, ok := ParseTimestamp(raw, testDay, time.UTC)
		if !ok {
			t.Errorf("ParseTimestamp(%s) failed", in)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseTimestamp(%s) = %v, want %v", in, got, want)
		}
	}

	secs, ok := SecondsFromMidnight("93015123.0")
	if !ok || math.Abs(secs-34215.123) > 1e-9 {
		t.Errorf("SecondsFromMidnight(93015123.0) = %v, %v", secs, ok)
	}

	// Fractional values are not packed and stay epoch milliseconds.
	got, ok := ParseTimestamp("93015123.5", testDay, time.UTC)
	if !ok || got.Year() != 1970 {
		t.Errorf("ParseTimestamp(93015123.5) = %v, %v, want epoch milliseconds", got, ok)
	}
}

func TestPackedRoundTrip(t *testing.T) {
	for _, h := range []int{0, 1, 9, 12, 23} {
		for _, m := range []int{0, 7, 30, 59} {
			for _, s := range []int{0, 1, 45, 59} {
				for _, ms := range []int{0, 1, 250, 999} {
					tm := time.Date(2024, 3, 1, h, m, s, ms*int(time.Millisecond), time.UTC)
					packed := EncodePacked(tm)
					if len(packed) != 9 {
						t.Fatalf("EncodePacked(%v) = %q, want 9 digits", tm, packed)
					}
					got, ok := SecondsFromMidnight(packed)
					if !ok {
						t.Fatalf("SecondsFromMidnight(%q) failed", packed)
					}
					want := float64(h*3600+m*60+s) + float64(ms)/1000
					if math.Abs(got-want) > 1e-9 {
						t.Errorf("round trip %q: got %f, want %f", packed, got, want)
					}
				}
			}
		}
	}
}

func TestParseTimestampRollover(t *testing.T) {
	start := time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  RawTimestamp
		want time.Time
	}{
		{"after midnight shifts a day", "001000000", time.Date(2024, 3, 2, 0, 10, 0, 0, time.UTC)},
		{"exactly six hours before is kept", "173000000", time.Date(2024, 3, 1, 17, 30, 0, 0, time.UTC)},
		{"under six hours before is kept", "180000000", time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)},
		{"just over six hours before shifts", "172959999", time.Date(2024, 3, 2, 17, 29, 59, 999*int(time.Millisecond), time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.raw, start, time.UTC)
			if !ok {
				t.Fatalf("ParseTimestamp(%q) failed", tt.raw)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseTimestampRolloverIsExactlyOneDay(t *testing.T) {
	start := time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)
	got, ok := ParseTimestamp("020000000", start, time.UTC)
	if !ok {
		t.Fatal("expected parse")
	}
	unshifted := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	if d := got.Sub(unshifted); d != 24*time.Hour {
		t.Errorf("shift = %v, want 24h", d)
	}
}

func TestParseTimestampLocation(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, loc)
	got, ok := ParseTimestamp("100001000", start, loc)
	if !ok {
		t.Fatal("expected parse")
	}
	want := time.Date(2024, 3, 1, 2, 0, 1, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got.UTC(), want)
	}
}

func TestParseTimestampISOAndEpoch(t *testing.T) {
	tests := []struct {
		name string
		raw  RawTimestamp
		want time.Time
	}{
		{"rfc3339", "2024-03-01T10:00:00.250Z", time.Date(2024, 3, 1, 10, 0, 0, 250*int(time.Millisecond), time.UTC)},
		{"rfc3339 offset", "2024-03-01T18:00:00+08:00", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"zone-less space", "2024-03-01 10:00:00.500", time.Date(2024, 3, 1, 10, 0, 0, 500*int(time.Millisecond), time.UTC)},
		{"epoch millis", "1709287200000", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"invalid packed falls back to epoch", "250000000", time.Date(1970, 1, 3, 21, 26, 40, 0, time.UTC)},
		{"fractional epoch", "1709287200000.5", time.Date(2024, 3, 1, 10, 0, 0, 500*int(time.Microsecond), time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.raw, testDay, time.UTC)
			if !ok {
				t.Fatalf("ParseTimestamp(%q) failed", tt.raw)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseTimestampUnparseable(t *testing.T) {
	for _, raw := range []RawTimestamp{"", "  ", "abc", "10:15:30", "NaN"} {
		if got, ok := ParseTimestamp(raw, testDay, time.UTC); ok {
			t.Errorf("ParseTimestamp(%q) = %v, want failure", raw, got)
		}
	}
}

func TestCodecResolvePrefersResolvedTime(t *testing.T) {
	resolved := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	r := SensorReading{Timestamp: "101530250", ResolvedTime: &resolved}
	got, ok := NewCodec(time.UTC, 0).Resolve(r, testDay)
	if !ok || !got.Equal(resolved) {
		t.Errorf("Resolve = %v, %v; want %v", got, ok, resolved)
	}
}

func TestRawTimestampUnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want RawTimestamp
	}{
		{`101530250`, "101530250"},
		{`"101530250"`, "101530250"},
		{`" 2024-03-01T10:00:00Z "`, "2024-03-01T10:00:00Z"},
		{`1709287200000`, "1709287200000"},
		{`null`, ""},
	}
	for _, tt := range tests {
		var got RawTimestamp
		if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
			t.Fatalf("Unmarshal(%s): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}

	var bad RawTimestamp
	if err := json.Unmarshal([]byte(`true`), &bad); err == nil {
		t.Error("expected error for boolean timestamp")
	}
}
