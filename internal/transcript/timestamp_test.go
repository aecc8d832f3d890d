package transcript

import (
	"errors"
	"testing"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"00:00:00.000", 0},
		{"00:00:00.045", 45},
		{"00:00:05.045", 5045},
		{"00:01:00.000", 60000},
		{"01:02:03.004", 3723004},
		{"00:00:7.5", 7005},
		{"00:00:10", 10000},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimestamp(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, in := range []string{"", "5045", "0:00:05.045", "00:00:05.0456", "aa:bb:cc.ddd", "00-00-05.045"} {
		_, err := ParseTimestamp(in)
		var fe *FormatError
		if !errors.As(err, &fe) {
			t.Errorf("ParseTimestamp(%q) error = %v, want *FormatError", in, err)
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "00:00:00.000"},
		{45, "00:00:00.045"},
		{3723004, "01:02:03.004"},
		{-5, "00:00:00.000"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.ms); got != tt.want {
			t.Errorf("FormatTimestamp(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}

	for _, ms := range []int64{0, 45, 5045, 86399999} {
		back, err := ParseTimestamp(FormatTimestamp(ms))
		if err != nil || back != ms {
			t.Errorf("round trip %d = %d (err %v)", ms, back, err)
		}
	}
}

func TestParseInterval(t *testing.T) {
	start, end, err := ParseInterval(" 00:00:01.040 00:00:24.650 ")
	if err != nil {
		t.Fatalf("ParseInterval: %v", err)
	}
	if start != 1040 || end != 24650 {
		t.Errorf("got (%d, %d), want (1040, 24650)", start, end)
	}

	_, _, err = ParseInterval("00:00:01.040")
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("single timestamp: error = %v, want *FormatError", err)
	}
	if fe.Field != "interval" {
		t.Errorf("Field = %q, want interval", fe.Field)
	}
}
