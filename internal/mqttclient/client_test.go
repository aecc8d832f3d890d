package mqttclient

import "testing"

func TestTopic(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		subtopic string
		want     string
	}{
		{"no_subtopic", "transcribe-etl/groups", "", "transcribe-etl/groups"},
		{"simple", "transcribe-etl/groups", "2022-06-05", "transcribe-etl/groups/2022-06-05"},
		{"nested", "transcribe-etl/groups", "2022-06-05/P998123", "transcribe-etl/groups/2022-06-05/P998123"},
		{"empty_levels_dropped", "t", "/a//b/", "t/a/b"},
		{"wildcards_dropped", "t", "a/+/#", "t/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Topic(tt.base, tt.subtopic); got != tt.want {
				t.Errorf("Topic(%q, %q) = %q, want %q", tt.base, tt.subtopic, got, tt.want)
			}
		})
	}
}
