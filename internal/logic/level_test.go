package logic

import "testing"

func TestLevel(t *testing.T) {
	th := CapacityThresholds{Low: 50, Moderate: 100, Packed: 150}
	tests := []struct {
		count int
		t     CapacityThresholds
		want  CrowdLevel
	}{
		{0, th, LevelLow},
		{50, th, LevelLow},
		{51, th, LevelModerate},
		{100, th, LevelModerate},
		{150, th, LevelPacked},
		{151, th, LevelOverPacked},
		{10, CapacityThresholds{}, LevelUnknown},
		{-1, th, LevelUnknown},
	}
	for _, tt := range tests {
		if got := Level(tt.count, tt.t); got != tt.want {
			t.Errorf("Level(%d, %+v) = %s, want %s", tt.count, tt.t, got, tt.want)
		}
	}
}
