package logic

// CrowdLevel is a coarse crowd indicator derived from a live count.
type CrowdLevel string

const (
	LevelUnknown    CrowdLevel = "unknown"
	LevelLow        CrowdLevel = "low"
	LevelModerate   CrowdLevel = "moderate"
	LevelPacked     CrowdLevel = "packed"
	LevelOverPacked CrowdLevel = "over-packed"
)

// Level maps count onto the venue thresholds. Venues without thresholds
// report LevelUnknown.
func Level(count int, t CapacityThresholds) CrowdLevel {
	if count < 0 || (t == CapacityThresholds{}) {
		return LevelUnknown
	}
	switch {
	case count <= t.Low:
		return LevelLow
	case count <= t.Moderate:
		return LevelModerate
	case count <= t.Packed:
		return LevelPacked
	default:
		return LevelOverPacked
	}
}
