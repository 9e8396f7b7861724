package engine

import (
	"math"
	"time"

	"github.com/scrypster/visage/pkg/types"
)

// ComputeStats derives an identity's cached stats from its full mood and
// session history. Pure function: the same history always yields the same
// stats, so recomputing after every mutation keeps the cache honest.
func ComputeStats(moods []types.MoodObservation, sessions []types.SessionRecord) types.IdentityStats {
	stats := types.IdentityStats{
		TotalSessions:     len(sessions),
		MostCommonEmotion: mostCommonEmotion(moods),
	}

	var lastSeen time.Time
	closed := 0
	for _, s := range sessions {
		if s.LoginTime.After(lastSeen) {
			lastSeen = s.LoginTime
		}
		if s.Closed() {
			stats.TotalTimeSpent += s.DurationMinutes
			closed++
		}
	}
	if !lastSeen.IsZero() {
		t := lastSeen
		stats.LastSeen = &t
	}
	if closed > 0 {
		stats.AverageSessionDuration = int(math.Round(float64(stats.TotalTimeSpent) / float64(closed)))
	}
	return stats
}

// mostCommonEmotion returns the plurality emotion of the observations, ""
// when there are none. Ties break toward the earlier label in
// types.EmotionLabels.
func mostCommonEmotion(moods []types.MoodObservation) string {
	if len(moods) == 0 {
		return ""
	}
	counts := make(map[string]int, len(types.EmotionLabels))
	for _, m := range moods {
		counts[m.Emotion]++
	}

	best := ""
	bestCount := 0
	for _, label := range types.EmotionLabels {
		if c := counts[label]; c > bestCount {
			best = label
			bestCount = c
		}
	}
	return best
}
