package engine

import (
	"testing"
	"time"

	"github.com/scrypster/visage/pkg/types"
)

func obs(emotion string) types.MoodObservation {
	return types.MoodObservation{Emotion: emotion}
}

func closedSession(login time.Time, minutes int) types.SessionRecord {
	logout := login.Add(time.Duration(minutes) * time.Minute)
	return types.SessionRecord{LoginTime: login, LogoutTime: &logout, DurationMinutes: minutes}
}

func TestComputeStatsEmptyHistory(t *testing.T) {
	stats := ComputeStats(nil, nil)
	if stats.TotalSessions != 0 || stats.TotalTimeSpent != 0 || stats.AverageSessionDuration != 0 {
		t.Errorf("expected zeroed stats, got %+v", stats)
	}
	if stats.MostCommonEmotion != "" {
		t.Errorf("expected no most common emotion, got %q", stats.MostCommonEmotion)
	}
	if stats.LastSeen != nil {
		t.Errorf("expected nil last seen, got %v", stats.LastSeen)
	}
}

func TestComputeStatsCountsOpenSessionsButNotTheirTime(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sessions := []types.SessionRecord{
		closedSession(base, 10),
		closedSession(base.Add(time.Hour), 20),
		{LoginTime: base.Add(2 * time.Hour)}, // still open
	}

	stats := ComputeStats(nil, sessions)
	if stats.TotalSessions != 3 {
		t.Errorf("expected 3 total sessions, got %d", stats.TotalSessions)
	}
	if stats.TotalTimeSpent != 30 {
		t.Errorf("expected 30 minutes, got %d", stats.TotalTimeSpent)
	}
	// Average is over closed sessions only: (10+20)/2.
	if stats.AverageSessionDuration != 15 {
		t.Errorf("expected average 15, got %d", stats.AverageSessionDuration)
	}
	if stats.LastSeen == nil || !stats.LastSeen.Equal(base.Add(2*time.Hour)) {
		t.Errorf("expected last seen %v, got %v", base.Add(2*time.Hour), stats.LastSeen)
	}
}

func TestComputeStatsMostCommonEmotion(t *testing.T) {
	moods := []types.MoodObservation{obs("angry"), obs("happy"), obs("angry")}
	stats := ComputeStats(moods, nil)
	if stats.MostCommonEmotion != "angry" {
		t.Errorf("expected angry, got %q", stats.MostCommonEmotion)
	}
}

func TestMostCommonEmotionIgnoresUnknownTieOrder(t *testing.T) {
	// happy and neutral tie; happy precedes neutral in the canonical order.
	moods := []types.MoodObservation{obs("neutral"), obs("happy")}
	if got := mostCommonEmotion(moods); got != "happy" {
		t.Errorf("expected happy, got %q", got)
	}
}
