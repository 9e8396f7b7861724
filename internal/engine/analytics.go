package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/scrypster/visage/internal/storage"
	"github.com/scrypster/visage/pkg/types"
)

// DefaultReportWindowDays is the analytics window used when the caller
// does not specify one.
const DefaultReportWindowDays = 30

// AnalyticsAggregator builds windowed mood and session reports.
type AnalyticsAggregator struct {
	store storage.IdentityStore
	now   func() time.Time
}

// NewAnalyticsAggregator creates an aggregator over the given store.
func NewAnalyticsAggregator(store storage.IdentityStore) *AnalyticsAggregator {
	return &AnalyticsAggregator{store: store, now: time.Now}
}

// Report aggregates the identity's moods and sessions over the trailing
// window. A non-positive windowDays falls back to the default. The report
// never fails for a valid identity: zero history yields empty distributions
// and zeroed session stats, not an error.
func (a *AnalyticsAggregator) Report(ctx context.Context, identityID string, windowDays int) (*types.AnalyticsReport, error) {
	if windowDays < 1 {
		windowDays = DefaultReportWindowDays
	}

	identity, err := a.store.GetIdentity(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("analytics report: %w", err)
	}

	cutoff := a.now().UTC().Add(-time.Duration(windowDays) * 24 * time.Hour)
	moods, err := a.store.ListMoods(ctx, identityID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("analytics report: %w", err)
	}
	sessions, err := a.store.ListSessions(ctx, identityID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("analytics report: %w", err)
	}

	report := &types.AnalyticsReport{
		Timeframe:           fmt.Sprintf("%d days", windowDays),
		EmotionDistribution: make(map[string]int),
		DailyEmotions:       make(map[string][]string),
		TotalMoodsLogged:    len(moods),
		MostCommonEmotion:   identity.Stats.MostCommonEmotion,
	}

	for _, m := range moods {
		report.EmotionDistribution[m.Emotion]++
		day := m.Timestamp.UTC().Format("2006-01-02")
		report.DailyEmotions[day] = append(report.DailyEmotions[day], m.Emotion)
	}

	report.SessionStats.TotalSessions = len(sessions)
	for _, s := range sessions {
		// Open sessions contribute zero duration until they close.
		report.SessionStats.TotalTimeSpent += s.DurationMinutes
	}
	if n := report.SessionStats.TotalSessions; n > 0 {
		avg := float64(report.SessionStats.TotalTimeSpent) / float64(n)
		report.SessionStats.AverageDuration = math.Round(avg*100) / 100
	}

	return report, nil
}
