package forms

import (
	"context"
	"time"
)

// ResponseStats are response counts for one form. ThisWeek and ThisMonth
// count responses created since the start of the current ISO week (Monday
// 00:00) and calendar month, in the configured analytics zone.
type ResponseStats struct {
	Total     int64 `json:"total"`
	Submitted int64 `json:"submitted"`
	Draft     int64 `json:"draft"`
	ThisWeek  int64 `json:"this_week"`
	ThisMonth int64 `json:"this_month"`
}

// TrendPoint is one day of the completion trend.
type TrendPoint struct {
	Date      string `json:"date"`
	Total     int    `json:"total"`
	Submitted int    `json:"submitted"`
}

// ResponseStats computes the response counts of a form.
func (s *Service) ResponseStats(ctx context.Context, tenantID, formID string) (*ResponseStats, error) {
	if _, err := s.GetForm(ctx, tenantID, formID); err != nil {
		return nil, err
	}

	now := s.now().In(s.cfg.AnalyticsLocation)
	submitted := true

	var stats ResponseStats
	var err error
	if stats.Total, err = s.store.CountResponses(ctx, tenantID, formID, nil, time.Time{}); err != nil {
		return nil, err
	}
	if stats.Submitted, err = s.store.CountResponses(ctx, tenantID, formID, &submitted, time.Time{}); err != nil {
		return nil, err
	}
	if stats.ThisWeek, err = s.store.CountResponses(ctx, tenantID, formID, nil, WeekStart(now).UTC()); err != nil {
		return nil, err
	}
	if stats.ThisMonth, err = s.store.CountResponses(ctx, tenantID, formID, nil, MonthStart(now).UTC()); err != nil {
		return nil, err
	}
	stats.Draft = stats.Total - stats.Submitted
	return &stats, nil
}

// CompletionTrend buckets the responses created in the trailing window of
// days (today included) by creation date. Days without responses are
// omitted; the series is ordered by date ascending. days <= 0 selects the
// configured default and values above the configured maximum are capped.
func (s *Service) CompletionTrend(ctx context.Context, tenantID, formID string, days int) ([]TrendPoint, error) {
	if _, err := s.GetForm(ctx, tenantID, formID); err != nil {
		return nil, err
	}
	if days <= 0 {
		days = s.cfg.TrendDefaultDays
	}
	if s.cfg.TrendMaxDays > 0 && days > s.cfg.TrendMaxDays {
		days = s.cfg.TrendMaxDays
	}

	loc := s.cfg.AnalyticsLocation
	today := DayStart(s.now().In(loc))
	since := today.AddDate(0, 0, -(days - 1))

	stamps, err := s.store.ResponseStampsSince(ctx, tenantID, formID, since.UTC())
	if err != nil {
		return nil, err
	}
	return bucketByDay(stamps, loc), nil
}

func bucketByDay(stamps []ResponseStamp, loc *time.Location) []TrendPoint {
	var points []TrendPoint
	index := make(map[string]int)
	for _, st := range stamps {
		day := st.CreatedAt.In(loc).Format(dateLayout)
		i, ok := index[day]
		if !ok {
			i = len(points)
			index[day] = i
			points = append(points, TrendPoint{Date: day})
		}
		points[i].Total++
		if st.Submitted {
			points[i].Submitted++
		}
	}
	return points
}

// DayStart returns 00:00 of t's day in t's location.
func DayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// WeekStart returns Monday 00:00 of t's ISO week in t's location.
func WeekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return DayStart(t).AddDate(0, 0, -offset)
}

// MonthStart returns 00:00 of the first day of t's month in t's location.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}
