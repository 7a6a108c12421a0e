package progress

import (
	"errors"
	"time"

	"github.com/trezcool/maendeleo/core"
)

// Time series granularities
const (
	GranularityDay   = "day"
	GranularityWeek  = "week"
	GranularityMonth = "month"
)

var errBadGranularity = errors.New("granularity must be one of: day, week, month")

// ParseGranularity validates a caller-supplied granularity string.
func ParseGranularity(s string) (string, error) {
	switch s = core.CleanString(s, true); s {
	case GranularityDay, GranularityWeek, GranularityMonth:
		return s, nil
	case "":
		return GranularityDay, nil
	}
	return "", errBadGranularity
}

// bucketStart maps t to the start of its bucket: the day itself, the Monday of
// its week, or the first of its month. All in UTC.
func bucketStart(t time.Time, granularity string) time.Time {
	d := DateOf(t)
	switch granularity {
	case GranularityWeek:
		offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
		return d.AddDate(0, 0, -offset)
	case GranularityMonth:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return d
}

// nextBucket advances a bucket start to the next one.
func nextBucket(t time.Time, granularity string) time.Time {
	switch granularity {
	case GranularityWeek:
		return t.AddDate(0, 0, 7)
	case GranularityMonth:
		return t.AddDate(0, 1, 0)
	}
	return t.AddDate(0, 0, 1)
}

// BuildTimeSeries buckets activity records into a gapless series of points
// covering [start, end]. Each point sums spent-minute increments, counts
// completion crossings, and averages each leaf's latest rate in the bucket.
// Buckets with no activity are emitted with zero values.
func BuildTimeSeries(records []ActivityRecord, start, end time.Time, granularity string) []TimeSeriesPoint {
	first := bucketStart(start, granularity)
	last := bucketStart(end, granularity)
	if last.Before(first) {
		return []TimeSeriesPoint{}
	}

	type leafLatest struct {
		rate float64
		at   time.Time
	}
	type bucketAcc struct {
		spentMinutes int
		completions  int
		latestRates  map[int64]leafLatest
	}
	accs := make(map[time.Time]*bucketAcc)

	for _, rec := range records {
		day := DateOf(rec.CreatedAt)
		if day.Before(first) || rec.CreatedAt.After(end) {
			continue
		}
		bucket := bucketStart(rec.CreatedAt, granularity)
		acc, ok := accs[bucket]
		if !ok {
			acc = &bucketAcc{latestRates: make(map[int64]leafLatest)}
			accs[bucket] = acc
		}

		acc.spentMinutes += rec.SpentMinutes
		if ClassifyCompletion(rec.PrevProgressRate, rec.ProgressRate).BecameCompleted {
			acc.completions++
		}
		if latest, ok := acc.latestRates[rec.LeafProgressID]; !ok || rec.CreatedAt.After(latest.at) {
			acc.latestRates[rec.LeafProgressID] = leafLatest{rate: rec.ProgressRate, at: rec.CreatedAt}
		}
	}

	var points []TimeSeriesPoint
	for bucket := first; !bucket.After(last); bucket = nextBucket(bucket, granularity) {
		point := TimeSeriesPoint{BucketDate: bucket}
		if acc, ok := accs[bucket]; ok {
			point.SpentMinutes = acc.spentMinutes
			point.CompletedMaterialCount = acc.completions
			if n := len(acc.latestRates); n > 0 {
				var sum float64
				for _, latest := range acc.latestRates {
					sum += latest.rate
				}
				point.AverageProgressRate = core.Round2(sum / float64(n))
			}
		}
		points = append(points, point)
	}
	return points
}
