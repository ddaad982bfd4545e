package utils

import (
	"errors"
	"fmt"
	"time"

	"riskengine/src/model"
)

var ErrInvalidInterval = errors.New("invalid interval. allowed: 5m,15m,30m,45m,1h")

// StartOfDay returns midnight of t's calendar date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// StartOfISOWeek returns Monday 00:00 of t's ISO week in loc.
func StartOfISOWeek(t time.Time, loc *time.Location) time.Time {
	day := StartOfDay(t, loc)
	offset := (int(day.Weekday()) + 6) % 7 // Monday == 0
	return day.AddDate(0, 0, -offset)
}

// ISOWeekKey identifies an ISO week, e.g. "2025-W09".
func ISOWeekKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	year, week := t.In(loc).ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// BucketStart aligns t to wall clock boundaries: 12:07 with 5m => 12:05.
func BucketStart(t time.Time, interval time.Duration) time.Time {
	secs := t.Unix()
	step := int64(interval.Seconds())
	return time.Unix((secs/step)*step, 0).UTC()
}

// AggregateCandles folds ascending 1m candles into interval buckets.
func AggregateCandles(candles []model.Candle, interval time.Duration) ([]model.Candle, error) {
	if interval != 5*time.Minute &&
		interval != 15*time.Minute &&
		interval != 30*time.Minute &&
		interval != 45*time.Minute &&
		interval != time.Hour {
		return nil, ErrInvalidInterval
	}

	if len(candles) == 0 {
		return []model.Candle{}, nil
	}

	out := make([]model.Candle, 0, len(candles)/int(interval.Minutes())+2)

	var cur model.Candle
	var curBucket time.Time
	hasCur := false

	for _, c := range candles {
		b := BucketStart(c.Datetime, interval)

		if !hasCur || !b.Equal(curBucket) {
			if hasCur {
				out = append(out, cur)
			}
			curBucket = b
			hasCur = true
			cur = c
			cur.Datetime = curBucket
			continue
		}

		if c.High.GreaterThan(cur.High) {
			cur.High = c.High
		}
		if c.Low.LessThan(cur.Low) {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume = cur.Volume.Add(c.Volume)
	}

	if hasCur {
		out = append(out, cur)
	}

	return out, nil
}
