package datastore

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/platewatch/platewatch/internal/logger"
	"github.com/platewatch/platewatch/internal/observability/metrics"
)

// FilterMode selects how QueryEvents filters events
type FilterMode string

const (
	FilterLicensePlate FilterMode = "license_plate"
	FilterDate         FilterMode = "date"
	FilterDateTime     FilterMode = "datetime"
)

// EventQuery describes an event search.
//
//	license_plate: Value is a case-insensitive substring of the plate
//	date:          Value is a local calendar date, YYYY-MM-DD
//	datetime:      Start and End are both required and inclusive
//
// A zero Limit returns every match.
type EventQuery struct {
	Mode  FilterMode
	Value string
	Start time.Time
	End   time.Time
	Limit int
}

// LocalDateTimeLayout is the minute precision form accepted for datetime bounds, as submitted by an HTML datetime-local input
const LocalDateTimeLayout = "2006-01-02T15:04"

// ParseTimeBound parses an RFC 3339 timestamp or a LocalDateTimeLayout value
// in the local zone. Empty input yields the zero time.
func ParseTimeBound(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation(LocalDateTimeLayout, raw, time.Local)
}

// likeEscaper escapes LIKE wildcards with '!', which both dialects accept in ESCAPE
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// QueryEvents returns events matching q, newest first, with CapturedAt in the
// store's location. Malformed or unsupported filters yield an empty result, not an error.
func (ds *DataStore) QueryEvents(ctx context.Context, q EventQuery) ([]RecognitionEvent, error) {
	start := time.Now()

	tx, ok := ds.applyFilter(ds.DB.WithContext(ctx).Model(&RecognitionEvent{}), q)
	if !ok {
		ds.getLogger().Debug("event query matched nothing by construction",
			logger.String("mode", string(q.Mode)),
			logger.String("value", q.Value))
		return []RecognitionEvent{}, nil
	}

	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var events []RecognitionEvent
	err := tx.Order("captured_at DESC").Order("id DESC").Find(&events).Error
	ds.recordOperation("query_events", start, err)
	if err != nil {
		return nil, dbError(err, "query_events", "", "mode", string(q.Mode))
	}

	// rows hold UTC, callers see the zone CaptureDate was derived in
	loc := ds.location()
	for i := range events {
		events[i].CapturedAt = events[i].CapturedAt.In(loc)
	}

	if ds.metrics != nil {
		ds.metrics.RecordQueryResultSize(string(q.Mode), len(events))
	}
	return events, nil
}

// applyFilter adds the WHERE clause for q. It returns false when no row can match.
func (ds *DataStore) applyFilter(tx *gorm.DB, q EventQuery) (*gorm.DB, bool) {
	switch q.Mode {
	case FilterLicensePlate:
		needle := strings.ToUpper(strings.TrimSpace(q.Value))
		if needle == "" {
			return tx, true
		}
		return tx.Where("license_plate LIKE ? ESCAPE '!'", "%"+likeEscaper.Replace(needle)+"%"), true

	case FilterDate:
		day, err := time.ParseInLocation(captureDateLayout, strings.TrimSpace(q.Value), ds.location())
		if err != nil {
			return tx, false
		}
		return tx.Where("capture_date = ?", day.Format(captureDateLayout)), true

	case FilterDateTime:
		if q.Start.IsZero() || q.End.IsZero() || q.End.Before(q.Start) {
			return tx, false
		}
		return tx.Where("captured_at BETWEEN ? AND ?", q.Start.UTC(), q.End.UTC()), true

	default:
		return tx, false
	}
}

func (ds *DataStore) recordOperation(operation string, start time.Time, err error) {
	if ds.metrics == nil {
		return
	}
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	ds.metrics.RecordOperation(operation, status, time.Since(start).Seconds())
}
