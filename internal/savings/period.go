package savings

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/truecost/internal/model"
)

// Period tokens accepted by ResolvePeriod.
const (
	PeriodToday = "today"
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodYTD   = "ytd"
	PeriodAll   = "all"
)

// ResolvePeriod turns a period token or an explicit start/end pair into a
// half-open range in now's location. An explicit range wins when both bounds
// are given. Period ranges end at now; "all", an empty token and unknown
// tokens are unbounded. Weeks start on Monday.
func ResolvePeriod(period, start, end string, now time.Time) (model.TimeRange, error) {
	loc := now.Location()

	if start != "" && end != "" {
		from, err := parseBound(start, loc)
		if err != nil {
			return model.TimeRange{}, err
		}
		to, err := parseBound(end, loc)
		if err != nil {
			return model.TimeRange{}, err
		}
		if to.Before(from) {
			return model.TimeRange{}, eris.Wrapf(model.ErrValidation, "savings: end %s before start %s", end, start)
		}
		return model.TimeRange{Start: &from, End: &to}, nil
	}

	y, m, d := now.Date()
	var from time.Time
	switch strings.ToLower(period) {
	case PeriodToday:
		from = time.Date(y, m, d, 0, 0, 0, 0, loc)
	case PeriodWeek:
		sinceMonday := (int(now.Weekday()) + 6) % 7
		from = time.Date(y, m, d-sinceMonday, 0, 0, 0, 0, loc)
	case PeriodMonth:
		from = time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case PeriodYTD:
		from = time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	default:
		return model.TimeRange{}, nil
	}
	to := now
	return model.TimeRange{Start: &from, End: &to}, nil
}

// parseBound accepts RFC 3339 timestamps or plain dates, the latter taken as
// midnight in loc.
func parseBound(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}
	return time.Time{}, eris.Wrapf(model.ErrValidation, "savings: bad date %q", s)
}
