package objstore

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tcsync/tcetl/internal/dates"
)

// FilterByDateRange keeps the records whose date column falls within
// [from, to] inclusive. Records missing the column or carrying an
// unparsable value are counted and skipped.
func FilterByDateRange(records []map[string]any, dateColumn string, from, to time.Time, log *zap.Logger) []map[string]any {
	kept := make([]map[string]any, 0, len(records))
	skipped := 0
	for _, rec := range records {
		s, _ := rec[dateColumn].(string)
		day, ok := dates.ExtractDay(s)
		if !ok {
			skipped++
			continue
		}
		if day.Before(from) || day.After(to) {
			continue
		}
		kept = append(kept, rec)
	}
	if skipped > 0 {
		log.Warn("skipped records without a usable date",
			zap.Int("skipped", skipped), zap.String("date_column", dateColumn))
	}
	return kept
}

// GroupByWeek buckets records by the ISO week of their date column.
// The returned keys are sorted; records that lost their date between
// filtering and grouping are dropped silently.
func GroupByWeek(records []map[string]any, dateColumn string) (map[string][]map[string]any, []string) {
	groups := make(map[string][]map[string]any)
	for _, rec := range records {
		s, _ := rec[dateColumn].(string)
		day, ok := dates.ExtractDay(s)
		if !ok {
			continue
		}
		week := dates.WeekKey(day)
		groups[week] = append(groups[week], rec)
	}
	weeks := make([]string, 0, len(groups))
	for w := range groups {
		weeks = append(weeks, w)
	}
	sort.Strings(weeks)
	return groups, weeks
}
