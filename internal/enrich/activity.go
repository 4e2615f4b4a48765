package enrich

import (
	"time"

	"go.uber.org/zap"

	"github.com/tcsync/tcetl/internal/dates"
	"github.com/tcsync/tcetl/internal/timecamp"
)

// ActivityRow is the final report shape of one computer activity.
type ActivityRow struct {
	UserID          string `json:"user_id"`
	ApplicationID   string `json:"application_id"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	TimeSpan        int64  `json:"time_span"`
	WindowTitleID   string `json:"window_title_id"`
	ApplicationName string `json:"application_name"`
	WindowTitle     string `json:"window_title"`
	UserGroupName   string `json:"user_group_name"`
	UserEmail       string `json:"user_email"`
	UserName        string `json:"user_name"`
	CategoryName    string `json:"category_name"`
}

// StartTime computes the activity start as end_time minus time_span
// seconds. An end time that does not parse yields "".
func StartTime(endTime string, timeSpan int64) string {
	t, err := time.Parse(dates.TimestampLayout, endTime)
	if err != nil {
		return ""
	}
	return t.Add(-time.Duration(timeSpan) * time.Second).Format(dates.TimestampLayout)
}

// FinalFormat projects enriched activities onto the report rows.
func FinalFormat(acts []timecamp.Activity, log *zap.Logger) []ActivityRow {
	rows := make([]ActivityRow, 0, len(acts))
	for _, a := range acts {
		category := a.CategoryName
		if category == "" {
			category = "No category"
		}
		rows = append(rows, ActivityRow{
			UserID:          a.UserID.String(),
			ApplicationID:   a.ApplicationID.String(),
			StartTime:       StartTime(a.EndTime, a.TimeSpan.Int64()),
			EndTime:         a.EndTime,
			TimeSpan:        a.TimeSpan.Int64(),
			WindowTitleID:   a.WindowTitleID.String(),
			ApplicationName: a.ApplicationName,
			WindowTitle:     a.WindowTitle,
			UserGroupName:   a.GroupName,
			UserEmail:       a.Email,
			UserName:        a.DisplayName,
			CategoryName:    category,
		})
	}
	log.Info("formatted activities", zap.Int("rows", len(rows)))
	return rows
}
