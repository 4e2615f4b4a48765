package enrich

import (
	"go.uber.org/zap"

	"github.com/tcsync/tcetl/internal/timecamp"
)

// Enricher joins fetched records with the user directory.
type Enricher struct {
	dir *Directory
	log *zap.Logger
}

// NewEnricher returns an Enricher over the given directory.
func NewEnricher(dir *Directory, log *zap.Logger) *Enricher {
	return &Enricher{dir: dir, log: log.Named("enrich")}
}

// BreadcrumbLevels flattens a root-to-leaf breadcrumb to the four
// levels nearest the root, padding missing levels with "".
func BreadcrumbLevels(path []string) [4]string {
	var out [4]string
	for i := 0; i < len(out) && i < len(path); i++ {
		out[i] = path[i]
	}
	return out
}

// EnrichTimeEntries fills the email, group name and breadcrumb level
// fields of every entry in place. A user without groups keeps the email
// and gets empty group fields. Unknown users get empty strings across
// the board.
func (e *Enricher) EnrichTimeEntries(entries []timecamp.TimeEntry) {
	matched := 0
	for i := range entries {
		info := e.dir.Lookup(entries[i].UserID.String())
		if info.Found {
			matched++
		}
		levels := BreadcrumbLevels(info.Breadcrumb)
		entries[i].Email = info.Email
		entries[i].GroupName = info.GroupName
		entries[i].BreadcrumbLevel1 = levels[0]
		entries[i].BreadcrumbLevel2 = levels[1]
		entries[i].BreadcrumbLevel3 = levels[2]
		entries[i].BreadcrumbLevel4 = levels[3]
	}
	e.log.Info("enriched time entries",
		zap.Int("entries", len(entries)), zap.Int("matched", matched))
}

// EnrichActivities fills the user fields of every activity in place,
// following the same unknown-user rules as EnrichTimeEntries.
func (e *Enricher) EnrichActivities(acts []timecamp.Activity) {
	matched := 0
	for i := range acts {
		info := e.dir.Lookup(acts[i].UserID.String())
		if info.Found {
			matched++
		}
		levels := BreadcrumbLevels(info.Breadcrumb)
		acts[i].Email = info.Email
		acts[i].DisplayName = info.DisplayName
		acts[i].GroupName = info.GroupName
		acts[i].BreadcrumbLevel1 = levels[0]
		acts[i].BreadcrumbLevel2 = levels[1]
		acts[i].BreadcrumbLevel3 = levels[2]
		acts[i].BreadcrumbLevel4 = levels[3]
	}
	e.log.Info("enriched activities",
		zap.Int("activities", len(acts)), zap.Int("matched", matched))
}
