package enrich

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tcsync/tcetl/internal/timecamp"
)

// categoryNames maps TimeCamp application category ids to display
// names. Ids outside the table fall back to "No category".
var categoryNames = map[string]string{
	"0":  "No category",
	"1":  "Office",
	"2":  "Developer Tools",
	"3":  "Chat, VoIP & Email",
	"4":  "Graphic & Design",
	"5":  "Home",
	"6":  "Productivity",
	"7":  "Utilities & Tools",
	"8":  "Audio & Video",
	"9":  "Games",
	"10": "Education",
	"11": "Fun",
	"12": "News & Blogs",
	"13": "Reference & Search",
	"14": "Shopping",
	"15": "Social Networking",
	"16": "Travel & Outdoors",
	"17": "Business",
	"18": "Hobby",
}

// CategoryName resolves a category id to its display name.
func CategoryName(id string) string {
	if name, ok := categoryNames[id]; ok {
		return name
	}
	return "No category"
}

// ApplicationName picks the display name of an application: the first
// of full_name, aditional_info and app_name that is non-blank after
// trimming.
func ApplicationName(app timecamp.Application) string {
	if v := strings.TrimSpace(app.FullName); v != "" {
		return v
	}
	if v := strings.TrimSpace(app.AdditionalInfo); v != "" {
		return v
	}
	return strings.TrimSpace(app.AppName)
}

// CollectApplicationIDs gathers the distinct application ids referenced
// by the activities, skipping empty ids and the "0" placeholder. The
// result is sorted for deterministic requests.
func CollectApplicationIDs(acts []timecamp.Activity) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, a := range acts {
		id := a.ApplicationID.String()
		if id == "" || id == "0" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EnrichActivityApplications fills application_name and category_name
// from the fetched application metadata. Activities without a match
// keep an empty name and the "No category" default.
func EnrichActivityApplications(acts []timecamp.Activity, apps map[string]timecamp.Application, log *zap.Logger) {
	enriched := 0
	for i := range acts {
		app, ok := apps[acts[i].ApplicationID.String()]
		if !ok {
			acts[i].ApplicationName = ""
			acts[i].CategoryName = "No category"
			continue
		}
		acts[i].ApplicationName = ApplicationName(app)
		acts[i].CategoryName = CategoryName(app.CategoryID.String())
		enriched++
	}
	log.Info("enriched activities with application details",
		zap.Int("enriched", enriched), zap.Int("activities", len(acts)))
}

// ClearActivityApplications resets the application fields to their
// defaults, used when application enrichment is disabled.
func ClearActivityApplications(acts []timecamp.Activity) {
	for i := range acts {
		acts[i].ApplicationName = ""
		acts[i].CategoryName = "No category"
	}
}
