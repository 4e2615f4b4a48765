package timecamp_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tcsync/tcetl/internal/config"
	"github.com/tcsync/tcetl/internal/timecamp"
)

func newTestClient(t *testing.T, handler http.Handler) (*timecamp.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.TimeCampConfig{APIKey: "test-key", Domain: "app.timecamp.com"}
	c := timecamp.NewClient(context.Background(), cfg, zap.NewNop(),
		timecamp.WithBaseURL(srv.URL),
		timecamp.WithRetryBase(time.Millisecond))
	return c, srv
}

func TestTimeEntriesRequest(t *testing.T) {
	var gotAuth, gotQuery string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/entries" {
			t.Errorf("path = %s, want /entries", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `[{"id":1001,"user_id":"42","date":"2024-02-14","duration":"3600"}]`)
	}))

	entries, err := c.TimeEntries(context.Background(), timecamp.TimeEntriesQuery{
		From:           "2024-02-14",
		To:             "2024-02-14",
		IncludeProject: true,
		IncludeRates:   true,
		OptFields:      "tags,breadcrumps",
	})
	if err != nil {
		t.Fatalf("TimeEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].ID.Int64() != 1001 || entries[0].UserID.String() != "42" {
		t.Errorf("entries = %+v, want one entry with id 1001 user 42", entries)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer test-key")
	}
	for _, want := range []string{"from=2024-02-14", "to=2024-02-14", "format=json",
		"include_project=1", "include_rates=1", "opt_fields=tags%2Cbreadcrumps"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestRequestRetriesRateLimit(t *testing.T) {
	var calls atomic.Int64
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `[]`)
	}))

	_, err := c.TimeEntries(context.Background(), timecamp.TimeEntriesQuery{From: "2024-02-14", To: "2024-02-14"})
	if err != nil {
		t.Fatalf("TimeEntries after retries: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("request count = %d, want 3 (two 429s then success)", got)
	}
}

func TestRequestRetryBudgetExceeded(t *testing.T) {
	var calls atomic.Int64
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.TimeEntries(context.Background(), timecamp.TimeEntriesQuery{From: "2024-02-14", To: "2024-02-14"})
	if !errors.Is(err, timecamp.ErrRetryBudgetExceeded) {
		t.Fatalf("err = %v, want ErrRetryBudgetExceeded", err)
	}
	if got := calls.Load(); got != 5 {
		t.Errorf("request count = %d, want 5 attempts", got)
	}
}

func TestRequestServerErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int64
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := c.TimeEntries(context.Background(), timecamp.TimeEntriesQuery{From: "2024-02-14", To: "2024-02-14"})
	var apiErr *timecamp.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", apiErr.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("request count = %d, want 1 (no retry on 500)", got)
	}
}

func TestUserSettingsBatching(t *testing.T) {
	var batchSizes []int
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// path shape: /user/{ids}/setting
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 || parts[0] != "user" || parts[2] != "setting" {
			t.Errorf("path = %s, want /user/{ids}/setting", r.URL.Path)
		}
		if got := r.URL.Query().Get("name[]"); got != "disabled_user" {
			t.Errorf("name[] = %q, want disabled_user", got)
		}
		ids := strings.Split(parts[1], ",")
		batchSizes = append(batchSizes, len(ids))

		resp := make(map[string][]map[string]string)
		for _, id := range ids {
			resp[id] = []map[string]string{{"name": "disabled_user", "value": "0"}}
		}
		json.NewEncoder(w).Encode(resp)
	}))

	ids := make([]string, 120)
	for i := range ids {
		ids[i] = fmt.Sprint(i + 1)
	}
	values, err := c.UserSettings(context.Background(), ids, "disabled_user")
	if err != nil {
		t.Fatalf("UserSettings: %v", err)
	}
	if len(values) != 120 {
		t.Errorf("settings count = %d, want 120", len(values))
	}
	want := []int{50, 50, 20}
	if len(batchSizes) != len(want) {
		t.Fatalf("batch sizes = %v, want %v", batchSizes, want)
	}
	for i := range want {
		if batchSizes[i] != want[i] {
			t.Errorf("batch %d size = %d, want %d", i, batchSizes[i], want[i])
		}
	}
}

func TestUserSettingsLegacyListFormat(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"userId":"1","name":"disabled_user","value":"1"},
			{"userId":"2","name":"other_setting","value":"x"},
			{"userId":"3","name":"disabled_user","value":"0"}
		]`)
	}))

	values, err := c.UserSettings(context.Background(), []string{"1", "2", "3"}, "disabled_user")
	if err != nil {
		t.Fatalf("UserSettings: %v", err)
	}
	if values["1"] != "1" || values["3"] != "0" {
		t.Errorf("values = %v, want 1:\"1\" 3:\"0\"", values)
	}
	if _, ok := values["2"]; ok {
		t.Errorf("user 2 has no disabled_user setting, got %q", values["2"])
	}
}

func TestUsersEnabled(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"1": [{"name":"disabled_user","value":"1"}],
			"2": [{"name":"disabled_user","value":"0"}]
		}`)
	}))

	enabled, err := c.UsersEnabled(context.Background(), []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("UsersEnabled: %v", err)
	}
	tests := []struct {
		id   string
		want bool
	}{
		{"1", false},
		{"2", true},
		{"3", true}, // no setting means enabled
	}
	for _, tt := range tests {
		if enabled[tt.id] != tt.want {
			t.Errorf("enabled[%s] = %v, want %v", tt.id, enabled[tt.id], tt.want)
		}
	}
}

func TestComputerActivitiesDateBatching(t *testing.T) {
	type call struct {
		dates int
		user  string
	}
	var calls []call
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		n := 0
		for i := 0; ; i++ {
			if q.Get(fmt.Sprintf("dates[%d]", i)) == "" {
				break
			}
			n++
		}
		calls = append(calls, call{dates: n, user: q.Get("user_id")})
		fmt.Fprintf(w, `[{"user_id":%q,"application_id":"9","time_span":60,"end_time":"2024-02-14 10:00:00"}]`, q.Get("user_id"))
	}))

	dates := make([]string, 45)
	for i := range dates {
		dates[i] = fmt.Sprintf("2024-01-%02d", i%28+1)
	}
	acts, err := c.ComputerActivities(context.Background(), timecamp.ActivitiesQuery{
		Dates:   dates,
		Include: "application,window_title",
		UserIDs: []string{"7", "8"},
	})
	if err != nil {
		t.Fatalf("ComputerActivities: %v", err)
	}
	// 45 dates split 20/20/5, times two users.
	if len(calls) != 6 {
		t.Fatalf("request count = %d, want 6", len(calls))
	}
	wantDates := []int{20, 20, 20, 20, 5, 5}
	for i, cl := range calls {
		if cl.dates != wantDates[i] {
			t.Errorf("call %d dates = %d, want %d", i, cl.dates, wantDates[i])
		}
		if cl.user == "" {
			t.Errorf("call %d missing user_id", i)
		}
	}
	if len(acts) != 6 {
		t.Errorf("activities = %d, want 6 (one per request)", len(acts))
	}
}

func TestComputerActivitiesSkipsFailedPair(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("user_id") == "7" {
			http.Error(w, "no access", http.StatusForbidden)
			return
		}
		fmt.Fprint(w, `[{"user_id":"8","application_id":"9","time_span":60,"end_time":"2024-02-14 10:00:00"}]`)
	}))

	acts, err := c.ComputerActivities(context.Background(), timecamp.ActivitiesQuery{
		Dates:   []string{"2024-02-14"},
		UserIDs: []string{"7", "8"},
	})
	if err != nil {
		t.Fatalf("ComputerActivities: %v", err)
	}
	if len(acts) != 1 || acts[0].UserID.String() != "8" {
		t.Errorf("activities = %+v, want only user 8", acts)
	}
}

func TestApplicationsChunking(t *testing.T) {
	var batchSizes []int
	var dateParams []string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids := strings.Split(r.URL.Query().Get("application_ids"), ",")
		batchSizes = append(batchSizes, len(ids))
		dateParams = append(dateParams, r.URL.Query().Get("date"))
		resp := make(map[string]map[string]string)
		for _, id := range ids {
			resp[id] = map[string]string{"app_name": "app-" + id}
		}
		json.NewEncoder(w).Encode(resp)
	}))

	ids := make([]string, 250)
	for i := range ids {
		ids[i] = fmt.Sprint(i + 1)
	}
	apps, err := c.Applications(context.Background(), ids, "2024-02-14")
	if err != nil {
		t.Fatalf("Applications: %v", err)
	}
	if len(apps) != 250 {
		t.Errorf("applications = %d, want 250", len(apps))
	}
	want := []int{200, 50}
	if len(batchSizes) != len(want) || batchSizes[0] != want[0] || batchSizes[1] != want[1] {
		t.Errorf("batch sizes = %v, want %v", batchSizes, want)
	}
	for i, d := range dateParams {
		if d != "2024-02-14" {
			t.Errorf("batch %d date param = %q, want %q", i, d, "2024-02-14")
		}
	}
}

func TestApplicationsOmitsEmptyDate(t *testing.T) {
	var hasDate bool
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasDate = r.URL.Query().Has("date")
		fmt.Fprint(w, `{"1":{"app_name":"firefox"}}`)
	}))

	if _, err := c.Applications(context.Background(), []string{"1"}, ""); err != nil {
		t.Fatalf("Applications: %v", err)
	}
	if hasDate {
		t.Error("empty date should leave the date parameter off the request")
	}
}

func TestApplicationsWithCache(t *testing.T) {
	var fetchedIDs []string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetchedIDs = strings.Split(r.URL.Query().Get("application_ids"), ",")
		fmt.Fprint(w, `{"2":{"app_name":"slack","category_id":"3"}}`)
	}))

	cachePath := filepath.Join(t.TempDir(), "applications_cache.json")
	seed := `{"1":{"app_name":"firefox","category_id":"13"}}`
	if err := os.WriteFile(cachePath, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}
	cache, err := timecamp.LoadAppCache(cachePath, zap.NewNop())
	if err != nil {
		t.Fatalf("LoadAppCache: %v", err)
	}

	apps, err := c.ApplicationsWithCache(context.Background(), cache, []string{"1", "2"}, "2024-02-14")
	if err != nil {
		t.Fatalf("ApplicationsWithCache: %v", err)
	}
	if len(apps) != 2 {
		t.Fatalf("applications = %d, want 2", len(apps))
	}
	if apps["1"].AppName != "firefox" || apps["2"].AppName != "slack" {
		t.Errorf("apps = %+v, want firefox from cache and slack from API", apps)
	}
	if len(fetchedIDs) != 1 || fetchedIDs[0] != "2" {
		t.Errorf("fetched ids = %v, want only the cache miss [2]", fetchedIDs)
	}

	// Cache file now holds both entries.
	reloaded, err := timecamp.LoadAppCache(cachePath, zap.NewNop())
	if err != nil {
		t.Fatalf("reload cache: %v", err)
	}
	if reloaded.Len() != 2 {
		t.Errorf("persisted cache size = %d, want 2", reloaded.Len())
	}
}

func TestGroupMapPreservesDocumentOrder(t *testing.T) {
	payload := `{
		"g30": {"group_id":"30","name":"Zeta","parent_id":"10"},
		"g10": {"group_id":"10","name":"Alpha","parent_id":"0"},
		"g20": {"group_id":"20","name":"Mid","parent_id":"10"}
	}`
	var m timecamp.GroupMap
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []string{"g30", "g10", "g20"}
	got := m.IDs()
	if len(got) != len(want) {
		t.Fatalf("IDs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("IDs[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if g, ok := m.Get("g10"); !ok || g.Name != "Alpha" {
		t.Errorf("Get(g10) = %+v %v, want Alpha", g, ok)
	}
}

func TestUserRefsDecodesBothShapes(t *testing.T) {
	var g timecamp.Group
	if err := json.Unmarshal([]byte(`{"name":"A","users":{"u1":{"role_id":"2"}}}`), &g); err != nil {
		t.Fatalf("object shape: %v", err)
	}
	if len(g.Users) != 1 || g.Users["u1"].RoleID.String() != "2" {
		t.Errorf("users = %+v, want u1 with role 2", g.Users)
	}

	if err := json.Unmarshal([]byte(`{"name":"B","users":[]}`), &g); err != nil {
		t.Fatalf("array shape: %v", err)
	}
	if g.Users != nil {
		t.Errorf("users = %+v, want nil for array shape", g.Users)
	}
}

func TestPeoplePickerDecode(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/people_picker" {
			t.Errorf("path = %s, want /people_picker", r.URL.Path)
		}
		fmt.Fprint(w, `{
			"users": {"u42": {"email":"ada@example.com","display_name":"Ada"}},
			"groups": {"g1": {"group_id":"1","name":"Everyone","parent_id":"0","users":{"u42":{"role_id":"1"}}}}
		}`)
	}))

	pp, err := c.PeoplePicker(context.Background())
	if err != nil {
		t.Fatalf("PeoplePicker: %v", err)
	}
	if u, ok := pp.Users["u42"]; !ok || u.Email != "ada@example.com" {
		t.Errorf("users = %+v, want u42 ada@example.com", pp.Users)
	}
	if pp.Groups.Len() != 1 {
		t.Errorf("groups = %d, want 1", pp.Groups.Len())
	}
}
