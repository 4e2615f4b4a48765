package timecamp

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tcsync/tcetl/internal/jsonutil"
)

// TimeEntry is one row of the entries endpoint, plus the enrichment
// fields filled in before records leave the pipeline. Enrichment fields
// are always serialized, defaulting to the empty string.
type TimeEntry struct {
	ID               jsonutil.FlexInt    `json:"id"`
	Duration         jsonutil.FlexString `json:"duration"`
	UserID           jsonutil.FlexString `json:"user_id"`
	UserName         string              `json:"user_name"`
	TaskID           jsonutil.FlexString `json:"task_id"`
	TaskNote         string              `json:"task_note"`
	LastModify       string              `json:"last_modify"`
	Date             string              `json:"date"`
	StartTime        string              `json:"start_time"`
	EndTime          string              `json:"end_time"`
	Locked           jsonutil.FlexString `json:"locked"`
	Name             string              `json:"name"`
	AddonsExternalID jsonutil.FlexString `json:"addons_external_id"`
	Billable         jsonutil.FlexInt    `json:"billable"`
	InvoiceID        jsonutil.FlexString `json:"invoiceId"`
	Color            string              `json:"color"`
	Description      string              `json:"description"`
	HasLocation      jsonutil.FlexBool   `json:"hasEntryLocationHistory"`
	ProjectID        jsonutil.FlexInt    `json:"project_id"`
	ProjectName      string              `json:"project_name"`
	TotalCost        jsonutil.FlexFloat  `json:"total_cost"`
	TotalIncome      jsonutil.FlexFloat  `json:"total_income"`
	RateIncome       jsonutil.FlexFloat  `json:"rate_income"`
	Tags             json.RawMessage     `json:"tags,omitempty"`
	Breadcrumps      string              `json:"breadcrumps"`

	Email            string `json:"email"`
	GroupName        string `json:"group_name"`
	BreadcrumbLevel1 string `json:"group_breadcrumb_level_1"`
	BreadcrumbLevel2 string `json:"group_breadcrumb_level_2"`
	BreadcrumbLevel3 string `json:"group_breadcrumb_level_3"`
	BreadcrumbLevel4 string `json:"group_breadcrumb_level_4"`
}

// Activity is one row of the computer activity endpoint, plus the user
// and application enrichment fields.
type Activity struct {
	UserID        jsonutil.FlexString `json:"user_id"`
	ApplicationID jsonutil.FlexString `json:"application_id"`
	WindowTitleID jsonutil.FlexString `json:"window_title_id"`
	WindowTitle   string              `json:"window_title"`
	TimeSpan      jsonutil.FlexInt    `json:"time_span"`
	EndTime       string              `json:"end_time"`

	Email            string `json:"email"`
	DisplayName      string `json:"display_name"`
	GroupName        string `json:"group_name"`
	BreadcrumbLevel1 string `json:"group_breadcrumb_level_1"`
	BreadcrumbLevel2 string `json:"group_breadcrumb_level_2"`
	BreadcrumbLevel3 string `json:"group_breadcrumb_level_3"`
	BreadcrumbLevel4 string `json:"group_breadcrumb_level_4"`
	ApplicationName  string `json:"application_name"`
	CategoryName     string `json:"category_name"`
}

// Application is one row of the application metadata endpoint.
type Application struct {
	ApplicationID  jsonutil.FlexString `json:"application_id"`
	AppName        string              `json:"app_name"`
	FullName       string              `json:"full_name"`
	AdditionalInfo string              `json:"aditional_info"` // the API misspells this field
	CategoryID     jsonutil.FlexString `json:"category_id"`
}

// APIUser is one row of the users endpoint. IsEnabled is not on the
// wire; Users resolves it in bulk through the settings endpoint.
type APIUser struct {
	UserID      jsonutil.FlexString `json:"user_id"`
	Email       string              `json:"email"`
	DisplayName string              `json:"display_name"`
	IsEnabled   bool                `json:"is_enabled"`
}

// User is one entry of the people_picker users object.
type User struct {
	UserID      jsonutil.FlexString `json:"user_id"`
	Email       string              `json:"email"`
	DisplayName string              `json:"display_name"`
}

// Group is one entry of the group list or the people_picker groups
// object. A ParentID of "" or "0" marks a root group.
type Group struct {
	GroupID  jsonutil.FlexString `json:"group_id"`
	Name     string              `json:"name"`
	ParentID jsonutil.FlexString `json:"parent_id"`
	Users    UserRefs            `json:"users"`
}

// UserRef is a group membership record.
type UserRef struct {
	RoleID jsonutil.FlexString `json:"role_id"`
}

// UserRefs is the membership map of a group. The API sends either an
// object keyed by user id or an empty array; an array decodes to nil.
type UserRefs map[string]UserRef

func (u *UserRefs) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || raw[0] == '[' {
		*u = nil
		return nil
	}
	m := map[string]UserRef{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("decode group users: %w", err)
	}
	*u = m
	return nil
}

// PeoplePicker is the user and group directory used for enrichment.
type PeoplePicker struct {
	Users  map[string]User `json:"users"`
	Groups GroupMap        `json:"groups"`
}

// GroupMap holds the people_picker groups keyed by their document key
// (often g-prefixed), preserving document order. Primary group selection
// takes the first group containing a user, so decode order must match
// the payload.
type GroupMap struct {
	ids    []string
	groups map[string]Group
}

func (m *GroupMap) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	*m = GroupMap{}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || raw[0] == '[' {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode groups: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("decode groups: expected object, got %v", tok)
	}
	m.groups = make(map[string]Group)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode groups: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("decode groups: unexpected key %v", keyTok)
		}
		var g Group
		if err := dec.Decode(&g); err != nil {
			return fmt.Errorf("decode group %q: %w", key, err)
		}
		if _, dup := m.groups[key]; !dup {
			m.ids = append(m.ids, key)
		}
		m.groups[key] = g
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode groups: %w", err)
	}
	return nil
}

// IDs returns the group keys in document order.
func (m GroupMap) IDs() []string { return m.ids }

// Get returns the group stored under the exact key.
func (m GroupMap) Get(id string) (Group, bool) {
	g, ok := m.groups[id]
	return g, ok
}

// Len returns the number of groups.
func (m GroupMap) Len() int { return len(m.ids) }

// UserSetting is one row of the user settings endpoint.
type UserSetting struct {
	UserID jsonutil.FlexString `json:"userId"`
	Name   string              `json:"name"`
	Value  jsonutil.FlexString `json:"value"`
}

// decodeSettings parses both response shapes of the settings endpoint,
// an object keyed by user id or a flat list, keeping the first value
// seen per user for the named setting.
func decodeSettings(data []byte, name string) (map[string]string, error) {
	raw := bytes.TrimSpace(data)
	out := make(map[string]string)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out, nil
	}
	if raw[0] == '[' {
		var list []UserSetting
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode settings list: %w", err)
		}
		for _, s := range list {
			if s.Name != name {
				continue
			}
			if _, ok := out[s.UserID.String()]; !ok {
				out[s.UserID.String()] = s.Value.String()
			}
		}
		return out, nil
	}
	var byUser map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byUser); err != nil {
		return nil, fmt.Errorf("decode settings object: %w", err)
	}
	for uid, rawSettings := range byUser {
		var list []UserSetting
		if err := json.Unmarshal(rawSettings, &list); err != nil {
			continue
		}
		for _, s := range list {
			if s.Name == name {
				out[uid] = s.Value.String()
				break
			}
		}
	}
	return out, nil
}
