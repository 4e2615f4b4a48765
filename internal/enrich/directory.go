package enrich

import (
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/tcsync/tcetl/internal/timecamp"
)

// maxGroupDepth bounds the parent walk. The walk treats anything deeper
// as having reached a root, so a corrupted payload with a parent cycle
// cannot hang the run.
const maxGroupDepth = 32

type userRecord struct {
	email       string
	displayName string
	groupIDs    []string
}

// Directory indexes a people_picker payload for enrichment lookups:
// users by id (with and without the u prefix), groups by document key,
// and precomputed root-to-leaf breadcrumbs per group.
type Directory struct {
	log     *zap.Logger
	users   map[string]*userRecord
	userIDs []string
	groups  timecamp.GroupMap
	crumbs  map[string][]string
}

// NewDirectory builds a Directory from the people_picker payload.
func NewDirectory(pp *timecamp.PeoplePicker, log *zap.Logger) *Directory {
	d := &Directory{
		log:    log.Named("directory"),
		users:  make(map[string]*userRecord, len(pp.Users)),
		groups: pp.Groups,
		crumbs: make(map[string][]string, pp.Groups.Len()),
	}

	var numericIDs []int
	for id, u := range pp.Users {
		rec := &userRecord{email: u.Email, displayName: u.DisplayName}
		d.users[id] = rec
		numeric := strings.TrimPrefix(id, "u")
		if numeric != id {
			d.users[numeric] = rec
		}
		n, err := strconv.Atoi(numeric)
		if err != nil {
			d.log.Warn("skipping non-numeric user id", zap.String("user_id", id))
			continue
		}
		numericIDs = append(numericIDs, n)
	}
	sort.Ints(numericIDs)
	d.userIDs = make([]string, len(numericIDs))
	for i, n := range numericIDs {
		d.userIDs[i] = strconv.Itoa(n)
	}

	// Group order decides each user's primary group, so walk the groups
	// exactly as the document lists them.
	for _, gid := range pp.Groups.IDs() {
		d.crumbs[gid] = d.walkBreadcrumb(gid)
		g, _ := pp.Groups.Get(gid)
		for uid := range g.Users {
			if rec, ok := d.users[uid]; ok {
				rec.groupIDs = append(rec.groupIDs, gid)
			}
		}
	}

	d.log.Debug("directory indexed",
		zap.Int("users", len(pp.Users)), zap.Int("groups", pp.Groups.Len()))
	return d
}

// resolveGroupKey finds the document key for a group id, retrying with
// the g prefix toggled before giving up.
func (d *Directory) resolveGroupKey(id string) (string, bool) {
	if _, ok := d.groups.Get(id); ok {
		return id, true
	}
	alt := "g" + id
	if strings.HasPrefix(id, "g") {
		alt = strings.TrimPrefix(id, "g")
	}
	if _, ok := d.groups.Get(alt); ok {
		return alt, true
	}
	return "", false
}

// walkBreadcrumb climbs parent links from groupID to a root and returns
// the names in root-to-leaf order. An unknown parent terminates the
// walk, keeping what was collected.
func (d *Directory) walkBreadcrumb(groupID string) []string {
	id, ok := d.resolveGroupKey(groupID)
	if !ok {
		return nil
	}
	var names []string
	for depth := 0; depth < maxGroupDepth; depth++ {
		g, ok := d.groups.Get(id)
		if !ok {
			break
		}
		names = append(names, g.Name)
		parent := g.ParentID.String()
		if parent == "" || parent == "0" {
			break
		}
		next, ok := d.resolveGroupKey(parent)
		if !ok {
			break
		}
		id = next
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return names
}

// Breadcrumb returns the root-to-leaf group names for a group id, with
// the g prefix toggled on lookup failure. Unknown groups yield nil.
func (d *Directory) Breadcrumb(groupID string) []string {
	id, ok := d.resolveGroupKey(groupID)
	if !ok {
		return nil
	}
	return d.crumbs[id]
}

// UserInfo is the enrichment view of one user.
type UserInfo struct {
	Email       string
	DisplayName string
	GroupName   string
	Breadcrumb  []string
	Found       bool
}

// Lookup resolves a user id, with or without the u prefix, to its
// enrichment view. Unknown users get the zero view, all fields empty.
// A known user's group fields come from the primary group: the first
// group in document order that lists the user.
func (d *Directory) Lookup(userID string) UserInfo {
	rec, ok := d.users[userID]
	if !ok {
		return UserInfo{}
	}
	info := UserInfo{Email: rec.email, DisplayName: rec.displayName, Found: true}
	if len(rec.groupIDs) > 0 {
		gid := rec.groupIDs[0]
		g, _ := d.groups.Get(gid)
		info.GroupName = g.Name
		info.Breadcrumb = d.crumbs[gid]
	}
	return info
}

// NumericUserIDs returns every directory user id with the u prefix
// stripped, numerically sorted. Non-numeric ids are logged and skipped.
func (d *Directory) NumericUserIDs() []string {
	return d.userIDs
}
