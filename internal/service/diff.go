package service

import (
	"reflect"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/repository"
)

// Paths whose stored value is never overwritten
var ignoredPaths = map[string]bool{
	"_id":       true,
	"createdAt": true,
	"updatedAt": true,
}

// Legacy payload keys superseded by canonical ones
var legacyDataKeys = []string{"selectedTickets", "billingDetails"}

// FieldChange is one staged operation with its before and after values
type FieldChange struct {
	Path   string      `json:"path"`
	Before interface{} `json:"before,omitempty"`
	After  interface{} `json:"after,omitempty"`
}

// Changeset is the minimal update moving a stored document to canonical form
type Changeset struct {
	Set   []FieldChange `json:"set"`
	Unset []FieldChange `json:"unset"`
}

// Len returns the number of staged operations
func (c *Changeset) Len() int {
	return len(c.Set) + len(c.Unset)
}

// SetPaths lists the paths staged for $set
func (c *Changeset) SetPaths() []string {
	out := make([]string, len(c.Set))
	for i, f := range c.Set {
		out[i] = f.Path
	}
	return out
}

// UnsetPaths lists the paths staged for $unset
func (c *Changeset) UnsetPaths() []string {
	out := make([]string, len(c.Unset))
	for i, f := range c.Unset {
		out[i] = f.Path
	}
	return out
}

// Update converts the changeset for the document store
func (c *Changeset) Update() repository.Update {
	u := repository.Update{Set: bson.M{}, Unset: c.UnsetPaths()}
	for _, f := range c.Set {
		u.Set[f.Path] = f.After
	}
	return u
}

// CanonicalFields renders the paths the reconciler owns and the legacy paths
// it supersedes. A parent path and one of its children are never both set.
func CanonicalFields(raw *domain.RawRegistration, reg *domain.Registration) (bson.M, []string) {
	set := bson.M{}
	var unset []string

	for camel, v := range reg.RootFields {
		set[camel] = v
	}
	for snake := range domain.RootFieldRenames {
		if _, ok := raw.Doc[snake]; ok {
			unset = append(unset, snake)
		}
	}
	if _, ok := domain.ParseRegistrationType(string(reg.Type)); ok {
		set["registrationType"] = string(reg.Type)
	}

	payload := canonicalPayload(reg)
	switch {
	case raw.HasCanonicalData:
		for k, v := range payload {
			set[domain.DataKeyCanonical+"."+k] = v
		}
		for _, k := range legacyDataKeys {
			if _, ok := raw.Data[k]; ok {
				unset = append(unset, domain.DataKeyCanonical+"."+k)
			}
		}
		if raw.HasLegacyData {
			unset = append(unset, domain.DataKeyLegacy)
		}
	case raw.HasLegacyData:
		data := domain.CloneDocument(raw.Data)
		for _, k := range legacyDataKeys {
			delete(data, k)
		}
		for k, v := range payload {
			data[k] = v
		}
		set[domain.DataKeyCanonical] = data
		unset = append(unset, domain.DataKeyLegacy)
	}

	sort.Strings(unset)
	return set, unset
}

func canonicalPayload(reg *domain.Registration) bson.M {
	tickets := make(bson.A, 0, len(reg.Tickets))
	for i := range reg.Tickets {
		tickets = append(tickets, reg.Tickets[i].Document())
	}
	payload := bson.M{"tickets": tickets}

	if reg.BookingContact != nil {
		payload["bookingContact"] = reg.BookingContact.Document()
	}
	if len(reg.Attendees) > 0 {
		attendees := make(bson.A, 0, len(reg.Attendees))
		for i := range reg.Attendees {
			attendees = append(attendees, reg.Attendees[i].Document())
		}
		payload["attendees"] = attendees
	}
	if reg.PackageExpanded {
		payload["packageExpanded"] = true
	}
	return payload
}

// Diff stages a $set for every owned path whose stored value differs and an
// $unset for every superseded path still present
func Diff(stored bson.M, set bson.M, unset []string) *Changeset {
	c := &Changeset{Set: []FieldChange{}, Unset: []FieldChange{}}

	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		before, ok := domain.Lookup(stored, p)
		if ok && (ignoredPaths[rootOf(p)] || equalValues(before, set[p])) {
			continue
		}
		c.Set = append(c.Set, FieldChange{Path: p, Before: before, After: set[p]})
	}
	for _, p := range unset {
		if ignoredPaths[rootOf(p)] {
			continue
		}
		if before, ok := domain.Lookup(stored, p); ok {
			c.Unset = append(c.Unset, FieldChange{Path: p, Before: before})
		}
	}
	return c
}

func rootOf(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}

// equalValues compares BSON values structurally. Numbers compare by value
// across int32, int64 and double; documents ignore key order.
func equalValues(a, b interface{}) bool {
	if fa, ok := domain.NumberValue(a); ok {
		fb, ok := domain.NumberValue(b)
		return ok && fa == fb
	}
	if ta, ok := timeOf(a); ok {
		tb, ok := timeOf(b)
		return ok && ta.Equal(tb)
	}
	if da, ok := domain.AsDocument(a); ok {
		db, ok := domain.AsDocument(b)
		if !ok || len(da) != len(db) {
			return false
		}
		for k, va := range da {
			vb, ok := db[k]
			if !ok || !equalValues(va, vb) {
				return false
			}
		}
		return true
	}
	if aa, ok := domain.AsArray(a); ok {
		ab, ok := domain.AsArray(b)
		if !ok || len(aa) != len(ab) {
			return false
		}
		for i := range aa {
			if !equalValues(aa[i], ab[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func timeOf(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.Truncate(time.Millisecond), true
	case primitive.DateTime:
		return t.Time(), true
	}
	return time.Time{}, false
}
