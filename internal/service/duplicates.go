package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
)

// LooseSignature is email plus the sorted eventTicketId:count multiset
func LooseSignature(reg *domain.Registration) string {
	counts := make(map[string]int)
	for _, t := range reg.Tickets {
		counts[t.EventTicketID] += t.Quantity
	}
	pairs := make([]string, 0, len(counts))
	for id, n := range counts {
		pairs = append(pairs, fmt.Sprintf("%s:%d", id, n))
	}
	sort.Strings(pairs)
	return reg.Email() + "|" + strings.Join(pairs, ",")
}

// StrictSignature adds the sorted (first,last,email) attendee tuples
func StrictSignature(reg *domain.Registration) string {
	people := make([]string, 0, len(reg.Attendees))
	for _, a := range reg.Attendees {
		people = append(people, strings.Join([]string{
			normalizeName(a.FirstName),
			normalizeName(a.LastName),
			normalizeName(a.Email),
		}, "|"))
	}
	sort.Strings(people)
	return LooseSignature(reg) + "#" + strings.Join(people, ";")
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

type signatureEntry struct {
	ids   []string
	confs []string
	email string
	// strict signatures seen under a loose one
	variants map[string]bool
}

// DuplicateDetector accumulates signatures over a stream of registrations
type DuplicateDetector struct {
	scanned int
	loose   map[string]*signatureEntry
	strict  map[string]*signatureEntry
}

// NewDuplicateDetector creates an empty detector
func NewDuplicateDetector() *DuplicateDetector {
	return &DuplicateDetector{
		loose:  make(map[string]*signatureEntry),
		strict: make(map[string]*signatureEntry),
	}
}

// Add records one registration. Registrations without an email cannot be
// signed and are only counted.
func (d *DuplicateDetector) Add(reg *domain.Registration) {
	d.scanned++
	email := reg.Email()
	if email == "" {
		return
	}

	loose, strict := LooseSignature(reg), StrictSignature(reg)
	add := func(m map[string]*signatureEntry, sig string) *signatureEntry {
		e, ok := m[sig]
		if !ok {
			e = &signatureEntry{email: email, variants: map[string]bool{}}
			m[sig] = e
		}
		e.ids = append(e.ids, reg.RegistrationID)
		e.confs = append(e.confs, reg.ConfirmationNumber)
		return e
	}
	add(d.strict, strict)
	add(d.loose, loose).variants[strict] = true
}

// Report returns strict collisions as duplicates and loose-only collisions
// as same-booker groups
func (d *DuplicateDetector) Report() *domain.DuplicateReport {
	report := &domain.DuplicateReport{
		Scanned:    d.scanned,
		Duplicates: []domain.DuplicateGroup{},
		SameBooker: []domain.DuplicateGroup{},
	}
	for _, sig := range sortedKeys(d.strict) {
		e := d.strict[sig]
		if len(e.ids) > 1 {
			report.Duplicates = append(report.Duplicates, e.group(sig, true))
		}
	}
	for _, sig := range sortedKeys(d.loose) {
		e := d.loose[sig]
		if len(e.ids) > 1 && len(e.variants) > 1 {
			report.SameBooker = append(report.SameBooker, e.group(sig, false))
		}
	}
	return report
}

func (e *signatureEntry) group(sig string, strict bool) domain.DuplicateGroup {
	return domain.DuplicateGroup{
		Signature:           sig,
		Email:               e.email,
		Strict:              strict,
		RegistrationIDs:     append([]string(nil), e.ids...),
		ConfirmationNumbers: append([]string(nil), e.confs...),
	}
}

// FindDuplicates runs the detector over a slice
func FindDuplicates(regs []*domain.Registration) *domain.DuplicateReport {
	d := NewDuplicateDetector()
	for _, r := range regs {
		d.Add(r)
	}
	return d.Report()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
