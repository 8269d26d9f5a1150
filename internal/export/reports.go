package export

import (
	"strings"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/service"
)

// TicketCountsReport lists computed counts per event ticket
func TicketCountsReport(r *service.TicketCountReport) *Report {
	counts := Table{
		Name: "Ticket Counts",
		Headers: []string{
			"Event Ticket ID", "Name", "Capacity", "Sold", "Reserved",
			"Cancelled", "Available", "Utilization", "Revenue",
		},
	}
	for _, c := range r.Counts {
		counts.Rows = append(counts.Rows, []interface{}{
			c.EventTicketID, c.Name, c.TotalCapacity, c.SoldCount, c.ReservedCount,
			c.CancelledCount, c.AvailableCount, c.UtilizationRate, c.Revenue.Major(),
		})
	}
	return &Report{
		Name:    "ticket-counts",
		Payload: r,
		Tables:  []Table{counts, DiscrepancyTable("Cached Fields", r.CachedFields)},
	}
}

// DiscrepancyTable renders discrepancy records of any kind
func DiscrepancyTable(name string, ds []domain.Discrepancy) Table {
	t := Table{
		Name: name,
		Headers: []string{
			"Kind", "Registration ID", "Confirmation", "Ticket ID", "Event Ticket ID",
			"Current Name", "Correct Name", "Current Price", "Correct Price",
			"Field", "Current Value", "Correct Value", "Reason",
		},
	}
	for _, d := range ds {
		row := []interface{}{
			string(d.Kind), d.RegistrationID, d.ConfirmationNumber, d.TicketID, d.EventTicketID,
			d.CurrentName, d.CorrectName, nil, nil,
			d.Field, d.CurrentValue, d.CorrectValue, d.Reason,
		}
		if d.Kind == domain.DiscrepancyTicketMismatch {
			row[7], row[8] = d.CurrentPrice.Major(), d.CorrectPrice.Major()
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// DiscrepanciesReport exports a discrepancy list
func DiscrepanciesReport(name string, ds []domain.Discrepancy) *Report {
	return &Report{
		Name:    name,
		Payload: ds,
		Tables:  []Table{DiscrepancyTable("Discrepancies", ds)},
	}
}

// DuplicatesReport lists strict duplicates then same-booker groups
func DuplicatesReport(r *domain.DuplicateReport) *Report {
	t := Table{
		Name:    "Duplicates",
		Headers: []string{"Group", "Email", "Strict", "Registrations", "Registration IDs", "Confirmation Numbers"},
	}
	add := func(kind string, groups []domain.DuplicateGroup) {
		for _, g := range groups {
			t.Rows = append(t.Rows, []interface{}{
				kind, g.Email, g.Strict, len(g.RegistrationIDs),
				strings.Join(g.RegistrationIDs, ";"), strings.Join(g.ConfirmationNumbers, ";"),
			})
		}
	}
	add("duplicate", r.Duplicates)
	add("same_booker", r.SameBooker)
	return &Report{Name: "duplicates", Payload: r, Tables: []Table{t}}
}

// RunReport exports a run summary with per-document outcomes
func RunReport(s *domain.RunSummary) *Report {
	outcomes := Table{
		Name:    "Outcomes",
		Headers: []string{"Registration ID", "Status", "Reason", "Set", "Unset"},
	}
	for _, o := range s.Outcomes {
		outcomes.Rows = append(outcomes.Rows, []interface{}{
			o.RegistrationID, string(o.Status), o.Reason,
			strings.Join(o.Set, ";"), strings.Join(o.Unset, ";"),
		})
	}
	return &Report{
		Name:    "reconcile-run",
		Payload: s,
		Tables:  []Table{outcomes, DiscrepancyTable("Discrepancies", s.Discrepancies)},
	}
}

// SummaryReport exports registration counts by type and payment status
func SummaryReport(s *service.RegistrationSummary) *Report {
	t := Table{Name: "Summary", Headers: []string{"Group", "Key", "Count", "Sum"}}
	add := func(group string, rows []service.GroupCount) {
		for _, r := range rows {
			t.Rows = append(t.Rows, []interface{}{group, r.Key, r.Count, r.Sum})
		}
	}
	t.Rows = append(t.Rows, []interface{}{"total", "", s.Total, 0.0})
	add("registrationType", s.ByType)
	add("paymentStatus", s.ByPaymentStatus)
	add("ticketStatus", s.TicketsByStatus)
	return &Report{Name: "registrations", Payload: s, Tables: []Table{t}}
}

// MatchReport exports payment matches
func MatchReport(r *service.MatchReport) *Report {
	t := Table{
		Name:    "Payment Matches",
		Headers: []string{"Payment ID", "Provider", "Registration ID", "Confirmation", "Method", "Confidence", "Issues"},
	}
	for _, m := range r.Matches {
		t.Rows = append(t.Rows, []interface{}{
			m.PaymentID, m.Provider, m.RegistrationID, m.ConfirmationNumber,
			string(m.Method), m.Confidence, strings.Join(m.Issues, "; "),
		})
	}
	return &Report{Name: "payment-matches", Payload: r, Tables: []Table{t}}
}

// AuditReport exports a source audit
func AuditReport(r *service.AuditResult) *Report {
	return &Report{
		Name:    "source-audit",
		Payload: r,
		Tables:  []Table{DiscrepancyTable("Source Mismatches", r.Discrepancies)},
	}
}

// PaymentVerificationReport exports a verify-payments pass
func PaymentVerificationReport(r *service.PaymentVerification) *Report {
	return &Report{
		Name:    "payment-verification",
		Payload: r,
		Tables:  []Table{DiscrepancyTable("Payment Discrepancies", r.Discrepancies)},
	}
}
