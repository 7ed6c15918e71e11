// Package report categorizes booked entries and renders the user-facing
// status lines and summaries.
package report

import (
	"strings"
	"time"

	"github.com/bryan-cox/tempoledger/internal/model"
)

// ManualTargetKey labels booking-system hours with no ticket-system counterpart.
const ManualTargetKey = "OVERHEAD (Tempo)"

// IsOverhead reports whether key belongs to the overhead project.
// An empty prefix matches nothing.
func IsOverhead(key, prefix string) bool {
	if prefix == "" {
		return false
	}
	return strings.HasPrefix(strings.ToUpper(key), strings.ToUpper(prefix))
}

// Partition splits ticket-system entries of one date.
type Partition struct {
	Overhead []model.WorkEntry
	Work     []model.WorkEntry
}

// CategorizeEntries groups entries into overhead and non-overhead work.
func CategorizeEntries(entries []model.WorkEntry, prefix string) Partition {
	var p Partition
	for _, e := range entries {
		if IsOverhead(e.TargetKey, prefix) {
			p.Overhead = append(p.Overhead, e)
		} else {
			p.Work = append(p.Work, e)
		}
	}
	return p
}

// ManualOnlySeconds returns booking-system time that was never entered
// through the ticket system.
func ManualOnlySeconds(bookingTotal, ticketTotal int) int {
	if bookingTotal <= ticketTotal {
		return 0
	}
	return bookingTotal - ticketTotal
}

// ManualEntry represents manual-only seconds as a preserved entry.
func ManualEntry(seconds int, date time.Time) model.WorkEntry {
	return model.WorkEntry{
		TargetKey:       ManualTargetKey,
		TargetLabel:     "Manual Tempo entries",
		DurationSeconds: seconds,
		Date:            date,
	}
}
