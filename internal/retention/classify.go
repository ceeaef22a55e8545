package retention

import "time"

// Decision is the retention outcome for one record.
type Decision string

const (
	DecisionKeptMonthly Decision = "kept-monthly"
	DecisionKeptWeekly  Decision = "kept-weekly"
	DecisionKeptDaily   Decision = "kept-daily"
	DecisionDelete      Decision = "delete"
)

// Kept pairs a retained record with the highest-priority bucket that
// admitted it (monthly > weekly > daily), for reporting.
type Kept struct {
	Record   Record
	Decision Decision
}

// Result partitions a backup set into records to keep and records to delete.
// Every input record appears in exactly one of the two slices.
type Result struct {
	Kept     []Kept
	ToDelete []Record
}

type monthKey struct {
	year  int
	month time.Month
}

type weekKey struct {
	year int
	week int
}

// Classify runs the tiered retention policy over records, which must already
// be in descending date order (ParseListing output).
//
// Each record is tested against all three buckets in monthly, weekly, daily
// order. Admission into one bucket does not stop the remaining checks: a
// single recent backup may occupy its month's slot, its week's slot and a
// daily slot at once, each counting against that bucket's own capacity.
// Monthly and weekly buckets admit at most one record per (year, month) and
// ISO (year, week) key respectively; the daily bucket simply admits the
// first keepDaily records in iteration order. A record admitted nowhere is
// scheduled for deletion. A capacity of 0 disables its tier.
func Classify(records []Record, keepDaily, keepWeekly, keepMonthly int) Result {
	monthsSeen := make(map[monthKey]bool)
	weeksSeen := make(map[weekKey]bool)
	monthlyCount := 0
	weeklyCount := 0
	dailyCount := 0

	result := Result{
		Kept:     make([]Kept, 0, len(records)),
		ToDelete: make([]Record, 0),
	}

	for _, rec := range records {
		decision := DecisionDelete

		mk := monthKey{year: rec.Date.Year(), month: rec.Date.Month()}
		if monthlyCount < keepMonthly && !monthsSeen[mk] {
			monthsSeen[mk] = true
			monthlyCount++
			decision = DecisionKeptMonthly
		}

		isoYear, isoWeek := rec.Date.ISOWeek()
		wk := weekKey{year: isoYear, week: isoWeek}
		if weeklyCount < keepWeekly && !weeksSeen[wk] {
			weeksSeen[wk] = true
			weeklyCount++
			if decision == DecisionDelete {
				decision = DecisionKeptWeekly
			}
		}

		if dailyCount < keepDaily {
			dailyCount++
			if decision == DecisionDelete {
				decision = DecisionKeptDaily
			}
		}

		if decision == DecisionDelete {
			result.ToDelete = append(result.ToDelete, rec)
			continue
		}
		result.Kept = append(result.Kept, Kept{Record: rec, Decision: decision})
	}

	return result
}

// Stats returns the number of kept records per decision.
func (r Result) Stats() map[Decision]int {
	stats := make(map[Decision]int)
	for _, k := range r.Kept {
		stats[k.Decision]++
	}
	stats[DecisionDelete] = len(r.ToDelete)
	return stats
}
