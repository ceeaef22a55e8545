package retention

import (
	"fmt"
	"reflect"
	"testing"
	"time"
)

func mustRecords(t *testing.T, names ...string) []Record {
	t.Helper()
	records := ParseListing(names, "", nil)
	if len(records) != len(names) {
		t.Fatalf("test listing contains malformed names: parsed %d of %d", len(records), len(names))
	}
	return records
}

func keptIdentifiers(result Result) []string {
	out := make([]string, 0, len(result.Kept))
	for _, k := range result.Kept {
		out = append(out, k.Record.Identifier)
	}
	return out
}

// Reference scenario: two daily slots, one weekly, one monthly.
//
// 2024-01-10 is first in its month, week and the daily order, so it occupies
// all three slots at once and is reported under its monthly tag. 2024-01-09
// takes the remaining daily slot. Everything older finds every bucket full.
func TestClassifyReferenceScenario(t *testing.T) {
	records := mustRecords(t,
		"2024-01-10.tar.gz",
		"2024-01-09.tar.gz",
		"2024-01-03.tar.gz",
		"2023-12-15.tar.gz",
		"2023-11-01.tar.gz",
	)

	result := Classify(records, 2, 1, 1)

	wantKept := map[string]Decision{
		"2024-01-10.tar.gz": DecisionKeptMonthly,
		"2024-01-09.tar.gz": DecisionKeptDaily,
	}
	if len(result.Kept) != len(wantKept) {
		t.Fatalf("kept = %v, want %v", keptIdentifiers(result), wantKept)
	}
	for _, k := range result.Kept {
		if wantKept[k.Record.Identifier] != k.Decision {
			t.Errorf("%s decision = %s, want %s",
				k.Record.Identifier, k.Decision, wantKept[k.Record.Identifier])
		}
	}

	wantDelete := []string{"2024-01-03.tar.gz", "2023-12-15.tar.gz", "2023-11-01.tar.gz"}
	if !reflect.DeepEqual(identifiers(result.ToDelete), wantDelete) {
		t.Errorf("toDelete = %v, want %v", identifiers(result.ToDelete), wantDelete)
	}
}

func TestClassifyWeeklyTagging(t *testing.T) {
	records := mustRecords(t,
		"2024-01-10.tar.gz", // ISO week 2024-W02
		"2024-01-09.tar.gz", // W02, key already taken
		"2024-01-03.tar.gz", // W01
		"2023-12-15.tar.gz", // W50, weekly capacity exhausted
	)

	result := Classify(records, 2, 2, 0)

	want := map[string]Decision{
		"2024-01-10.tar.gz": DecisionKeptWeekly,
		"2024-01-09.tar.gz": DecisionKeptDaily,
		"2024-01-03.tar.gz": DecisionKeptWeekly,
	}
	got := make(map[string]Decision, len(result.Kept))
	for _, k := range result.Kept {
		got[k.Record.Identifier] = k.Decision
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("kept decisions = %v, want %v", got, want)
	}

	if !reflect.DeepEqual(identifiers(result.ToDelete), []string{"2023-12-15.tar.gz"}) {
		t.Errorf("toDelete = %v, want only 2023-12-15", identifiers(result.ToDelete))
	}
}

// Bucket admissions are non-exclusive: the newest record consumes its
// month's slot, its week's slot and a daily slot all at once.
func TestClassifyNonExclusiveAdmission(t *testing.T) {
	records := mustRecords(t,
		"2024-01-10.tar.gz",
		"2024-01-09.tar.gz",
	)

	// One slot per tier. 2024-01-10 fills all three, so 2024-01-09
	// (same month, same ISO week, daily slot already spent) goes away.
	result := Classify(records, 1, 1, 1)

	if len(result.Kept) != 1 || result.Kept[0].Record.Identifier != "2024-01-10.tar.gz" {
		t.Fatalf("kept = %v, want only 2024-01-10", keptIdentifiers(result))
	}
	if result.Kept[0].Decision != DecisionKeptMonthly {
		t.Errorf("decision = %s, want %s (highest-priority admitting bucket)",
			result.Kept[0].Decision, DecisionKeptMonthly)
	}
	if len(result.ToDelete) != 1 || result.ToDelete[0].Identifier != "2024-01-09.tar.gz" {
		t.Errorf("toDelete = %v, want only 2024-01-09", identifiers(result.ToDelete))
	}
}

// The daily bucket always admits the first keepDaily records, whatever their
// weekly or monthly status.
func TestClassifyDailyTakesNewestN(t *testing.T) {
	names := make([]string, 0, 10)
	base := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		names = append(names, BuildIdentifier(base.AddDate(0, 0, -i), "", false))
	}
	records := mustRecords(t, names...)

	for _, keepDaily := range []int{1, 3, 7, 10} {
		result := Classify(records, keepDaily, 2, 2)

		kept := make(map[string]bool)
		for _, k := range result.Kept {
			kept[k.Record.Identifier] = true
		}
		for i := 0; i < keepDaily; i++ {
			if !kept[names[i]] {
				t.Errorf("keepDaily=%d: %s not kept", keepDaily, names[i])
			}
		}
	}
}

func TestClassifyZeroCountsDeleteEverything(t *testing.T) {
	records := mustRecords(t,
		"2024-01-10.tar.gz",
		"2023-12-15.tar.gz",
		"2023-11-01.tar.gz",
	)

	result := Classify(records, 0, 0, 0)

	if len(result.Kept) != 0 {
		t.Errorf("kept = %v, want none", keptIdentifiers(result))
	}
	if len(result.ToDelete) != len(records) {
		t.Errorf("toDelete size = %d, want %d", len(result.ToDelete), len(records))
	}
}

// Kept and toDelete always partition the input exactly.
func TestClassifyPartitionsInput(t *testing.T) {
	names := make([]string, 0, 40)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 40; i++ {
		names = append(names, BuildIdentifier(base.AddDate(0, 0, -3*i), "", false))
	}
	records := mustRecords(t, names...)

	for _, tc := range []struct{ d, w, m int }{
		{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1},
		{7, 4, 6}, {3, 2, 1}, {100, 100, 100},
	} {
		t.Run(fmt.Sprintf("d%d_w%d_m%d", tc.d, tc.w, tc.m), func(t *testing.T) {
			result := Classify(records, tc.d, tc.w, tc.m)

			seen := make(map[string]int)
			for _, k := range result.Kept {
				seen[k.Record.Identifier]++
			}
			for _, r := range result.ToDelete {
				seen[r.Identifier]++
			}

			if len(seen) != len(records) {
				t.Fatalf("output covers %d identifiers, want %d", len(seen), len(records))
			}
			for id, n := range seen {
				if n != 1 {
					t.Errorf("%s appears %d times in output", id, n)
				}
			}
		})
	}
}

func TestClassifyMonthlySpread(t *testing.T) {
	records := mustRecords(t,
		"2024-03-05.tar.gz",
		"2024-02-20.tar.gz",
		"2024-02-10.tar.gz", // month already taken
		"2024-01-15.tar.gz",
		"2023-12-30.tar.gz",
	)

	result := Classify(records, 0, 0, 3)

	want := map[string]Decision{
		"2024-03-05.tar.gz": DecisionKeptMonthly,
		"2024-02-20.tar.gz": DecisionKeptMonthly,
		"2024-01-15.tar.gz": DecisionKeptMonthly,
	}
	got := make(map[string]Decision)
	for _, k := range result.Kept {
		got[k.Record.Identifier] = k.Decision
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("kept = %v, want %v", got, want)
	}
}

// ISO weeks straddle year boundaries: 2024-12-30 and 2025-01-02 share week
// 2025-W01 and must compete for a single weekly slot.
func TestClassifyISOWeekAcrossYearBoundary(t *testing.T) {
	records := mustRecords(t,
		"2025-01-02.tar.gz",
		"2024-12-30.tar.gz",
	)

	result := Classify(records, 0, 2, 0)

	if len(result.Kept) != 1 || result.Kept[0].Record.Identifier != "2025-01-02.tar.gz" {
		t.Fatalf("kept = %v, want only 2025-01-02", keptIdentifiers(result))
	}
	if len(result.ToDelete) != 1 {
		t.Errorf("toDelete = %v, want the same-ISO-week sibling", identifiers(result.ToDelete))
	}
}

func TestClassifyDeterminism(t *testing.T) {
	records := mustRecords(t,
		"2024-01-10.tar.gz",
		"2024-01-09.tar.gz",
		"2024-01-03.tar.gz",
		"2023-12-15.tar.gz",
	)

	first := Classify(records, 2, 1, 1)
	second := Classify(records, 2, 1, 1)

	if !reflect.DeepEqual(first, second) {
		t.Error("repeated classification of an unchanged set disagrees")
	}
}

func TestClassifyEmptyInput(t *testing.T) {
	result := Classify(nil, 7, 4, 6)
	if len(result.Kept) != 0 || len(result.ToDelete) != 0 {
		t.Errorf("Classify(nil) = %+v, want empty result", result)
	}
}
