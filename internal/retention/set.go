package retention

import (
	"sort"
	"time"

	"github.com/mlvd/dirsave/internal/logging"
)

// Record is one remote backup entry that matched the naming grammar.
type Record struct {
	// Identifier is the remote file name, immutable once listed.
	Identifier string

	// Date is the calendar date parsed from the identifier (UTC midnight).
	Date time.Time

	// Prefix is the backup stream this record belongs to.
	Prefix string
}

// ParseListing filters a raw remote listing down to well-formed backup
// identifiers for the given prefix and parses each into a Record.
//
// Records are returned in strictly descending date order; entries sharing a
// date keep their input order, so repeated runs against an unchanged listing
// make identical decisions. Malformed entries (wrong prefix, wrong shape, or
// a digit-shaped but impossible date such as 2024-13-99) are dropped with a
// warning and stay invisible to retention accounting — they are never
// deleted and never counted.
func ParseListing(rawNames []string, prefix string, logger *logging.Logger) []Record {
	pattern := IdentifierPattern(prefix)

	records := make([]Record, 0, len(rawNames))
	for _, name := range rawNames {
		m := pattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}

		date, err := time.ParseInLocation(DateFormat, m[1], time.UTC)
		if err != nil {
			if logger != nil {
				logger.Warning("Skipping remote entry with impossible date: %s", name)
			}
			continue
		}

		records = append(records, Record{
			Identifier: name,
			Date:       date,
			Prefix:     prefix,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.After(records[j].Date)
	})

	return records
}
