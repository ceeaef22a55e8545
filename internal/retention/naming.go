// Package retention implements the backup naming grammar, the remote listing
// parser, and the tiered daily/weekly/monthly retention classifier.
package retention

import (
	"fmt"
	"regexp"
	"time"
)

const (
	// DateFormat is the calendar-date prefix of every backup identifier.
	DateFormat = "2006-01-02"

	// ArchiveSuffix is the extension of a plain archive.
	ArchiveSuffix = ".tar.gz"

	// EncryptedSuffix is appended when the archive body is encrypted.
	EncryptedSuffix = ".bin"
)

var datePrefixPattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})`)

// BuildIdentifier derives the archive identifier for a backup taken on the
// given date: YYYY-MM-DD.tar.gz, or YYYY-MM-DD_PREFIX.tar.gz when a prefix is
// configured. Encrypted archives carry an extra .bin suffix.
func BuildIdentifier(date time.Time, prefix string, encrypted bool) string {
	name := date.Format(DateFormat)
	if prefix != "" {
		name += "_" + prefix
	}
	name += ArchiveSuffix
	if encrypted {
		name += EncryptedSuffix
	}
	return name
}

// ExtractDate returns the leading YYYY-MM-DD portion of an identifier.
// Only the digit shape is checked here; callers that need a real calendar
// date parse the returned string and reject impossible dates there.
func ExtractDate(identifier string) (string, bool) {
	m := datePrefixPattern.FindStringSubmatch(identifier)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IdentifierPattern compiles the full matching grammar for one backup set.
// The prefix group is mandatory when a prefix is configured and forbidden
// otherwise, and prefix values are matched literally: any regex
// metacharacters they contain are escaped first.
func IdentifierPattern(prefix string) *regexp.Regexp {
	if prefix == "" {
		return regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\.tar\.gz(\.bin)?$`)
	}
	return regexp.MustCompile(fmt.Sprintf(`^(\d{4}-\d{2}-\d{2})_%s\.tar\.gz(\.bin)?$`,
		regexp.QuoteMeta(prefix)))
}
