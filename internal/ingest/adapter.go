package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var offsetPattern = regexp.MustCompile(`^([+-])(\d{2})(?::?(\d{2}))?$`)

// Adapt converts a scraped item into the record expected by the storage
// service. It never fails: an unknown timezone is treated as UTC and an
// unparseable timestamp yields the zero instant.
func Adapt(item RawItem) WireRecord {
	loc, err := ParseZone(item.Timezone)
	if err != nil {
		loc = time.UTC
	}
	var createdAt time.Time
	if ts, err := time.ParseInLocation(DateTimeLayout, strings.TrimSpace(item.DateTime), loc); err == nil {
		createdAt = ts.UTC()
	}
	return WireRecord{
		CreatedAt: createdAt,
		Text:      item.Text,
		UserID:    item.AuthorID,
		UserName:  item.AuthorName,
		RecordID:  item.ID,
	}
}

// ParseCreatedAt interprets a wall-clock datetime in the given timezone and
// returns the matching UTC instant.
func ParseCreatedAt(datetime, timezone string) (time.Time, error) {
	loc, err := ParseZone(timezone)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.ParseInLocation(DateTimeLayout, strings.TrimSpace(datetime), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse datetime %q: %w", datetime, err)
	}
	return ts.UTC(), nil
}

// ParseZone resolves an IANA name, "UTC"/"Z", or a numeric offset such as
// "+0200", "+02:00" or "-05". An empty string is UTC.
func ParseZone(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	switch strings.ToUpper(tz) {
	case "", "UTC", "Z", "GMT":
		return time.UTC, nil
	}
	if m := offsetPattern.FindStringSubmatch(tz); m != nil {
		hours, _ := strconv.Atoi(m[2])
		minutes := 0
		if m[3] != "" {
			minutes, _ = strconv.Atoi(m[3])
		}
		if hours > 14 || minutes > 59 {
			return nil, fmt.Errorf("timezone offset %q out of range", tz)
		}
		seconds := hours*3600 + minutes*60
		if m[1] == "-" {
			seconds = -seconds
		}
		return time.FixedZone(tz, seconds), nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return loc, nil
}
