package rfc9111

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// §  1.2.2.  Delta Seconds
// §
// §     The delta-seconds rule specifies a non-negative integer, representing
// §     time in seconds.
// §
// §       delta-seconds  = 1*DIGIT
// §
// §     A recipient parsing a delta-seconds value and converting it to binary
// §     form ought to use an arithmetic type of at least 31 bits of non-
// §     negative integer range.  If a cache receives a delta-seconds value
// §     greater than the greatest integer it can represent, or if any of its
// §     subsequent calculations overflows, the cache MUST consider the value
// §     to be 2147483648 (2^31) or the greatest positive integer it can
// §     conveniently represent.
func deltaSeconds(secondsStr string) time.Duration {
	// parameters such as "7200;foo=bar" are ignored
	secondsStr, _, _ = strings.Cut(strings.TrimSpace(secondsStr), ";")
	seconds, err := strconv.ParseUint(secondsStr, 10, 64)
	if err != nil {
		if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			return time.Second * (1 << 31)
		}
		return 0
	}
	if seconds > 1<<31 {
		seconds = 1 << 31
	}
	return time.Second * time.Duration(seconds)
}

func toDeltaSeconds(duration time.Duration) string {
	if duration < 0 {
		duration = 0
	}
	return fmt.Sprintf("%.f", duration.Truncate(time.Second).Seconds())
}

// HttpDate parses an HTTP-date (RFC 9110 §5.6.7), accepting the preferred
// IMF-fixdate format as well as the two obsolete formats.
func HttpDate(dateStr string) (time.Time, error) {
	date, err := imfDate(dateStr)
	if err == nil {
		return date, nil
	}
	if date, obsErr := obsDate(dateStr); obsErr == nil {
		return date, nil
	}
	return date, err
}

// ToHttpDate formats a time as an IMF-fixdate.
func ToHttpDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

const imfDateLayout = "Mon, 02 Jan 2006 15:04:05 MST"

func imfDate(dateStr string) (time.Time, error) {
	date, err := time.Parse(imfDateLayout, normalizeDateStr(dateStr))
	if err != nil {
		return date, err
	}
	if name, offset := date.Zone(); offset != 0 || (name != "GMT" && name != "UTC") {
		return date, fmt.Errorf("Date %s is not in GMT time, but %s", date, name)
	}
	return date, nil
}

func obsDate(dateStr string) (time.Time, error) {
	str := normalizeDateStr(dateStr)
	if date, err := time.Parse(time.RFC850, str); err == nil {
		return date, nil
	}
	return time.Parse(time.ANSIC, str)
}

// time.Parse matches month and day names case-insensitively but not the zone
func normalizeDateStr(dateStr string) string {
	dateStr = strings.TrimSpace(dateStr)
	if strings.HasSuffix(strings.ToUpper(dateStr), " GMT") {
		return dateStr[:len(dateStr)-3] + "GMT"
	}
	return dateStr
}

// GetListHeader returns the members of a comma-separated list field,
// combining all field lines.
func GetListHeader(header http.Header, field string) []string {
	list := make([]string, 0)
	for _, hdr := range header.Values(field) {
		for _, item := range strings.Split(hdr, ",") {
			if item = strings.TrimSpace(item); item != "" {
				list = append(list, item)
			}
		}
	}
	return list
}

// FieldAbsent returns whether no field line with the given name is present.
func FieldAbsent(header http.Header, field string) bool {
	return len(header.Values(field)) == 0
}
