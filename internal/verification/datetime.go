package verification

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnparseableDate means no date strategy recognized the text
	ErrUnparseableDate = errors.New("unparseable transaction date")
	// ErrUnsupportedScript means the text is Arabic, which is not parsed rather than guessed
	ErrUnsupportedScript = errors.New("arabic transaction dates are not supported")
)

// dateStrategy tries to read a timestamp from text
type dateStrategy func(text string, loc *time.Location) (time.Time, bool)

// dateStrategies run in order; the first success wins
var dateStrategies = []dateStrategy{
	parseGenericDate,
	parseLongFormDate,
	parseSlashDate,
}

// zonedLayouts carry their own offset
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02 15:04:05Z07:00",
}

// localLayouts are read in the verifier's location
var localLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006:01:02 15:04:05",
	"2006-01-02",
	"Jan 2, 2006 3:04 PM",
	"January 2, 2006 3:04 PM",
	"Jan 2, 2006",
	"January 2, 2006",
	"Mon Jan 2 2006 15:04:05",
}

var (
	longFormDate = regexp.MustCompile(`(?i)(\d{1,2})\s+(\w+)\s+(\d{4})\s+(\d{1,2}):(\d{1,2})\s+(\w{2})`)
	slashDate    = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
)

var months = map[string]time.Month{
	"jan": time.January,
	"feb": time.February,
	"mar": time.March,
	"apr": time.April,
	"may": time.May,
	"jun": time.June,
	"jul": time.July,
	"aug": time.August,
	"sep": time.September,
	"oct": time.October,
	"nov": time.November,
	"dec": time.December,
}

// ParseTransactionDate reads a transaction timestamp in any of the formats receipts use.
// Text without an offset is interpreted in loc.
func ParseTransactionDate(text string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, ErrUnparseableDate
	}
	for _, strategy := range dateStrategies {
		if t, ok := strategy(text, loc); ok {
			return t, nil
		}
	}
	if containsArabic(text) {
		return time.Time{}, ErrUnsupportedScript
	}
	return time.Time{}, ErrUnparseableDate
}

func parseGenericDate(text string, loc *time.Location) (time.Time, bool) {
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseLongFormDate reads "16 May 2025 10:56 PM"
func parseLongFormDate(text string, loc *time.Location) (time.Time, bool) {
	m := longFormDate.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	monthName := strings.ToLower(m[2])
	if len(monthName) < 3 {
		return time.Time{}, false
	}
	month, ok := months[monthName[:3]]
	if !ok {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])

	switch strings.ToUpper(m[6]) {
	case "PM":
		if hour < 12 {
			hour += 12
		}
	case "AM":
		if hour == 12 {
			hour = 0
		}
	}
	return time.Date(year, month, day, hour, minute, 0, 0, loc), true
}

// parseSlashDate reads D/M/YYYY, swapping to M/D/YYYY when day-first is impossible
func parseSlashDate(text string, loc *time.Location) (time.Time, bool) {
	m := slashDate.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	first, _ := strconv.Atoi(m[1])
	second, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])

	if validDayMonth(first, second) {
		return time.Date(year, time.Month(second), first, 0, 0, 0, 0, loc), true
	}
	if validDayMonth(second, first) {
		return time.Date(year, time.Month(first), second, 0, 0, 0, 0, loc), true
	}
	return time.Time{}, false
}

func validDayMonth(day, month int) bool {
	return day >= 1 && day <= 31 && month >= 1 && month <= 12
}

// containsArabic checks for any rune in the Arabic block U+0600..U+06FF
func containsArabic(text string) bool {
	for _, r := range text {
		if r >= 0x0600 && r <= 0x06FF {
			return true
		}
	}
	return false
}
