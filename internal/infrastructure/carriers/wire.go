package carriers

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// oneOrMany decodes a JSON value that carriers send either as a single
// object or as an array of objects.
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = nil
		return nil
	}
	if data[0] == '[' {
		var many []T
		if err := json.Unmarshal(data, &many); err != nil {
			return err
		}
		*o = many
		return nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*o = oneOrMany[T]{one}
	return nil
}

// flexString accepts a JSON string or number
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(data)
	return nil
}

func (f flexString) String() string {
	return string(f)
}

// Int parses the value, 0 when it is not a whole number
func (f flexString) Int() int {
	n, err := strconv.Atoi(strings.TrimSpace(string(f)))
	if err != nil {
		return 0
	}
	return n
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"20060102150405",
	"20060102",
}

// parseTime parses the date formats seen in carrier payloads. ok is false
// for empty or unrecognized input.
func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseTimePtr(s string) *time.Time {
	t, ok := parseTime(s)
	if !ok {
		return nil
	}
	return &t
}

// formatNumber renders a measurement the way string-typed carrier APIs
// expect it: at most two decimals, no trailing zeros.
func formatNumber(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// transitWords maps FedEx transit time enums to days
var transitWords = map[string]int{
	"ONE_DAY":       1,
	"TWO_DAYS":      2,
	"THREE_DAYS":    3,
	"FOUR_DAYS":     4,
	"FIVE_DAYS":     5,
	"SIX_DAYS":      6,
	"SEVEN_DAYS":    7,
	"EIGHT_DAYS":    8,
	"NINE_DAYS":     9,
	"TEN_DAYS":      10,
	"ELEVEN_DAYS":   11,
	"TWELVE_DAYS":   12,
	"THIRTEEN_DAYS": 13,
	"FOURTEEN_DAYS": 14,
	"FIFTEEN_DAYS":  15,
}

func transitDays(word string) int {
	return transitWords[strings.ToUpper(strings.TrimSpace(word))]
}

