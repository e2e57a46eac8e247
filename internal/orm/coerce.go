package orm

import (
	"time"

	"github.com/jinzhu/now"
)

// Layouts drivers commonly return for timestamp columns stored as text.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// coerceTime converts a stored timestamp to time.Time. Values that do not
// parse are returned unchanged.
func coerceTime(v any) any {
	var s string
	switch x := v.(type) {
	case time.Time:
		return x
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	case string:
		s = x
	case []byte:
		s = string(x)
	case int64:
		return time.Unix(x, 0).UTC()
	default:
		return v
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	if t, err := now.New(time.Unix(0, 0).UTC()).Parse(s); err == nil {
		return t
	}
	return v
}
