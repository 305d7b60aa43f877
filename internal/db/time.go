package db

import (
	"database/sql"
	"fmt"
	"time"
)

var textTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Time scans a timestamp column from either dialect. pgx yields time.Time
// while sqlite stores ISO-8601 text.
type Time struct {
	time.Time
}

func (t *Time) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
	case time.Time:
		t.Time = v.UTC()
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("db: cannot scan %T into Time", src)
	}
	return nil
}

func (t *Time) parse(s string) error {
	for _, layout := range textTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("db: unrecognised timestamp %q", s)
}

// TimeDest returns a scan destination that stores the parsed timestamp in *t.
func TimeDest(t *time.Time) sql.Scanner {
	return timeDest{t: t}
}

type timeDest struct {
	t *time.Time
}

func (d timeDest) Scan(src any) error {
	var parsed Time
	if err := parsed.Scan(src); err != nil {
		return err
	}
	*d.t = parsed.Time
	return nil
}
