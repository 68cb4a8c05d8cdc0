package history

import "time"

const timeLayout = time.RFC3339

func parseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, raw); err == nil {
		return t, nil
	}
	// SQLite's CURRENT_TIMESTAMP format.
	return time.Parse("2006-01-02 15:04:05", raw)
}
