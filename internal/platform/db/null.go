package db

import "time"

// NullString maps the empty string to SQL NULL.
func NullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// NullInt64 maps zero to SQL NULL.
func NullInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

// NullTime maps the zero time to SQL NULL.
func NullTime(v time.Time) any {
	if v.IsZero() {
		return nil
	}
	return v
}
