// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

package api

import (
	"strconv"
	"time"
)

// Timestamp represents a time that can be unmarshalled from a JSON string
// formatted as either an RFC3339 or Unix timestamp(seconds or milliseconds).
// GitHub API responses are not consistent about time formats. Pagure API
// uses unix timestamps as strings.
type Timestamp struct {
	time.Time
}

// Equal reports whether t and u are equal based on [time.Time.Equal].
func (t Timestamp) Equal(u Timestamp) bool {
	return t.Time.Equal(u.Time)
}

// MarshalJSON implements [encoding/json.Marshaler].
// Time is always encoded as RFC3339 string in UTC.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(t.Time.UTC().Format(time.RFC3339))), nil
}

// UnmarshalJSON implements [encoding/json.Unmarshaler].
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	str := string(data)
	if str == "null" {
		return nil
	}

	// Unix timestamps in seconds or in milliseconds. Pagure encodes
	// them as strings.
	if unquoted, err := strconv.Unquote(str); err == nil {
		if _, err := strconv.ParseInt(unquoted, 10, 64); err == nil {
			str = unquoted
		}
	}

	if i, err := strconv.ParseInt(str, 10, 64); err == nil {
		t.Time = time.Unix(i, 0)
		if t.Time.Year() > 3000 {
			t.Time = time.Unix(0, i*int64(time.Millisecond))
		}
		return nil
	}

	v, err := time.Parse(`"`+time.RFC3339+`"`, str)
	if err != nil {
		return err
	}
	t.Time = v
	return nil
}
