package upstream

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var msAjaxPattern = regexp.MustCompile(`^/Date\((\d+)([+-]\d{4})?\)/$`)

// ParseMSAjaxMs parses a Microsoft-AJAX date string of the form
// "/Date(<ms>[+-HHMM])/" and returns the millisecond Unix timestamp with
// the signed offset applied: ms + sign·(HH·60+MM)·60000. A missing
// offset returns ms unchanged.
func ParseMSAjaxMs(s string) (int64, error) {
	m := msAjaxPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("upstream: malformed MS-AJAX date %q", s)
	}

	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("upstream: bad MS-AJAX ms field %q: %w", m[1], err)
	}

	offset := m[2]
	if offset == "" {
		return ms, nil
	}

	sign := int64(1)
	if offset[0] == '-' {
		sign = -1
	}
	hh, err := strconv.ParseInt(offset[1:3], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("upstream: bad MS-AJAX offset hours %q: %w", offset, err)
	}
	mm, err := strconv.ParseInt(offset[3:5], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("upstream: bad MS-AJAX offset minutes %q: %w", offset, err)
	}

	return ms + sign*(hh*60+mm)*60000, nil
}

// ParseMSAjax parses a Microsoft-AJAX date string into a UTC time.Time.
func ParseMSAjax(s string) (time.Time, error) {
	ms, err := ParseMSAjaxMs(s)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
