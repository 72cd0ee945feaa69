// SPDX-License-Identifier: MIT

package dash

import (
	"regexp"
	"strconv"
)

var isoDuration = regexp.MustCompile(`^P(?:(\d+(?:\.\d+)?)Y)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)D)?(?:T(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// calendar units are nominal: a year is 365 days, a month 30.
var isoUnitSeconds = [...]float64{365 * 86400, 30 * 86400, 86400, 3600, 60, 1}

// ParseDuration converts an xs:duration such as "PT1H2M3.5S" to seconds.
func ParseDuration(s string) (float64, bool) {
	m := isoDuration.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	var total float64
	seen := false
	for i, unit := range isoUnitSeconds {
		part := m[i+1]
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0, false
		}
		total += v * unit
		seen = true
	}
	return total, seen
}
