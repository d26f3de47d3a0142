// Package capacity keeps node and cluster resource bookkeeping consistent
// with the VMs placed on them.
package capacity

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/docker/go-units"
)

const bytesPerGB = float64(units.GiB)

// leadingSize matches the number and optional unit at the start of a size
// description, e.g. "500GB" in "500GB SSD".
var leadingSize = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*(?:([kKmMgGtTpP][iI]?[bB]?)\b)?`)

// ParseGB converts a descriptive size such as "16 GB", "16000 MB", "2 TB",
// "32 GB RAM" or "16" into gigabytes. Only the leading number and unit count;
// trailing text is ignored and a description without a leading number is 0.
// A bare number is taken as GB. Multipliers are binary.
func ParseGB(s string) (float64, error) {
	m := leadingSize.FindStringSubmatch(s)
	if m == nil {
		return 0, nil
	}
	if strings.HasPrefix(m[1], "-") {
		return 0, fmt.Errorf("negative size %q", strings.TrimSpace(s))
	}
	if m[2] == "" {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("parse size %q: %w", s, err)
		}
		return v, nil
	}
	b, err := units.RAMInBytes(m[1] + m[2])
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, err)
	}
	return round(float64(b) / bytesPerGB), nil
}

// ParseGHz extracts a clock figure in GHz from strings like "8", "8 GHz" or
// "2400 MHz". Anything else is rejected.
func ParseGHz(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	scale := 1.0
	lower := strings.ToLower(s)
	switch {
	case strings.HasSuffix(lower, "ghz"):
		lower = strings.TrimSuffix(lower, "ghz")
	case strings.HasSuffix(lower, "mhz"):
		lower = strings.TrimSuffix(lower, "mhz")
		scale = 0.001
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(lower), 64)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative clock %q", s)
	}
	return round(v * scale), nil
}

// FormatGB renders a GB figure for humans, e.g. 1536 -> "1.5TiB".
func FormatGB(gb float64) string {
	return units.BytesSize(gb * bytesPerGB)
}

// round keeps ledger arithmetic stable at a thousandth of a unit so that an
// allocation followed by its release restores the exact previous value.
func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}
