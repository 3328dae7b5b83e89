package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseFloats parses a comma separated list ("0.01,0.02") or an inclusive
// range "lo:hi:step" ("0.01:0.05:0.01"). An empty string yields nil.
func ParseFloats(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if parts := strings.Split(s, ":"); len(parts) == 3 {
		var v [3]float64
		for i, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("parsing range %q: %w", s, err)
			}
			v[i] = f
		}
		return FloatRange(v[0], v[1], v[2])
	}

	var out []float64
	for _, p := range strings.Split(s, ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing list %q: %w", s, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// FloatRange returns lo, lo+step, ... up to and including hi. Values are
// rounded to nine decimals so accumulated float error does not drop hi.
func FloatRange(lo, hi, step float64) ([]float64, error) {
	if !(step > 0) || hi < lo {
		return nil, fmt.Errorf("range %v:%v:%v: want lo <= hi and step > 0", lo, hi, step)
	}
	var out []float64
	for k := 0; ; k++ {
		v := math.Round((lo+float64(k)*step)*1e9) / 1e9
		if v > hi+1e-9 {
			break
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseDate parses YYYY-MM-DD. An empty string yields the zero time.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}
