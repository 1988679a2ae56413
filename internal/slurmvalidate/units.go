package slurmvalidate

import (
	"fmt"
	"strconv"
	"strings"
)

// storageMultiplier maps the unit suffixes spec §4.I's storage fields accept
// (k/m/g/t/p, case-insensitive) to a byte multiplier.
var storageMultiplier = map[byte]int64{
	'k': 1 << 10,
	'm': 1 << 20,
	'g': 1 << 30,
	't': 1 << 40,
	'p': 1 << 50,
}

// ParseStorage parses a Slurm-style memory size ("50gb", "500m", "10G") into
// bytes. A bare number with no unit suffix is interpreted as bytes.
func ParseStorage(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty storage value")
	}

	trimmed := strings.TrimSuffix(strings.ToLower(s), "b")
	unit := trimmed[len(trimmed)-1]
	if mult, ok := storageMultiplier[unit]; ok {
		n, err := strconv.ParseFloat(trimmed[:len(trimmed)-1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid storage value %q: %w", s, err)
		}
		return int64(n * float64(mult)), nil
	}

	n, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid storage value %q: %w", s, err)
	}
	return int64(n), nil
}

// ParseWalltime parses a Slurm time limit in one of its accepted forms:
// "D-HH:MM:SS", "HH:MM:SS", "MM:SS", or a bare "MM". Returns seconds.
func ParseWalltime(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty walltime value")
	}

	var days float64
	rest := s
	if idx := strings.IndexByte(s, '-'); idx >= 0 {
		d, err := strconv.ParseFloat(s[:idx], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid walltime day component in %q: %w", s, err)
		}
		days = d
		rest = s[idx+1:]
	}

	parts := strings.Split(rest, ":")
	var hours, minutes, seconds float64
	var err error
	switch len(parts) {
	case 3:
		hours, err = strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid walltime hours in %q: %w", s, err)
		}
		minutes, err = strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid walltime minutes in %q: %w", s, err)
		}
		seconds, err = strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid walltime seconds in %q: %w", s, err)
		}
	case 2:
		minutes, err = strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid walltime minutes in %q: %w", s, err)
		}
		seconds, err = strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid walltime seconds in %q: %w", s, err)
		}
	case 1:
		minutes, err = strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid walltime minutes in %q: %w", s, err)
		}
	default:
		return 0, fmt.Errorf("unrecognized walltime format %q", s)
	}

	return days*86400 + hours*3600 + minutes*60 + seconds, nil
}
