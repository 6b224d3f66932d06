package serializers

import (
	"strconv"
	"strings"
)

// ParseIDList parses a comma separated list of ids such as "1,2,3".
// Empty elements are skipped.
func ParseIDList(s string) ([]uint, error) {
	parts := strings.Split(s, ",")
	ids := make([]uint, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, err
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

// ParseFlag parses an integer flag such as assigned_only=1. Empty means false.
func ParseFlag(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return false, err
	}
	return n != 0, nil
}
