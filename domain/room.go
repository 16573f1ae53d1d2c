package domain

import (
	"strings"

	"github.com/samber/lo"
)

// General is the room every connection lands in and the only one that can never be deleted.
const General = "General"

// DefaultSeedRooms are created at startup when no other list is configured.
var DefaultSeedRooms = []string{General, "Technology", "Random"}

// ParseRooms splits a comma separated list of room names.
// General is always first, blanks and duplicates are dropped.
func ParseRooms(raw string) []string {
	names := lo.FilterMap(strings.Split(raw, ","), func(item string, _ int) (string, bool) {
		name := strings.TrimSpace(item)
		return name, name != ""
	})
	return lo.Uniq(append([]string{General}, names...))
}

// IsProtected reports whether the room can't be deleted.
func IsProtected(name string) bool {
	return name == General
}
