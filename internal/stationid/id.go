// Package stationid defines the ordered identifier shared by the station
// catalog, the session store and the runner.
package stationid

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ID names a station. Fractional stations such as 4.5 are inserted between
// majors without renumbering, so ordering compares Major then Minor.
type ID struct {
	Major int
	Minor int
}

// New builds an ID.
func New(major, minor int) ID {
	return ID{Major: major, Minor: minor}
}

// Parse accepts "4", "4.5", "04_5", "station_04_5" and "station_4".
func Parse(value string) (ID, error) {
	raw := strings.TrimSpace(value)
	raw = strings.TrimPrefix(strings.ToLower(raw), "station_")
	raw = strings.TrimPrefix(raw, "station")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ID{}, fmt.Errorf("station id: empty value")
	}

	majorPart, minorPart := raw, ""
	if idx := strings.IndexAny(raw, "._"); idx >= 0 {
		majorPart, minorPart = raw[:idx], raw[idx+1:]
		if minorPart == "" {
			return ID{}, fmt.Errorf("station id %q: missing minor part", value)
		}
	}

	major, err := strconv.Atoi(majorPart)
	if err != nil || major < 0 {
		return ID{}, fmt.Errorf("station id %q: invalid major part", value)
	}
	minor := 0
	if minorPart != "" {
		// A single digit keeps "4.05" from aliasing "4.5".
		if len(minorPart) != 1 || minorPart[0] < '0' || minorPart[0] > '9' {
			return ID{}, fmt.Errorf("station id %q: invalid minor part", value)
		}
		minor = int(minorPart[0] - '0')
	}
	return ID{Major: major, Minor: minor}, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(value string) ID {
	id, err := Parse(value)
	if err != nil {
		panic(err)
	}
	return id
}

// Compare returns -1, 0 or 1.
func (id ID) Compare(other ID) int {
	switch {
	case id.Major < other.Major:
		return -1
	case id.Major > other.Major:
		return 1
	case id.Minor < other.Minor:
		return -1
	case id.Minor > other.Minor:
		return 1
	}
	return 0
}

func (id ID) Less(other ID) bool { return id.Compare(other) < 0 }

func (id ID) IsZero() bool { return id.Major == 0 && id.Minor == 0 }

// String renders the operator-facing form: "4" or "4.5".
func (id ID) String() string {
	if id.Minor == 0 {
		return strconv.Itoa(id.Major)
	}
	return fmt.Sprintf("%d.%d", id.Major, id.Minor)
}

// KeySuffix renders the store form: "04" or "04_5".
func (id ID) KeySuffix() string {
	if id.Minor == 0 {
		return fmt.Sprintf("%02d", id.Major)
	}
	return fmt.Sprintf("%02d_%d", id.Major, id.Minor)
}

// MarshalText renders String so IDs work as YAML, TOML and JSON values and keys.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Sort orders ids ascending in place.
func Sort(ids []ID) {
	slices.SortFunc(ids, ID.Compare)
}
