package apartment

import "time"

// Apartment is one metered unit.
type Apartment struct {
	// Number is the key meters publish under, e.g. "301".
	Number string `json:"apartment"`

	// Floor defaults to FloorOf(Number) when empty.
	Floor string `json:"floor,omitempty"`

	Label string `json:"label,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// FloorOf derives the floor from an all-digit apartment number of at least
// three characters by dropping the last two digits. Other numbers have no
// implied floor and yield "".
func FloorOf(number string) string {
	if len(number) < 3 {
		return ""
	}
	for _, c := range number {
		if c < '0' || c > '9' {
			return ""
		}
	}
	return number[:len(number)-2]
}
