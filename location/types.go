// Package location stores users, imports, GPS points and daily statistics in SQLite.
package location

import (
	"time"
)

// User owns points, imports and statistics
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	APIKey    string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Import is one uploaded or fetched location file
type Import struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	CreatedAt        time.Time `json:"created_at"`
	TotalEntries     int       `json:"total_entries"`
	Done             bool      `json:"done"`
}

// Address is the reverse-geocoded location of a point
type Address struct {
	Country      string `json:"country,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	Street       string `json:"street,omitempty"`
	StreetNumber string `json:"street_number,omitempty"`
}

// Point is a single GPS fix. Optional sensor readings are nil when absent.
type Point struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	ImportID  string    `json:"import_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`

	HorizontalAccuracy *float64 `json:"horizontal_accuracy,omitempty"`
	VerticalAccuracy   *float64 `json:"vertical_accuracy,omitempty"`
	Altitude           *float64 `json:"altitude,omitempty"`
	Heading            *float64 `json:"heading,omitempty"`
	HeadingAccuracy    *float64 `json:"heading_accuracy,omitempty"`
	Speed              *float64 `json:"speed,omitempty"`
	SpeedAccuracy      *float64 `json:"speed_accuracy,omitempty"`

	ReverseGeocoded bool `json:"reverse_geocoded"`
	Address
}

// AddressUpdate marks a point geocoded. A nil Address only sets the flag.
type AddressUpdate struct {
	PointID int64
	Address *Address
}

// SpeedUpdate sets a computed speed in m/s
type SpeedUpdate struct {
	PointID int64
	Speed   float64
}

// DailyStatistic summarizes one user's day
type DailyStatistic struct {
	UserID           string   `json:"user_id"`
	Year             int      `json:"year"`
	Month            int      `json:"month"`
	Day              int      `json:"day"`
	DistanceMeters   float64  `json:"distance_meters"`
	VisitedCountries []string `json:"visited_countries"`
	VisitedCities    []string `json:"visited_cities"`
}

// Date returns the statistic's day at midnight in loc
func (d DailyStatistic) Date(loc *time.Location) time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, loc)
}

// PointFilter selects which of a user's points a query returns
type PointFilter int

const (
	AllPoints PointFilter = iota
	NeedsGeocoding
	NeedsSpeed
)

// Cursor is a keyset position in (timestamp, id) order. The zero Cursor is the start.
type Cursor struct {
	Timestamp time.Time
	ID        int64
}

// IsZero reports whether c is the start position
func (c Cursor) IsZero() bool {
	return c.ID == 0 && c.Timestamp.IsZero()
}

// After returns the cursor positioned after p
func After(p Point) Cursor {
	return Cursor{Timestamp: p.Timestamp, ID: p.ID}
}
