package geocode

import (
	"github.com/teranos/waypoint/location"
)

// Response is the GeoJSON FeatureCollection returned by /reverse
type Response struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is one match
type Feature struct {
	Type       string     `json:"type"`
	Properties Properties `json:"properties"`
}

// Properties holds the address parts of a match
type Properties struct {
	Name        string `json:"name,omitempty"`
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"countrycode,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Postcode    string `json:"postcode,omitempty"`
	Street      string `json:"street,omitempty"`
	HouseNumber string `json:"housenumber,omitempty"`
}

// Address returns the first feature's properties, or nil when nothing matched
func (r *Response) Address() *location.Address {
	if r == nil || len(r.Features) == 0 {
		return nil
	}
	p := r.Features[0].Properties
	return &location.Address{
		Country:      p.Country,
		City:         p.City,
		State:        p.State,
		PostalCode:   p.Postcode,
		Street:       p.Street,
		StreetNumber: p.HouseNumber,
	}
}
