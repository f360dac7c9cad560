package jobs

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/waypoint/errors"
	"github.com/teranos/waypoint/location"
)

// Top-level keys holding point arrays. Overland posts "locations", GeoJSON
// exports use "features", and the batch API uses "gps_data".
var pointArrayKeys = map[string]bool{
	"locations": true,
	"features":  true,
	"gps_data":  true,
}

// rawEntry is either an Overland GeoJSON feature or a flat batch entry
type rawEntry struct {
	Type     string `json:"type"`
	Geometry *struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	} `json:"geometry"`
	Properties *struct {
		Timestamp          json.RawMessage `json:"timestamp"`
		HorizontalAccuracy *float64        `json:"horizontal_accuracy"`
		VerticalAccuracy   *float64        `json:"vertical_accuracy"`
		Altitude           *float64        `json:"altitude"`
		Speed              *float64        `json:"speed"`
		SpeedAccuracy      *float64        `json:"speed_accuracy"`
		Course             *float64        `json:"course"`
		CourseAccuracy     *float64        `json:"course_accuracy"`
	} `json:"properties"`

	Timestamp          json.RawMessage `json:"timestamp"`
	Latitude           *float64        `json:"latitude"`
	Longitude          *float64        `json:"longitude"`
	HorizontalAccuracy *float64        `json:"horizontal_accuracy"`
	VerticalAccuracy   *float64        `json:"vertical_accuracy"`
	Altitude           *float64        `json:"altitude"`
	Heading            *float64        `json:"heading"`
	HeadingAccuracy    *float64        `json:"heading_accuracy"`
	Speed              *float64        `json:"speed"`
	SpeedAccuracy      *float64        `json:"speed_accuracy"`
}

// toPoint converts an entry, reporting why it was unusable
func (e rawEntry) toPoint() (location.Point, error) {
	var p location.Point

	if e.Geometry != nil {
		if e.Geometry.Type != "Point" {
			return p, errors.Newf("unsupported geometry %q", e.Geometry.Type)
		}
		var coords []float64
		if err := json.Unmarshal(e.Geometry.Coordinates, &coords); err != nil || len(coords) < 2 {
			return p, errors.New("point geometry without coordinates")
		}
		// GeoJSON order is longitude, latitude
		p.Longitude, p.Latitude = coords[0], coords[1]
		if e.Properties == nil {
			return p, errors.New("feature without properties")
		}
		ts, err := parseTimestamp(e.Properties.Timestamp)
		if err != nil {
			return p, err
		}
		p.Timestamp = ts
		p.HorizontalAccuracy = e.Properties.HorizontalAccuracy
		p.VerticalAccuracy = e.Properties.VerticalAccuracy
		p.Altitude = e.Properties.Altitude
		p.Speed = e.Properties.Speed
		p.SpeedAccuracy = e.Properties.SpeedAccuracy
		p.Heading = e.Properties.Course
		p.HeadingAccuracy = e.Properties.CourseAccuracy
	} else {
		if e.Latitude == nil || e.Longitude == nil {
			return p, errors.New("entry without coordinates")
		}
		p.Latitude, p.Longitude = *e.Latitude, *e.Longitude
		ts, err := parseTimestamp(e.Timestamp)
		if err != nil {
			return p, err
		}
		p.Timestamp = ts
		p.HorizontalAccuracy = e.HorizontalAccuracy
		p.VerticalAccuracy = e.VerticalAccuracy
		p.Altitude = e.Altitude
		p.Heading = e.Heading
		p.HeadingAccuracy = e.HeadingAccuracy
		p.Speed = e.Speed
		p.SpeedAccuracy = e.SpeedAccuracy
	}

	if math.Abs(p.Latitude) > 90 || math.Abs(p.Longitude) > 180 {
		return p, errors.Newf("coordinates out of range: %f,%f", p.Latitude, p.Longitude)
	}
	return p, nil
}

// parseTimestamp accepts RFC 3339 strings and unix seconds as number or string
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, errors.New("missing timestamp")
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return time.Time{}, errors.Wrap(err, "parse timestamp")
		}
		text = strings.TrimSpace(text)
		if ts, err := time.Parse(time.RFC3339Nano, text); err == nil {
			return ts.UTC(), nil
		}
	}

	secs, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return time.Time{}, errors.Newf("parse timestamp %q", text)
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
}

// PointDecoder streams points out of an import file without loading it whole.
// Accepted shapes: an object with a locations, features or gps_data array, or
// a bare array of entries.
type PointDecoder struct {
	dec      *json.Decoder
	started  bool
	inArray  bool
	topArray bool
	skipped  int
}

// NewPointDecoder reads entries from r
func NewPointDecoder(r io.Reader) *PointDecoder {
	return &PointDecoder{dec: json.NewDecoder(r)}
}

// Skipped returns how many entries were unusable so far
func (d *PointDecoder) Skipped() int { return d.skipped }

// Offset returns the number of input bytes consumed
func (d *PointDecoder) Offset() int64 { return d.dec.InputOffset() }

// Next returns the next usable point, io.EOF at the end of input.
// Malformed JSON is an error; well-formed but unusable entries are skipped.
func (d *PointDecoder) Next() (location.Point, error) {
	if !d.started {
		d.started = true
		tok, err := d.dec.Token()
		if err != nil {
			return location.Point{}, errors.Wrap(err, "read import document")
		}
		switch tok {
		case json.Delim('{'):
		case json.Delim('['):
			d.inArray, d.topArray = true, true
		default:
			return location.Point{}, errors.Newf("import document must be a JSON object or array, got %v", tok)
		}
	}

	for {
		if d.inArray {
			if d.dec.More() {
				var raw json.RawMessage
				if err := d.dec.Decode(&raw); err != nil {
					return location.Point{}, errors.Wrap(err, "decode import entry")
				}
				// a well-formed entry of the wrong shape is skipped, not fatal
				var entry rawEntry
				if err := json.Unmarshal(raw, &entry); err != nil {
					d.skipped++
					continue
				}
				p, err := entry.toPoint()
				if err != nil {
					d.skipped++
					continue
				}
				return p, nil
			}
			if _, err := d.dec.Token(); err != nil { // closing ]
				return location.Point{}, errors.Wrap(err, "read import document")
			}
			d.inArray = false
			if d.topArray {
				return location.Point{}, io.EOF
			}
			continue
		}

		tok, err := d.dec.Token()
		if err != nil {
			return location.Point{}, errors.Wrap(err, "read import document")
		}
		if tok == json.Delim('}') {
			return location.Point{}, io.EOF
		}
		key, _ := tok.(string)
		if !pointArrayKeys[key] {
			var skip json.RawMessage
			if err := d.dec.Decode(&skip); err != nil {
				return location.Point{}, errors.Wrapf(err, "skip import field %q", key)
			}
			continue
		}

		tok, err = d.dec.Token()
		if err != nil {
			return location.Point{}, errors.Wrap(err, "read import document")
		}
		if tok != json.Delim('[') {
			return location.Point{}, errors.Newf("import field %q must be an array", key)
		}
		d.inArray = true
	}
}
