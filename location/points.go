package location

import (
	"context"
	"database/sql"
	"strings"

	"github.com/teranos/waypoint/errors"
	"github.com/teranos/waypoint/internal/util"
)

const pointColumns = `id, user_id, import_id, timestamp, latitude, longitude,
	horizontal_accuracy, vertical_accuracy, altitude, heading, heading_accuracy,
	speed, speed_accuracy, reverse_geocoded,
	country, city, state, postal_code, street, street_number`

// filterClause returns the extra predicate for f
func filterClause(f PointFilter) string {
	switch f {
	case NeedsGeocoding:
		return " AND reverse_geocoded = 0"
	case NeedsSpeed:
		return " AND speed IS NULL"
	default:
		return ""
	}
}

// InsertPoints stores points in a single transaction and returns how many were written.
// A point carrying an address is stored as geocoded.
func (s *Store) InsertPoints(ctx context.Context, points []Point) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin point insert")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO gps_points (
			user_id, import_id, timestamp, latitude, longitude,
			horizontal_accuracy, vertical_accuracy, altitude, heading, heading_accuracy,
			speed, speed_accuracy, reverse_geocoded,
			country, city, state, postal_code, street, street_number
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, errors.Wrap(err, "failed to prepare point insert")
	}
	defer stmt.Close()

	for i, p := range points {
		_, err := stmt.ExecContext(ctx,
			p.UserID, nullString(p.ImportID), p.Timestamp.UTC(), p.Latitude, p.Longitude,
			nullFloat(p.HorizontalAccuracy), nullFloat(p.VerticalAccuracy), nullFloat(p.Altitude),
			nullFloat(p.Heading), nullFloat(p.HeadingAccuracy),
			nullFloat(p.Speed), nullFloat(p.SpeedAccuracy), p.ReverseGeocoded || p.Address != (Address{}),
			nullString(p.Country), nullString(p.City), nullString(p.State),
			nullString(p.PostalCode), nullString(p.Street), nullString(p.StreetNumber))
		if err != nil {
			return 0, errors.Wrapf(err, "failed to insert point %d", i)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit points")
	}
	return len(points), nil
}

// CountPoints counts a user's points matching f
func (s *Store) CountPoints(ctx context.Context, userID string, f PointFilter) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM gps_points WHERE user_id = ?`+filterClause(f), userID).Scan(&n)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to count points for user %s", userID)
	}
	return n, nil
}

// PointsPage returns up to limit points after cursor in (timestamp, id) order.
// Rows are fully read before returning, so callers may write between pages.
func (s *Store) PointsPage(ctx context.Context, userID string, f PointFilter, after Cursor, limit int) ([]Point, error) {
	query := `SELECT ` + pointColumns + ` FROM gps_points WHERE user_id = ?` + filterClause(f)
	args := []interface{}{userID}
	if !after.IsZero() {
		ts := after.Timestamp.UTC()
		query += ` AND (timestamp > ? OR (timestamp = ? AND id > ?))`
		args = append(args, ts, ts, after.ID)
	}
	query += ` ORDER BY timestamp, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query points for user %s", userID)
	}
	defer rows.Close()

	points := make([]Point, 0, limit)
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, errors.Wrap(rows.Err(), "failed to iterate points")
}

// EachPoint streams a user's points in timestamp order, pageSize rows at a time.
// Iteration stops at the first error from fn, which is returned as is.
func (s *Store) EachPoint(ctx context.Context, userID string, f PointFilter, pageSize int, fn func(Point) error) error {
	if pageSize <= 0 {
		pageSize = 1000
	}

	var cursor Cursor
	for {
		page, err := s.PointsPage(ctx, userID, f, cursor, pageSize)
		if err != nil {
			return err
		}
		for _, p := range page {
			if err := fn(p); err != nil {
				return err
			}
		}
		if len(page) < pageSize {
			return nil
		}
		cursor = After(page[len(page)-1])
	}
}

// UpdateAddresses marks points geocoded in one transaction
func (s *Store) UpdateAddresses(ctx context.Context, updates []AddressUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin address update")
	}
	defer tx.Rollback()

	flagOnly, err := tx.PrepareContext(ctx, `UPDATE gps_points SET reverse_geocoded = 1 WHERE id = ?`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare flag update")
	}
	defer flagOnly.Close()

	withAddress, err := tx.PrepareContext(ctx, `
		UPDATE gps_points SET reverse_geocoded = 1,
			country = ?, city = ?, state = ?, postal_code = ?, street = ?, street_number = ?
		WHERE id = ?`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare address update")
	}
	defer withAddress.Close()

	for _, u := range updates {
		if u.Address == nil {
			_, err = flagOnly.ExecContext(ctx, u.PointID)
		} else {
			a := u.Address
			_, err = withAddress.ExecContext(ctx,
				nullString(a.Country), nullString(a.City), nullString(a.State),
				nullString(a.PostalCode), nullString(a.Street), nullString(a.StreetNumber), u.PointID)
		}
		if err != nil {
			return errors.Wrapf(err, "failed to update address of point %d", u.PointID)
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit addresses")
}

// UpdateSpeeds writes computed speeds in one transaction
func (s *Store) UpdateSpeeds(ctx context.Context, updates []SpeedUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin speed update")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE gps_points SET speed = ? WHERE id = ?`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare speed update")
	}
	defer stmt.Close()

	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, u.Speed, u.PointID); err != nil {
			return errors.Wrapf(err, "failed to update speed of point %d", u.PointID)
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit speeds")
}

// DeletePointsAboveAccuracy removes a user's points whose horizontal accuracy exceeds maxAccuracy
func (s *Store) DeletePointsAboveAccuracy(ctx context.Context, userID string, maxAccuracy float64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM gps_points WHERE user_id = ? AND horizontal_accuracy IS NOT NULL AND horizontal_accuracy > ?`,
		userID, maxAccuracy)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to delete inaccurate points for user %s", userID)
	}
	return res.RowsAffected()
}

// DeleteZeroPoints removes a user's points at (0, 0)
func (s *Store) DeleteZeroPoints(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM gps_points WHERE user_id = ? AND latitude = 0 AND longitude = 0`, userID)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to delete zero points for user %s", userID)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPoint(row rowScanner) (Point, error) {
	var (
		p                                                      Point
		importID                                               sql.NullString
		hAcc, vAcc, alt, heading, headingAcc, speed, speedAcc  sql.NullFloat64
		country, city, state, postalCode, street, streetNumber sql.NullString
	)
	err := row.Scan(&p.ID, &p.UserID, &importID, &p.Timestamp, &p.Latitude, &p.Longitude,
		&hAcc, &vAcc, &alt, &heading, &headingAcc, &speed, &speedAcc, &p.ReverseGeocoded,
		&country, &city, &state, &postalCode, &street, &streetNumber)
	if err != nil {
		return Point{}, errors.Wrap(err, "failed to scan point")
	}

	p.ImportID = importID.String
	p.HorizontalAccuracy = floatPtr(hAcc)
	p.VerticalAccuracy = floatPtr(vAcc)
	p.Altitude = floatPtr(alt)
	p.Heading = floatPtr(heading)
	p.HeadingAccuracy = floatPtr(headingAcc)
	p.Speed = floatPtr(speed)
	p.SpeedAccuracy = floatPtr(speedAcc)
	p.Address = Address{
		Country:      country.String,
		City:         city.String,
		State:        state.String,
		PostalCode:   postalCode.String,
		Street:       street.String,
		StreetNumber: streetNumber.String,
	}
	return p, nil
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return util.Ptr(n.Float64)
}
