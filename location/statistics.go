package location

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/teranos/waypoint/errors"
)

// DeleteDailyStatistics removes every daily statistic of a user
func (s *Store) DeleteDailyStatistics(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM daily_statistics WHERE user_id = ?`, userID); err != nil {
		return errors.Wrapf(err, "failed to delete daily statistics for user %s", userID)
	}
	return nil
}

// InsertDailyStatistics writes rows in one transaction.
// Visited place lists are stored as sorted JSON arrays.
func (s *Store) InsertDailyStatistics(ctx context.Context, stats []DailyStatistic) error {
	if len(stats) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin statistics insert")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO daily_statistics
			(user_id, year, month, day, distance_meters, visited_countries, visited_cities)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare statistics insert")
	}
	defer stmt.Close()

	for _, st := range stats {
		countries, err := encodeNames(st.VisitedCountries)
		if err != nil {
			return err
		}
		cities, err := encodeNames(st.VisitedCities)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, st.UserID, st.Year, st.Month, st.Day,
			st.DistanceMeters, countries, cities); err != nil {
			return errors.Wrapf(err, "failed to insert statistic %04d-%02d-%02d", st.Year, st.Month, st.Day)
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit statistics")
}

// ListDailyStatistics returns a user's statistics ordered by date
func (s *Store) ListDailyStatistics(ctx context.Context, userID string) ([]DailyStatistic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, year, month, day, distance_meters, visited_countries, visited_cities
		FROM daily_statistics
		WHERE user_id = ?
		ORDER BY year, month, day`, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query daily statistics for user %s", userID)
	}
	defer rows.Close()

	stats := []DailyStatistic{}
	for rows.Next() {
		var (
			st                DailyStatistic
			countries, cities string
		)
		if err := rows.Scan(&st.UserID, &st.Year, &st.Month, &st.Day, &st.DistanceMeters, &countries, &cities); err != nil {
			return nil, errors.Wrap(err, "failed to scan daily statistic")
		}
		if err := json.Unmarshal([]byte(countries), &st.VisitedCountries); err != nil {
			return nil, errors.Wrap(err, "failed to parse visited countries")
		}
		if err := json.Unmarshal([]byte(cities), &st.VisitedCities); err != nil {
			return nil, errors.Wrap(err, "failed to parse visited cities")
		}
		stats = append(stats, st)
	}
	return stats, errors.Wrap(rows.Err(), "failed to iterate daily statistics")
}

func encodeNames(names []string) (string, error) {
	sorted := append([]string{}, names...)
	sort.Strings(sorted)
	data, err := json.Marshal(sorted)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode place names")
	}
	return string(data), nil
}
