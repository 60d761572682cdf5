package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/lifelight/internal/models"
)

// Store persists the local replica of remote observation data. Timestamps are
// stored as integer unix milliseconds so the updated_at index orders correctly
// regardless of source timezone.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertBatch writes observations, taxa and users in a single transaction.
// Put-by-id replaces any existing record wholesale. The store does not verify
// that referenced users/taxa are present; the sync orchestrator includes them
// in the same batch.
func (s *Store) UpsertBatch(observations []models.Observation, taxa []models.Taxon, users []models.User) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	for _, u := range users {
		if _, err := tx.Exec(`
			INSERT INTO users (id, login, name)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				login = excluded.login,
				name = excluded.name
		`, u.ID, u.Login, u.Name); err != nil {
			return fmt.Errorf("upsert user %d: %w", u.ID, err)
		}
	}

	for _, t := range taxa {
		if _, err := tx.Exec(`
			INSERT INTO taxa (id, scientific_name, common_name)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				scientific_name = excluded.scientific_name,
				common_name = excluded.common_name
		`, t.ID, t.ScientificName, t.CommonName); err != nil {
			return fmt.Errorf("upsert taxon %d: %w", t.ID, err)
		}
	}

	for _, o := range observations {
		if _, err := tx.Exec(`
			INSERT INTO observations (id, latitude, longitude, taxon_id, user_id, observed_at, observed_at_verbatim, updated_at, description, uri, uuid)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				latitude = excluded.latitude,
				longitude = excluded.longitude,
				taxon_id = excluded.taxon_id,
				user_id = excluded.user_id,
				observed_at = excluded.observed_at,
				observed_at_verbatim = excluded.observed_at_verbatim,
				updated_at = excluded.updated_at,
				description = excluded.description,
				uri = excluded.uri,
				uuid = excluded.uuid
		`, o.ID, o.Latitude, o.Longitude, o.TaxonID, o.UserID,
			nullTimeToMillis(o.ObservedAt), o.ObservedAtVerbatim, o.UpdatedAt.UnixMilli(),
			o.Description, o.URI, o.UUID); err != nil {
			return fmt.Errorf("upsert observation %d: %w", o.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Watermark returns the maximum updated_at across all observations, or the
// zero time when the store is empty.
func (s *Store) Watermark() (time.Time, error) {
	var ms sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(updated_at) FROM observations").Scan(&ms); err != nil {
		return time.Time{}, fmt.Errorf("watermark: %w", err)
	}
	if !ms.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms.Int64).UTC(), nil
}

func (s *Store) GetObservation(id int64) (*models.Observation, error) {
	row := s.db.QueryRow(`
		SELECT id, latitude, longitude, taxon_id, user_id, observed_at, observed_at_verbatim, updated_at, description, uri, uuid
		FROM observations WHERE id = ?
	`, id)
	obs, err := scanObservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get observation %d: %w", id, err)
	}
	return obs, nil
}

func (s *Store) GetAllObservations() ([]models.Observation, error) {
	rows, err := s.db.Query(`
		SELECT id, latitude, longitude, taxon_id, user_id, observed_at, observed_at_verbatim, updated_at, description, uri, uuid
		FROM observations
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var observations []models.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		observations = append(observations, *obs)
	}
	return observations, rows.Err()
}

func (s *Store) GetTaxon(id int64) (*models.Taxon, error) {
	var t models.Taxon
	err := s.db.QueryRow("SELECT id, scientific_name, common_name FROM taxa WHERE id = ?", id).
		Scan(&t.ID, &t.ScientificName, &t.CommonName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get taxon %d: %w", id, err)
	}
	return &t, nil
}

func (s *Store) GetAllTaxa() ([]models.Taxon, error) {
	rows, err := s.db.Query("SELECT id, scientific_name, common_name FROM taxa")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var taxa []models.Taxon
	for rows.Next() {
		var t models.Taxon
		if err := rows.Scan(&t.ID, &t.ScientificName, &t.CommonName); err != nil {
			return nil, err
		}
		taxa = append(taxa, t)
	}
	return taxa, rows.Err()
}

func (s *Store) GetUser(id int64) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow("SELECT id, login, name FROM users WHERE id = ?", id).
		Scan(&u.ID, &u.Login, &u.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &u, nil
}

func (s *Store) GetAllUsers() ([]models.User, error) {
	rows, err := s.db.Query("SELECT id, login, name FROM users")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Login, &u.Name); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (*models.Observation, error) {
	var (
		o          models.Observation
		observedMs sql.NullInt64
		updatedMs  int64
	)
	if err := row.Scan(&o.ID, &o.Latitude, &o.Longitude, &o.TaxonID, &o.UserID,
		&observedMs, &o.ObservedAtVerbatim, &updatedMs, &o.Description, &o.URI, &o.UUID); err != nil {
		return nil, err
	}
	if observedMs.Valid {
		o.ObservedAt = sql.NullTime{Time: time.UnixMilli(observedMs.Int64).UTC(), Valid: true}
	}
	o.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return &o, nil
}

func nullTimeToMillis(t sql.NullTime) sql.NullInt64 {
	if !t.Valid {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Time.UnixMilli(), Valid: true}
}
