package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/lifelight/internal/models"
)

// IntegrityError reports a dangling reference found while hydrating: an
// observation whose user, or whose non-null taxon, is missing from the store.
// It signals a store inconsistency rather than a transport or parse failure.
type IntegrityError struct {
	ObservationID int64
	Kind          string // "user" or "taxon"
	RefID         int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("observation %d references missing %s %d", e.ObservationID, e.Kind, e.RefID)
}

// HydrateAll returns every observation joined with its user and taxon.
// A missing user is always an integrity error; a missing taxon is one only
// when the observation carries a taxon id.
func (s *Store) HydrateAll() ([]models.HydratedObservation, error) {
	rows, err := s.db.Query(`
		SELECT o.id, o.latitude, o.longitude, o.taxon_id, o.user_id,
		       o.observed_at, o.observed_at_verbatim, o.updated_at, o.description, o.uri, o.uuid,
		       u.id, u.login, u.name,
		       t.id, t.scientific_name, t.common_name
		FROM observations o
		LEFT JOIN users u ON u.id = o.user_id
		LEFT JOIN taxa t ON t.id = o.taxon_id
	`)
	if err != nil {
		return nil, fmt.Errorf("hydrate: %w", err)
	}
	defer rows.Close()

	var hydrated []models.HydratedObservation
	for rows.Next() {
		var (
			o          models.Observation
			observedMs sql.NullInt64
			updatedMs  int64
			userID     sql.NullInt64
			userLogin  sql.NullString
			userName   sql.NullString
			taxonID    sql.NullInt64
			taxonSci   sql.NullString
			taxonCom   sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.Latitude, &o.Longitude, &o.TaxonID, &o.UserID,
			&observedMs, &o.ObservedAtVerbatim, &updatedMs, &o.Description, &o.URI, &o.UUID,
			&userID, &userLogin, &userName,
			&taxonID, &taxonSci, &taxonCom); err != nil {
			return nil, fmt.Errorf("hydrate scan: %w", err)
		}
		if observedMs.Valid {
			o.ObservedAt = sql.NullTime{Time: time.UnixMilli(observedMs.Int64).UTC(), Valid: true}
		}
		o.UpdatedAt = time.UnixMilli(updatedMs).UTC()

		if !userID.Valid {
			return nil, &IntegrityError{ObservationID: o.ID, Kind: "user", RefID: o.UserID}
		}
		h := models.HydratedObservation{
			Observation: o,
			User:        models.User{ID: userID.Int64, Login: userLogin.String, Name: userName},
		}

		if o.TaxonID.Valid {
			if !taxonID.Valid {
				return nil, &IntegrityError{ObservationID: o.ID, Kind: "taxon", RefID: o.TaxonID.Int64}
			}
			h.Taxon = &models.Taxon{ID: taxonID.Int64, ScientificName: taxonSci.String, CommonName: taxonCom}
		}

		hydrated = append(hydrated, h)
	}
	return hydrated, rows.Err()
}
