package inat

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/lifelight/internal/models"
)

// MalformedRecordError is a wire record that cannot be normalized: missing
// coordinates, a missing embedded user, or a missing/unparsable updated_at.
type MalformedRecordError struct {
	ID     int64
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record %d: %s", e.ID, e.Reason)
}

// Record is the normalized form of one wire observation: exactly one
// observation and user, plus a taxon when the record carries one.
type Record struct {
	Observation models.Observation
	Taxon       *models.Taxon
	User        models.User
}

// Normalize transforms a wire record into local entities. Pure, no I/O.
//
// The privacy-obscured coordinate pair takes precedence over the public one
// when both are present; a record with neither is rejected. time_observed_at
// is kept verbatim alongside the parsed instant because the remote source's
// format is not always strictly parseable.
func Normalize(w Observation) (Record, error) {
	geo := w.PrivateGeojson
	if geo == nil {
		geo = w.Geojson
	}
	if geo == nil || len(geo.Coordinates) < 2 {
		return Record{}, &MalformedRecordError{ID: w.ID, Reason: "no coordinate pair"}
	}

	if w.User == nil || w.User.ID == 0 {
		return Record{}, &MalformedRecordError{ID: w.ID, Reason: "no embedded user"}
	}

	updatedAt, err := time.Parse(time.RFC3339, w.UpdatedAt)
	if err != nil {
		return Record{}, &MalformedRecordError{ID: w.ID, Reason: fmt.Sprintf("bad updated_at %q", w.UpdatedAt)}
	}

	obs := models.Observation{
		ID: w.ID,
		// GeoJSON order is lon, lat
		Longitude: geo.Coordinates[0],
		Latitude:  geo.Coordinates[1],
		UserID:    w.User.ID,
		UpdatedAt: updatedAt.UTC(),
		URI:       w.URI,
		UUID:      w.UUID,
	}
	if w.Description != nil {
		obs.Description = sql.NullString{String: *w.Description, Valid: true}
	}
	if w.TimeObservedAt != nil {
		obs.ObservedAtVerbatim = sql.NullString{String: *w.TimeObservedAt, Valid: true}
		if t, err := time.Parse(time.RFC3339, *w.TimeObservedAt); err == nil {
			obs.ObservedAt = sql.NullTime{Time: t.UTC(), Valid: true}
		}
	}

	user := models.User{ID: w.User.ID, Login: w.User.Login}
	if w.User.Name != nil {
		user.Name = sql.NullString{String: *w.User.Name, Valid: true}
	}

	var taxon *models.Taxon
	if w.Taxon != nil {
		taxon = &models.Taxon{ID: w.Taxon.ID, ScientificName: w.Taxon.Name}
		if w.Taxon.PreferredCommonName != nil {
			taxon.CommonName = sql.NullString{String: *w.Taxon.PreferredCommonName, Valid: true}
		}
		obs.TaxonID = sql.NullInt64{Int64: w.Taxon.ID, Valid: true}
	}

	return Record{Observation: obs, Taxon: taxon, User: user}, nil
}
