package models

import (
	"database/sql"
	"time"
)

// Observation is one iNaturalist observation as stored locally. IDs are
// assigned by the remote API and stable across syncs.
type Observation struct {
	ID                 int64
	Latitude           float64
	Longitude          float64
	TaxonID            sql.NullInt64
	UserID             int64
	ObservedAt         sql.NullTime
	ObservedAtVerbatim sql.NullString
	UpdatedAt          time.Time
	Description        sql.NullString
	URI                string
	UUID               string
}

type Taxon struct {
	ID             int64
	ScientificName string
	CommonName     sql.NullString
}

type User struct {
	ID    int64
	Login string
	Name  sql.NullString
}

// HydratedObservation joins an observation with its resolved user and taxon.
// User is always present; Taxon is nil when the observation has no taxon.
type HydratedObservation struct {
	Observation
	User  User
	Taxon *Taxon
}
