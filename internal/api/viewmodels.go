package api

import (
	"time"

	"github.com/lox/lifelight/internal/models"
)

// ObservationView is the JSON shape of a hydrated observation. Null optionals
// are rendered as JSON null rather than Go zero values.
type ObservationView struct {
	ID                 int64      `json:"id"`
	Latitude           float64    `json:"latitude"`
	Longitude          float64    `json:"longitude"`
	ObservedAt         *time.Time `json:"observedAt"`
	ObservedAtVerbatim *string    `json:"observedAtVerbatim"`
	UpdatedAt          time.Time  `json:"updatedAt"`
	Description        *string    `json:"description"`
	URI                string     `json:"uri"`
	UUID               string     `json:"uuid"`
	User               UserView   `json:"user"`
	Taxon              *TaxonView `json:"taxon"`
}

type UserView struct {
	ID    int64   `json:"id"`
	Login string  `json:"login"`
	Name  *string `json:"name"`
}

type TaxonView struct {
	ID             int64   `json:"id"`
	ScientificName string  `json:"scientificName"`
	CommonName     *string `json:"commonName"`
}

func toView(h models.HydratedObservation) ObservationView {
	v := ObservationView{
		ID:        h.ID,
		Latitude:  h.Latitude,
		Longitude: h.Longitude,
		UpdatedAt: h.UpdatedAt,
		URI:       h.URI,
		UUID:      h.UUID,
		User:      UserView{ID: h.User.ID, Login: h.User.Login},
	}
	if h.ObservedAt.Valid {
		t := h.ObservedAt.Time
		v.ObservedAt = &t
	}
	if h.ObservedAtVerbatim.Valid {
		s := h.ObservedAtVerbatim.String
		v.ObservedAtVerbatim = &s
	}
	if h.Description.Valid {
		s := h.Description.String
		v.Description = &s
	}
	if h.User.Name.Valid {
		s := h.User.Name.String
		v.User.Name = &s
	}
	if h.Taxon != nil {
		tv := &TaxonView{ID: h.Taxon.ID, ScientificName: h.Taxon.ScientificName}
		if h.Taxon.CommonName.Valid {
			s := h.Taxon.CommonName.String
			tv.CommonName = &s
		}
		v.Taxon = tv
	}
	return v
}

func toViews(hydrated []models.HydratedObservation) []ObservationView {
	views := make([]ObservationView, 0, len(hydrated))
	for _, h := range hydrated {
		views = append(views, toView(h))
	}
	return views
}

// GeoJSON feature output, the shape the map layer consumes.

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string         `json:"type"`
	Geometry   geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

func toFeatureCollection(hydrated []models.HydratedObservation) featureCollection {
	fc := featureCollection{Type: "FeatureCollection", Features: make([]feature, 0, len(hydrated))}
	for _, h := range hydrated {
		props := map[string]any{
			"id":    h.ID,
			"uri":   h.URI,
			"login": h.User.Login,
		}
		if h.Taxon != nil {
			props["scientificName"] = h.Taxon.ScientificName
			if h.Taxon.CommonName.Valid {
				props["commonName"] = h.Taxon.CommonName.String
			}
		}
		if h.ObservedAt.Valid {
			props["observedAt"] = h.ObservedAt.Time.Format(time.RFC3339)
		}
		fc.Features = append(fc.Features, feature{
			Type: "Feature",
			Geometry: geometry{
				Type:        "Point",
				Coordinates: [2]float64{h.Longitude, h.Latitude},
			},
			Properties: props,
		})
	}
	return fc
}
