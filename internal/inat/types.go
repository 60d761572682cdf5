package inat

import "fmt"

// ResultPage is the envelope every observations-search response arrives in.
type ResultPage struct {
	TotalResults int           `json:"total_results"`
	Page         int           `json:"page"`
	PerPage      int           `json:"per_page"`
	Results      []Observation `json:"results"`
}

// GeoJSON carries a point as [longitude, latitude], per the GeoJSON spec.
type GeoJSON struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Observation is the wire shape of one remote record, limited to the fields
// the projection requests.
type Observation struct {
	ID              int64    `json:"id"`
	Description     *string  `json:"description"`
	Geojson         *GeoJSON `json:"geojson"`
	PrivateGeojson  *GeoJSON `json:"private_geojson"`
	Taxon           *Taxon   `json:"taxon"`
	TaxonGeoprivacy *string  `json:"taxon_geoprivacy"`
	TimeObservedAt  *string  `json:"time_observed_at"`
	UpdatedAt       string   `json:"updated_at"`
	URI             string   `json:"uri"`
	UUID            string   `json:"uuid"`
	User            *User    `json:"user"`
}

type Taxon struct {
	ID                  int64   `json:"id"`
	Name                string  `json:"name"`
	PreferredCommonName *string `json:"preferred_common_name"`
}

type User struct {
	ID    int64   `json:"id"`
	Login string  `json:"login"`
	Name  *string `json:"name"`
}

// RequestError is a non-success response from the remote API.
type RequestError struct {
	Status     int
	StatusText string
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("remote request failed: %s", e.StatusText)
}
