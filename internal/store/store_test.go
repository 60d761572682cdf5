package store

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/lifelight/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := New(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func testObservation(id int64, updatedAt time.Time) models.Observation {
	return models.Observation{
		ID:        id,
		Latitude:  47.982525,
		Longitude: -122.654487,
		UserID:    10,
		UpdatedAt: updatedAt,
		URI:       "https://www.inaturalist.org/observations/1",
		UUID:      "c156d377-15ef-4e11-a316-178e55e0b3b4",
	}
}

func testUser() models.User {
	return models.User{ID: 10, Login: "naturalist", Name: sql.NullString{String: "A Naturalist", Valid: true}}
}

func TestUpsertBatch_Idempotent(t *testing.T) {
	store := setupTestStore(t)

	obs := testObservation(1, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	obs.TaxonID = sql.NullInt64{Int64: 5, Valid: true}
	taxon := models.Taxon{ID: 5, ScientificName: "Corvus corax"}
	user := testUser()

	for i := 0; i < 2; i++ {
		if err := store.UpsertBatch([]models.Observation{obs}, []models.Taxon{taxon}, []models.User{user}); err != nil {
			t.Fatalf("UpsertBatch: %v", err)
		}
	}

	observations, err := store.GetAllObservations()
	if err != nil {
		t.Fatalf("GetAllObservations: %v", err)
	}
	if len(observations) != 1 {
		t.Fatalf("len(observations) = %d, want 1", len(observations))
	}

	taxa, err := store.GetAllTaxa()
	if err != nil {
		t.Fatalf("GetAllTaxa: %v", err)
	}
	if len(taxa) != 1 {
		t.Fatalf("len(taxa) = %d, want 1", len(taxa))
	}

	users, err := store.GetAllUsers()
	if err != nil {
		t.Fatalf("GetAllUsers: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("len(users) = %d, want 1", len(users))
	}
}

func TestUpsertBatch_ReplacesWholeRecord(t *testing.T) {
	store := setupTestStore(t)

	obs := testObservation(1, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	obs.Description = sql.NullString{String: "original", Valid: true}
	if err := store.UpsertBatch([]models.Observation{obs}, nil, []models.User{testUser()}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	obs.Description = sql.NullString{}
	obs.UpdatedAt = time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	if err := store.UpsertBatch([]models.Observation{obs}, nil, []models.User{testUser()}); err != nil {
		t.Fatalf("UpsertBatch update: %v", err)
	}

	got, err := store.GetObservation(1)
	if err != nil {
		t.Fatalf("GetObservation: %v", err)
	}
	if got == nil {
		t.Fatal("GetObservation returned nil")
	}
	if got.Description.Valid {
		t.Errorf("Description = %q, want null (whole-record replace)", got.Description.String)
	}
	if !got.UpdatedAt.Equal(obs.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, obs.UpdatedAt)
	}
}

func TestGetObservation_NotFound(t *testing.T) {
	store := setupTestStore(t)

	got, err := store.GetObservation(404)
	if err != nil {
		t.Fatalf("GetObservation: %v", err)
	}
	if got != nil {
		t.Errorf("GetObservation = %+v, want nil", got)
	}
}

func TestWatermark_EmptyStore(t *testing.T) {
	store := setupTestStore(t)

	w, err := store.Watermark()
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}
	if !w.IsZero() {
		t.Errorf("Watermark = %v, want zero time", w)
	}
}

func TestWatermark_MaxUpdatedAt(t *testing.T) {
	store := setupTestStore(t)

	times := []time.Time{
		time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		time.Date(2023, 11, 2, 8, 0, 0, 0, time.UTC),
	}
	var observations []models.Observation
	for i, ts := range times {
		observations = append(observations, testObservation(int64(i+1), ts))
	}
	if err := store.UpsertBatch(observations, nil, []models.User{testUser()}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	w, err := store.Watermark()
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}
	want := times[1]
	if !w.Equal(want) {
		t.Errorf("Watermark = %v, want %v", w, want)
	}

	// later batch advances it
	if err := store.UpsertBatch([]models.Observation{
		testObservation(4, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
	}, nil, []models.User{testUser()}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	w2, err := store.Watermark()
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}
	if w2.Before(w) {
		t.Errorf("Watermark went backwards: %v -> %v", w, w2)
	}
}

func TestHydrateAll(t *testing.T) {
	store := setupTestStore(t)

	withTaxon := testObservation(1, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	withTaxon.TaxonID = sql.NullInt64{Int64: 5, Valid: true}
	withTaxon.ObservedAt = sql.NullTime{Time: time.Date(2024, 2, 28, 9, 0, 0, 0, time.UTC), Valid: true}
	withoutTaxon := testObservation(2, time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC))

	taxon := models.Taxon{ID: 5, ScientificName: "Corvus corax", CommonName: sql.NullString{String: "Common Raven", Valid: true}}
	if err := store.UpsertBatch(
		[]models.Observation{withTaxon, withoutTaxon},
		[]models.Taxon{taxon},
		[]models.User{testUser()},
	); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	hydrated, err := store.HydrateAll()
	if err != nil {
		t.Fatalf("HydrateAll: %v", err)
	}
	if len(hydrated) != 2 {
		t.Fatalf("len(hydrated) = %d, want 2", len(hydrated))
	}

	byID := make(map[int64]models.HydratedObservation)
	for _, h := range hydrated {
		byID[h.ID] = h
	}

	h1 := byID[1]
	if h1.User.Login != "naturalist" {
		t.Errorf("User.Login = %q, want naturalist", h1.User.Login)
	}
	if h1.Taxon == nil {
		t.Fatal("observation 1: Taxon = nil, want resolved")
	}
	if h1.Taxon.ScientificName != "Corvus corax" {
		t.Errorf("Taxon.ScientificName = %q, want Corvus corax", h1.Taxon.ScientificName)
	}
	if !h1.ObservedAt.Valid || !h1.ObservedAt.Time.Equal(withTaxon.ObservedAt.Time) {
		t.Errorf("ObservedAt = %+v, want %v", h1.ObservedAt, withTaxon.ObservedAt.Time)
	}

	if byID[2].Taxon != nil {
		t.Errorf("observation 2: Taxon = %+v, want nil", byID[2].Taxon)
	}
}

func TestHydrateAll_MissingUser(t *testing.T) {
	store := setupTestStore(t)

	// the store performs no referential validation, so a dangling user can be
	// written directly
	obs := testObservation(1, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	if err := store.UpsertBatch([]models.Observation{obs}, nil, nil); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	_, err := store.HydrateAll()
	var integrity *IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("HydrateAll error = %v, want IntegrityError", err)
	}
	if integrity.Kind != "user" || integrity.RefID != 10 {
		t.Errorf("IntegrityError = %+v, want missing user 10", integrity)
	}
}

func TestHydrateAll_MissingTaxon(t *testing.T) {
	store := setupTestStore(t)

	obs := testObservation(1, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	obs.TaxonID = sql.NullInt64{Int64: 77, Valid: true}
	if err := store.UpsertBatch([]models.Observation{obs}, nil, []models.User{testUser()}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	_, err := store.HydrateAll()
	var integrity *IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("HydrateAll error = %v, want IntegrityError", err)
	}
	if integrity.Kind != "taxon" || integrity.RefID != 77 {
		t.Errorf("IntegrityError = %+v, want missing taxon 77", integrity)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store := setupTestStore(t)

	obs := testObservation(1, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	if err := store.UpsertBatch([]models.Observation{obs}, nil, []models.User{testUser()}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	if err := store.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	observations, err := store.GetAllObservations()
	if err != nil {
		t.Fatalf("GetAllObservations: %v", err)
	}
	if len(observations) != 1 {
		t.Errorf("len(observations) = %d, want 1 (re-migrate at same version must not drop data)", len(observations))
	}
}

func TestMigrate_VersionChangeReseeds(t *testing.T) {
	store := setupTestStore(t)

	obs := testObservation(1, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	if err := store.UpsertBatch([]models.Observation{obs}, nil, []models.User{testUser()}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	// simulate a database created at a different schema version
	if _, err := store.db.Exec("UPDATE schema_info SET version = ?", schemaVersion+1); err != nil {
		t.Fatalf("set stale version: %v", err)
	}

	if err := store.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	observations, err := store.GetAllObservations()
	if err != nil {
		t.Fatalf("GetAllObservations: %v", err)
	}
	if len(observations) != 0 {
		t.Errorf("len(observations) = %d, want 0 (version change drops all collections)", len(observations))
	}
	users, err := store.GetAllUsers()
	if err != nil {
		t.Fatalf("GetAllUsers: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("len(users) = %d, want 0", len(users))
	}

	version, err := store.currentVersion()
	if err != nil {
		t.Fatalf("currentVersion: %v", err)
	}
	if version != schemaVersion {
		t.Errorf("version = %d, want %d", version, schemaVersion)
	}
}
