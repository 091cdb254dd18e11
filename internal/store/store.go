// Package store persists survey projects in a local sqlite database:
// the pixel/world correspondences a user has marked up for a camera,
// plus the solve runs recorded against them. The schema is managed by
// the embedded migrations in migrations/.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/geofix-app/geofix/internal/solver"
)

// ErrNotFound is returned when a project or solve record does not exist.
var ErrNotFound = errors.New("store: not found")

type DB struct {
	*sql.DB
}

// Open connects to the sqlite database at path without touching the
// schema. Use OpenAndMigrate unless you are driving migrations by hand.
func Open(path string) (*DB, error) {
	// Foreign keys are off by default in sqlite; the _pragma DSN options
	// apply to every pooled connection.
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return &DB{db}, nil
}

// OpenAndMigrate connects to the sqlite database at path and applies any
// pending migrations. This is the normal entry point for the server.
func OpenAndMigrate(path string) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Project is one camera markup session: a named image with its pixel
// dimensions. Correspondences and solve history hang off it.
type Project struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Image     solver.ImageSize `json:"image"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// SolveRecord is one recorded solve run against a project. Request and
// Response hold the verbatim wire JSON so a run can be replayed or
// re-rendered later; the rmse and inlier ratio are denormalized for
// listing without parsing the blobs.
type SolveRecord struct {
	ID          int64           `json:"id"`
	ProjectID   string          `json:"projectId"`
	Request     json.RawMessage `json:"request"`
	Response    json.RawMessage `json:"response"`
	RmsePx      float64         `json:"rmsePx"`
	InlierRatio float64         `json:"inlierRatio"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// CreateProject inserts a new project and returns it with its assigned
// ID. An empty id is replaced with a fresh UUID.
func (db *DB) CreateProject(id, name string, image solver.ImageSize) (*Project, error) {
	if name == "" {
		return nil, fmt.Errorf("store: project name is required")
	}
	if !(image.Width > 0) || !(image.Height > 0) {
		return nil, fmt.Errorf("store: project image dimensions must be positive")
	}
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	_, err := db.Exec(`
		INSERT INTO projects (id, name, image_width_px, image_height_px, created_unix_nanos, updated_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, image.Width, image.Height, now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	return &Project{ID: id, Name: name, Image: image, CreatedAt: now, UpdatedAt: now}, nil
}

// GetProject retrieves a project by ID.
func (db *DB) GetProject(id string) (*Project, error) {
	query := `
		SELECT id, name, image_width_px, image_height_px, created_unix_nanos, updated_unix_nanos
		FROM projects
		WHERE id = ?
	`

	var p Project
	var createdNanos, updatedNanos int64

	err := db.QueryRow(query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Image.Width,
		&p.Image.Height,
		&createdNanos,
		&updatedNanos,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	p.CreatedAt = time.Unix(0, createdNanos).UTC()
	p.UpdatedAt = time.Unix(0, updatedNanos).UTC()
	return &p, nil
}

// ListProjects returns all projects, newest first.
func (db *DB) ListProjects() ([]Project, error) {
	query := `
		SELECT id, name, image_width_px, image_height_px, created_unix_nanos, updated_unix_nanos
		FROM projects
		ORDER BY created_unix_nanos DESC, id
	`

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		var createdNanos, updatedNanos int64
		if err := rows.Scan(&p.ID, &p.Name, &p.Image.Width, &p.Image.Height, &createdNanos, &updatedNanos); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.CreatedAt = time.Unix(0, createdNanos).UTC()
		p.UpdatedAt = time.Unix(0, updatedNanos).UTC()
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateProject renames a project and/or changes its image dimensions,
// bumping the updated timestamp.
func (db *DB) UpdateProject(id, name string, image solver.ImageSize) (*Project, error) {
	if name == "" {
		return nil, fmt.Errorf("store: project name is required")
	}
	if !(image.Width > 0) || !(image.Height > 0) {
		return nil, fmt.Errorf("store: project image dimensions must be positive")
	}

	now := time.Now().UTC()
	res, err := db.Exec(`
		UPDATE projects
		SET name = ?, image_width_px = ?, image_height_px = ?, updated_unix_nanos = ?
		WHERE id = ?`,
		name, image.Width, image.Height, now.UnixNano(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	return db.GetProject(id)
}

// DeleteProject removes a project along with its correspondences and
// solve history.
func (db *DB) DeleteProject(id string) error {
	res, err := db.Exec(`DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceCorrespondences swaps a project's correspondence set for the
// given one in a single transaction. Correspondences without an ID get
// a fresh UUID. Insertion order is preserved by Correspondences.
func (db *DB) ReplaceCorrespondences(projectID string, corrs []solver.Correspondence) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow(`SELECT 1 FROM projects WHERE id = ?`, projectID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check project: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM correspondences WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("failed to clear correspondences: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO correspondences (project_id, id, pixel_u, pixel_v, sigma_px, world_lat, world_lon, world_alt, sigma_m, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range corrs {
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		enabled := 0
		if c.IsEnabled() {
			enabled = 1
		}
		_, err := stmt.Exec(
			projectID, id,
			c.Pixel.U, c.Pixel.V, nullableFloat(c.Pixel.SigmaPx),
			c.World.Lat, c.World.Lon, nullableFloat(c.World.Alt), nullableFloat(c.World.SigmaM),
			enabled,
		)
		if err != nil {
			return fmt.Errorf("failed to insert correspondence %q: %w", id, err)
		}
	}

	return tx.Commit()
}

// Correspondences returns a project's correspondence set in insertion
// order, ready to drop into a SolveRequest.
func (db *DB) Correspondences(projectID string) ([]solver.Correspondence, error) {
	var exists int
	err := db.QueryRow(`SELECT 1 FROM projects WHERE id = ?`, projectID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check project: %w", err)
	}

	query := `
		SELECT id, pixel_u, pixel_v, sigma_px, world_lat, world_lon, world_alt, sigma_m, enabled
		FROM correspondences
		WHERE project_id = ?
		ORDER BY rowid
	`

	rows, err := db.Query(query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list correspondences: %w", err)
	}
	defer rows.Close()

	var corrs []solver.Correspondence
	for rows.Next() {
		var c solver.Correspondence
		var sigmaPx, worldAlt, sigmaM sql.NullFloat64
		var enabled int
		if err := rows.Scan(&c.ID, &c.Pixel.U, &c.Pixel.V, &sigmaPx, &c.World.Lat, &c.World.Lon, &worldAlt, &sigmaM, &enabled); err != nil {
			return nil, fmt.Errorf("failed to scan correspondence: %w", err)
		}
		c.Pixel.SigmaPx = floatPtrFromNull(sigmaPx)
		c.World.Alt = floatPtrFromNull(worldAlt)
		c.World.SigmaM = floatPtrFromNull(sigmaM)
		if enabled == 0 {
			f := false
			c.Enabled = &f
		}
		corrs = append(corrs, c)
	}
	return corrs, rows.Err()
}

// RecordSolve stores a solve run against a project. The request and
// response are kept as verbatim JSON; rmse and inlier ratio are lifted
// out of the diagnostics for cheap listing.
func (db *DB) RecordSolve(projectID string, req *solver.SolveRequest, resp *solver.SolveResponse) (*SolveRecord, error) {
	if req == nil || resp == nil {
		return nil, fmt.Errorf("store: request and response are required")
	}

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	respJSON, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	now := time.Now().UTC()
	res, err := db.Exec(`
		INSERT INTO solves (project_id, request_json, response_json, rmse_px, inlier_ratio, created_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?)`,
		projectID, string(reqJSON), string(respJSON),
		resp.Diagnostics.RmsePx, resp.Diagnostics.InlierRatio, now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record solve: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &SolveRecord{
		ID:          id,
		ProjectID:   projectID,
		Request:     reqJSON,
		Response:    respJSON,
		RmsePx:      resp.Diagnostics.RmsePx,
		InlierRatio: resp.Diagnostics.InlierRatio,
		CreatedAt:   now,
	}, nil
}

// Solves returns a project's solve history, newest first.
func (db *DB) Solves(projectID string) ([]SolveRecord, error) {
	var exists int
	err := db.QueryRow(`SELECT 1 FROM projects WHERE id = ?`, projectID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check project: %w", err)
	}

	query := `
		SELECT id, project_id, request_json, response_json, rmse_px, inlier_ratio, created_unix_nanos
		FROM solves
		WHERE project_id = ?
		ORDER BY created_unix_nanos DESC, id DESC
	`

	rows, err := db.Query(query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list solves: %w", err)
	}
	defer rows.Close()

	var records []SolveRecord
	for rows.Next() {
		var r SolveRecord
		var reqJSON, respJSON string
		var createdNanos int64
		if err := rows.Scan(&r.ID, &r.ProjectID, &reqJSON, &respJSON, &r.RmsePx, &r.InlierRatio, &createdNanos); err != nil {
			return nil, fmt.Errorf("failed to scan solve record: %w", err)
		}
		r.Request = json.RawMessage(reqJSON)
		r.Response = json.RawMessage(respJSON)
		r.CreatedAt = time.Unix(0, createdNanos).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

func nullableFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func floatPtrFromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
