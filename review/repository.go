// Copyright 2025 The Yuanlin Authors
// SPDX-License-Identifier: Apache-2.0

// Package review persists coordinate assignments in a local DuckDB database
// so the low-confidence tail can be audited and manually corrected before
// the dataset snapshot is published.
package review

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/suzhouyl/yuanlin/spatial"
	"github.com/uber/h3-go/v4"
)

// Assignment records how a garden was geocoded: the point, its provenance
// and the H3 cells used for collision grouping.
type Assignment struct {
	Name       string         `json:"name"`
	Address    string         `json:"address"`
	Point      *spatial.Point `json:"point"`
	Method     string         `json:"method"`     // known_location, pattern, default, amap, baidu, manual
	Confidence string         `json:"confidence"` // high, medium, low
	MatchedKey string         `json:"matched_key,omitempty"`
	Notes      string         `json:"notes,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	H3Res5     int64          `json:"-"`
	H3Res6     int64          `json:"-"`
	H3Res7     int64          `json:"-"`
	H3Res8     int64          `json:"-"`
	H3Res9     int64          `json:"-"`
}

func (a *Assignment) computeH3() error {
	if a.Point == nil {
		a.H3Res5, a.H3Res6, a.H3Res7, a.H3Res8, a.H3Res9 = 0, 0, 0, 0, 0

		return nil
	}

	latLng := h3.NewLatLng(a.Point.Lat, a.Point.Lng)
	for res := 5; res <= 9; res++ {
		cell, err := h3.LatLngToCell(latLng, res)
		if err != nil {
			return fmt.Errorf("error converting to h3 cell at res %d: %w", res, err)
		}

		switch res {
		case 5:
			a.H3Res5 = int64(cell)
		case 6:
			a.H3Res6 = int64(cell)
		case 7:
			a.H3Res7 = int64(cell)
		case 8:
			a.H3Res8 = int64(cell)
		case 9:
			a.H3Res9 = int64(cell)
		}
	}

	return nil
}

// CollisionMember is one assignment inside a collision group, annotated
// with its haversine distance in meters from the group's first member.
type CollisionMember struct {
	*Assignment
	DistanceM float64 `json:"distance_m"`
}

// CollisionGroup is a set of assignments sharing an H3 res-9 cell, which
// means their markers would overlap on a map.
type CollisionGroup struct {
	Cell    int64              `json:"cell"`
	Members []*CollisionMember `json:"members"`
}

// AssignmentRepository handles persistence of coordinate assignments.
type AssignmentRepository interface {
	// CreateSchema creates the assignments table
	CreateSchema() error

	// Save saves or updates the assignment for a garden
	Save(a *Assignment) error

	// Get returns the assignment for a garden name
	Get(name string) (*Assignment, error)

	// List returns assignments, optionally filtered by confidence tier
	List(confidence *string, limit, offset int) ([]*Assignment, error)

	// GetAllSorted returns all assignments sorted by name for stable exports
	GetAllSorted() ([]*Assignment, error)

	// BulkInsert inserts a slice of assignments
	BulkInsert(assignments []*Assignment) error

	// Count returns the total number of assignments
	Count() (int, error)

	// CountByConfidence returns the number of assignments per tier
	CountByConfidence() (map[string]int, error)

	// CollisionGroups returns groups of assignments sharing an H3 res-9 cell
	CollisionGroups() ([]*CollisionGroup, error)

	// DB returns the underlying database connection
	DB() *sql.DB
}

type sqlAssignmentRepository struct {
	db *sql.DB
}

// NewAssignmentRepository creates a new assignment repository.
func NewAssignmentRepository(db *sql.DB) AssignmentRepository {
	return &sqlAssignmentRepository{db: db}
}

// DB returns the underlying database connection for advanced queries.
func (r *sqlAssignmentRepository) DB() *sql.DB {
	return r.db
}

func (r *sqlAssignmentRepository) CreateSchema() error {
	// DuckDB needs to load the spatial extension
	_, err := r.db.Exec(`INSTALL spatial; LOAD spatial;`)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		CREATE SEQUENCE IF NOT EXISTS assignments_seq START 1;

		CREATE TABLE IF NOT EXISTS assignments (
			id INTEGER PRIMARY KEY DEFAULT nextval('assignments_seq'),
			name VARCHAR NOT NULL,
			address VARCHAR NOT NULL,
			point POINT_2D NOT NULL,
			method VARCHAR NOT NULL,
			confidence VARCHAR NOT NULL,
			matched_key VARCHAR,
			notes TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			h3_res5 UBIGINT,
			h3_res6 UBIGINT,
			h3_res7 UBIGINT,
			h3_res8 UBIGINT,
			h3_res9 UBIGINT,
			UNIQUE(name)
		);
	`)

	return err
}

func (r *sqlAssignmentRepository) Save(a *Assignment) error {
	if err := validateAssignment(a); err != nil {
		return err
	}

	existing, err := r.Get(a.Name)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if err := a.computeH3(); err != nil {
		return err
	}

	a.UpdatedAt = time.Now()
	if existing != nil {
		_, err = r.db.Exec(`
			UPDATE assignments
			SET address = ?, point = ST_Point(?, ?), method = ?,
			    confidence = ?, matched_key = ?, notes = ?, updated_at = ?,
			    h3_res5 = ?, h3_res6 = ?, h3_res7 = ?, h3_res8 = ?, h3_res9 = ?
			WHERE name = ?
		`,
			a.Address,
			a.Point.Lng,
			a.Point.Lat,
			a.Method,
			a.Confidence,
			a.MatchedKey,
			a.Notes,
			a.UpdatedAt,
			a.H3Res5,
			a.H3Res6,
			a.H3Res7,
			a.H3Res8,
			a.H3Res9,
			a.Name,
		)

		return err
	}

	a.CreatedAt = a.UpdatedAt

	return r.BulkInsert([]*Assignment{a})
}

func (r *sqlAssignmentRepository) BulkInsert(assignments []*Assignment) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO assignments(
			name,
			address,
			point,
			method,
			confidence,
			matched_key,
			notes,
			created_at,
			updated_at,
			h3_res5,
			h3_res6,
			h3_res7,
			h3_res8,
			h3_res9
		)
		VALUES (?, ?, ST_Point(?, ?), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		if rErr := tx.Rollback(); rErr != nil {
			err = rErr
		}

		return err
	}
	defer stmt.Close()

	for _, a := range assignments {
		if err := validateAssignment(a); err != nil {
			if rErr := tx.Rollback(); rErr != nil {
				err = rErr
			}

			return err
		}

		if err = a.computeH3(); err != nil {
			return err
		}

		matchedKey := &a.MatchedKey
		if len(*matchedKey) == 0 {
			matchedKey = nil
		}

		if _, err := stmt.Exec(
			a.Name,
			a.Address,
			a.Point.Lng,
			a.Point.Lat,
			a.Method,
			a.Confidence,
			matchedKey,
			a.Notes,
			a.CreatedAt,
			a.UpdatedAt,
			a.H3Res5,
			a.H3Res6,
			a.H3Res7,
			a.H3Res8,
			a.H3Res9,
		); err != nil {
			if rErr := tx.Rollback(); rErr != nil {
				err = rErr
			}

			return err
		}
	}

	return tx.Commit()
}

const assignmentColumns = `
	name, address, point, method, confidence, matched_key, notes,
	created_at, updated_at, h3_res5, h3_res6, h3_res7, h3_res8, h3_res9
`

func scanAssignment(scan func(dest ...any) error) (*Assignment, error) {
	a := &Assignment{Point: &spatial.Point{}}

	var matchedKey sql.NullString

	var h3Res5, h3Res6, h3Res7, h3Res8, h3Res9 sql.NullInt64

	if err := scan(
		&a.Name,
		&a.Address,
		a.Point,
		&a.Method,
		&a.Confidence,
		&matchedKey,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
		&h3Res5,
		&h3Res6,
		&h3Res7,
		&h3Res8,
		&h3Res9,
	); err != nil {
		return nil, err
	}

	if matchedKey.Valid {
		a.MatchedKey = matchedKey.String
	}

	if h3Res5.Valid {
		a.H3Res5 = h3Res5.Int64
	}

	if h3Res6.Valid {
		a.H3Res6 = h3Res6.Int64
	}

	if h3Res7.Valid {
		a.H3Res7 = h3Res7.Int64
	}

	if h3Res8.Valid {
		a.H3Res8 = h3Res8.Int64
	}

	if h3Res9.Valid {
		a.H3Res9 = h3Res9.Int64
	}

	return a, nil
}

func (r *sqlAssignmentRepository) Get(name string) (*Assignment, error) {
	row := r.db.QueryRow(`
		SELECT `+assignmentColumns+`
		FROM assignments
		WHERE name = ?
	`, name)

	return scanAssignment(row.Scan)
}

func (r *sqlAssignmentRepository) list(query string, args []any) ([]*Assignment, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []*Assignment

	for rows.Next() {
		a, err := scanAssignment(rows.Scan)
		if err != nil {
			return nil, err
		}

		assignments = append(assignments, a)
	}

	return assignments, rows.Err()
}

func (r *sqlAssignmentRepository) List(confidence *string, limit, offset int) ([]*Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments`

	var args []any

	if confidence != nil {
		query += ` WHERE confidence = ?`

		args = append(args, *confidence)
	}

	query += ` ORDER BY name LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	return r.list(query, args)
}

func (r *sqlAssignmentRepository) GetAllSorted() ([]*Assignment, error) {
	return r.list(`
		SELECT `+assignmentColumns+`
		FROM assignments
		ORDER BY name
	`, nil)
}

func (r *sqlAssignmentRepository) Count() (int, error) {
	var n int

	err := r.db.QueryRow(`SELECT count(*) FROM assignments`).Scan(&n)

	return n, err
}

func (r *sqlAssignmentRepository) CountByConfidence() (map[string]int, error) {
	rows, err := r.db.Query(`
		SELECT confidence, count(*)
		FROM assignments
		GROUP BY confidence
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)

	for rows.Next() {
		var tier string

		var n int

		if err := rows.Scan(&tier, &n); err != nil {
			return nil, err
		}

		counts[tier] = n
	}

	return counts, rows.Err()
}

func (r *sqlAssignmentRepository) CollisionGroups() ([]*CollisionGroup, error) {
	rows, err := r.db.Query(`
		SELECT h3_res9
		FROM assignments
		WHERE h3_res9 IS NOT NULL AND h3_res9 != 0
		GROUP BY h3_res9
		HAVING count(*) > 1
		ORDER BY h3_res9
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cells []int64

	for rows.Next() {
		var cell int64
		if err := rows.Scan(&cell); err != nil {
			return nil, err
		}

		cells = append(cells, cell)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	groups := make([]*CollisionGroup, 0, len(cells))

	for _, cell := range cells {
		assignments, err := r.list(`
			SELECT `+assignmentColumns+`
			FROM assignments
			WHERE h3_res9 = ?
			ORDER BY name
		`, []any{cell})
		if err != nil {
			return nil, err
		}

		principal := assignments[0]
		members := make([]*CollisionMember, 0, len(assignments))

		for _, a := range assignments {
			members = append(members, &CollisionMember{
				Assignment: a,
				DistanceM:  principal.Point.HaversineDistance(a.Point),
			})
		}

		groups = append(groups, &CollisionGroup{Cell: cell, Members: members})
	}

	return groups, nil
}
