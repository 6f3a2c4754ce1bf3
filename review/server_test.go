// Copyright 2025 The Yuanlin Authors
// SPDX-License-Identifier: Apache-2.0

package review

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suzhouyl/yuanlin/geocode"
	"github.com/suzhouyl/yuanlin/spatial"
)

// setupServerTest initializes a Gin router and a review.Server over an
// in-memory database and the real knowledge base.
func setupServerTest(t *testing.T) (*gin.Engine, *sql.DB, AssignmentRepository) {
	gin.SetMode(gin.TestMode)
	router := gin.Default()

	db, repo := setupTestDB(t)

	kb, err := geocode.LoadKnowledge("../geocode/knowledge.json")
	require.NoError(t, err)

	server := NewServer(repo, geocode.NewAssigner(kb))

	router.GET("/api/assignments", server.listAssignments)
	router.GET("/api/assignments/progress", server.getProgress)
	router.GET("/api/assignments/collisions", server.listCollisions)
	router.GET("/api/assignments/suggest/*name", server.suggestCoordinates)
	router.POST("/api/assignments/accept/*name", server.acceptAssignment)

	return router, db, repo
}

func seedAssignments(t *testing.T, repo AssignmentRepository) {
	assignments := []*Assignment{
		{
			Name:       "拙政园",
			Address:    "东北街178号",
			Point:      &spatial.Point{Lat: 31.324192, Lng: 120.630455},
			Method:     "known_location",
			Confidence: "high",
			MatchedKey: "拙政园",
		},
		{
			Name:       "无名小园",
			Address:    "平江区某处",
			Point:      &spatial.Point{Lat: 31.2989, Lng: 120.5853},
			Method:     "default",
			Confidence: "low",
		},
	}

	for _, a := range assignments {
		require.NoError(t, repo.Save(a))
	}
}

func TestListAssignmentsAPI(t *testing.T) {
	router, db, repo := setupServerTest(t)
	defer db.Close()

	seedAssignments(t, repo)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/assignments", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Assignments []*Assignment `json:"assignments"`
		Total       int           `json:"total"`
		Page        int           `json:"page"`
		PerPage     int           `json:"per_page"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Len(t, resp.Assignments, 2)
	assert.Equal(t, 1, resp.Page)

	// Filter to the review queue
	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/assignments?confidence=low", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Assignments, 1)
	assert.Equal(t, "无名小园", resp.Assignments[0].Name)

	// Unknown tier is rejected
	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/assignments?confidence=certain", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProgressAPI(t *testing.T) {
	router, db, repo := setupServerTest(t)
	defer db.Close()

	seedAssignments(t, repo)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/assignments/progress", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp ProgressResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 1, resp.HighConfidence)
	assert.Equal(t, 1, resp.NeedsReview)
	assert.InDelta(t, 50.0, resp.HighPercentage, 0.001)
}

func TestSuggestCoordinatesAPI(t *testing.T) {
	router, db, _ := setupServerTest(t)
	defer db.Close()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/assignments/suggest/"+url.PathEscape("拙政园"), nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp SuggestionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "known_location", resp.Method)
	assert.Equal(t, "high", resp.Confidence)
	assert.InDelta(t, 31.324192, resp.Latitude, 0.000001)
	assert.InDelta(t, 120.630455, resp.Longitude, 0.000001)

	// Unknown garden still gets a deterministic default suggestion
	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/assignments/suggest/"+url.PathEscape("无名小园")+"?address="+url.QueryEscape("某无名小巷1号"), nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "default", resp.Method)
	assert.Equal(t, "low", resp.Confidence)
}

func TestAcceptAssignmentAPI(t *testing.T) {
	router, db, repo := setupServerTest(t)
	defer db.Close()

	body, _ := json.Marshal(AcceptAssignmentRequest{
		Latitude:  31.322936,
		Longitude: 120.629882,
		Address:   "东北街202号",
		Notes:     "Verified against the entrance gate",
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/assignments/accept/"+url.PathEscape("苏州博物馆东园"), bytes.NewReader(body))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	saved, err := repo.Get("苏州博物馆东园")
	require.NoError(t, err)
	assert.Equal(t, "manual", saved.Method)
	assert.Equal(t, "high", saved.Confidence)
	assert.Equal(t, "东北街202号", saved.Address)
	assert.InDelta(t, 31.322936, saved.Point.Lat, 0.000001)

	// Coordinates outside the Suzhou bounds are rejected
	body, _ = json.Marshal(AcceptAssignmentRequest{
		Latitude:  39.9042,
		Longitude: 116.4074,
	})

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodPost, "/api/assignments/accept/"+url.PathEscape("苏州博物馆东园"), bytes.NewReader(body))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCollisionsAPI(t *testing.T) {
	router, db, repo := setupServerTest(t)
	defer db.Close()

	for _, name := range []string{"无名园甲", "无名园乙"} {
		require.NoError(t, repo.Save(&Assignment{
			Name:       name,
			Address:    "姑苏某处",
			Point:      &spatial.Point{Lat: 31.2989, Lng: 120.5853},
			Method:     "default",
			Confidence: "low",
		}))
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/assignments/collisions", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var groups []*CollisionGroup
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &groups))
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Members, 2)
	assert.Equal(t, 0.0, groups[0].Members[1].DistanceM)
}
