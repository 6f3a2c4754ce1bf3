// Copyright 2025 The Yuanlin Authors
// SPDX-License-Identifier: Apache-2.0

package review

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suzhouyl/yuanlin/geocode"
	"github.com/suzhouyl/yuanlin/spatial"
	"github.com/suzhouyl/yuanlin/utils/textutils"
)

type Server struct {
	repo     AssignmentRepository
	geocoder geocode.Geocoder
}

func NewServer(repo AssignmentRepository, geocoder geocode.Geocoder) *Server {
	return &Server{
		repo:     repo,
		geocoder: geocoder,
	}
}

func (s *Server) Run() error {
	r := gin.Default()

	r.GET("/api/assignments", s.listAssignments)
	r.GET("/api/assignments/progress", s.getProgress)
	r.GET("/api/assignments/collisions", s.listCollisions)
	r.GET("/api/assignments/suggest/*name", s.suggestCoordinates)
	r.POST("/api/assignments/accept/*name", s.acceptAssignment)

	return r.Run("localhost:8080")
}

func (s *Server) listAssignments(ctx *gin.Context) {
	page := 1
	perPage := 50

	if p := ctx.Query("page"); p != "" {
		if _, err := fmt.Sscanf(p, "%d", &page); err != nil {
			page = 1
		}
	}

	if pp := ctx.Query("per_page"); pp != "" {
		if _, err := fmt.Sscanf(pp, "%d", &perPage); err != nil {
			perPage = 50
		}
	}

	var confidence *string

	if c := ctx.Query("confidence"); c != "" {
		if c != geocode.ConfidenceHigh && c != geocode.ConfidenceMedium && c != geocode.ConfidenceLow {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid confidence parameter"})

			return
		}

		confidence = &c
	}

	offset := (page - 1) * perPage

	assignments, err := s.repo.List(confidence, perPage, offset)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	total, err := s.repo.Count()
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"assignments": assignments,
		"total":       total,
		"page":        page,
		"per_page":    perPage,
	})
}

type ProgressResponse struct {
	Total          int            `json:"total"`
	HighConfidence int            `json:"high_confidence"`
	NeedsReview    int            `json:"needs_review"`
	HighPercentage float64        `json:"high_percentage"`
	ByConfidence   map[string]int `json:"by_confidence"`
}

func (s *Server) getProgress(ctx *gin.Context) {
	counts, err := s.repo.CountByConfidence()
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	high := counts[geocode.ConfidenceHigh]

	highPct := 0.0
	if total > 0 {
		highPct = (float64(high) / float64(total)) * 100
	}

	ctx.JSON(http.StatusOK, ProgressResponse{
		Total:          total,
		HighConfidence: high,
		NeedsReview:    total - high,
		HighPercentage: highPct,
		ByConfidence:   counts,
	})
}

func (s *Server) listCollisions(ctx *gin.Context) {
	groups, err := s.repo.CollisionGroups()
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, groups)
}

type SuggestionResponse struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Method     string  `json:"method"`
	Confidence string  `json:"confidence"`
	MatchedKey string  `json:"matched_key,omitempty"`
}

func (s *Server) suggestCoordinates(ctx *gin.Context) {
	name := textutils.NormalizeCJK(strings.TrimPrefix(ctx.Param("name"), "/"))
	if name == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "garden name is required"})

		return
	}

	address := ctx.Query("address")

	result, err := s.geocoder.Geocode(name, address)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "no suggestion available", "details": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, SuggestionResponse{
		Latitude:   result.Point.Lat,
		Longitude:  result.Point.Lng,
		Method:     result.Method,
		Confidence: result.Confidence,
		MatchedKey: result.MatchedKey,
	})
}

type AcceptAssignmentRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
	Notes     string  `json:"notes"`
}

func (s *Server) acceptAssignment(ctx *gin.Context) {
	name := textutils.NormalizeCJK(strings.TrimPrefix(ctx.Param("name"), "/"))
	if name == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "garden name is required"})

		return
	}

	var req AcceptAssignmentRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	address := req.Address
	if address == "" {
		if existing, err := s.repo.Get(name); err == nil {
			address = existing.Address
		} else if !errors.Is(err, sql.ErrNoRows) {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

			return
		}
	}

	point := spatial.Point{
		Lat: req.Latitude,
		Lng: req.Longitude,
	}.Round6()

	assignment := &Assignment{
		Name:       name,
		Address:    address,
		Point:      &point,
		Method:     geocode.MethodManual,
		Confidence: geocode.ConfidenceHigh,
		Notes:      req.Notes,
	}

	if err := validateAssignment(assignment); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("validation failed: %v", err)})

		return
	}

	if err := s.repo.Save(assignment); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("error saving assignment: %v", err)})

		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true})
}
