// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmorrell/rollcall/internal/errs"
	"github.com/jmorrell/rollcall/internal/models"
)

// ListTroupes returns the IDs of all known troupes.
func (s *Server) ListTroupes(w http.ResponseWriter, r *http.Request) {
	ids, err := s.db.ListTroupeIDs(r.Context())
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	limit, offset := s.pageParams(r)
	page, meta := paginate(ids, limit, offset)
	respondPage(w, r, page, meta)
}

// GetTroupe returns one troupe's full definition.
func (s *Server) GetTroupe(w http.ResponseWriter, r *http.Request) {
	tr, err := s.db.GetTroupe(r.Context(), chi.URLParam(r, "troupeID"))
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, tr)
}

// GetQuota returns the troupe's remaining operation counters.
func (s *Server) GetQuota(w http.ResponseWriter, r *http.Request) {
	troupeID := chi.URLParam(r, "troupeID")
	if _, err := s.db.GetTroupe(r.Context(), troupeID); err != nil {
		respondMapped(w, r, err)
		return
	}
	limits, err := s.quota.Get(r.Context(), troupeID)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, limits)
}

type troupeRequest struct {
	Name          string                     `json:"name" validate:"required,max=200"`
	Properties    map[string]string          `json:"properties" validate:"required,min=1"`
	PointTypes    map[string]pointBucketBody `json:"point_types"`
	FieldRules    []fieldRuleBody            `json:"field_rules" validate:"dive"`
	OriginEventID string                     `json:"origin_event_id"`
}

type pointBucketBody struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required"`
}

type fieldRuleBody struct {
	Expression string           `json:"expression" validate:"required"`
	Condition  string           `json:"condition" validate:"required,oneof=contains exact prefix"`
	Property   string           `json:"property" validate:"required"`
	Priority   int              `json:"priority" validate:"min=0"`
	Filters    []ruleFilterBody `json:"filters" validate:"dive"`
}

type ruleFilterBody struct {
	Kind  string `json:"kind" validate:"required,oneof=sourceKind titleContains"`
	Value string `json:"value" validate:"required"`
}

// toModel converts the request into a troupe, leaving lock and timestamp
// fields to the caller.
func (req *troupeRequest) toModel(troupeID string) (*models.Troupe, error) {
	props := make(map[string]models.PropertyType, len(req.Properties))
	for name, raw := range req.Properties {
		pt := models.PropertyType(raw)
		if !pt.Valid() {
			return nil, errs.NewClientError("property %q has invalid type %q", name, raw)
		}
		props[name] = pt
	}

	points := make(map[string]models.PointBucket, len(req.PointTypes))
	for name, b := range req.PointTypes {
		if b.End.Before(b.Start) {
			return nil, errs.NewClientError("point type %q ends before it starts", name)
		}
		points[name] = models.PointBucket{Start: b.Start, End: b.End}
	}

	rules := make([]models.FieldRule, 0, len(req.FieldRules))
	for _, fr := range req.FieldRules {
		filters := make([]models.RuleFilter, 0, len(fr.Filters))
		for _, f := range fr.Filters {
			filters = append(filters, models.RuleFilter{Kind: f.Kind, Value: f.Value})
		}
		rules = append(rules, models.FieldRule{
			Expression: fr.Expression,
			Condition:  models.MatchCondition(fr.Condition),
			Property:   fr.Property,
			Priority:   fr.Priority,
			Filters:    filters,
		})
	}

	return &models.Troupe{
		ID:            troupeID,
		Name:          req.Name,
		Properties:    props,
		PointTypes:    points,
		FieldRules:    rules,
		OriginEventID: req.OriginEventID,
	}, nil
}

// PutTroupe creates or replaces a troupe definition. The operation consumes
// one modify-operation quota unit and is refused while a sync holds the
// troupe's lock.
func (s *Server) PutTroupe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	troupeID := chi.URLParam(r, "troupeID")

	var req troupeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeValidationFailed, err.Error(), nil)
		return
	}

	tr, err := req.toModel(troupeID)
	if err != nil {
		respondMapped(w, r, err)
		return
	}

	existing, err := s.db.GetTroupe(ctx, troupeID)
	if err != nil && !errors.Is(err, errs.ErrTroupeNotFound) {
		respondMapped(w, r, err)
		return
	}
	if existing != nil && existing.SyncLock {
		respondMapped(w, r, errs.ErrSyncInProgress)
		return
	}

	deltas := map[string]int64{models.CounterModifyOps: -1}
	if err := s.quota.WithinLimits(ctx, troupeID, deltas); err != nil {
		respondMapped(w, r, err)
		return
	}

	tr.LastUpdated = time.Now().UTC()
	if err := s.db.UpsertTroupe(ctx, tr); err != nil {
		respondMapped(w, r, err)
		return
	}
	if err := s.quota.Increment(ctx, troupeID, deltas); err != nil {
		respondMapped(w, r, errs.NewIntegrityError("troupe quota accounting", err))
		return
	}

	status := http.StatusOK
	if existing == nil {
		status = http.StatusCreated
	}
	respond(w, r, status, tr)
}
