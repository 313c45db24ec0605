// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resona Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/resona-dev/resona/internal/recommend"
	"github.com/resona-dev/resona/internal/store"
	resonaerr "github.com/resona-dev/resona/pkg/errors"
	"github.com/resona-dev/resona/pkg/health"
)

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	// Track endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "create-track",
		Method:      http.MethodPost,
		Path:        "/api/v1/tracks",
		Summary:     "Submit a track for analysis",
		Tags:        []string{"tracks"},
	}, s.handleCreateTrack)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-tracks",
		Method:      http.MethodGet,
		Path:        "/api/v1/tracks",
		Summary:     "List cataloged tracks",
		Tags:        []string{"tracks"},
	}, s.handleListTracks)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-track",
		Method:      http.MethodGet,
		Path:        "/api/v1/tracks/{id}",
		Summary:     "Get track details",
		Tags:        []string{"tracks"},
	}, s.handleGetTrack)

	// Recommendation endpoint
	huma.Register(s.api, huma.Operation{
		OperationID: "find-similar",
		Method:      http.MethodGet,
		Path:        "/api/v1/similar",
		Summary:     "Find tracks similar to a given track",
		Tags:        []string{"recommendations"},
	}, s.handleFindSimilar)

	// Feedback endpoint
	huma.Register(s.api, huma.Operation{
		OperationID: "record-feedback",
		Method:      http.MethodPost,
		Path:        "/api/v1/feedback",
		Summary:     "Vote on a recommendation pairing",
		Tags:        []string{"feedback"},
	}, s.handleRecordFeedback)

	// Status endpoint
	huma.Register(s.api, huma.Operation{
		OperationID: "service-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Service status",
		Tags:        []string{"system"},
	}, s.handleStatus)
}

// --- Request/Response types for huma ---

type createTrackInput struct {
	Body struct {
		Title          string `json:"title,omitempty" doc:"Track title"`
		CreatorName    string `json:"creator_name,omitempty" doc:"Artist or uploader name"`
		URL            string `json:"url" minLength:"1" doc:"Source URL of the track"`
		SourcePlatform string `json:"source_platform,omitempty" doc:"Platform the URL points at"`
		AddedBy        string `json:"added_by,omitempty" doc:"Submitting user"`
		ReleaseDate    string `json:"release_date,omitempty" doc:"Release date, free-form"`
	}
}
type createTrackOutput struct {
	Status int
	Body   struct {
		Track *store.Entry `json:"track"`
		IsNew bool         `json:"is_new" doc:"Whether this submission created the entry"`
	}
}

type listTracksOutput struct {
	Body struct {
		Tracks []*store.Entry `json:"tracks"`
		Count  int            `json:"count"`
	}
}

type trackIDInput struct {
	ID int64 `path:"id" minimum:"1" doc:"Track identifier"`
}
type getTrackOutput struct {
	Body *store.Entry
}

type findSimilarInput struct {
	ID          int64 `query:"id" required:"true" minimum:"1" doc:"Query track identifier"`
	Limit       int   `query:"limit" default:"10" minimum:"1" maximum:"100" doc:"Maximum results"`
	ExcludeSelf bool  `query:"exclude_self" default:"true" doc:"Omit the query track from results"`
}
// similarResult flattens a scored recommendation for the wire.
type similarResult struct {
	ID             int64   `json:"id" doc:"Track identifier"`
	Title          string  `json:"title"`
	CreatorName    string  `json:"creator_name"`
	URL            string  `json:"url"`
	SourcePlatform string  `json:"source_platform"`
	Distance       float64 `json:"distance" doc:"Cosine distance from the query track"`
	NetVotes       int     `json:"net_votes" doc:"Current vote sum for this pairing"`
	Score          float64 `json:"score" doc:"Blended relevance score, 0 to 10"`
}
type findSimilarOutput struct {
	Body struct {
		Results []similarResult `json:"results"`
		Count   int             `json:"count"`
	}
}

type recordFeedbackInput struct {
	Body struct {
		UserID           string `json:"user_id" minLength:"1" doc:"Voting user"`
		QueryTrackID     int64  `json:"query_track_id" minimum:"1" doc:"Track the recommendation was for"`
		SuggestedTrackID int64  `json:"suggested_track_id" minimum:"1" doc:"Recommended track being voted on"`
		Vote             int    `json:"vote" enum:"-1,1" doc:"+1 approves the pairing, -1 rejects it"`
	}
}
type recordFeedbackOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

type statusOutput struct {
	Body struct {
		Status    string          `json:"status" example:"ok" doc:"Service status"`
		Extractor *health.Metrics `json:"extractor,omitempty" doc:"Extraction sidecar health"`
	}
}

// --- Handlers ---

func (s *Server) handleCreateTrack(ctx context.Context, input *createTrackInput) (*createTrackOutput, error) {
	entry, isNew, err := s.services.Recommender.StoreTrack(ctx, recommend.StoreTrackRequest{
		Title:          input.Body.Title,
		CreatorName:    input.Body.CreatorName,
		URL:            input.Body.URL,
		SourcePlatform: input.Body.SourcePlatform,
		AddedBy:        input.Body.AddedBy,
		ReleaseDate:    input.Body.ReleaseDate,
	})
	if err != nil {
		return nil, humaError(err)
	}

	out := &createTrackOutput{Status: http.StatusOK}
	if isNew {
		out.Status = http.StatusCreated
	}
	out.Body.Track = entry
	out.Body.IsNew = isNew
	return out, nil
}

func (s *Server) handleListTracks(ctx context.Context, _ *struct{}) (*listTracksOutput, error) {
	entries, err := s.services.Recommender.ListTracks(ctx)
	if err != nil {
		return nil, humaError(err)
	}
	out := &listTracksOutput{}
	out.Body.Tracks = entries
	out.Body.Count = len(entries)
	return out, nil
}

func (s *Server) handleGetTrack(ctx context.Context, input *trackIDInput) (*getTrackOutput, error) {
	entry, err := s.services.Recommender.GetTrack(ctx, input.ID)
	if err != nil {
		return nil, humaError(err)
	}
	return &getTrackOutput{Body: entry}, nil
}

func (s *Server) handleFindSimilar(ctx context.Context, input *findSimilarInput) (*findSimilarOutput, error) {
	recs, err := s.services.Recommender.FindSimilar(ctx, input.ID, input.Limit, input.ExcludeSelf)
	if err != nil {
		return nil, humaError(err)
	}
	out := &findSimilarOutput{}
	out.Body.Results = make([]similarResult, len(recs))
	for i, rec := range recs {
		out.Body.Results[i] = similarResult{
			ID:             rec.Entry.ID,
			Title:          rec.Entry.Title,
			CreatorName:    rec.Entry.CreatorName,
			URL:            rec.Entry.URL,
			SourcePlatform: rec.Entry.SourcePlatform,
			Distance:       rec.Distance,
			NetVotes:       rec.NetVotes,
			Score:          rec.Score,
		}
	}
	out.Body.Count = len(recs)
	return out, nil
}

func (s *Server) handleRecordFeedback(ctx context.Context, input *recordFeedbackInput) (*recordFeedbackOutput, error) {
	err := s.services.Recommender.RecordFeedback(ctx,
		input.Body.UserID, input.Body.QueryTrackID, input.Body.SuggestedTrackID, input.Body.Vote)
	if err != nil {
		return nil, humaError(err)
	}
	out := &recordFeedbackOutput{}
	out.Body.Message = "feedback recorded"
	return out, nil
}

func (s *Server) handleStatus(_ context.Context, _ *struct{}) (*statusOutput, error) {
	out := &statusOutput{}
	out.Body.Status = "ok"
	if s.services.Extractor != nil {
		m := s.services.Extractor.Metrics()
		out.Body.Extractor = &m
	}
	return out, nil
}

// humaError converts a coded service error into the matching huma HTTP
// error, preserving the message for 4xx codes and hiding details for 5xx.
func humaError(err error) error {
	switch resonaerr.HTTPStatus(err) {
	case http.StatusNotFound:
		return huma.Error404NotFound(err.Error())
	case http.StatusBadRequest:
		return huma.Error400BadRequest(err.Error())
	case http.StatusGatewayTimeout:
		return huma.Error504GatewayTimeout(err.Error())
	case http.StatusBadGateway:
		return huma.Error502BadGateway(err.Error())
	default:
		return huma.Error500InternalServerError("internal error", err)
	}
}
