package server

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/vantageinsurance/knowbase"
	"github.com/vantageinsurance/knowbase/codec"
)

var validate = validator.New()

// validateStruct flattens tag failures to field -> reason.
func validateStruct(v any) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"request": err.Error()}
	}
	fields := make(map[string]string, len(errs))
	for _, e := range errs {
		fields[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return fields
}

// RetrieveRequest is the body of POST /api/v1/retrieve. UserID is the
// caller's identity as established by the layer above; it becomes the
// owner scope. NResults outside [1, 20] is clamped, not rejected.
type RetrieveRequest struct {
	Query                string            `json:"query" validate:"required"`
	UserID               string            `json:"user_id" validate:"required"`
	Filters              map[string]string `json:"filters"`
	NResults             int               `json:"n_results"`
	AllowedSharedSources []string          `json:"allowed_shared_sources"`
	GroupingScope        string            `json:"grouping_scope"`
}

func (r *RetrieveRequest) Validate() map[string]string { return validateStruct(r) }

// AdminRetrieveRequest is the body of POST /api/v1/admin/retrieve.
// Without a target the retrieval spans tenants under the admin's
// audit-logged identity; with a target it is scoped to that tenant.
type AdminRetrieveRequest struct {
	Query        string `json:"query" validate:"required"`
	AdminUserID  string `json:"admin_user_id" validate:"required"`
	TargetUserID string `json:"target_user_id"`
	PolicyNumber string `json:"policy_number"`
	ClaimID      string `json:"claim_id"`
	NResults     int    `json:"n_results"`
}

func (r *AdminRetrieveRequest) Validate() map[string]string { return validateStruct(r) }

// ChunkPayload is one pre-chunked unit for the raw upsert endpoint.
type ChunkPayload struct {
	ID       string            `json:"id" validate:"required"`
	Text     string            `json:"text" validate:"required"`
	Metadata map[string]string `json:"metadata"`
}

// UpsertChunksRequest is the body of POST /api/v1/chunks.
type UpsertChunksRequest struct {
	Chunks []ChunkPayload `json:"chunks" validate:"required,min=1,dive"`
}

func (r *UpsertChunksRequest) Validate() map[string]string { return validateStruct(r) }

// DocumentPayload mirrors the stored document's identifying fields.
type DocumentPayload struct {
	Name         string `json:"name"`
	UserID       string `json:"user_id"`
	ClaimID      string `json:"claim_id"`
	PolicyNumber string `json:"policy_number"`
	UserEmail    string `json:"user_email"`
	Category     string `json:"category"`
}

// SectionPayload is one extracted section of a document.
type SectionPayload struct {
	Class      string            `json:"class"`
	Text       string            `json:"text" validate:"required"`
	Attributes map[string]string `json:"attributes"`
}

// IngestDocumentRequest is the body of POST /api/v1/documents.
type IngestDocumentRequest struct {
	DocumentID string           `json:"document_id" validate:"required"`
	Document   DocumentPayload  `json:"document"`
	Sections   []SectionPayload `json:"sections" validate:"required,min=1,dive"`
}

func (r *IngestDocumentRequest) Validate() map[string]string { return validateStruct(r) }

// retrieveResponse is the engine result with applied_filters always an
// object, "{}" when the index was queried unfiltered.
type retrieveResponse struct {
	ContextText    string           `json:"context_text"`
	Chunks         []knowbase.Chunk `json:"chunks"`
	Total          int              `json:"total"`
	AppliedFilters json.RawMessage  `json:"applied_filters"`
}

func newRetrieveResponse(res *knowbase.Result) retrieveResponse {
	applied := json.RawMessage("{}")
	if res.AppliedFilters != nil {
		if b, err := codec.Default.Marshal(res.AppliedFilters); err == nil {
			applied = b
		}
	}
	return retrieveResponse{
		ContextText:    res.ContextText,
		Chunks:         res.Chunks,
		Total:          res.Total,
		AppliedFilters: applied,
	}
}

type upsertResponse struct {
	ChunksStored    int `json:"chunks_stored"`
	CollectionTotal int `json:"collection_total"`
}
