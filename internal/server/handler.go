package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/vantageinsurance/knowbase"
	"github.com/vantageinsurance/knowbase/ingest"
	"github.com/vantageinsurance/knowbase/metadata"
)

// Handler bundles the HTTP endpoints over one engine and its ingestion
// bridge. Identity values in request bodies are trusted; authentication
// belongs to the layer in front of this service.
type Handler struct {
	engine *knowbase.Engine
	bridge *ingest.Bridge
}

func NewHandler(engine *knowbase.Engine, bridge *ingest.Bridge) *Handler {
	return &Handler{engine: engine, bridge: bridge}
}

func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handler) HandleRetrieve(c *fiber.Ctx) error {
	var req RetrieveRequest
	if err := c.BodyParser(&req); err != nil {
		return errBadRequest("invalid JSON body")
	}
	if fields := req.Validate(); len(fields) > 0 {
		return errValidation(fields)
	}

	filters := make(map[string]string, len(req.Filters)+1)
	for k, v := range req.Filters {
		filters[k] = v
	}
	filters["user_id"] = req.UserID

	res, err := h.engine.Retrieve(c.UserContext(), knowbase.Request{
		Query:                req.Query,
		Filters:              filters,
		NResults:             req.NResults,
		AllowedSharedSources: req.AllowedSharedSources,
		GroupingScope:        req.GroupingScope,
	})
	if err != nil {
		return mapEngineError(err)
	}
	return c.JSON(newRetrieveResponse(res))
}

func (h *Handler) HandleAdminRetrieve(c *fiber.Ctx) error {
	var req AdminRetrieveRequest
	if err := c.BodyParser(&req); err != nil {
		return errBadRequest("invalid JSON body")
	}
	if fields := req.Validate(); len(fields) > 0 {
		return errValidation(fields)
	}

	res, err := h.engine.RetrieveForAdmin(c.UserContext(), req.Query, req.AdminUserID,
		func(o *knowbase.AdminRetrieveOptions) {
			o.TargetUserID = req.TargetUserID
			o.PolicyNumber = req.PolicyNumber
			o.ClaimID = req.ClaimID
			if req.NResults > 0 {
				o.NResults = req.NResults
			}
		})
	if err != nil {
		return mapEngineError(err)
	}
	return c.JSON(newRetrieveResponse(res))
}

func (h *Handler) HandleUpsertChunks(c *fiber.Ctx) error {
	var req UpsertChunksRequest
	if err := c.BodyParser(&req); err != nil {
		return errBadRequest("invalid JSON body")
	}
	if fields := req.Validate(); len(fields) > 0 {
		return errValidation(fields)
	}

	ids := make([]string, len(req.Chunks))
	texts := make([]string, len(req.Chunks))
	metadatas := make([]metadata.Document, len(req.Chunks))
	for i, chunk := range req.Chunks {
		ids[i] = chunk.ID
		texts[i] = chunk.Text
		metadatas[i] = metadata.FromStringMap(chunk.Metadata)
	}

	total, err := h.engine.UpsertChunks(c.UserContext(), ids, texts, metadatas)
	if err != nil {
		return mapEngineError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(upsertResponse{
		ChunksStored:    len(ids),
		CollectionTotal: total,
	})
}

func (h *Handler) HandleIngestDocument(c *fiber.Ctx) error {
	var req IngestDocumentRequest
	if err := c.BodyParser(&req); err != nil {
		return errBadRequest("invalid JSON body")
	}
	if fields := req.Validate(); len(fields) > 0 {
		return errValidation(fields)
	}

	record := ingest.DocumentRecord{
		Name:         req.Document.Name,
		UserID:       req.Document.UserID,
		ClaimID:      req.Document.ClaimID,
		PolicyNumber: req.Document.PolicyNumber,
		UserEmail:    req.Document.UserEmail,
		Category:     req.Document.Category,
	}
	sections := make([]ingest.Section, len(req.Sections))
	for i, s := range req.Sections {
		sections[i] = ingest.Section{Class: s.Class, Text: s.Text, Attributes: s.Attributes}
	}

	res, err := h.bridge.Ingest(c.UserContext(), req.DocumentID, record, sections)
	if err != nil {
		switch {
		case errors.Is(err, knowbase.ErrNotInitialized), errors.Is(err, knowbase.ErrClosed):
			return mapEngineError(err)
		}
		var re *knowbase.RetrievalError
		if errors.As(err, &re) {
			return errInternal("ingestion failed", err)
		}
		// Remaining bridge failures are caused by the request payload.
		return errBadRequest(err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (h *Handler) HandleClearChunks(c *fiber.Ctx) error {
	if err := h.engine.Clear(c.UserContext()); err != nil {
		return mapEngineError(err)
	}
	return c.JSON(fiber.Map{"cleared": true})
}

func (h *Handler) HandleStats(c *fiber.Ctx) error {
	stats, err := h.engine.Stats()
	if err != nil {
		return mapEngineError(err)
	}
	return c.JSON(stats)
}
