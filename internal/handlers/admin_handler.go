package handlers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/deletion"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
)

// ClashDetector runs detection scans
type ClashDetector interface {
	DetectClashes(ctx context.Context) (*models.ClashReport, error)
}

// Merger resolves duplicate pairs by merging
type Merger interface {
	MergePlayers(ctx context.Context, keepIdentifier, removeIdentifier, operator string) (*merging.Result, error)
	MergeFixtures(ctx context.Context, keepIdentifier, removeIdentifier, operator string) (*merging.Result, error)
}

// Deleter removes duplicates outright
type Deleter interface {
	Delete(ctx context.Context, entityType models.EntityType, identifier string, cascade bool, operator string) (*deletion.Result, error)
}

// LedgerReader lists resolution ledger entries
type LedgerReader interface {
	List(ctx context.Context, page, pageSize int) (*models.ResolutionListResponse, error)
}

// AdminHandler handles the reconciliation endpoints
type AdminHandler struct {
	detector ClashDetector
	merger   Merger
	deleter  Deleter
	ledger   LedgerReader
	logger   ectologger.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	detector ClashDetector,
	merger Merger,
	deleter Deleter,
	ledger LedgerReader,
	logger ectologger.Logger,
) *AdminHandler {
	return &AdminHandler{
		detector: detector,
		merger:   merger,
		deleter:  deleter,
		ledger:   ledger,
		logger:   logger,
	}
}

// RegisterRoutes registers admin routes
func (h *AdminHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/detect-clashes", h.DetectClashes)
	g.POST("/merge-players", h.MergePlayers)
	g.POST("/merge-duplicate-match", h.MergeDuplicateMatch)
	g.POST("/delete-duplicate", h.DeleteDuplicate)
	g.GET("/resolutions", h.ListResolutions)
}

// DetectClashes runs a full duplicate scan and returns the unresolved
// clashes for both entity types
func (h *AdminHandler) DetectClashes(c echo.Context) error {
	report, err := h.detector.DetectClashes(c.Request().Context())
	if err != nil {
		return err
	}
	return SuccessResponse(c, report)
}

// MergePlayers merges the player named by remove_player_id into the player
// named by keep_cafc_id. Either parameter accepts a universal, internal or
// external identifier.
func (h *AdminHandler) MergePlayers(c echo.Context) error {
	keep, err := RequireQueryParam(c, "keep_cafc_id")
	if err != nil {
		return err
	}
	remove, err := RequireQueryParam(c, "remove_player_id")
	if err != nil {
		return err
	}

	result, err := h.merger.MergePlayers(c.Request().Context(), keep, remove, Operator(c))
	if err != nil {
		return err
	}
	return SuccessResponse(c, result)
}

// MergeDuplicateMatch merges the match named by remove_match_universal_id
// into the match named by keep_match_universal_id
func (h *AdminHandler) MergeDuplicateMatch(c echo.Context) error {
	keep, err := RequireQueryParam(c, "keep_match_universal_id")
	if err != nil {
		return err
	}
	remove, err := RequireQueryParam(c, "remove_match_universal_id")
	if err != nil {
		return err
	}

	result, err := h.merger.MergeFixtures(c.Request().Context(), keep, remove, Operator(c))
	if err != nil {
		return err
	}
	return SuccessResponse(c, result)
}

// DeleteDuplicate removes the entity named by universal_id. Dependent
// records block the deletion unless cascade=true is passed.
func (h *AdminHandler) DeleteDuplicate(c echo.Context) error {
	entityType, err := RequireQueryParam(c, "entity_type")
	if err != nil {
		return err
	}
	universalID, err := RequireQueryParam(c, "universal_id")
	if err != nil {
		return err
	}
	cascade, err := ParseBoolParam(c, "cascade")
	if err != nil {
		return err
	}

	result, err := h.deleter.Delete(c.Request().Context(), models.EntityType(entityType), universalID, cascade, Operator(c))
	if err != nil {
		return err
	}
	return SuccessResponse(c, result)
}

// ListResolutions returns one page of the resolution ledger, newest first
func (h *AdminHandler) ListResolutions(c echo.Context) error {
	page, pageSize, err := ParsePagination(c)
	if err != nil {
		return err
	}

	response, err := h.ledger.List(c.Request().Context(), page, pageSize)
	if err != nil {
		return err
	}
	return SuccessResponse(c, response)
}
