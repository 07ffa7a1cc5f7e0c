package handlers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
)

// PlayerReader lists players
type PlayerReader interface {
	List(ctx context.Context, page, pageSize int) (*models.PlayerListResponse, error)
	GetByUniversalID(ctx context.Context, universalID string) (*models.Player, error)
}

// FixtureReader lists fixtures
type FixtureReader interface {
	List(ctx context.Context, page, pageSize int) (*models.FixtureListResponse, error)
	GetByUniversalID(ctx context.Context, universalID string) (*models.Fixture, error)
}

// EntityHandler serves read access to players and matches
type EntityHandler struct {
	players  PlayerReader
	fixtures FixtureReader
	logger   ectologger.Logger
}

// NewEntityHandler creates a new entity handler
func NewEntityHandler(players PlayerReader, fixtures FixtureReader, logger ectologger.Logger) *EntityHandler {
	return &EntityHandler{
		players:  players,
		fixtures: fixtures,
		logger:   logger,
	}
}

// RegisterRoutes registers entity read routes
func (h *EntityHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/players", h.ListPlayers)
	g.GET("/players/:universal_id", h.GetPlayer)
	g.GET("/matches", h.ListMatches)
	g.GET("/matches/:universal_id", h.GetMatch)
}

// ListPlayers returns one page of players
func (h *EntityHandler) ListPlayers(c echo.Context) error {
	page, pageSize, err := ParsePagination(c)
	if err != nil {
		return err
	}

	response, err := h.players.List(c.Request().Context(), page, pageSize)
	if err != nil {
		return err
	}
	return SuccessResponse(c, response)
}

// GetPlayer returns one player by universal ID
func (h *EntityHandler) GetPlayer(c echo.Context) error {
	player, err := h.players.GetByUniversalID(c.Request().Context(), c.Param("universal_id"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, player)
}

// ListMatches returns one page of matches
func (h *EntityHandler) ListMatches(c echo.Context) error {
	page, pageSize, err := ParsePagination(c)
	if err != nil {
		return err
	}

	response, err := h.fixtures.List(c.Request().Context(), page, pageSize)
	if err != nil {
		return err
	}
	return SuccessResponse(c, response)
}

// GetMatch returns one match by universal ID
func (h *EntityHandler) GetMatch(c echo.Context) error {
	fixture, err := h.fixtures.GetByUniversalID(c.Request().Context(), c.Param("universal_id"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, fixture)
}
