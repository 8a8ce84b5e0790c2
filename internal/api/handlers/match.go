package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stitts-dev/match-predictor/internal/models"
	"github.com/stitts-dev/match-predictor/internal/providers"
	"github.com/stitts-dev/match-predictor/pkg/utils"
)

type MatchHandler struct {
	store *providers.MatchStore
}

func NewMatchHandler(store *providers.MatchStore) *MatchHandler {
	return &MatchHandler{store: store}
}

// ListMatches returns stored fixtures, newest first.
func (h *MatchHandler) ListMatches(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 {
		limit = 50
	}
	filter := providers.MatchFilter{
		Team:   c.Query("team"),
		League: c.Query("league"),
		Season: c.Query("season"),
		Limit:  limit,
	}

	ctx := c.Request.Context()
	matches, err := h.store.ListMatches(ctx, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	total, err := h.store.CountMatches(ctx, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	if matches == nil {
		matches = []models.Match{}
	}
	utils.SendSuccessWithMeta(c, matches, &utils.Meta{
		PerPage: filter.Limit,
		Total:   total,
	})
}
