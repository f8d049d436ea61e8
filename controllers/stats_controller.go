package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/xkcdviews/models"
	"github.com/cppla/xkcdviews/store"
	"github.com/cppla/xkcdviews/utils"
)

const (
	defaultRankingLimit = 10
	maxRankingLimit     = 100
)

// StatsController provides aggregate view statistics and rankings.
type StatsController struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(s store.Store, logger *zap.Logger) *StatsController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsController{store: s, logger: logger, now: time.Now}
}

// GetStats returns the number of tracked comics and the sum of all views.
func (s *StatsController) GetStats(ctx *gin.Context) {
	totals, err := s.store.Totals(ctx.Request.Context())
	if err != nil {
		writeStoreError(ctx, s.logger, err)
		return
	}
	utils.Success(ctx, gin.H{
		"comic_count": totals.Comics,
		"view_count":  totals.Views,
	})
}

// Top returns the most viewed comics of all time.
func (s *StatsController) Top(ctx *gin.Context) {
	limit, ok := limitParam(ctx)
	if !ok {
		return
	}
	items, err := s.store.Top(ctx.Request.Context(), limit)
	if err != nil {
		writeStoreError(ctx, s.logger, err)
		return
	}
	utils.Success(ctx, gin.H{"items": items})
}

// Trending returns the most viewed comics of one day, today by default.
func (s *StatsController) Trending(ctx *gin.Context) {
	limit, ok := limitParam(ctx)
	if !ok {
		return
	}
	day := ctx.Query("day")
	if day == "" {
		day = store.Today(s.now())
	} else if _, err := time.Parse(models.DayLayout, day); err != nil {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, "day must be formatted as YYYY-MM-DD")
		return
	}
	items, err := s.store.Trending(ctx.Request.Context(), day, limit)
	if err != nil {
		writeStoreError(ctx, s.logger, err)
		return
	}
	utils.Success(ctx, gin.H{"day": day, "items": items})
}

func limitParam(ctx *gin.Context) (int, bool) {
	raw := ctx.Query("limit")
	if raw == "" {
		return defaultRankingLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxRankingLimit {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, "limit must be between 1 and 100")
		return 0, false
	}
	return n, true
}
