package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/xkcdviews/middleware"
	"github.com/cppla/xkcdviews/models"
	"github.com/cppla/xkcdviews/store"
	"github.com/cppla/xkcdviews/utils"
)

// ComicViewController exposes the view counter of a single comic.
type ComicViewController struct {
	store  store.Store
	logger *zap.Logger
}

// NewComicViewController creates a new ComicViewController instance.
func NewComicViewController(s store.Store, logger *zap.Logger) *ComicViewController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ComicViewController{store: s, logger: logger}
}

type createCounterRequest struct {
	ComicNumber int    `json:"comic_number" binding:"required,gt=0"`
	ViewCount   *int64 `json:"view_count" binding:"omitempty,gte=0"`
}

// GetViews returns the current count, 404 when the comic was never viewed.
func (c *ComicViewController) GetViews(ctx *gin.Context) {
	number, ok := comicNumberParam(ctx)
	if !ok {
		return
	}
	count, err := c.store.GetViewCount(ctx.Request.Context(), number)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	utils.Success(ctx, models.ComicViewCounter{ComicNumber: number, ViewCount: count})
}

// RecordView adds one view and returns the new count.
func (c *ComicViewController) RecordView(ctx *gin.Context) {
	number, ok := comicNumberParam(ctx)
	if !ok {
		return
	}
	count, err := c.store.IncrementView(ctx.Request.Context(), number)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	utils.Success(ctx, models.ComicViewCounter{ComicNumber: number, ViewCount: count})
}

// Ensure returns the counter, creating it with zero views if absent (201 when created).
func (c *ComicViewController) Ensure(ctx *gin.Context) {
	number, ok := comicNumberParam(ctx)
	if !ok {
		return
	}
	counter, created, err := c.store.GetOrCreate(ctx.Request.Context(), number)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	data := gin.H{"comic_number": counter.ComicNumber, "view_count": counter.ViewCount, "created": created}
	if created {
		utils.Created(ctx, data)
		return
	}
	utils.Success(ctx, data)
}

// Create inserts a counter with an optional initial count; 409 if it already exists.
func (c *ComicViewController) Create(ctx *gin.Context) {
	var req createCounterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, "invalid request body")
		return
	}
	counter := &models.ComicViewCounter{ComicNumber: req.ComicNumber}
	if req.ViewCount != nil {
		counter.ViewCount = *req.ViewCount
	}
	if err := c.store.Create(ctx.Request.Context(), counter); err != nil {
		c.fail(ctx, err)
		return
	}
	c.logger.Info("counter created",
		zap.Int("comic_number", counter.ComicNumber),
		zap.Int64("view_count", counter.ViewCount),
		zap.String("by", ctx.GetString(middleware.ContextSubjectKey)))
	utils.Created(ctx, counter)
}

// Delete removes a counter and its daily history.
func (c *ComicViewController) Delete(ctx *gin.Context) {
	number, ok := comicNumberParam(ctx)
	if !ok {
		return
	}
	if err := c.store.Delete(ctx.Request.Context(), number); err != nil {
		c.fail(ctx, err)
		return
	}
	c.logger.Info("counter deleted", zap.Int("comic_number", number), zap.String("by", ctx.GetString(middleware.ContextSubjectKey)))
	utils.Success(ctx, gin.H{"comic_number": number})
}

func (c *ComicViewController) fail(ctx *gin.Context, err error) {
	writeStoreError(ctx, c.logger, err)
}

func writeStoreError(ctx *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, utils.CodeNotFound, "comic view counter not found")
	case errors.Is(err, store.ErrDuplicate):
		utils.Error(ctx, http.StatusConflict, utils.CodeConflict, "comic view counter already exists")
	default:
		logger.Error("store operation failed",
			zap.String("path", ctx.Request.URL.Path),
			zap.String(utils.RequestIDKey, ctx.GetString(utils.RequestIDKey)),
			zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, utils.CodeInternal, "internal server error")
	}
}

// comicNumberParam parses :number as a positive integer, answering 400 otherwise.
func comicNumberParam(ctx *gin.Context) (int, bool) {
	n, err := strconv.Atoi(ctx.Param("number"))
	if err != nil || n <= 0 {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, "comic number must be a positive integer")
		return 0, false
	}
	return n, true
}
