// Nudge HTTP handlers.
//
// This file exposes the REST endpoints for nudge resources:
//   - POST   /nudges                  (create)
//   - GET    /nudges                  (cursor-paginated listing)
//   - GET    /nudges/active           (currently due active nudges)
//   - GET    /nudges/templates        (prebuilt nudge templates)
//   - GET    /nudges/stats            (aggregate usage statistics)
//   - GET    /nudges/unread-count     (delivered-but-unacted count)
//   - GET    /nudges/{id}             (fetch one)
//   - PUT    /nudges/{id}             (replace)
//   - DELETE /nudges/{id}             (delete)
//   - POST   /nudges/{id}/delivered   (record a delivery)
//   - POST   /nudges/{id}/acted       (record an action)
//   - POST   /nudges/{id}/feedback    (rate a nudge)
//   - POST   /nudges/batch            (bulk create/update/delete)
//   - DELETE /cache                   (drop cached reads)
//
// Handlers are transport-thin: they validate and normalize input, call the
// repository façade, and translate results into HTTP responses. Caching,
// rate limiting, and retries all live behind the façade.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ePaysa-ind/milo-sub005/internal/domain"
	"github.com/ePaysa-ind/milo-sub005/internal/repo"
	"github.com/ePaysa-ind/milo-sub005/internal/sysutil"
	"github.com/ePaysa-ind/milo-sub005/internal/utils"
)

//
// Service contract (context-aware)
//

// NudgeService defines the repository operations consumed by the HTTP
// handlers. The concrete implementation is *repo.Repository.
//
// Implementations must be safe for concurrent use and honor the provided
// context for cancellation and timeouts.
type NudgeService interface {
	// GetNudges returns one page of nudges ordered by orderBy.
	GetNudges(ctx context.Context, limit int, startAfterID, orderBy string, descending bool) (*domain.NudgePage, error)
	// GetNudgeByID returns a nudge, or (nil, nil) when no such id exists.
	GetNudgeByID(ctx context.Context, id string) (*domain.Nudge, error)
	// CreateNudge persists a new nudge; a (nil, nil) return means the
	// store write failed and was absorbed.
	CreateNudge(ctx context.Context, n *domain.Nudge) (*domain.Nudge, error)
	// UpdateNudge replaces the stored document for n.ID.
	UpdateNudge(ctx context.Context, n *domain.Nudge) error
	// DeleteNudge removes a nudge by id.
	DeleteNudge(ctx context.Context, id string) error
	// GetActiveNudges returns active nudges currently due for today.
	GetActiveNudges(ctx context.Context, limit int) ([]domain.Nudge, error)
	// MarkNudgeAsDelivered records one delivery of the nudge.
	MarkNudgeAsDelivered(ctx context.Context, id string) error
	// MarkNudgeAsActedUpon records that the user acted on the nudge.
	MarkNudgeAsActedUpon(ctx context.Context, id string) error
	// RecordNudgeFeedback stores a rating and folds it into the aggregate.
	RecordNudgeFeedback(ctx context.Context, id string, rating float64, comment string) error
	// GetNudgeStats aggregates usage statistics; it degrades to zeros.
	GetNudgeStats(ctx context.Context) *domain.NudgeStats
	// GetUnreadNudgeCount counts delivered-but-unacted nudges; degrades to 0.
	GetUnreadNudgeCount(ctx context.Context) int
	// GetNudgeTemplates returns the prebuilt nudge templates.
	GetNudgeTemplates(ctx context.Context) ([]domain.NudgeTemplate, error)
	// NudgesStream emits nudge listings as the store changes.
	NudgesStream(ctx context.Context, limit int, orderBy string, descending bool) <-chan []domain.Nudge
	// PerformBatchOperations applies bulk writes in store-sized chunks.
	PerformBatchOperations(ctx context.Context, ops []domain.BatchOperation) error
	// ClearCache drops every cached read.
	ClearCache(ctx context.Context) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for nudges. It depends on the
// NudgeService interface to keep transport concerns separate from the data
// layer.
type Handlers struct {
	svc NudgeService
}

// New constructs a Handlers instance bound to the given service.
func New(svc NudgeService) *Handlers {
	return &Handlers{svc: svc}
}

//
// DTOs
//

// NudgeRequest is the JSON payload for creating or replacing a nudge.
type NudgeRequest struct {
	// Content is the nudge text shown to the user. It must be non-empty.
	Content string `json:"content" binding:"required,min=1" example:"drink a glass of water"`
	// Active defaults to true when omitted.
	Active *bool `json:"active,omitempty" example:"true"`
	// ScheduleDays lists ISO weekdays (1=Monday … 7=Sunday) the nudge fires on.
	ScheduleDays []int `json:"schedule_days,omitempty"`
	// ScheduleMinute is the minute of day (0–1439) the nudge fires at.
	ScheduleMinute int `json:"schedule_minute" example:"540"`
}

// toDomain converts the request payload to a domain nudge with the given id.
func (req NudgeRequest) toDomain(id string) *domain.Nudge {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &domain.Nudge{
		ID:             id,
		Content:        strings.TrimSpace(req.Content),
		Active:         active,
		ScheduleDays:   req.ScheduleDays,
		ScheduleMinute: req.ScheduleMinute,
	}
}

// FeedbackRequest is the JSON payload for rating a nudge. Rating is a
// pointer so that an explicit 0 survives binding validation.
type FeedbackRequest struct {
	Rating  *float64 `json:"rating" binding:"required" example:"4.5"`
	Comment string   `json:"comment,omitempty" example:"right on time"`
}

// BatchOperationRequest is one element of a bulk write request.
type BatchOperationRequest struct {
	// Kind selects the write variant: create, update, or delete.
	Kind string `json:"kind" binding:"required,oneof=create update delete" example:"create"`
	// ID names the target document for updates and deletes.
	ID string `json:"id,omitempty" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	// Nudge carries the payload for creates and updates.
	Nudge *NudgeRequest `json:"nudge,omitempty"`
}

// toDomain maps the wire operation onto a domain batch operation. Payload
// completeness (create without nudge, update without id) is checked by the
// repository, not here.
func (op BatchOperationRequest) toDomain() domain.BatchOperation {
	var n *domain.Nudge
	if op.Nudge != nil {
		n = op.Nudge.toDomain(op.ID)
	}
	switch op.Kind {
	case "update":
		return domain.NewBatchUpdate(op.ID, n)
	case "delete":
		return domain.NewBatchDelete(op.ID)
	default: // "create" (binding restricts the set)
		return domain.NewBatchCreate(n)
	}
}

// BatchRequest is the JSON payload for bulk writes.
type BatchRequest struct {
	Operations []BatchOperationRequest `json:"operations" binding:"required,min=1,dive"`
}

// NudgeListResponse wraps a plain (non-paginated) list of nudges.
type NudgeListResponse struct {
	Items []domain.Nudge `json:"items"`
}

// TemplateListResponse wraps the template catalog.
type TemplateListResponse struct {
	Items []domain.NudgeTemplate `json:"items"`
}

// UnreadCountResponse carries the delivered-but-unacted nudge count.
type UnreadCountResponse struct {
	Count int `json:"count" example:"3"`
}

//
// Helpers
//

// maxPageSize caps the limit query parameter on listing endpoints.
const maxPageSize = 100

// listParams parses the shared listing query parameters, applying the
// repository's defaults for order (created_at, newest first).
func listParams(c *gin.Context) (limit int, orderBy string, descending bool) {
	limit = utils.ClampLimit(c.Query("limit"), repo.DefaultPageSize, maxPageSize)
	orderBy = strings.TrimSpace(c.Query("order_by"))
	descending = sysutil.IsTruthy(c.DefaultQuery("desc", "true"))
	return
}

//
// Handlers
//

// CreateNudge godoc
// @ID          createNudge
// @Summary     Create a new nudge
// @Description Creates a nudge for the current user and returns the created resource.
// @Description Returns 500 with code create_failed when the store write could not be completed.
// @Tags        Nudges
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID"  example(user123)
// @Param       body       body    handlers.NudgeRequest  true  "Nudge payload"
//
// @Success     201  {object}  domain.Nudge
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "No user identity"
// @Failure     429  {object}  handlers.ErrorResponse  "Operation budget exhausted"
// @Failure     500  {object}  handlers.ErrorResponse  "Create failed"
// @Router      /nudges [post]
func (h *Handlers) CreateNudge(c *gin.Context) {
	var req NudgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	created, err := h.svc.CreateNudge(c.Request.Context(), req.toDomain(""))
	if err != nil {
		respondError(c, err, ErrCodeCreateFailed)
		return
	}
	if created == nil {
		// The repository absorbed a store failure; surface it here.
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "nudge was not persisted")
		return
	}
	ok(c, http.StatusCreated, created)
}

// ListNudges godoc
// @ID          listNudges
// @Summary     List nudges (cursor-paginated)
// @Description Returns one page of nudges. Pass the last_id of a page as `after` to fetch the next one.
// @Tags        Nudges
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID"                       example(user123)
// @Param       limit      query   int     false "Page size"                     minimum(1) maximum(100) default(20)
// @Param       after      query   string  false "Cursor: last_id of the previous page"
// @Param       order_by   query   string  false "Sort field"                    default(createdAt)
// @Param       desc       query   bool    false "Sort descending"               default(true)
//
// @Success     200  {object} domain.NudgePage
// @Failure     429  {object} handlers.ErrorResponse "Operation budget exhausted"
// @Failure     500  {object} handlers.ErrorResponse "Fetch failed"
// @Router      /nudges [get]
func (h *Handlers) ListNudges(c *gin.Context) {
	limit, orderBy, descending := listParams(c)

	page, err := h.svc.GetNudges(c.Request.Context(), limit, c.Query("after"), orderBy, descending)
	if err != nil {
		respondError(c, err, ErrCodeFetchFailed)
		return
	}
	ok(c, http.StatusOK, page)
}

// GetNudge godoc
// @ID          getNudge
// @Summary     Fetch a single nudge
// @Description Returns the nudge with the given id, or 404 when it does not exist.
// @Tags        Nudges
// @Produce     json
//
// @Param       id  path  string  true  "Nudge ID"
//
// @Success     200  {object} domain.Nudge
// @Failure     404  {object} handlers.ErrorResponse "Nudge not found"
// @Failure     429  {object} handlers.ErrorResponse "Operation budget exhausted"
// @Failure     500  {object} handlers.ErrorResponse "Fetch failed"
// @Router      /nudges/{id} [get]
func (h *Handlers) GetNudge(c *gin.Context) {
	n, err := h.svc.GetNudgeByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, ErrCodeFetchFailed)
		return
	}
	if n == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "nudge not found")
		return
	}
	ok(c, http.StatusOK, n)
}

// UpdateNudge godoc
// @ID          updateNudge
// @Summary     Replace a nudge
// @Description Replaces the stored nudge document with the request payload.
// @Tags        Nudges
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Nudge ID"
// @Param       body  body  handlers.NudgeRequest  true  "Replacement payload"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     429  {object} handlers.ErrorResponse "Operation budget exhausted"
// @Failure     500  {object} handlers.ErrorResponse "Write failed"
// @Router      /nudges/{id} [put]
func (h *Handlers) UpdateNudge(c *gin.Context) {
	var req NudgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	if err := h.svc.UpdateNudge(c.Request.Context(), req.toDomain(c.Param("id"))); err != nil {
		respondError(c, err, ErrCodeWriteFailed)
		return
	}
	noContent(c)
}

// DeleteNudge godoc
// @ID          deleteNudge
// @Summary     Delete a nudge
// @Description Removes the nudge. Deleting an id that no longer exists still succeeds.
// @Tags        Nudges
// @Produce     json
//
// @Param       id  path  string  true  "Nudge ID"
//
// @Success     204  {string} string "No Content"
// @Failure     429  {object} handlers.ErrorResponse "Operation budget exhausted"
// @Failure     500  {object} handlers.ErrorResponse "Write failed"
// @Router      /nudges/{id} [delete]
func (h *Handlers) DeleteNudge(c *gin.Context) {
	if err := h.svc.DeleteNudge(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, ErrCodeWriteFailed)
		return
	}
	noContent(c)
}

// ListActiveNudges godoc
// @ID          listActiveNudges
// @Summary     List active nudges due now
// @Description Returns active nudges scheduled for today whose minute has passed, most recent first.
// @Tags        Nudges
// @Produce     json
//
// @Param       limit  query  int  false  "Maximum results"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.NudgeListResponse
// @Failure     429  {object} handlers.ErrorResponse "Operation budget exhausted"
// @Failure     500  {object} handlers.ErrorResponse "Fetch failed"
// @Router      /nudges/active [get]
func (h *Handlers) ListActiveNudges(c *gin.Context) {
	limit := utils.ClampLimit(c.Query("limit"), repo.DefaultPageSize, maxPageSize)

	items, err := h.svc.GetActiveNudges(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err, ErrCodeFetchFailed)
		return
	}
	ok(c, http.StatusOK, NudgeListResponse{Items: items})
}

// ListTemplates godoc
// @ID          listNudgeTemplates
// @Summary     List nudge templates
// @Description Returns the prebuilt nudge templates, each with a display title.
// @Tags        Templates
// @Produce     json
//
// @Success     200  {object} handlers.TemplateListResponse
// @Failure     429  {object} handlers.ErrorResponse "Operation budget exhausted"
// @Failure     500  {object} handlers.ErrorResponse "Fetch failed"
// @Router      /nudges/templates [get]
func (h *Handlers) ListTemplates(c *gin.Context) {
	items, err := h.svc.GetNudgeTemplates(c.Request.Context())
	if err != nil {
		respondError(c, err, ErrCodeFetchFailed)
		return
	}
	ok(c, http.StatusOK, TemplateListResponse{Items: items})
}

// GetStats godoc
// @ID          getNudgeStats
// @Summary     Aggregate nudge statistics
// @Description Returns totals over the most recent nudges. On upstream failure the
// @Description counters degrade to zeros rather than erroring.
// @Tags        Stats
// @Produce     json
//
// @Success     200  {object} domain.NudgeStats
// @Router      /nudges/stats [get]
func (h *Handlers) GetStats(c *gin.Context) {
	ok(c, http.StatusOK, h.svc.GetNudgeStats(c.Request.Context()))
}

// GetUnreadCount godoc
// @ID          getUnreadNudgeCount
// @Summary     Count delivered-but-unacted nudges
// @Description Returns how many nudges were delivered but not acted upon. Degrades to 0 on failure.
// @Tags        Stats
// @Produce     json
//
// @Success     200  {object} handlers.UnreadCountResponse
// @Router      /nudges/unread-count [get]
func (h *Handlers) GetUnreadCount(c *gin.Context) {
	ok(c, http.StatusOK, UnreadCountResponse{Count: h.svc.GetUnreadNudgeCount(c.Request.Context())})
}

// MarkDelivered godoc
// @ID          markNudgeDelivered
// @Summary     Record a nudge delivery
// @Description Increments the delivery counter and stamps the delivery time.
// @Tags        Nudges
// @Produce     json
//
// @Param       id  path  string  true  "Nudge ID"
//
// @Success     204  {string} string "No Content"
// @Failure     429  {object} handlers.ErrorResponse "Operation budget exhausted"
// @Failure     500  {object} handlers.ErrorResponse "Write failed"
// @Router      /nudges/{id}/delivered [post]
func (h *Handlers) MarkDelivered(c *gin.Context) {
	if err := h.svc.MarkNudgeAsDelivered(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, ErrCodeWriteFailed)
		return
	}
	noContent(c)
}

// MarkActedUpon godoc
// @ID          markNudgeActedUpon
// @Summary     Record that the user acted on a nudge
// @Description Increments the action counter and stamps the action time.
// @Tags        Nudges
// @Produce     json
//
// @Param       id  path  string  true  "Nudge ID"
//
// @Success     204  {string} string "No Content"
// @Failure     429  {object} handlers.ErrorResponse "Operation budget exhausted"
// @Failure     500  {object} handlers.ErrorResponse "Write failed"
// @Router      /nudges/{id}/acted [post]
func (h *Handlers) MarkActedUpon(c *gin.Context) {
	if err := h.svc.MarkNudgeAsActedUpon(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, ErrCodeWriteFailed)
		return
	}
	noContent(c)
}

// RecordFeedback godoc
// @ID          recordNudgeFeedback
// @Summary     Rate a nudge
// @Description Stores a feedback record and folds the rating into the nudge's
// @Description running average inside one transaction.
// @Tags        Feedback
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID"  example(user123)
// @Param       id         path    string  true  "Nudge ID"
// @Param       body       body    handlers.FeedbackRequest  true  "Feedback payload"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Invalid payload"
// @Failure     401  {object} handlers.ErrorResponse "No user identity"
// @Failure     429  {object} handlers.ErrorResponse "Operation budget exhausted"
// @Failure     500  {object} handlers.ErrorResponse "Transaction failed"
// @Router      /nudges/{id}/feedback [post]
func (h *Handlers) RecordFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "rating required")
		return
	}

	if err := h.svc.RecordNudgeFeedback(c.Request.Context(), c.Param("id"), *req.Rating, req.Comment); err != nil {
		respondError(c, err, ErrCodeTransactionFailed)
		return
	}
	noContent(c)
}

// PerformBatch godoc
// @ID          performBatchOperations
// @Summary     Apply bulk nudge writes
// @Description Applies a mixed list of create/update/delete operations in
// @Description store-sized chunks. On chunk failure, earlier chunks stay
// @Description committed and later chunks are never attempted.
// @Tags        Nudges
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.BatchRequest  true  "Batch payload"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Invalid operation"
// @Failure     429  {object} handlers.ErrorResponse "Operation budget exhausted"
// @Failure     500  {object} handlers.ErrorResponse "Write failed"
// @Router      /nudges/batch [post]
func (h *Handlers) PerformBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "operations required")
		return
	}

	ops := make([]domain.BatchOperation, 0, len(req.Operations))
	for _, op := range req.Operations {
		ops = append(ops, op.toDomain())
	}

	if err := h.svc.PerformBatchOperations(c.Request.Context(), ops); err != nil {
		respondError(c, err, ErrCodeWriteFailed)
		return
	}
	noContent(c)
}

// ClearCache godoc
// @ID          clearCache
// @Summary     Drop all cached reads
// @Description Empties the in-memory caches and the persisted cache namespace.
// @Tags        Cache
// @Produce     json
//
// @Success     204  {string} string "No Content"
// @Failure     500  {object} handlers.ErrorResponse "Cache failure"
// @Router      /cache [delete]
func (h *Handlers) ClearCache(c *gin.Context) {
	if err := h.svc.ClearCache(c.Request.Context()); err != nil {
		respondError(c, err, ErrCodeCacheFailed)
		return
	}
	noContent(c)
}
