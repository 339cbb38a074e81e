package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ayothedoc3/labyrinthos-contracts/internal/http/middleware"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/lifecycle"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/model"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/service"
)

type Handler struct {
	contracts *service.ContractService
	bids      *service.BidService
	log       zerolog.Logger
}

func NewHandler(contracts *service.ContractService, bids *service.BidService, log zerolog.Logger) *Handler {
	return &Handler{contracts: contracts, bids: bids, log: log}
}

func (h *Handler) Register(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	protected := router.Group("/")
	protected.Use(authMiddleware)

	protected.POST("/contracts", h.createContract)
	protected.GET("/contracts", h.listContracts)
	protected.GET("/contracts/:id", h.getContract)
	protected.GET("/contracts/:id/transitions", h.listTransitions)
	protected.POST("/contracts/:id/transitions", h.transitionStage)
	protected.POST("/contracts/:id/bids", h.submitBid)
	protected.GET("/contracts/:id/bids", h.listBids)
	protected.POST("/bids/:id/evaluate", h.evaluateBid)
	protected.POST("/bids/:id/withdraw", h.withdrawBid)
}

type milestoneRequest struct {
	Name      string   `json:"name" binding:"required"`
	DependsOn []int    `json:"depends_on"`
	Assignees []string `json:"assignees"`
}

type createContractRequest struct {
	Title       string             `json:"title" binding:"required"`
	Description string             `json:"description"`
	TeamIDs     []string           `json:"team_ids"`
	KPIIDs      []string           `json:"kpi_ids"`
	Milestones  []milestoneRequest `json:"milestones"`
}

func (h *Handler) createContract(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	var req createContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	teamIDs, err := parseUUIDs(req.TeamIDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid team_ids"})
		return
	}
	kpiIDs, err := parseUUIDs(req.KPIIDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid kpi_ids"})
		return
	}

	milestones := make([]service.MilestoneInput, 0, len(req.Milestones))
	for _, m := range req.Milestones {
		assignees, err := parseUUIDs(m.Assignees)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid milestone assignees"})
			return
		}
		milestones = append(milestones, service.MilestoneInput{
			Name:      m.Name,
			DependsOn: m.DependsOn,
			Assignees: assignees,
		})
	}

	contract, err := h.contracts.CreateContract(c.Request.Context(), service.CreateContractInput{
		Title:       req.Title,
		Description: req.Description,
		TeamIDs:     teamIDs,
		KPIIDs:      kpiIDs,
		Milestones:  milestones,
		Principal:   principal,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toContractResponse(*contract))
}

func (h *Handler) getContract(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract id"})
		return
	}

	contract, err := h.contracts.GetContract(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toContractResponse(*contract))
}

func (h *Handler) listContracts(c *gin.Context) {
	var filter model.ContractFilter
	if raw := strings.TrimSpace(c.Query("stage")); raw != "" {
		stage, ok := model.ParseStage(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stage"})
			return
		}
		filter.Stage = &stage
	}
	if raw := strings.TrimSpace(c.Query("team_id")); raw != "" {
		teamID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid team_id"})
			return
		}
		filter.TeamID = &teamID
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	contracts, err := h.contracts.ListContracts(c.Request.Context(), filter)
	if err != nil {
		h.handleError(c, err)
		return
	}
	out := make([]contractResponse, 0, len(contracts))
	for _, contract := range contracts {
		out = append(out, toContractResponse(contract))
	}
	c.JSON(http.StatusOK, gin.H{"contracts": out})
}

type transitionRequest struct {
	ToStage string `json:"to_stage" binding:"required"`
	Reason  string `json:"reason"`
}

func (h *Handler) transitionStage(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract id"})
		return
	}

	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	stage, ok := model.ParseStage(req.ToStage)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to_stage"})
		return
	}

	contract, err := h.contracts.Transition(c.Request.Context(), service.TransitionInput{
		ContractID: id,
		ToStage:    stage,
		Reason:     req.Reason,
		Principal:  principal,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toContractResponse(*contract))
}

func (h *Handler) listTransitions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract id"})
		return
	}

	transitions, err := h.contracts.TransitionLog(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	out := make([]transitionResponse, 0, len(transitions))
	for _, t := range transitions {
		out = append(out, toTransitionResponse(t))
	}
	c.JSON(http.StatusOK, gin.H{"transitions": out})
}

type submitBidRequest struct {
	Amount float64 `json:"amount"`
	Terms  string  `json:"terms"`
}

func (h *Handler) submitBid(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract id"})
		return
	}

	var req submitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bid, err := h.bids.SubmitBid(c.Request.Context(), service.SubmitBidInput{
		ContractID: id,
		Amount:     req.Amount,
		Terms:      req.Terms,
		Principal:  principal,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toBidResponse(*bid))
}

func (h *Handler) listBids(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract id"})
		return
	}

	bids, err := h.bids.ListBids(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	out := make([]bidResponse, 0, len(bids))
	for _, bid := range bids {
		out = append(out, toBidResponse(bid))
	}
	c.JSON(http.StatusOK, gin.H{"bids": out})
}

type evaluateBidRequest struct {
	Decision string `json:"decision" binding:"required"`
	Reason   string `json:"reason"`
}

func (h *Handler) evaluateBid(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bid id"})
		return
	}

	var req evaluateBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	decision, ok := model.ParseBidDecision(req.Decision)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid decision"})
		return
	}

	bid, err := h.bids.EvaluateBid(c.Request.Context(), service.EvaluateBidInput{
		BidID:     id,
		Decision:  decision,
		Reason:    req.Reason,
		Principal: principal,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBidResponse(*bid))
}

func (h *Handler) withdrawBid(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bid id"})
		return
	}

	if err := h.bids.WithdrawBid(c.Request.Context(), id, principal); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	var invalidTransition *service.InvalidTransitionError
	var precondition *service.PreconditionError

	switch {
	case errors.As(err, &invalidTransition):
		c.JSON(http.StatusConflict, gin.H{
			"error":        invalidTransition.Error(),
			"kind":         "INVALID_TRANSITION",
			"allowed_next": invalidTransition.AllowedNext,
		})
	case errors.As(err, &precondition):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":       precondition.Error(),
			"kind":        "PRECONDITION_NOT_MET",
			"requirement": precondition.Requirement,
		})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "kind": "NOT_FOUND"})
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "kind": "PERMISSION_DENIED"})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "INVALID_INPUT"})
	case errors.Is(err, service.ErrDuplicateBid):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "kind": "DUPLICATE_BID"})
	case errors.Is(err, service.ErrContractNotOpen):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "kind": "CONTRACT_NOT_OPEN"})
	case errors.Is(err, service.ErrTerminalState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "kind": "TERMINAL_STATE"})
	case errors.Is(err, service.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "kind": "INVALID_TRANSITION"})
	case errors.Is(err, service.ErrPreconditionNotMet):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "kind": "PRECONDITION_NOT_MET"})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "kind": "CONFLICT", "retryable": true})
	case errors.Is(err, service.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "kind": "UNAVAILABLE", "retryable": true})
	default:
		h.log.Error().Err(err).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

type milestoneResponse struct {
	ID         string   `json:"id"`
	OrderIndex int      `json:"order_index"`
	Name       string   `json:"name"`
	Status     string   `json:"status"`
	DependsOn  []string `json:"depends_on,omitempty"`
	Assignees  []string `json:"assignees,omitempty"`
}

type contractResponse struct {
	ID                    string              `json:"id"`
	Title                 string              `json:"title"`
	Description           string              `json:"description"`
	Stage                 string              `json:"stage"`
	AcceptedBidID         *string             `json:"accepted_bid_id,omitempty"`
	CreatedBy             string              `json:"created_by"`
	TeamIDs               []string            `json:"team_ids"`
	KPIIDs                []string            `json:"kpi_ids"`
	BidIDs                []string            `json:"bid_ids"`
	Milestones            []milestoneResponse `json:"milestones"`
	NextStageRequirements string              `json:"next_stage_requirements,omitempty"`
	AllowedNext           []model.Stage       `json:"allowed_next"`
	BidSubmittedAt        *time.Time          `json:"bid_submitted_at,omitempty"`
	BidApprovedAt         *time.Time          `json:"bid_approved_at,omitempty"`
	InactiveAt            *time.Time          `json:"inactive_at,omitempty"`
	QueuedAt              *time.Time          `json:"queued_at,omitempty"`
	ActivatedAt           *time.Time          `json:"activated_at,omitempty"`
	PausedAt              *time.Time          `json:"paused_at,omitempty"`
	CompletedAt           *time.Time          `json:"completed_at,omitempty"`
	ClosedAt              *time.Time          `json:"closed_at,omitempty"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

func toContractResponse(c model.Contract) contractResponse {
	resp := contractResponse{
		ID:                    c.ID.String(),
		Title:                 c.Title,
		Description:           c.Description,
		Stage:                 string(c.Stage),
		CreatedBy:             c.CreatedBy.String(),
		TeamIDs:               uuidStrings(c.TeamIDs),
		KPIIDs:                uuidStrings(c.KPIIDs),
		BidIDs:                uuidStrings(c.BidIDs),
		NextStageRequirements: lifecycle.NextStageRequirement(c.Stage),
		AllowedNext:           lifecycle.AllowedNext(c.Stage),
		BidSubmittedAt:        c.BidSubmittedAt,
		BidApprovedAt:         c.BidApprovedAt,
		InactiveAt:            c.InactiveAt,
		QueuedAt:              c.QueuedAt,
		ActivatedAt:           c.ActivatedAt,
		PausedAt:              c.PausedAt,
		CompletedAt:           c.CompletedAt,
		ClosedAt:              c.ClosedAt,
		CreatedAt:             c.CreatedAt,
		UpdatedAt:             c.UpdatedAt,
	}
	if c.AcceptedBidID != nil {
		accepted := c.AcceptedBidID.String()
		resp.AcceptedBidID = &accepted
	}
	resp.Milestones = make([]milestoneResponse, 0, len(c.Milestones))
	for _, m := range c.Milestones {
		resp.Milestones = append(resp.Milestones, milestoneResponse{
			ID:         m.ID.String(),
			OrderIndex: m.OrderIndex,
			Name:       m.Name,
			Status:     string(m.Status),
			DependsOn:  uuidStrings(m.DependsOn),
			Assignees:  uuidStrings(m.Assignees),
		})
	}
	return resp
}

type bidResponse struct {
	ID          string     `json:"id"`
	ContractID  string     `json:"contract_id"`
	BidderID    string     `json:"bidder_id"`
	Amount      float64    `json:"amount"`
	Terms       string     `json:"terms"`
	Status      string     `json:"status"`
	Reason      *string    `json:"reason,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	EvaluatedAt *time.Time `json:"evaluated_at,omitempty"`
}

func toBidResponse(b model.Bid) bidResponse {
	return bidResponse{
		ID:          b.ID.String(),
		ContractID:  b.ContractID.String(),
		BidderID:    b.BidderID.String(),
		Amount:      b.Amount,
		Terms:       b.Terms,
		Status:      string(b.Status),
		Reason:      b.Reason,
		SubmittedAt: b.SubmittedAt,
		EvaluatedAt: b.EvaluatedAt,
	}
}

type transitionResponse struct {
	ID         string    `json:"id"`
	ContractID string    `json:"contract_id"`
	FromStage  *string   `json:"from_stage,omitempty"`
	ToStage    string    `json:"to_stage"`
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

func toTransitionResponse(t model.StageTransition) transitionResponse {
	resp := transitionResponse{
		ID:         t.ID.String(),
		ContractID: t.ContractID.String(),
		ToStage:    string(t.ToStage),
		ActorID:    t.ActorID.String(),
		ActorRole:  string(t.ActorRole),
		Reason:     t.Reason,
		CreatedAt:  t.CreatedAt,
	}
	if t.FromStage != nil {
		from := string(*t.FromStage)
		resp.FromStage = &from
	}
	return resp
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, item := range raw {
		id, err := uuid.Parse(strings.TrimSpace(item))
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
