package controllers

import (
	"context"

	"github.com/bionicotaku/lingo-services-engagement/internal/controllers/dto"
	"github.com/bionicotaku/lingo-services-engagement/internal/services"
	"github.com/bionicotaku/lingo-services-engagement/internal/views"

	"github.com/go-kratos/kratos/v2/errors"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// 互动接口的 operation 名称，用于日志与指标。
const (
	OperationEngagementToggle   = "/engagement.v1.EngagementService/Toggle"
	OperationEngagementSet      = "/engagement.v1.EngagementService/Set"
	OperationEngagementGet      = "/engagement.v1.EngagementService/Get"
	OperationEngagementBatchGet = "/engagement.v1.EngagementService/BatchGet"
	OperationEngagementClear    = "/engagement.v1.EngagementService/ClearFor"
)

// EngagementHandler 负责点赞/收藏/关注的 HTTP 入口。
type EngagementHandler struct {
	*BaseHandler
	svc *services.EngagementService
}

// NewEngagementHandler 构造互动 Handler。
func NewEngagementHandler(svc *services.EngagementService, base *BaseHandler) *EngagementHandler {
	if base == nil {
		base = NewBaseHandler(HandlerTimeouts{})
	}
	return &EngagementHandler{BaseHandler: base, svc: svc}
}

// Register 实现 Registrar。
func (h *EngagementHandler) Register(r *khttp.Router) {
	r.POST("/v1/engagements/{kind}/{target_id}/toggle", h.toggle)
	r.PUT("/v1/engagements/{kind}/{target_id}", h.set)
	r.GET("/v1/engagements/{kind}/{target_id}", h.get)
	r.POST("/v1/engagements/{kind}:batchGet", h.batchGet)
	r.DELETE("/v1/actors/{actor_id}/engagements", h.clear)
}

func (h *EngagementHandler) toggle(ctx khttp.Context) error {
	var in dto.ToggleEngagementRequest
	if err := bindBodyAndVars(ctx, &in); err != nil {
		return err
	}
	return serve(ctx, OperationEngagementToggle, &in, func(c context.Context, req *dto.ToggleEngagementRequest) (any, error) {
		c, meta, cancel := h.prepare(c, HandlerTypeCommand)
		defer cancel()
		view, err := h.svc.Toggle(c, meta.ResolveUserID(req.ActorID), req.TargetID, req.Kind)
		if err != nil {
			return nil, err
		}
		return views.NewToggleResponse(view), nil
	})
}

func (h *EngagementHandler) set(ctx khttp.Context) error {
	var in dto.SetEngagementRequest
	if err := bindBodyAndVars(ctx, &in); err != nil {
		return err
	}
	return serve(ctx, OperationEngagementSet, &in, func(c context.Context, req *dto.SetEngagementRequest) (any, error) {
		if req.Value == nil {
			return nil, errors.BadRequest(services.ReasonInvalidArgument, "value is required")
		}
		c, meta, cancel := h.prepare(c, HandlerTypeCommand)
		defer cancel()
		view, err := h.svc.Set(c, meta.ResolveUserID(req.ActorID), req.TargetID, req.Kind, *req.Value)
		if err != nil {
			return nil, err
		}
		return views.NewToggleResponse(view), nil
	})
}

func (h *EngagementHandler) get(ctx khttp.Context) error {
	var in dto.GetEngagementRequest
	if err := bindQueryAndVars(ctx, &in); err != nil {
		return err
	}
	return serve(ctx, OperationEngagementGet, &in, func(c context.Context, req *dto.GetEngagementRequest) (any, error) {
		c, meta, cancel := h.prepare(c, HandlerTypeQuery)
		defer cancel()
		state, err := h.svc.Get(c, meta.ResolveUserID(req.ActorID), req.TargetID, req.Kind)
		if err != nil {
			return nil, err
		}
		return views.NewEngagementResponse(state), nil
	})
}

func (h *EngagementHandler) batchGet(ctx khttp.Context) error {
	var in dto.BatchGetEngagementsRequest
	if err := bindBodyAndVars(ctx, &in); err != nil {
		return err
	}
	return serve(ctx, OperationEngagementBatchGet, &in, func(c context.Context, req *dto.BatchGetEngagementsRequest) (any, error) {
		c, meta, cancel := h.prepare(c, HandlerTypeQuery)
		defer cancel()
		items, err := h.svc.BatchGet(c, meta.ResolveUserID(req.ActorID), req.Kind, req.TargetIDs)
		if err != nil {
			return nil, err
		}
		return views.NewBatchGetResponse(items), nil
	})
}

func (h *EngagementHandler) clear(ctx khttp.Context) error {
	var in dto.ClearEngagementsRequest
	if err := ctx.BindVars(&in); err != nil {
		return err
	}
	return serve(ctx, OperationEngagementClear, &in, func(c context.Context, req *dto.ClearEngagementsRequest) (any, error) {
		c, _, cancel := h.prepare(c, HandlerTypeCommand)
		defer cancel()
		if err := h.svc.ClearFor(c, req.ActorID); err != nil {
			return nil, err
		}
		return views.NewClearResponse(req.ActorID), nil
	})
}
