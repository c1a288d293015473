package controllers

import (
	"context"

	"github.com/bionicotaku/lingo-services-engagement/internal/controllers/dto"
	"github.com/bionicotaku/lingo-services-engagement/internal/services"
	"github.com/bionicotaku/lingo-services-engagement/internal/views"

	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// 观看接口的 operation 名称。
const (
	OperationViewSignal        = "/engagement.v1.ViewService/Signal"
	OperationViewRelease       = "/engagement.v1.ViewService/Release"
	OperationViewReleaseViewer = "/engagement.v1.ViewService/ReleaseViewer"
)

// ViewHandler 接收客户端展示位的可见/播放信号。
type ViewHandler struct {
	*BaseHandler
	svc *services.ViewService
}

// NewViewHandler 构造观看 Handler。
func NewViewHandler(svc *services.ViewService, base *BaseHandler) *ViewHandler {
	if base == nil {
		base = NewBaseHandler(HandlerTimeouts{})
	}
	return &ViewHandler{BaseHandler: base, svc: svc}
}

// Register 实现 Registrar。
func (h *ViewHandler) Register(r *khttp.Router) {
	r.POST("/v1/views/{viewer_id}/slots/{slot_id}", h.signal)
	r.DELETE("/v1/views/{viewer_id}/slots/{slot_id}", h.release)
	r.DELETE("/v1/views/{viewer_id}", h.releaseViewer)
}

func (h *ViewHandler) signal(ctx khttp.Context) error {
	var in dto.ViewSignalRequest
	if err := bindBodyAndVars(ctx, &in); err != nil {
		return err
	}
	return serve(ctx, OperationViewSignal, &in, func(c context.Context, req *dto.ViewSignalRequest) (any, error) {
		c, _, cancel := h.prepare(c, HandlerTypeCommand)
		defer cancel()
		state, err := h.svc.Signal(c, req.ViewerID, req.SlotID, req.VideoID, req.Visible, req.Playing)
		if err != nil {
			return nil, err
		}
		return views.NewViewSlotResponse(state), nil
	})
}

func (h *ViewHandler) release(ctx khttp.Context) error {
	var in dto.ReleaseSlotRequest
	if err := ctx.BindVars(&in); err != nil {
		return err
	}
	return serve(ctx, OperationViewRelease, &in, func(c context.Context, req *dto.ReleaseSlotRequest) (any, error) {
		c, _, cancel := h.prepare(c, HandlerTypeCommand)
		defer cancel()
		if err := h.svc.Release(c, req.ViewerID, req.SlotID); err != nil {
			return nil, err
		}
		return &views.ReleaseResponse{ViewerID: req.ViewerID, SlotID: req.SlotID, Released: 1}, nil
	})
}

func (h *ViewHandler) releaseViewer(ctx khttp.Context) error {
	var in dto.ReleaseViewerRequest
	if err := ctx.BindVars(&in); err != nil {
		return err
	}
	return serve(ctx, OperationViewReleaseViewer, &in, func(c context.Context, req *dto.ReleaseViewerRequest) (any, error) {
		c, _, cancel := h.prepare(c, HandlerTypeCommand)
		defer cancel()
		released := h.svc.ReleaseViewer(c, req.ViewerID)
		return &views.ReleaseResponse{ViewerID: req.ViewerID, Released: released}, nil
	})
}
