package controllers

import (
	"context"

	"github.com/bionicotaku/lingo-services-engagement/internal/controllers/dto"
	"github.com/bionicotaku/lingo-services-engagement/internal/services"
	"github.com/bionicotaku/lingo-services-engagement/internal/views"

	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// 实体登记接口的 operation 名称。
const (
	OperationDirectoryRegisterVideo = "/engagement.v1.DirectoryService/RegisterVideo"
	OperationDirectoryRemoveVideo   = "/engagement.v1.DirectoryService/RemoveVideo"
	OperationDirectoryRegisterUser  = "/engagement.v1.DirectoryService/RegisterUser"
)

// DirectoryHandler 供上游服务登记视频归属与用户。
type DirectoryHandler struct {
	*BaseHandler
	svc *services.DirectoryService
}

// NewDirectoryHandler 构造实体登记 Handler。
func NewDirectoryHandler(svc *services.DirectoryService, base *BaseHandler) *DirectoryHandler {
	if base == nil {
		base = NewBaseHandler(HandlerTimeouts{})
	}
	return &DirectoryHandler{BaseHandler: base, svc: svc}
}

// Register 实现 Registrar。
func (h *DirectoryHandler) Register(r *khttp.Router) {
	r.PUT("/v1/videos/{video_id}", h.registerVideo)
	r.DELETE("/v1/videos/{video_id}", h.removeVideo)
	r.PUT("/v1/users/{user_id}", h.registerUser)
}

func (h *DirectoryHandler) registerVideo(ctx khttp.Context) error {
	var in dto.RegisterVideoRequest
	if err := bindBodyAndVars(ctx, &in); err != nil {
		return err
	}
	return serve(ctx, OperationDirectoryRegisterVideo, &in, func(c context.Context, req *dto.RegisterVideoRequest) (any, error) {
		c, _, cancel := h.prepare(c, HandlerTypeCommand)
		defer cancel()
		if err := h.svc.RegisterVideo(c, req.VideoID, req.OwnerID); err != nil {
			return nil, err
		}
		return &views.Ack{OK: true}, nil
	})
}

func (h *DirectoryHandler) removeVideo(ctx khttp.Context) error {
	var in dto.RemoveVideoRequest
	if err := ctx.BindVars(&in); err != nil {
		return err
	}
	return serve(ctx, OperationDirectoryRemoveVideo, &in, func(c context.Context, req *dto.RemoveVideoRequest) (any, error) {
		c, _, cancel := h.prepare(c, HandlerTypeCommand)
		defer cancel()
		if err := h.svc.RemoveVideo(c, req.VideoID); err != nil {
			return nil, err
		}
		return &views.Ack{OK: true}, nil
	})
}

func (h *DirectoryHandler) registerUser(ctx khttp.Context) error {
	var in dto.RegisterUserRequest
	if err := ctx.BindVars(&in); err != nil {
		return err
	}
	return serve(ctx, OperationDirectoryRegisterUser, &in, func(c context.Context, req *dto.RegisterUserRequest) (any, error) {
		c, _, cancel := h.prepare(c, HandlerTypeCommand)
		defer cancel()
		if err := h.svc.RegisterUser(c, req.UserID); err != nil {
			return nil, err
		}
		return &views.Ack{OK: true}, nil
	})
}
