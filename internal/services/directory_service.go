package services

import (
	"context"
	"strings"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// DirectoryService 登记互动目标实体，供内容/账户服务同步使用。
type DirectoryService struct {
	store DirectoryStore
	log   *log.Helper
}

// NewDirectoryService 构造目录服务。
func NewDirectoryService(store DirectoryStore, logger log.Logger) *DirectoryService {
	return &DirectoryService{store: store, log: log.NewHelper(logger)}
}

// RegisterVideo 登记视频及拥有者，拥有者同时登记为用户。
func (s *DirectoryService) RegisterVideo(ctx context.Context, videoID, ownerID string) error {
	videoID, ownerID = strings.TrimSpace(videoID), strings.TrimSpace(ownerID)
	if videoID == "" || ownerID == "" {
		return errInvalidArgument("video_id and owner_id are required")
	}
	if err := s.store.UpsertUser(ctx, ownerID); err != nil {
		return s.internal(ctx, "register owner", err)
	}
	if err := s.store.UpsertVideo(ctx, videoID, ownerID); err != nil {
		return s.internal(ctx, "register video", err)
	}
	return nil
}

// RegisterUser 登记用户。
func (s *DirectoryService) RegisterUser(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errInvalidArgument("user_id is required")
	}
	if err := s.store.UpsertUser(ctx, userID); err != nil {
		return s.internal(ctx, "register user", err)
	}
	return nil
}

// RemoveVideo 删除视频；之后针对它的互动与会话均按不存在处理。
func (s *DirectoryService) RemoveVideo(ctx context.Context, videoID string) error {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return errInvalidArgument("video_id is required")
	}
	if err := s.store.DeleteVideo(ctx, videoID); err != nil {
		return s.internal(ctx, "remove video", err)
	}
	return nil
}

func (s *DirectoryService) internal(ctx context.Context, op string, err error) error {
	s.log.WithContext(ctx).Errorf("%s failed: %v", op, err)
	return errors.InternalServer(ReasonUnavailable, op+" failed").WithCause(err)
}
