package services

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/vo"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// ViewService 将展示位信号转交给 ViewTrackerRegistry。
type ViewService struct {
	registry *ViewTrackerRegistry
	log      *log.Helper
}

// NewViewService 构造观看服务。
func NewViewService(registry *ViewTrackerRegistry, logger log.Logger) *ViewService {
	return &ViewService{registry: registry, log: log.NewHelper(logger)}
}

// Signal 应用可见/播放信号，返回展示位最新状态。
func (s *ViewService) Signal(ctx context.Context, viewerID, slotID, videoID string, visible, playing bool) (*vo.ViewSlotState, error) {
	if strings.TrimSpace(videoID) == "" {
		return nil, errInvalidArgument("video_id is required")
	}
	snap, err := s.registry.Signal(ctx, viewerID, slotID, videoID, visible, playing)
	switch {
	case stderrors.Is(err, ErrInvalidSignal):
		return nil, errInvalidArgument(err.Error())
	case stderrors.Is(err, ErrRegistryClosed):
		return nil, errors.ServiceUnavailable(ReasonUnavailable, "view tracking is shutting down")
	case err != nil:
		return nil, errors.InternalServer(ReasonUnavailable, "view signal failed").WithCause(err)
	}
	return slotState(strings.TrimSpace(viewerID), strings.TrimSpace(slotID), snap), nil
}

// Release 卸载展示位。
func (s *ViewService) Release(ctx context.Context, viewerID, slotID string) error {
	if !s.registry.Release(ctx, viewerID, slotID) {
		return errors.NotFound(ReasonNotFound, "view slot not found")
	}
	return nil
}

// ReleaseViewer 卸载 viewer 的全部展示位。
func (s *ViewService) ReleaseViewer(ctx context.Context, viewerID string) int {
	released := s.registry.ReleaseViewer(ctx, viewerID)
	if released > 0 {
		s.log.WithContext(ctx).Infof("view slots released: viewer=%s count=%d", viewerID, released)
	}
	return released
}

func slotState(viewerID, slotID string, snap TrackerSnapshot) *vo.ViewSlotState {
	state := &vo.ViewSlotState{
		ViewerID:    viewerID,
		SlotID:      slotID,
		VideoID:     snap.VideoID,
		Visible:     snap.Visible,
		Playing:     snap.Playing,
		Tracking:    snap.Active,
		OwnerExempt: snap.OwnerExempt,
	}
	if snap.Session != nil {
		startedAt := snap.Session.StartedAt
		state.SessionID = snap.Session.SessionID
		state.StartedAt = &startedAt
		state.AccumulatedMS = snap.Session.AccumulatedVisible.Milliseconds()
		state.ThresholdReached = snap.Session.ThresholdReached
	}
	return state
}
