package po

import "time"

// ViewSession 描述单个 (video, viewer) 可见且播放期间的会话状态。
type ViewSession struct {
	SessionID          string
	VideoID            string
	ViewerID           string
	StartedAt          time.Time
	AccumulatedVisible time.Duration
	ThresholdReached   bool
	OwnerExempt        bool
}

// ViewSessionRecord 表示 engagement.view_sessions 表记录。
type ViewSessionRecord struct {
	SessionID        string     `db:"session_id"`
	VideoID          string     `db:"video_id"`
	ViewerID         string     `db:"viewer_id"`
	StartedAt        time.Time  `db:"started_at"`
	LastHeartbeatAt  time.Time  `db:"last_heartbeat_at"`
	AccumulatedMS    int64      `db:"accumulated_ms"`
	ThresholdReached bool       `db:"threshold_reached"`
	EndedAt          *time.Time `db:"ended_at"`
}

// SessionStop 是结束会话时提交的最终数据。
type SessionStop struct {
	SessionID        string
	FinalDelta       time.Duration
	ThresholdReached bool
}

// VideoView 表示一次达到阈值的有效观看（engagement.video_views）。
type VideoView struct {
	SessionID string    `db:"session_id"`
	VideoID   string    `db:"video_id"`
	ViewerID  string    `db:"viewer_id"`
	WatchedMS int64     `db:"watched_ms"`
	ViewedAt  time.Time `db:"viewed_at"`
}
