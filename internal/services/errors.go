package services

import "github.com/go-kratos/kratos/v2/errors"

// 对外错误原因，HTTP 层直接透传给调用方。
const (
	ReasonInvalidKind     = "ENGAGEMENT_INVALID_KIND"
	ReasonInvalidArgument = "ENGAGEMENT_INVALID_ARGUMENT"
	ReasonLoadFailed      = "ENGAGEMENT_LOAD_FAILED"
	ReasonNotFound        = "ENGAGEMENT_NOT_FOUND"
	ReasonUnavailable     = "ENGAGEMENT_UNAVAILABLE"
)

func errInvalidKind(raw string) error {
	return errors.BadRequest(ReasonInvalidKind, "unsupported engagement kind: "+raw)
}

func errInvalidArgument(msg string) error {
	return errors.BadRequest(ReasonInvalidArgument, msg)
}
