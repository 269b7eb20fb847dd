package session

import "errors"

// 控制面错误分类：全部限定在单个会话范围内，不会导致进程级失败。
var (
	ErrSessionNotFound        = errors.New("session not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrNoHistoricalData       = errors.New("no historical data")
)
