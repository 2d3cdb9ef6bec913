// Package service 包含了应用的业务逻辑层。
package service

import "errors"

var (
	// ErrInvalidLogs 表示请求中的 logs 不是数组。
	ErrInvalidLogs = errors.New("logs must be an array")
	// ErrInvalidDate 表示日期参数不是 YYYY-MM-DD。
	ErrInvalidDate = errors.New("date must be YYYY-MM-DD")
	// ErrMissingSource 表示既没有 logs 也没有 date。
	ErrMissingSource = errors.New("either logs or date is required")
	// ErrInvalidRecord 表示待写入的日志不合法。
	ErrInvalidRecord = errors.New("invalid log record")
)
