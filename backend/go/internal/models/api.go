package models

import "time"

// ErrorResponse 是所有错误响应的统一格式。
type ErrorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewErrorResponse 构造一个带当前 UTC 时间戳的错误响应。
func NewErrorResponse(message, detail string) ErrorResponse {
	return ErrorResponse{Error: message, Detail: detail, Timestamp: Timestamp(time.Now())}
}

// Timestamp 以 ISO-8601 (UTC) 格式化时间。
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000")
}
