package handler

import (
	"time"

	"github.com/yndnr/memkv/internal/storage/snapshot"
)

// Error codes carried in the envelope and the X-Error-Code header.
const (
	CodeOK               = "OK"
	CodeNotReady         = "MK-SYS-5030"
	CodeInternal         = "MK-SYS-5000"
	CodeRateLimited      = "MK-SYS-4290"
	CodeForbiddenIP      = "MK-ADMIN-4031"
	CodeSnapshotFailed   = "MK-SNAP-5000"
	CodeSnapshotDisabled = "MK-SNAP-5010"
)

// Response is the standard API response envelope.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      CodeOK,
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// StatusResponse is the body of GET /admin/v1/status.
type StatusResponse struct {
	Version       string         `json:"version"`
	Commit        string         `json:"commit,omitempty"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Keys          int            `json:"keys"`
	AppendOnly    bool           `json:"append_only"`
	AOFOffset     int64          `json:"aof_offset"`
	LastSnapshot  *snapshot.Info `json:"last_snapshot,omitempty"`
}
