// Package apperr maps errors from every layer to an HTTP status, a stable code and
// a localized user-facing message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure. Values follow the document-store error codes
// the client already understands.
type Code string

const (
	CodePermissionDenied   Code = "permission-denied"
	CodeNotFound           Code = "not-found"
	CodeAlreadyExists      Code = "already-exists"
	CodeResourceExhausted  Code = "resource-exhausted"
	CodeUnavailable        Code = "unavailable"
	CodeUnauthenticated    Code = "unauthenticated"
	CodeDeadlineExceeded   Code = "deadline-exceeded"
	CodeCancelled          Code = "cancelled"
	CodeInternal           Code = "internal"
	CodeInvalidArgument    Code = "invalid-argument"
	CodeFailedPrecondition Code = "failed-precondition"
	CodeUnimplemented      Code = "unimplemented"
	CodeDataLoss           Code = "data-loss"
	CodeOutOfRange         Code = "out-of-range"

	CodeAuthNetworkFailed   Code = "auth/network-request-failed"
	CodeAuthTooManyRequests Code = "auth/too-many-requests"
	CodeAuthInternal        Code = "auth/internal-error"
	CodeAuthInvalidLogin    Code = "auth/invalid-credential"

	CodeUpstreamCredentials Code = "upstream/credentials"
	CodeUpstreamUnavailable Code = "upstream/unavailable"
	CodeUnprocessableImage  Code = "ocr/unprocessable-image"
	CodeUnparseableResponse Code = "upstream/unparseable-response"
)

// FallbackMessage is shown for codes without a dedicated message.
const FallbackMessage = "오류가 발생했습니다."

var messages = map[Code]string{
	CodePermissionDenied:   "접근 권한이 없습니다.",
	CodeNotFound:           "요청한 데이터를 찾을 수 없습니다.",
	CodeAlreadyExists:      "이미 존재하는 데이터입니다.",
	CodeResourceExhausted:  "요청 한도를 초과했습니다. 잠시 후 다시 시도하세요.",
	CodeUnavailable:        "서버에 연결할 수 없습니다. 네트워크를 확인하세요.",
	CodeUnauthenticated:    "인증이 필요합니다. 페이지를 새로고침하세요.",
	CodeDeadlineExceeded:   "서버 응답 시간이 초과되었습니다. 다시 시도하세요.",
	CodeCancelled:          "요청이 취소되었습니다.",
	CodeInternal:           "서버 내부 오류가 발생했습니다.",
	CodeInvalidArgument:    "잘못된 요청입니다.",
	CodeFailedPrecondition: "요청을 처리할 수 없는 상태입니다.",
	CodeUnimplemented:      "지원하지 않는 기능입니다.",
	CodeDataLoss:           "데이터 손실이 발생했습니다.",
	CodeOutOfRange:         "범위를 벗어난 요청입니다.",

	CodeAuthNetworkFailed:   "네트워크 연결에 실패했습니다.",
	CodeAuthTooManyRequests: "요청이 너무 많습니다. 잠시 후 다시 시도하세요.",
	CodeAuthInternal:        "인증 서버 오류가 발생했습니다.",
	CodeAuthInvalidLogin:    "이메일 또는 비밀번호가 올바르지 않습니다.",

	CodeUpstreamCredentials: "외부 API 인증에 실패했습니다. API 키를 확인하세요.",
	CodeUpstreamUnavailable: "외부 서비스에 연결할 수 없습니다. 잠시 후 다시 시도하세요.",
	CodeUnprocessableImage:  "이미지를 처리할 수 없습니다. 다른 이미지를 시도하세요.",
	CodeUnparseableResponse: "응답을 해석하지 못했습니다. 더 선명한 이미지로 다시 시도하세요.",
}

var statuses = map[Code]int{
	CodePermissionDenied:   http.StatusForbidden,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodeResourceExhausted:  http.StatusTooManyRequests,
	CodeUnavailable:        http.StatusServiceUnavailable,
	CodeUnauthenticated:    http.StatusUnauthorized,
	CodeDeadlineExceeded:   http.StatusGatewayTimeout,
	CodeCancelled:          499,
	CodeInternal:           http.StatusInternalServerError,
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeFailedPrecondition: http.StatusConflict,
	CodeUnimplemented:      http.StatusNotImplemented,
	CodeDataLoss:           http.StatusInternalServerError,
	CodeOutOfRange:         http.StatusBadRequest,

	CodeAuthNetworkFailed:   http.StatusBadGateway,
	CodeAuthTooManyRequests: http.StatusTooManyRequests,
	CodeAuthInternal:        http.StatusInternalServerError,
	CodeAuthInvalidLogin:    http.StatusUnauthorized,

	CodeUpstreamCredentials: http.StatusBadGateway,
	CodeUpstreamUnavailable: http.StatusBadGateway,
	CodeUnprocessableImage:  http.StatusUnprocessableEntity,
	CodeUnparseableResponse: http.StatusUnprocessableEntity,
}

// Message returns the localized message for code, or FallbackMessage.
func Message(code Code) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return FallbackMessage
}

// Status returns the HTTP status for code, 500 when unmapped.
func Status(code Code) int {
	if status, ok := statuses[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Error is an error tagged with a Code. Detail is safe to show to the caller.
type Error struct {
	Code   Code
	Detail string
	Err    error
}

// New returns a tagged error with a caller-visible detail.
func New(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Wrap tags err with code.
func Wrap(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same code and detail, so tagged sentinels work
// with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Detail == e.Detail
}

// UpstreamError is a non-2xx answer from an external API.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Code classifies the upstream status.
func (e *UpstreamError) Code() Code {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return CodeUpstreamCredentials
	case http.StatusUnprocessableEntity:
		return CodeUnprocessableImage
	case http.StatusTooManyRequests:
		return CodeResourceExhausted
	default:
		return CodeUpstreamUnavailable
	}
}

// ErrUnparseable reports model output without the expected JSON.
var ErrUnparseable = New(CodeUnparseableResponse, "response did not contain the expected JSON")
