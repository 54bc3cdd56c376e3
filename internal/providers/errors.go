package providers

import (
	"context"
	"errors"
	"net"
	"net/url"
)

// ErrMalformedResponse means the provider answered 2xx with a body that is
// not a chat completion.
var ErrMalformedResponse = errors.New("malformed chat completion response")

// ErrorClass groups provider failures for user-facing replies.
type ErrorClass string

const (
	ClassNetwork ErrorClass = "network"
	ClassAPI     ErrorClass = "api"
	ClassGeneral ErrorClass = "general"
)

// Classify maps err to a class: timeouts and connection failures are
// network, HTTP status and body problems are api, anything else general.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassGeneral
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) || errors.Is(err, ErrMalformedResponse) {
		return ClassAPI
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassNetwork
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ClassNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassNetwork
	}
	return ClassGeneral
}

// UserMessage is the fixed reply shown for a class of failure.
func (c ErrorClass) UserMessage() string {
	switch c {
	case ClassNetwork:
		return "网络连接失败，请检查网络设置后重试"
	case ClassAPI:
		return "API调用失败，请稍后重试"
	default:
		return "系统错误，请联系管理员"
	}
}
