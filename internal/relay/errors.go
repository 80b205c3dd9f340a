package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/codefionn/livecast/internal/config"
	"github.com/gorilla/websocket"
)

var (
	// ErrIdleTimeout is returned when the client sends nothing within the
	// configured idle timeout.
	ErrIdleTimeout = errors.New("client idle timeout")

	// ErrClientGone wraps failures writing to the client socket.
	ErrClientGone = errors.New("client connection unusable")
)

// Kind classifies a pump or setup failure.
type Kind int

const (
	KindNone Kind = iota
	KindConfiguration
	KindQuotaExceeded
	KindConnectionClosed
	KindAbnormalClosure
	KindTimeout
	KindUnclassified
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConfiguration:
		return "configuration"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindConnectionClosed:
		return "connection_closed"
	case KindAbnormalClosure:
		return "abnormal_closure"
	case KindTimeout:
		return "timeout"
	default:
		return "unclassified"
	}
}

// Classify maps err to a Kind. Quota errors win over close codes because
// the upstream reports exhaustion as a close frame.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case config.IsConfigurationError(err):
		return KindConfiguration
	case isQuotaExceeded(err):
		return KindQuotaExceeded
	case errors.Is(err, ErrIdleTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case hasCloseCode(err, websocket.CloseAbnormalClosure):
		return KindAbnormalClosure
	case isNormalClose(err):
		return KindConnectionClosed
	case isNetTimeout(err):
		// missed pongs
		return KindAbnormalClosure
	default:
		return KindUnclassified
	}
}

func isQuotaExceeded(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota exceeded") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "resource exhausted")
}

// hasCloseCode is websocket.IsCloseError for wrapped errors.
func hasCloseCode(err error, codes ...int) bool {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	for _, code := range codes {
		if ce.Code == code {
			return true
		}
	}
	return false
}

func isNormalClose(err error) bool {
	if errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, ErrClientGone) ||
		errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	if hasCloseCode(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection closed")
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
