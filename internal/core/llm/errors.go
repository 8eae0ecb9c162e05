package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/markdave123-py/docindex/internal/core"
)

// statusError maps an HTTP status to the pipeline error classes:
// 429 is rate-limited, 5xx is upstream-unavailable, anything else is final.
func statusError(provider string, code int, err error) error {
	switch {
	case code == http.StatusTooManyRequests:
		return core.RetryableError(core.CodeRateLimited, strconv.Itoa(code), err)
	case code >= http.StatusInternalServerError:
		return core.RetryableError(core.CodeUpstreamUnavailable, strconv.Itoa(code), err)
	default:
		return fmt.Errorf("%s embeddings (status %d): %w", provider, code, err)
	}
}

// transportError keeps context errors intact so callers can tell a cancelled run
// from a failed request.
func transportError(provider string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return core.RetryableError(core.CodeTransport, provider, err)
}

func classifyGemini(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return statusError("gemini", gerr.Code, err)
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return core.RetryableError(core.CodeRateLimited, st.Code().String(), err)
		case codes.Unavailable, codes.Internal, codes.Aborted:
			return core.RetryableError(core.CodeUpstreamUnavailable, st.Code().String(), err)
		case codes.DeadlineExceeded:
			return core.RetryableError(core.CodeTimeout, st.Code().String(), err)
		default:
			return fmt.Errorf("gemini embeddings (%s): %w", st.Code(), err)
		}
	}
	return transportError("gemini", err)
}
