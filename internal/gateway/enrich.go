package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// maxErrorBody bounds how much of an error payload is buffered for rewrite.
const maxErrorBody = 1 << 20

// enrichForbidden normalizes a 403 payload: the token is valid but
// insufficient, so no refresh is attempted. Code, message, hint, trace id and
// timestamp are synthesized when the server omits them so the UI can render a
// consistent denied-access experience.
func (t *Transport) enrichForbidden(req *http.Request, resp *http.Response) *http.Response {
	out := rewriteError(resp, func(errObj map[string]any) {
		setDefault(errObj, "code", "FORBIDDEN")
		setDefault(errObj, "message", "you do not have permission to perform this action")
		setDefault(errObj, "hint", "contact an administrator or review your role assignment")
		setDefault(errObj, "traceId", newTraceID())
		setDefault(errObj, "timestamp", time.Now().UTC().Format(time.RFC3339))
	})

	if errObj := errorObject(out); errObj != nil {
		t.logger().Warn("access denied",
			"url", req.URL.Path,
			"method", req.Method,
			"traceId", errObj["traceId"],
		)
	}
	return out
}

// ensureTrace guarantees a trace id and timestamp on any other error payload
// for uniform downstream logging.
func (t *Transport) ensureTrace(resp *http.Response) *http.Response {
	return rewriteError(resp, func(errObj map[string]any) {
		if _, ok := errObj["traceId"].(string); ok {
			return
		}
		errObj["traceId"] = newTraceID()
		setDefault(errObj, "timestamp", time.Now().UTC().Format(time.RFC3339))
	})
}

func newTraceID() string {
	return "trace-" + uuid.NewString()
}

// setDefault fills key only when the server left it absent or empty.
func setDefault(errObj map[string]any, key string, value any) {
	if s, ok := errObj[key].(string); ok && s != "" {
		return
	}
	errObj[key] = value
}

// rewriteError buffers the response body, applies fn to the error object and
// re-serializes. Bodies that are not the documented JSON envelope pass
// through untouched.
func rewriteError(resp *http.Response, fn func(errObj map[string]any)) *http.Response {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	closeBody(resp)
	if err != nil {
		resp.Body = io.NopCloser(bytes.NewReader(raw))
		return resp
	}

	var payload map[string]any
	if json.Unmarshal(raw, &payload) != nil || payload == nil {
		resp.Body = io.NopCloser(bytes.NewReader(raw))
		return resp
	}

	errObj, _ := payload["error"].(map[string]any)
	if errObj == nil {
		errObj = map[string]any{}
	}
	fn(errObj)
	payload["error"] = errObj

	rewritten, err := json.Marshal(payload)
	if err != nil {
		resp.Body = io.NopCloser(bytes.NewReader(raw))
		return resp
	}

	resp.Body = io.NopCloser(bytes.NewReader(rewritten))
	resp.ContentLength = int64(len(rewritten))
	resp.Header.Set("Content-Length", strconv.Itoa(len(rewritten)))
	return resp
}

// errorObject re-reads the (already buffered) error object for logging.
func errorObject(resp *http.Response) map[string]any {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil
	}
	resp.Body = io.NopCloser(bytes.NewReader(raw))

	var payload struct {
		Error map[string]any `json:"error"`
	}
	if json.Unmarshal(raw, &payload) != nil {
		return nil
	}
	return payload.Error
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
