package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/hanpama/apqgate/internal/apq"
	"github.com/hanpama/apqgate/internal/codec"
)

var errNoExecutor = errors.New("server: executor is required")

// GraphQLRequest is a decoded request. Query keeps whatever JSON value the
// client sent so the APQ stage can reject non-string queries itself; it is nil
// when no query was sent.
type GraphQLRequest struct {
	Query         any
	OperationName string
	Variables     map[string]any
	Extensions    apq.Extensions
}

type wireRequest struct {
	Query         json.RawMessage `json:"query"`
	OperationName string          `json:"operationName"`
	Variables     map[string]any  `json:"variables"`
	Extensions    json.RawMessage `json:"extensions"`
}

type requestError struct {
	status  int
	message string
}

func badRequest(msg string) *requestError {
	return &requestError{status: http.StatusBadRequest, message: msg}
}

func messageResponse(msg string) apq.ErrorResponse {
	return apq.ErrorResponse{Errors: []apq.ErrorMessage{{Message: msg}}}
}

func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, *requestError) {
	if r.Method == http.MethodGet {
		return parseGET(r)
	}

	if !acceptsJSON(r.Header.Get("Content-Type")) {
		return GraphQLRequest{}, nil, &requestError{status: http.StatusUnsupportedMediaType, message: "unsupported Content-Type"}
	}
	defer r.Body.Close()
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return GraphQLRequest{}, nil, badRequest("failed to read body")
	}
	if maxBody > 0 && int64(len(body)) > maxBody {
		return GraphQLRequest{}, nil, &requestError{status: http.StatusRequestEntityTooLarge, message: "body too large"}
	}

	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var arr []wireRequest
		if err := codec.Unmarshal(body, &arr); err != nil {
			return GraphQLRequest{}, nil, badRequest("invalid JSON")
		}
		if len(arr) == 0 {
			return GraphQLRequest{}, nil, badRequest("empty batch")
		}
		out := make([]GraphQLRequest, len(arr))
		for i := range arr {
			req, rerr := arr[i].decode()
			if rerr != nil {
				return GraphQLRequest{}, nil, rerr
			}
			out[i] = req
		}
		return GraphQLRequest{}, out, nil
	}

	var wr wireRequest
	if err := codec.Unmarshal(body, &wr); err != nil {
		return GraphQLRequest{}, nil, badRequest("invalid JSON")
	}
	req, rerr := wr.decode()
	return req, nil, rerr
}

func parseGET(r *http.Request) (GraphQLRequest, []GraphQLRequest, *requestError) {
	q := r.URL.Query()
	req := GraphQLRequest{
		OperationName: q.Get("operationName"),
		Variables:     map[string]any{},
		Extensions:    apq.EncodedExtensions(q.Get("extensions")),
	}
	if s := q.Get("query"); s != "" {
		req.Query = s
	}
	if v := q.Get("variables"); v != "" {
		if err := codec.Unmarshal([]byte(v), &req.Variables); err != nil {
			return GraphQLRequest{}, nil, badRequest("invalid 'variables' JSON")
		}
	}
	return req, nil, nil
}

func (wr wireRequest) decode() (GraphQLRequest, *requestError) {
	req := GraphQLRequest{OperationName: wr.OperationName, Variables: wr.Variables}
	if req.Variables == nil {
		req.Variables = map[string]any{}
	}
	if !isNull(wr.Query) {
		if err := codec.Unmarshal(wr.Query, &req.Query); err != nil {
			return GraphQLRequest{}, badRequest("invalid JSON")
		}
		if s, ok := req.Query.(string); ok && s == "" {
			req.Query = nil
		}
	}
	if ext := bytes.TrimSpace(wr.Extensions); !isNull(ext) {
		switch ext[0] {
		case '"':
			var s string
			if err := codec.Unmarshal(ext, &s); err != nil {
				return GraphQLRequest{}, badRequest("invalid 'extensions'")
			}
			req.Extensions = apq.EncodedExtensions(s)
		case '{':
			var m map[string]any
			if err := codec.Unmarshal(ext, &m); err != nil {
				return GraphQLRequest{}, badRequest("invalid 'extensions'")
			}
			req.Extensions = apq.StructuredExtensions(m)
		default:
			return GraphQLRequest{}, badRequest("invalid 'extensions'")
		}
	}
	return req, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
