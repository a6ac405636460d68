package apq

import "github.com/pkg/errors"

// ErrorKind names a per-request APQ failure. The symbolic name is the only
// thing a client ever sees.
type ErrorKind uint8

const (
	HashFormatIncorrect ErrorKind = iota + 1
	QueryFormatIncorrect
	PersistedQueryLargerThanMaxSize
	ProvidedShaDoesNotMatch
	PersistedQueryNotFound
)

var kindNames = [...]string{
	HashFormatIncorrect:             "HashFormatIncorrect",
	QueryFormatIncorrect:            "QueryFormatIncorrect",
	PersistedQueryLargerThanMaxSize: "PersistedQueryLargerThanMaxSize",
	ProvidedShaDoesNotMatch:         "ProvidedShaDoesNotMatch",
	PersistedQueryNotFound:          "PersistedQueryNotFound",
}

func (k ErrorKind) String() string {
	if k == 0 || int(k) >= len(kindNames) {
		return ""
	}
	return kindNames[k]
}

// Response renders k as a GraphQL error payload: {"errors":[{"message":"<Name>"}]}.
func (k ErrorKind) Response() ErrorResponse {
	return ErrorResponse{Errors: []ErrorMessage{{Message: k.String()}}}
}

type ErrorResponse struct {
	Errors []ErrorMessage `json:"errors"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

// Error carries an ErrorKind through error-typed APIs.
type Error struct {
	Kind ErrorKind
}

func (e *Error) Error() string { return e.Kind.String() }

// ErrDecoderRequired is returned when extensions arrive JSON-encoded and the
// resolver was built without a Decoder. It is a deployment bug, not a client
// error, and must not be reported as one.
var ErrDecoderRequired = errors.New("apq: extensions are JSON-encoded but no decoder is configured")
