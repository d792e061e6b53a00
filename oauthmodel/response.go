package oauthmodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"
	contentTypeForm = "application/x-www-form-urlencoded"
)

// ProblemWriter writes a failure onto the wire. realm may be empty.
type ProblemWriter interface {
	WriteProblem(w http.ResponseWriter, r *http.Request, err error, realm string, sendBodyInJSON, withAuthHeader bool)
}

// ResponseWriter is the default ProblemWriter.
//
// With sendBodyInJSON the body is a JSON object carrying error, error_description and
// state. With withAuthHeader a "WWW-Authenticate: Bearer" challenge carries the same
// fields. When neither flag is set the fields are sent form-encoded in the body.
type ResponseWriter struct{}

var _ ProblemWriter = ResponseWriter{}

type problemBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	State            string `json:"state,omitempty"`
}

func (ResponseWriter) WriteProblem(w http.ResponseWriter, r *http.Request, err error, realm string, sendBodyInJSON, withAuthHeader bool) {
	p := AsProblem(err)

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	if withAuthHeader {
		w.Header().Set("WWW-Authenticate", authenticateChallenge(p, realm))
	}

	switch {
	case sendBodyInJSON:
		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(p.HTTPStatus())
		_ = json.NewEncoder(w).Encode(problemBody{
			Error:            p.ErrorCode,
			ErrorDescription: p.Description,
			State:            p.State,
		})
	case withAuthHeader:
		w.WriteHeader(p.HTTPStatus())
	default:
		w.Header().Set("Content-Type", contentTypeForm)
		w.WriteHeader(p.HTTPStatus())
		_, _ = w.Write([]byte(ProblemValues(p).Encode()))
	}
}

// AsProblem returns err as a Problem, wrapping foreign errors as server_error.
func AsProblem(err error) *Problem {
	var p *Problem
	if errors.As(err, &p) {
		return p
	}
	return NewProblem(ProblemInternal, ErrorCodeServerError, "", err)
}

// ProblemValues returns the wire parameters of a problem, as used in redirects and form bodies.
func ProblemValues(p *Problem) url.Values {
	v := url.Values{}
	v.Set("error", p.ErrorCode)
	if p.Description != "" {
		v.Set("error_description", p.Description)
	}
	if p.State != "" {
		v.Set(ParamState, p.State)
	}
	return v
}

func authenticateChallenge(p *Problem, realm string) string {
	var params []string
	if realm != "" {
		params = append(params, fmt.Sprintf("realm=%q", realm))
	}
	params = append(params, fmt.Sprintf("error=%q", p.ErrorCode))
	if p.Description != "" {
		params = append(params, fmt.Sprintf("error_description=%q", p.Description))
	}
	if p.State != "" {
		params = append(params, fmt.Sprintf("state=%q", p.State))
	}
	return "Bearer " + strings.Join(params, ", ")
}
