package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/oauth2-provider/clients"
	"github.com/jrsteele09/oauth2-provider/oauthmodel"
	"github.com/jrsteele09/oauth2-provider/provider"
	"github.com/pkg/errors"
)

const contentTypeJSON = "application/json; charset=utf-8"

type authorizePageData struct {
	AppName              string
	Action               string
	ClientID             string
	ClientName           string
	ClientDescription    string
	RedirectURI          string
	RequestedRedirectURI string
	State                string
}

// AuthorizeForm validates an authorization request and renders the approval page.
func (s *Server) AuthorizeForm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, ok := s.parseMessage(w, r, false)
		if !ok {
			return
		}
		req, err := s.provider.ValidateAuthorizationRequest(msg)
		if err != nil {
			s.authorizeError(w, r, err)
			return
		}

		data := authorizePageData{
			AppName:              s.config.GetAppName(),
			Action:               RouteOAuth2Authorize,
			ClientID:             req.Client.ID,
			ClientName:           req.Client.MetadataValue(clients.MetadataName),
			ClientDescription:    req.Client.MetadataValue(clients.MetadataDescription),
			RedirectURI:          req.RedirectURI,
			RequestedRedirectURI: req.Params.RedirectURI,
			State:                req.Params.State,
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if err := s.authorizePage.Execute(w, data); err != nil {
			s.logger.Err(err).Msg("rendering authorization page")
		}
	}
}

// AuthorizeSubmit records the end-user's approval and redirects to the client callback.
func (s *Server) AuthorizeSubmit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, ok := s.parseMessage(w, r, false)
		if !ok {
			return
		}
		userID, _ := msg.Parameter(oauthmodel.ParamUserID)

		auth, err := s.provider.Authorize(msg, userID)
		if err != nil {
			s.authorizeError(w, r, err)
			return
		}
		if err := callbackRedirect(w, r, auth); err != nil {
			s.provider.HandleException(w, r, err, true, false)
		}
	}
}

// Token exchanges codes and refresh tokens for token pairs.
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, ok := s.parseMessage(w, r, true)
		if !ok {
			return
		}

		resp, err := s.provider.Token(msg)
		if err != nil {
			problem := s.provider.Problem(err, msg)
			// RFC 6749 section 5.2: a failed client authentication carries a challenge
			withAuthHeader := problem.ErrorCode == oauthmodel.ErrorCodeInvalidClient
			s.provider.HandleException(w, r, problem, true, withAuthHeader)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			s.logger.Err(err).Msg("writing token response")
		}
	}
}

// Preflight answers OPTIONS requests that CorsMiddleware passed through.
func (s *Server) Preflight() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// Health reports liveness and the number of registered clients.
func (s *Server) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"clients": s.provider.Registry().Len(),
		})
	}
}

func (s *Server) parseMessage(w http.ResponseWriter, r *http.Request, sendBodyInJSON bool) (*oauthmodel.ValuesMessage, bool) {
	msg, err := oauthmodel.NewRequestMessage(r)
	if err != nil {
		problem := oauthmodel.NewProblem(oauthmodel.ProblemMalformedRequest, oauthmodel.ErrorCodeInvalidRequest,
			"request parameters could not be parsed", err)
		s.provider.HandleException(w, r, problem, sendBodyInJSON, false)
		return nil, false
	}
	return msg, true
}

// authorizeError redirects the problem to the client when its callback was verified and
// answers the user agent directly otherwise.
func (s *Server) authorizeError(w http.ResponseWriter, r *http.Request, err error) {
	problem := s.provider.Problem(err, nil)
	if location, ok := provider.ProblemRedirectURL(problem); ok {
		s.logger.Debug().Str("error", problem.ErrorCode).Str("problem", problem.Problem).Msg("authorization error redirected")
		http.Redirect(w, r, location, http.StatusSeeOther)
		return
	}
	s.provider.HandleException(w, r, problem, true, false)
}

// callbackRedirect sends the authorization code to the client's redirect URI.
func callbackRedirect(w http.ResponseWriter, r *http.Request, auth *provider.Authorization) error {
	location, err := auth.RedirectURL()
	if err != nil {
		return errors.Wrap(err, "[callbackRedirect] invalid redirect URI")
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
	return nil
}
