package provider_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/oauth2-provider/accessor"
	"github.com/jrsteele09/oauth2-provider/clients"
	"github.com/jrsteele09/oauth2-provider/grant"
	"github.com/jrsteele09/oauth2-provider/internal/metrics"
	"github.com/jrsteele09/oauth2-provider/oauthmodel"
	"github.com/jrsteele09/oauth2-provider/provider"
	"github.com/jrsteele09/oauth2-provider/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testClientID     = "abc"
	testClientSecret = "xyz"
	testRedirectURI  = "http://cb"
	otherClientID    = "other"
	otherSecret      = "other-secret"
	testUserID       = "user42"
	testState        = "s1"
)

type testFixture struct {
	provider *provider.Provider
	store    *accessor.Store
	metrics  *metrics.Collector
}

func setupTestFixture(t *testing.T, options ...provider.ProviderOption) *testFixture {
	t.Helper()

	registry := clients.NewRegistry(clients.MapSource{
		testClientID:                   testClientSecret,
		testClientID + ".callbackURL":  testRedirectURI,
		otherClientID:                  otherSecret,
		otherClientID + ".callbackURL": "http://other/cb",
	})
	require.NoError(t, registry.Load())

	generator := token.NewGenerator()
	store := accessor.NewStore(generator)
	machine, err := grant.NewMachine(store, generator)
	require.NoError(t, err)

	collector := metrics.NewCollector(store.Len)
	options = append([]provider.ProviderOption{provider.WithMetrics(collector), provider.WithRealm("test")}, options...)
	p, err := provider.New(registry, store, machine, options...)
	require.NoError(t, err)

	return &testFixture{provider: p, store: store, metrics: collector}
}

func message(kv ...string) oauthmodel.Message {
	values := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		values.Set(kv[i], kv[i+1])
	}
	return oauthmodel.NewMessage(values)
}

func requireProblem(t *testing.T, err error, errorCode, problemName string) *oauthmodel.Problem {
	t.Helper()
	var problem *oauthmodel.Problem
	require.True(t, errors.As(err, &problem), "expected a problem, got %v", err)
	require.Equal(t, errorCode, problem.ErrorCode)
	require.Equal(t, problemName, problem.Problem)
	return problem
}

// authorize runs the authorization endpoint step and returns the issued code.
func (f *testFixture) authorize(t *testing.T) string {
	t.Helper()
	auth, err := f.provider.Authorize(message(
		oauthmodel.ParamClientID, testClientID,
		oauthmodel.ParamResponseType, "code",
		oauthmodel.ParamState, testState,
	), testUserID)
	require.NoError(t, err)
	return auth.Code
}

func codeRequest(code string) oauthmodel.Message {
	return message(
		oauthmodel.ParamGrantType, string(oauthmodel.AuthorizationCodeGrant),
		oauthmodel.ParamClientID, testClientID,
		oauthmodel.ParamClientSecret, testClientSecret,
		oauthmodel.ParamCode, code,
		oauthmodel.ParamState, testState,
	)
}

func refreshRequest(refreshToken string) oauthmodel.Message {
	return message(
		oauthmodel.ParamGrantType, string(oauthmodel.RefreshTokenGrant),
		oauthmodel.ParamClientID, testClientID,
		oauthmodel.ParamClientSecret, testClientSecret,
		oauthmodel.ParamRefreshToken, refreshToken,
	)
}

func TestNew_RequiresDependencies(t *testing.T) {
	generator := token.NewGenerator()
	store := accessor.NewStore(generator)
	machine, err := grant.NewMachine(store, generator)
	require.NoError(t, err)
	registry := clients.NewRegistry(clients.MapSource{})

	_, err = provider.New(nil, store, machine)
	require.Error(t, err)
	_, err = provider.New(registry, nil, machine)
	require.Error(t, err)
	_, err = provider.New(registry, store, nil)
	require.Error(t, err)
}

func TestProvider_GetClient(t *testing.T) {
	f := setupTestFixture(t)

	client, err := f.provider.GetClient(message(oauthmodel.ParamClientID, testClientID))
	require.NoError(t, err)
	require.Equal(t, testRedirectURI, client.RedirectURI)

	_, err = f.provider.GetClient(message(oauthmodel.ParamClientID, "nope", oauthmodel.ParamState, testState))
	problem := requireProblem(t, err, oauthmodel.ErrorCodeInvalidClient, oauthmodel.ProblemClientIDUnknown)
	require.Equal(t, testState, problem.State)
	require.Equal(t, http.StatusUnauthorized, problem.HTTPStatus())
	require.ErrorIs(t, err, oauthmodel.ErrUnknownClient)
}

func TestProvider_AuthenticateClient(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.provider.AuthenticateClient(message(
		oauthmodel.ParamClientID, testClientID,
		oauthmodel.ParamClientSecret, testClientSecret,
	))
	require.NoError(t, err)

	_, err = f.provider.AuthenticateClient(message(
		oauthmodel.ParamClientID, testClientID,
		oauthmodel.ParamClientSecret, "wrong",
	))
	problem := requireProblem(t, err, oauthmodel.ErrorCodeInvalidClient, oauthmodel.ProblemInvalidSecret)
	require.Equal(t, http.StatusUnauthorized, problem.HTTPStatus())
}

func TestProvider_GetAccessorByCode(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("missing parameter", func(t *testing.T) {
		_, err := f.provider.GetAccessorByCode(message(oauthmodel.ParamState, testState))
		problem := requireProblem(t, err, oauthmodel.ErrorCodeInvalidRequest, oauthmodel.ProblemParameterAbsent)
		require.Equal(t, testState, problem.State)
		require.ErrorIs(t, err, oauthmodel.ErrMissingParameter)
	})

	t.Run("empty parameter", func(t *testing.T) {
		_, err := f.provider.GetAccessorByCode(message(oauthmodel.ParamCode, ""))
		requireProblem(t, err, oauthmodel.ErrorCodeInvalidRequest, oauthmodel.ProblemParameterAbsent)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := f.provider.GetAccessorByCode(message(oauthmodel.ParamCode, "bogus", oauthmodel.ParamState, testState))
		problem := requireProblem(t, err, oauthmodel.ErrorCodeInvalidGrant, oauthmodel.ProblemInvalidCode)
		require.Equal(t, testState, problem.State)
		require.Equal(t, http.StatusBadRequest, problem.HTTPStatus())
	})

	t.Run("issued code", func(t *testing.T) {
		client, err := f.provider.GetClient(message(oauthmodel.ParamClientID, testClientID))
		require.NoError(t, err)
		a, err := f.provider.GenerateCode(client)
		require.NoError(t, err)

		found, err := f.provider.GetAccessorByCode(message(oauthmodel.ParamCode, a.Code()))
		require.NoError(t, err)
		require.Same(t, a, found)
	})
}

func TestProvider_GetAccessorByRefreshToken(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.provider.GetAccessorByRefreshToken(message())
	requireProblem(t, err, oauthmodel.ErrorCodeInvalidRequest, oauthmodel.ProblemParameterAbsent)

	_, err = f.provider.GetAccessorByRefreshToken(message(oauthmodel.ParamRefreshToken, "bogus"))
	requireProblem(t, err, oauthmodel.ErrorCodeInvalidGrant, oauthmodel.ProblemInvalidToken)
}

func TestProvider_StepwiseLifecycle(t *testing.T) {
	f := setupTestFixture(t)

	client, err := f.provider.GetClient(message(oauthmodel.ParamClientID, testClientID))
	require.NoError(t, err)
	a, err := f.provider.GenerateCode(client)
	require.NoError(t, err)
	c1 := a.Code()

	require.NoError(t, f.provider.MarkAsAuthorized(a, testUserID))
	require.NoError(t, f.provider.GenerateAccessAndRefreshToken(a))
	r1 := a.RefreshToken()

	_, err = f.provider.GetAccessorByCode(message(oauthmodel.ParamCode, c1))
	requireProblem(t, err, oauthmodel.ErrorCodeInvalidGrant, oauthmodel.ProblemInvalidCode)

	require.NoError(t, f.provider.RefreshTokens(a))
	_, err = f.provider.GetAccessorByRefreshToken(message(oauthmodel.ParamRefreshToken, r1))
	requireProblem(t, err, oauthmodel.ErrorCodeInvalidGrant, oauthmodel.ProblemInvalidToken)

	err = f.provider.MarkAsAuthorized(a, "someone-else")
	requireProblem(t, err, oauthmodel.ErrorCodeInvalidGrant, oauthmodel.ProblemInvalidState)
	require.Equal(t, testUserID, a.UserID())
}

func TestProvider_ConcurrentStepwiseTokenIssue(t *testing.T) {
	f := setupTestFixture(t)

	client, err := f.provider.GetClient(message(oauthmodel.ParamClientID, testClientID))
	require.NoError(t, err)
	a, err := f.provider.GenerateCode(client)
	require.NoError(t, err)
	require.NoError(t, f.provider.MarkAsAuthorized(a, testUserID))
	code := a.Code()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			found, err := f.provider.GetAccessorByCode(message(oauthmodel.ParamCode, code))
			if err != nil {
				return
			}
			if f.provider.GenerateAccessAndRefreshToken(found) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())

	err = f.provider.GenerateAccessAndRefreshToken(a)
	requireProblem(t, err, oauthmodel.ErrorCodeInvalidGrant, oauthmodel.ProblemInvalidCode)
}

func TestProvider_AuthorizeAndExchange(t *testing.T) {
	f := setupTestFixture(t)

	auth, err := f.provider.Authorize(message(
		oauthmodel.ParamClientID, testClientID,
		oauthmodel.ParamResponseType, "code",
		oauthmodel.ParamState, testState,
	), testUserID)
	require.NoError(t, err)
	require.Len(t, auth.Code, token.IdentifierLength)
	require.Equal(t, testRedirectURI, auth.RedirectURI)

	redirect, err := auth.RedirectURL()
	require.NoError(t, err)
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	require.Equal(t, auth.Code, u.Query().Get("code"))
	require.Equal(t, testState, u.Query().Get("state"))

	resp, err := f.provider.Token(codeRequest(auth.Code))
	require.NoError(t, err)
	require.Equal(t, oauthmodel.TokenTypeBearer, resp.TokenType)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, testState, resp.State)

	// the code is single-use
	_, err = f.provider.Token(codeRequest(auth.Code))
	problem := requireProblem(t, err, oauthmodel.ErrorCodeInvalidGrant, oauthmodel.ProblemInvalidCode)
	require.Equal(t, testState, problem.State)

	refreshed, err := f.provider.Token(refreshRequest(resp.RefreshToken))
	require.NoError(t, err)
	require.NotEqual(t, resp.AccessToken, refreshed.AccessToken)
	require.NotEqual(t, resp.RefreshToken, refreshed.RefreshToken)

	_, err = f.provider.Token(refreshRequest(resp.RefreshToken))
	requireProblem(t, err, oauthmodel.ErrorCodeInvalidGrant, oauthmodel.ProblemInvalidToken)

	a, err := f.provider.GetAccessorByRefreshToken(message(oauthmodel.ParamRefreshToken, refreshed.RefreshToken))
	require.NoError(t, err)
	require.Equal(t, testUserID, a.UserID())
}

func TestProvider_ExchangeCodeRequiresApproval(t *testing.T) {
	f := setupTestFixture(t)
	client, err := f.provider.GetClient(message(oauthmodel.ParamClientID, testClientID))
	require.NoError(t, err)
	a, err := f.provider.GenerateCode(client)
	require.NoError(t, err)

	_, err = f.provider.ExchangeCode(codeRequest(a.Code()))
	requireProblem(t, err, oauthmodel.ErrorCodeInvalidGrant, oauthmodel.ProblemPermissionDenied)
	require.Equal(t, accessor.CodeIssued, a.State())
}

func TestProvider_ExchangeCodeBindings(t *testing.T) {
	t.Run("another client", func(t *testing.T) {
		f := setupTestFixture(t)
		code := f.authorize(t)
		_, err := f.provider.ExchangeCode(message(
			oauthmodel.ParamClientID, otherClientID,
			oauthmodel.ParamClientSecret, otherSecret,
			oauthmodel.ParamCode, code,
		))
		requireProblem(t, err, oauthmodel.ErrorCodeInvalidGrant, oauthmodel.ProblemClientMismatch)

		// the rightful client can still redeem it
		_, err = f.provider.ExchangeCode(codeRequest(code))
		require.NoError(t, err)
	})

	t.Run("bad secret", func(t *testing.T) {
		f := setupTestFixture(t)
		code := f.authorize(t)
		_, err := f.provider.ExchangeCode(message(
			oauthmodel.ParamClientID, testClientID,
			oauthmodel.ParamClientSecret, "wrong",
			oauthmodel.ParamCode, code,
		))
		requireProblem(t, err, oauthmodel.ErrorCodeInvalidClient, oauthmodel.ProblemInvalidSecret)
	})

	t.Run("redirect uri must repeat the authorization request", func(t *testing.T) {
		f := setupTestFixture(t)
		auth, err := f.provider.Authorize(message(
			oauthmodel.ParamClientID, testClientID,
			oauthmodel.ParamRedirectURI, testRedirectURI,
		), testUserID)
		require.NoError(t, err)

		_, err = f.provider.ExchangeCode(codeRequest(auth.Code))
		requireProblem(t, err, oauthmodel.ErrorCodeInvalidGrant, oauthmodel.ProblemRedirectMismatch)

		req := codeRequest(auth.Code).(*oauthmodel.ValuesMessage)
		req.Values().Set(oauthmodel.ParamRedirectURI, testRedirectURI)
		_, err = f.provider.ExchangeCode(req)
		require.NoError(t, err)
	})

	t.Run("redirect uri must match the registration", func(t *testing.T) {
		f := setupTestFixture(t)
		code := f.authorize(t)
		req := codeRequest(code).(*oauthmodel.ValuesMessage)
		req.Values().Set(oauthmodel.ParamRedirectURI, "http://evil")
		_, err := f.provider.ExchangeCode(req)
		requireProblem(t, err, oauthmodel.ErrorCodeInvalidGrant, oauthmodel.ProblemRedirectMismatch)
	})
}

func TestProvider_ConcurrentExchangeOfOneCode(t *testing.T) {
	f := setupTestFixture(t)
	code := f.authorize(t)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.provider.ExchangeCode(codeRequest(code)); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}

func TestProvider_TokenGrantTypes(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.provider.Token(message(oauthmodel.ParamClientID, testClientID))
	requireProblem(t, err, oauthmodel.ErrorCodeInvalidRequest, oauthmodel.ProblemParameterAbsent)

	_, err = f.provider.Token(message(oauthmodel.ParamGrantType, "password", oauthmodel.ParamState, testState))
	problem := requireProblem(t, err, oauthmodel.ErrorCodeUnsupportedGrantType, oauthmodel.ProblemUnsupportedGrant)
	require.Equal(t, testState, problem.State)
}

func TestProvider_AuthorizeProblems(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("missing client id", func(t *testing.T) {
		_, err := f.provider.Authorize(message(oauthmodel.ParamState, testState), testUserID)
		problem := requireProblem(t, err, oauthmodel.ErrorCodeInvalidRequest, oauthmodel.ProblemParameterAbsent)
		_, ok := provider.ProblemRedirectURL(problem)
		require.False(t, ok)
	})

	t.Run("redirect mismatch is never redirected", func(t *testing.T) {
		_, err := f.provider.Authorize(message(
			oauthmodel.ParamClientID, testClientID,
			oauthmodel.ParamRedirectURI, "http://evil",
		), testUserID)
		problem := requireProblem(t, err, oauthmodel.ErrorCodeInvalidGrant, oauthmodel.ProblemRedirectMismatch)
		require.Empty(t, problem.RedirectURI)
	})

	t.Run("unsupported response type is redirected", func(t *testing.T) {
		_, err := f.provider.Authorize(message(
			oauthmodel.ParamClientID, testClientID,
			oauthmodel.ParamResponseType, "token",
			oauthmodel.ParamState, testState,
		), testUserID)
		problem := requireProblem(t, err, oauthmodel.ErrorCodeUnsupportedResponseType, oauthmodel.ProblemUnsupportedReponse)
		redirect, ok := provider.ProblemRedirectURL(problem)
		require.True(t, ok)
		u, err := url.Parse(redirect)
		require.NoError(t, err)
		require.Equal(t, "unsupported_response_type", u.Query().Get("error"))
		require.Equal(t, testState, u.Query().Get("state"))
	})

	t.Run("unsupported response type with foreign redirect is not redirected", func(t *testing.T) {
		_, err := f.provider.Authorize(message(
			oauthmodel.ParamClientID, testClientID,
			oauthmodel.ParamResponseType, "token",
			oauthmodel.ParamRedirectURI, "http://evil.example/steal",
			oauthmodel.ParamState, testState,
		), testUserID)
		problem := requireProblem(t, err, oauthmodel.ErrorCodeInvalidGrant, oauthmodel.ProblemRedirectMismatch)
		_, ok := provider.ProblemRedirectURL(problem)
		require.False(t, ok)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := f.provider.Authorize(message(oauthmodel.ParamClientID, testClientID), "")
		problem := requireProblem(t, err, oauthmodel.ErrorCodeInvalidRequest, oauthmodel.ProblemParameterAbsent)
		require.Equal(t, testRedirectURI, problem.RedirectURI)
	})
}

func TestProvider_ProblemTranslation(t *testing.T) {
	f := setupTestFixture(t)
	msg := message(oauthmodel.ParamState, testState)

	tests := []struct {
		name      string
		err       error
		errorCode string
		problem   string
		status    int
	}{
		{"configuration", &oauthmodel.ConfigurationError{Source: "x", Err: io.EOF}, oauthmodel.ErrorCodeServerError, oauthmodel.ProblemConfiguration, http.StatusInternalServerError},
		{"foreign", io.ErrUnexpectedEOF, oauthmodel.ErrorCodeServerError, oauthmodel.ProblemInternal, http.StatusInternalServerError},
		{"unsupported grant", oauthmodel.ErrUnsupportedGrantType, oauthmodel.ErrorCodeUnsupportedGrantType, oauthmodel.ProblemUnsupportedGrant, http.StatusBadRequest},
		{"pending", oauthmodel.ErrAuthorizationPending, oauthmodel.ErrorCodeInvalidGrant, oauthmodel.ProblemPermissionDenied, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problem := f.provider.Problem(tt.err, msg)
			assert.Equal(t, tt.errorCode, problem.ErrorCode)
			assert.Equal(t, tt.problem, problem.Problem)
			assert.Equal(t, tt.status, problem.HTTPStatus())
			assert.Equal(t, testState, problem.State)
			assert.ErrorIs(t, problem, tt.err)
		})
	}

	t.Run("existing problem keeps its classification", func(t *testing.T) {
		original := oauthmodel.NewProblem(oauthmodel.ProblemInvalidCode, oauthmodel.ErrorCodeInvalidGrant, "", nil)
		problem := f.provider.Problem(original, msg)
		assert.Equal(t, oauthmodel.ProblemInvalidCode, problem.Problem)
		assert.Equal(t, testState, problem.State)
		assert.Empty(t, original.State)
	})

	assert.Nil(t, f.provider.Problem(nil, msg))
}

type recordingWriter struct {
	err            error
	realm          string
	sendBodyInJSON bool
	withAuthHeader bool
}

func (w *recordingWriter) WriteProblem(rw http.ResponseWriter, r *http.Request, err error, realm string, sendBodyInJSON, withAuthHeader bool) {
	w.err, w.realm, w.sendBodyInJSON, w.withAuthHeader = err, realm, sendBodyInJSON, withAuthHeader
	rw.WriteHeader(http.StatusTeapot)
}

func TestProvider_HandleExceptionDelegates(t *testing.T) {
	writer := &recordingWriter{}
	f := setupTestFixture(t, provider.WithProblemWriter(writer), provider.WithRealm("acme"))

	rec := httptest.NewRecorder()
	f.provider.HandleException(rec, httptest.NewRequest(http.MethodPost, "/oauth2/token", nil), io.ErrClosedPipe, true, false)

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, "acme", writer.realm)
	require.True(t, writer.sendBodyInJSON)
	require.False(t, writer.withAuthHeader)
	requireProblem(t, writer.err, oauthmodel.ErrorCodeServerError, oauthmodel.ProblemInternal)
}

func TestProvider_HandleExceptionDefaultWriter(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.provider.AuthenticateClient(message(
		oauthmodel.ParamClientID, testClientID,
		oauthmodel.ParamClientSecret, "wrong",
		oauthmodel.ParamState, testState,
	))
	require.Error(t, err)

	t.Run("json body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.provider.HandleException(rec, httptest.NewRequest(http.MethodPost, "/", nil), err, true, false)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Equal(t, oauthmodel.ErrorCodeInvalidClient, body["error"])
		require.Equal(t, testState, body["state"])
	})

	t.Run("auth header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.provider.HandleException(rec, httptest.NewRequest(http.MethodPost, "/", nil), err, false, true)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		challenge := rec.Header().Get("WWW-Authenticate")
		require.True(t, strings.HasPrefix(challenge, "Bearer "))
		require.Contains(t, challenge, `realm="test"`)
		require.Contains(t, challenge, `error="invalid_client"`)
		require.Contains(t, challenge, `state="s1"`)
		require.Zero(t, rec.Body.Len())
	})
}

func TestProvider_RecordsMetrics(t *testing.T) {
	f := setupTestFixture(t)
	code := f.authorize(t)
	_, err := f.provider.ExchangeCode(codeRequest(code))
	require.NoError(t, err)
	_, err = f.provider.ExchangeCode(codeRequest(code))
	require.Error(t, err)

	rec := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	require.Contains(t, body, "oauth2_authorization_codes_issued_total 1")
	require.Contains(t, body, `oauth2_tokens_issued_total{grant_type="authorization_code"} 1`)
	require.Contains(t, body, `oauth2_problems_total{error="invalid_grant",problem="invalid_code"} 1`)
	require.Contains(t, body, "oauth2_accessors 1")
}
