// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	authenticationv1 "k8s.io/api/authentication/v1"
	clocktesting "k8s.io/utils/clock/testing"

	"go.pinniped.dev/kube-ldap/internal/claims"
	"go.pinniped.dev/kube-ldap/internal/directory"
	"go.pinniped.dev/kube-ldap/internal/metrics"
	"go.pinniped.dev/kube-ldap/internal/plog"
	"go.pinniped.dev/kube-ldap/internal/testutil"
	"go.pinniped.dev/kube-ldap/internal/token"
)

const (
	testAuditID       = "fake-audit-id"
	testTokenLifetime = 8 * time.Hour
)

var testNow = time.Date(2026, time.March, 4, 5, 6, 7, 0, time.UTC)

type fakeAuthenticator struct {
	claims *claims.Claims
	err    error

	calls       int
	gotUsername string
	gotPassword string
}

func (f *fakeAuthenticator) AuthenticateUser(_ context.Context, username, password string) (*claims.Claims, error) {
	f.calls++
	f.gotUsername, f.gotPassword = username, password
	if f.err != nil {
		return nil, f.err
	}
	c := *f.claims
	return &c, nil
}

func aliceClaims() *claims.Claims {
	return &claims.Claims{
		Subject:  "alice",
		UID:      "alice-uid",
		Groups:   []string{"admins", "devs"},
		Extra:    map[string][]string{"mail": {"alice@example.com"}},
		IssuedAt: testNow,
	}
}

type serverTest struct {
	server  *Server
	handler http.Handler
	codec   *token.Codec
	clock   *clocktesting.FakeClock
	metrics *metrics.Metrics
}

func newServerTest(t *testing.T, authenticator UserAuthenticator) *serverTest {
	t.Helper()

	fakeClock := clocktesting.NewFakeClock(testNow)
	codec, err := token.NewCodec([]byte("0123456789abcdef0123456789abcdef"), fakeClock)
	require.NoError(t, err)

	m := metrics.New()
	s := New(Config{
		Authenticator: authenticator,
		Codec:         codec,
		TokenLifetime: testTokenLifetime,
		Metrics:       m,
		Clock:         fakeClock,
	})
	s.newAuditID = func() string { return testAuditID }

	return &serverTest{server: s, handler: s.Handler(), codec: codec, clock: fakeClock, metrics: m}
}

func (st *serverTest) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	st.handler.ServeHTTP(rec, req)
	return rec
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name          string
		method        string
		basicAuth     bool
		authErr       error
		wantStatus    int
		wantBody      string
		wantToken     bool
		wantCalls     int
		wantChallenge bool
	}{
		{
			name:       "happy path",
			method:     http.MethodGet,
			basicAuth:  true,
			wantStatus: http.StatusOK,
			wantToken:  true,
			wantCalls:  1,
		},
		{
			name:          "no basic authorization",
			method:        http.MethodGet,
			wantStatus:    http.StatusUnauthorized,
			wantBody:      "Unauthorized: missing basic authorization\n",
			wantChallenge: true,
		},
		{
			name:          "unknown user",
			method:        http.MethodGet,
			basicAuth:     true,
			authErr:       fmt.Errorf("%w: found 0 entries for username %q", directory.ErrAmbiguousOrUnknownUser, "alice"),
			wantStatus:    http.StatusUnauthorized,
			wantBody:      "Unauthorized: invalid credentials\n",
			wantCalls:     1,
			wantChallenge: true,
		},
		{
			name:          "wrong password looks the same as an unknown user",
			method:        http.MethodGet,
			basicAuth:     true,
			authErr:       fmt.Errorf("%w: bind rejected for username %q", directory.ErrInvalidCredentials, "alice"),
			wantStatus:    http.StatusUnauthorized,
			wantBody:      "Unauthorized: invalid credentials\n",
			wantCalls:     1,
			wantChallenge: true,
		},
		{
			name:       "directory unreachable",
			method:     http.MethodGet,
			basicAuth:  true,
			authErr:    fmt.Errorf("%w: error dialing host %q: some dial error", directory.ErrConnection, "ldap.example.com:636"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "Internal Server Error: authentication failed\n",
			wantCalls:  1,
		},
		{
			name:       "user entry does not satisfy the mapping",
			method:     http.MethodGet,
			basicAuth:  true,
			authErr:    fmt.Errorf("%w %q on %q", directory.ErrMissingAttribute, "uid", "uid=alice,dc=example,dc=com"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "Internal Server Error: authentication failed\n",
			wantCalls:  1,
		},
		{
			name:       "wrong method",
			method:     http.MethodPost,
			basicAuth:  true,
			wantStatus: http.StatusMethodNotAllowed,
			wantBody:   "Method Not Allowed: POST (try GET)\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authenticator := &fakeAuthenticator{claims: aliceClaims(), err: tt.authErr}
			st := newServerTest(t, authenticator)

			req := httptest.NewRequest(tt.method, "/auth", nil)
			if tt.basicAuth {
				req.SetBasicAuth("alice", "some-password")
			}
			rec := st.do(req)

			require.Equal(t, tt.wantStatus, rec.Code)
			require.Equal(t, tt.wantCalls, authenticator.calls)
			require.Equal(t, testAuditID, rec.Header().Get("Audit-ID"))
			require.Equal(t, "no-cache,no-store,max-age=0,must-revalidate", rec.Header().Get("Cache-Control"))

			if tt.wantChallenge {
				require.Equal(t, `Basic realm="kubernetes"`, rec.Header().Get("WWW-Authenticate"))
			} else {
				require.Empty(t, rec.Header().Get("WWW-Authenticate"))
			}

			if !tt.wantToken {
				require.Equal(t, tt.wantBody, rec.Body.String())
				return
			}

			require.Equal(t, "alice", authenticator.gotUsername)
			require.Equal(t, "some-password", authenticator.gotPassword)
			require.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))

			verified, err := st.codec.Verify(rec.Body.String())
			require.NoError(t, err)
			want := aliceClaims()
			want.ExpiresAt = testNow.Add(testTokenLifetime)
			require.Equal(t, want, verified)
		})
	}
}

func TestAuthRecordsMetrics(t *testing.T) {
	authenticator := &fakeAuthenticator{claims: aliceClaims()}
	st := newServerTest(t, authenticator)

	req := httptest.NewRequest(http.MethodGet, "/auth", nil)
	req.SetBasicAuth("alice", "some-password")
	require.Equal(t, http.StatusOK, st.do(req).Code)

	authenticator.err = directory.ErrInvalidCredentials
	require.Equal(t, http.StatusUnauthorized, st.do(req).Code)

	rec := st.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `kube_ldap_authentications_total{outcome="success"} 1`)
	require.Contains(t, rec.Body.String(), `kube_ldap_authentications_total{outcome="rejected"} 1`)
	require.Contains(t, rec.Body.String(), "kube_ldap_tokens_issued_total 1")
}

func tokenReviewRequest(t *testing.T, apiVersion, kind, tok string) *http.Request {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"apiVersion": apiVersion,
		"kind":       kind,
		"spec":       map[string]any{"token": tok},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestToken(t *testing.T) {
	st := newServerTest(t, &fakeAuthenticator{})

	validToken, err := st.codec.Issue(aliceClaims(), time.Hour)
	require.NoError(t, err)
	expiringToken, err := st.codec.Issue(aliceClaims(), time.Minute)
	require.NoError(t, err)
	st.clock.Step(time.Minute)

	authenticatedStatus := authenticationv1.TokenReviewStatus{
		Authenticated: true,
		User: authenticationv1.UserInfo{
			Username: "alice",
			UID:      "alice-uid",
			Groups:   []string{"admins", "devs"},
			Extra:    map[string]authenticationv1.ExtraValue{"mail": {"alice@example.com"}},
		},
	}

	tests := []struct {
		name           string
		req            func(t *testing.T) *http.Request
		wantStatus     int
		wantAPIVersion string
		wantReview     *authenticationv1.TokenReviewStatus
		wantBody       string
	}{
		{
			name: "valid token",
			req: func(t *testing.T) *http.Request {
				return tokenReviewRequest(t, "authentication.k8s.io/v1", "TokenReview", validToken)
			},
			wantStatus:     http.StatusOK,
			wantAPIVersion: "authentication.k8s.io/v1",
			wantReview:     &authenticatedStatus,
		},
		{
			name: "valid token in a v1beta1 review",
			req: func(t *testing.T) *http.Request {
				return tokenReviewRequest(t, "authentication.k8s.io/v1beta1", "TokenReview", validToken)
			},
			wantStatus:     http.StatusOK,
			wantAPIVersion: "authentication.k8s.io/v1beta1",
			wantReview:     &authenticatedStatus,
		},
		{
			name: "expired token",
			req: func(t *testing.T) *http.Request {
				return tokenReviewRequest(t, "authentication.k8s.io/v1", "TokenReview", expiringToken)
			},
			wantStatus:     http.StatusUnauthorized,
			wantAPIVersion: "authentication.k8s.io/v1",
			wantReview:     &authenticationv1.TokenReviewStatus{},
		},
		{
			name: "garbage token",
			req: func(t *testing.T) *http.Request {
				return tokenReviewRequest(t, "authentication.k8s.io/v1", "TokenReview", "not-a-token")
			},
			wantStatus:     http.StatusUnauthorized,
			wantAPIVersion: "authentication.k8s.io/v1",
			wantReview:     &authenticationv1.TokenReviewStatus{},
		},
		{
			name: "empty token",
			req: func(t *testing.T) *http.Request {
				return tokenReviewRequest(t, "authentication.k8s.io/v1", "TokenReview", "")
			},
			wantStatus:     http.StatusUnauthorized,
			wantAPIVersion: "authentication.k8s.io/v1",
			wantReview:     &authenticationv1.TokenReviewStatus{},
		},
		{
			name: "wrong kind",
			req: func(t *testing.T) *http.Request {
				return tokenReviewRequest(t, "authentication.k8s.io/v1", "SubjectAccessReview", validToken)
			},
			wantStatus: http.StatusBadRequest,
			wantBody:   "Bad Request: invalid TokenReview kind \"SubjectAccessReview\"\n",
		},
		{
			name: "wrong api version",
			req: func(t *testing.T) *http.Request {
				return tokenReviewRequest(t, "authentication.k8s.io/v2", "TokenReview", validToken)
			},
			wantStatus: http.StatusBadRequest,
			wantBody:   "Bad Request: invalid TokenReview apiVersion \"authentication.k8s.io/v2\"\n",
		},
		{
			name: "malformed body",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader("{not json"))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantBody:   "Bad Request: failed to decode TokenReview\n",
		},
		{
			name: "wrong content type",
			req: func(t *testing.T) *http.Request {
				req := tokenReviewRequest(t, "authentication.k8s.io/v1", "TokenReview", validToken)
				req.Header.Set("Content-Type", "text/plain")
				return req
			},
			wantStatus: http.StatusUnsupportedMediaType,
			wantBody:   "Unsupported Media Type: content type must be application/json\n",
		},
		{
			name: "content type with parameters",
			req: func(t *testing.T) *http.Request {
				req := tokenReviewRequest(t, "authentication.k8s.io/v1", "TokenReview", validToken)
				req.Header.Set("Content-Type", "application/json; charset=utf-8")
				return req
			},
			wantStatus:     http.StatusOK,
			wantAPIVersion: "authentication.k8s.io/v1",
			wantReview:     &authenticatedStatus,
		},
		{
			name: "wrong method",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodGet, "/token", nil)
			},
			wantStatus: http.StatusMethodNotAllowed,
			wantBody:   "Method Not Allowed: GET (try POST)\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := st.do(tt.req(t))
			require.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantReview == nil {
				require.Equal(t, tt.wantBody, rec.Body.String())
				return
			}

			require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var review authenticationv1.TokenReview
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &review))
			require.Equal(t, "TokenReview", review.Kind)
			require.Equal(t, tt.wantAPIVersion, review.APIVersion)
			require.Equal(t, *tt.wantReview, review.Status)
		})
	}
}

func TestHealthz(t *testing.T) {
	st := newServerTest(t, &fakeAuthenticator{})

	rec := st.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		path        string
		headers     map[string]string
		wantStatus  int
		wantHeaders map[string]string
		wantCalls   int
	}{
		{
			name:   "preflight for /auth",
			method: http.MethodOptions,
			path:   "/auth",
			headers: map[string]string{
				"Origin":                         "https://dashboard.example.com",
				"Access-Control-Request-Method":  http.MethodGet,
				"Access-Control-Request-Headers": "authorization",
			},
			wantStatus: http.StatusNoContent,
			wantHeaders: map[string]string{
				"Access-Control-Allow-Origin":  "*",
				"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
				"Access-Control-Allow-Headers": "authorization",
				"Vary":                         "Access-Control-Request-Headers",
				"Content-Length":               "0",
			},
		},
		{
			name:   "preflight without requested headers",
			method: http.MethodOptions,
			path:   "/healthz",
			headers: map[string]string{
				"Origin":                        "https://dashboard.example.com",
				"Access-Control-Request-Method": http.MethodGet,
			},
			wantStatus: http.StatusNoContent,
			wantHeaders: map[string]string{
				"Access-Control-Allow-Origin":  "*",
				"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
				"Access-Control-Allow-Headers": "",
			},
		},
		{
			name:   "OPTIONS without a requested method is not a preflight",
			method: http.MethodOptions,
			path:   "/auth",
			headers: map[string]string{
				"Origin": "https://dashboard.example.com",
			},
			wantStatus: http.StatusMethodNotAllowed,
			wantHeaders: map[string]string{
				"Access-Control-Allow-Origin":  "*",
				"Access-Control-Allow-Methods": "",
			},
		},
		{
			name:   "cross origin /auth",
			method: http.MethodGet,
			path:   "/auth",
			headers: map[string]string{
				"Origin": "https://dashboard.example.com",
			},
			wantStatus: http.StatusOK,
			wantHeaders: map[string]string{
				"Access-Control-Allow-Origin": "*",
				"Audit-Id":                    testAuditID,
				"Cache-Control":               "no-cache,no-store,max-age=0,must-revalidate",
			},
			wantCalls: 1,
		},
		{
			name:       "cross origin /healthz",
			method:     http.MethodGet,
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantHeaders: map[string]string{
				"Access-Control-Allow-Origin": "*",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authenticator := &fakeAuthenticator{claims: aliceClaims()}
			st := newServerTest(t, authenticator)

			req := httptest.NewRequest(tt.method, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if tt.path == "/auth" {
				req.SetBasicAuth("alice", "some-password")
			}

			rec := st.do(req)
			require.Equal(t, tt.wantStatus, rec.Code)
			for k, v := range tt.wantHeaders {
				require.Equal(t, v, rec.Header().Get(k), "header %s", k)
			}
			require.Equal(t, tt.wantCalls, authenticator.calls)
		})
	}
}

func TestNoMetricsRouteWithoutMetrics(t *testing.T) {
	s := New(Config{Authenticator: &fakeAuthenticator{}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestLogging(t *testing.T) {
	log := plog.TestGlobalLogger(t)

	authenticator := &fakeAuthenticator{err: directory.ErrInvalidCredentials}
	st := newServerTest(t, authenticator)

	req := httptest.NewRequest(http.MethodGet, "/auth", nil)
	req.SetBasicAuth("alice", "some-password")
	st.do(req)

	logs := log.String()
	require.Contains(t, logs, `"message":"HTTP Request Received"`)
	require.Contains(t, logs, `"message":"HTTP Request Completed"`)
	require.Contains(t, logs, `"auditID":"fake-audit-id"`)
	require.Contains(t, logs, `"responseStatus":401`)
	require.Contains(t, logs, `"message":"authentication rejected"`)
	require.NotContains(t, logs, "some-password")
}

func TestServe(t *testing.T) {
	st := newServerTest(t, &fakeAuthenticator{})

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	served := make(chan error, 1)
	go func() { served <- st.server.Serve(ctx, l, nil) }()

	rsp, err := http.Get("http://" + l.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(rsp.Body)
	require.NoError(t, err)
	require.NoError(t, rsp.Body.Close())
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	require.Equal(t, "ok", string(body))

	cancel()
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		require.FailNow(t, "timed out waiting for the server to shut down")
	}
}

func TestServeTLSWithClientCA(t *testing.T) {
	st := newServerTest(t, &fakeAuthenticator{})

	ca := testutil.NewTestCA(t)
	certPEM, keyPEM := ca.IssueServingCert(t, "127.0.0.1")
	tlsConfig, err := TLSConfig(
		testutil.WriteTempFile(t, "tls.crt", certPEM),
		testutil.WriteTempFile(t, "tls.key", keyPEM),
		testutil.WriteTempFile(t, "client-ca.crt", ca.PEM),
	)
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = st.server.Serve(ctx, l, tlsConfig) }()

	url := "https://" + l.Addr().String() + "/healthz"
	clientWithCert := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{
		MinVersion:   tls.VersionTLS12,
		RootCAs:      ca.Pool(),
		Certificates: []tls.Certificate{ca.IssueClientCert(t, "kube-apiserver")},
	}}}
	rsp, err := clientWithCert.Get(url)
	require.NoError(t, err)
	require.NoError(t, rsp.Body.Close())
	require.Equal(t, http.StatusOK, rsp.StatusCode)

	clientWithoutCert := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    ca.Pool(),
	}}}
	_, err = clientWithoutCert.Get(url) //nolint:bodyclose // there is no body on error
	require.Error(t, err)
}

func TestTLSConfigErrors(t *testing.T) {
	ca := testutil.NewTestCA(t)
	certPEM, keyPEM := ca.IssueServingCert(t, "localhost")
	certFile := testutil.WriteTempFile(t, "tls.crt", certPEM)
	keyFile := testutil.WriteTempFile(t, "tls.key", keyPEM)

	_, err := TLSConfig(certFile, testutil.WriteTempFile(t, "other.key", []byte("not a key")), "")
	require.ErrorContains(t, err, "could not load serving certificate: ")

	_, err = TLSConfig(certFile, keyFile, testutil.WriteTempFile(t, "ca.crt", []byte("not a CA")))
	require.ErrorContains(t, err, "could not parse client CA file ")

	c, err := TLSConfig(certFile, keyFile, "")
	require.NoError(t, err)
	require.Equal(t, tls.NoClientCert, c.ClientAuth)
	require.Nil(t, c.ClientCAs)
	require.Len(t, c.Certificates, 1)
	require.Equal(t, uint16(tls.VersionTLS12), c.MinVersion)
}

func TestClassifiedErrorsDoNotLeak(t *testing.T) {
	secret := errors.New("uid=alice,ou=people,dc=example,dc=com")
	st := newServerTest(t, &fakeAuthenticator{err: fmt.Errorf("%w: %w", directory.ErrLookup, secret)})

	req := httptest.NewRequest(http.MethodGet, "/auth", nil)
	req.SetBasicAuth("alice", "some-password")
	rec := st.do(req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "dc=example")
}
