// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	authenticationv1 "k8s.io/api/authentication/v1"
	authenticationv1beta1 "k8s.io/api/authentication/v1beta1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"go.pinniped.dev/kube-ldap/internal/directory"
	"go.pinniped.dev/kube-ldap/internal/httputil/httperr"
	"go.pinniped.dev/kube-ldap/internal/metrics"
	"go.pinniped.dev/kube-ldap/internal/plog"
	"go.pinniped.dev/kube-ldap/internal/token"
)

const (
	// basicAuthRealm is the realm of the challenge sent with rejected /auth requests.
	basicAuthRealm = "kubernetes"

	tokenReviewKind = "TokenReview"

	maxTokenReviewBytes = 1 << 20
)

// authHandler exchanges HTTP basic credentials for a token.  The response never says why
// credentials were rejected.
func (s *Server) authHandler() http.Handler {
	return httperr.HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		if r.Method != http.MethodGet {
			return httperr.Newf(http.StatusMethodNotAllowed, "%s (try GET)", r.Method)
		}

		username, password, ok := r.BasicAuth()
		if !ok {
			return httperr.Unauthorized(basicAuthRealm, "missing basic authorization", nil)
		}

		start := s.clock.Now()
		userClaims, err := s.authenticator.AuthenticateUser(r.Context(), username, password)
		outcome := directory.Classify(err)
		s.metrics.RecordAuthentication(outcome, s.clock.Since(start))

		switch outcome {
		case directory.OutcomeSuccess:
		case directory.OutcomeRejected:
			plog.Info("authentication rejected", "username", username, "reason", err.Error())
			return httperr.Unauthorized(basicAuthRealm, "invalid credentials", err)
		default:
			plog.Error("authentication failed", err, "username", username)
			return httperr.Wrap(http.StatusInternalServerError, "authentication failed", err)
		}

		issued, err := s.codec.Issue(userClaims, s.tokenLifetime)
		if err != nil {
			return httperr.Wrap(http.StatusInternalServerError, "could not issue token", err)
		}
		s.metrics.RecordTokenIssued()

		plog.Info("issued token",
			"username", userClaims.Subject,
			"uid", userClaims.UID,
			"groups", userClaims.Groups,
			"expiresAt", userClaims.ExpiresAt)

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(issued))
		return nil
	})
}

// tokenHandler is a webhook token authenticator.  It answers TokenReviews of either the v1 or the
// v1beta1 API version in kind.
func (s *Server) tokenHandler() http.Handler {
	return httperr.HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		if r.Method != http.MethodPost {
			return httperr.Newf(http.StatusMethodNotAllowed, "%s (try POST)", r.Method)
		}
		if !headerContains(r, "Content-Type", "application/json") {
			return httperr.New(http.StatusUnsupportedMediaType, "content type must be application/json")
		}

		var review authenticationv1.TokenReview
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTokenReviewBytes)).Decode(&review); err != nil {
			return httperr.Wrap(http.StatusBadRequest, "failed to decode TokenReview", err)
		}

		switch review.APIVersion {
		case authenticationv1.SchemeGroupVersion.String(), authenticationv1beta1.SchemeGroupVersion.String():
		default:
			return httperr.Newf(http.StatusBadRequest, "invalid TokenReview apiVersion %q", review.APIVersion)
		}
		if review.Kind != tokenReviewKind {
			return httperr.Newf(http.StatusBadRequest, "invalid TokenReview kind %q", review.Kind)
		}

		userClaims, err := s.codec.Verify(review.Spec.Token)
		if err != nil {
			if errors.Is(err, token.ErrExpired) {
				s.metrics.RecordTokenVerification(metrics.VerificationExpired)
			} else {
				s.metrics.RecordTokenVerification(metrics.VerificationInvalid)
			}
			plog.Debug("token verification failed", "reason", err.Error())
			return respondWithTokenReview(w, review.APIVersion, http.StatusUnauthorized, authenticationv1.TokenReviewStatus{
				Authenticated: false,
			})
		}
		s.metrics.RecordTokenVerification(metrics.VerificationValid)

		info := userClaims.UserInfo()
		var extra map[string]authenticationv1.ExtraValue
		if len(info.GetExtra()) > 0 {
			extra = make(map[string]authenticationv1.ExtraValue, len(info.GetExtra()))
			for k, v := range info.GetExtra() {
				extra[k] = v
			}
		}

		plog.Debug("token verified", "username", info.GetName(), "groups", info.GetGroups())
		return respondWithTokenReview(w, review.APIVersion, http.StatusOK, authenticationv1.TokenReviewStatus{
			Authenticated: true,
			User: authenticationv1.UserInfo{
				Username: info.GetName(),
				UID:      info.GetUID(),
				Groups:   info.GetGroups(),
				Extra:    extra,
			},
		})
	})
}

func respondWithTokenReview(w http.ResponseWriter, apiVersion string, code int, status authenticationv1.TokenReviewStatus) error {
	body, err := json.Marshal(authenticationv1.TokenReview{
		TypeMeta: metav1.TypeMeta{
			Kind:       tokenReviewKind,
			APIVersion: apiVersion,
		},
		Status: status,
	})
	if err != nil {
		return httperr.Wrap(http.StatusInternalServerError, "could not encode response", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
	return nil
}

func headerContains(req *http.Request, headerName, s string) bool {
	headerValues := req.Header.Values(headerName)
	for i := range headerValues {
		mimeTypes := strings.Split(headerValues[i], ",")
		for _, mimeType := range mimeTypes {
			mediaType, _, _ := mime.ParseMediaType(mimeType)
			if mediaType == s {
				return true
			}
		}
	}
	return false
}
