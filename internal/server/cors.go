// Copyright 2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
)

const corsAllowedMethods = "GET, POST, OPTIONS"

// withCORS allows browser clients of any origin to call the API.  Preflight requests are answered
// here and never reach the routes.
func withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")

		if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
			handler.ServeHTTP(w, r)
			return
		}

		h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
		// Clients may send specific headers, e.g. Authorization, when asked for them with Access-Control-Request-Headers.
		if requestedHeaders := r.Header.Get("Access-Control-Request-Headers"); requestedHeaders != "" {
			h.Add("Vary", "Access-Control-Request-Headers")
			h.Set("Access-Control-Allow-Headers", requestedHeaders)
		}
		h.Set("Content-Length", "0")
		w.WriteHeader(http.StatusNoContent)
	})
}
