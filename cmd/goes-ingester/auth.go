package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	// AuthorizationHeader is the header key to get the authorization token
	AuthorizationHeader = "authorization"
	tokenPrefix         = "Bearer "
)

// bearerAuthenticate checks the bearer token of the requests, except /healthz. No check if token is empty.
func bearerAuthenticate(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.URL.Path != "/healthz" && r.Method != http.MethodOptions {
			if err := authenticate(token, r.Header.Get(AuthorizationHeader)); err != nil {
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(err.Error())
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate returns nil if the authorization header holds the expected token
func authenticate(expected, header string) error {
	switch {
	case header == "":
		return fmt.Errorf("token not found")
	case !strings.HasPrefix(header, tokenPrefix):
		return fmt.Errorf(`missing "` + tokenPrefix + `" prefix`)
	case strings.TrimPrefix(header, tokenPrefix) != expected:
		return fmt.Errorf("invalid token")
	}
	return nil
}
