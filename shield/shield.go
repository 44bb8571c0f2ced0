// Package shield is the HTTP middleware stack of the actionwatch API:
// security headers, request body limits, request IDs with a per-request
// logger, and HEAD handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.APIStack(logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"log/slog"
	"net/http"

	"github.com/hazyhaar/actionwatch/idgen"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultMaxBody caps request bodies. Scan requests carry whole documents.
const DefaultMaxBody = 4 << 20

// APIStack returns the middleware stack for the JSON API, ordered
// HeadToGet → SecurityHeaders → MaxBody → RequestID.
func APIStack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(APIHeaders()),
		MaxBody(DefaultMaxBody),
		RequestID(idgen.Prefixed("req_", idgen.Default), logger),
	}
}

// HeadToGet serves HEAD requests through the GET routes; net/http drops the
// response body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
