package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/filecoin-project/go-jsonrpc/auth"
	"go.opencensus.io/trace"

	"github.com/ipfs-force-community/sophon-connect/api"
)

// AuthHandler puts the caller's permissions into the request context. Loopback callers
// without a token get every permission; the wallet callback route never reaches it.
type AuthHandler struct {
	Verify func(ctx context.Context, token string) ([]auth.Permission, error)
	Next   http.HandlerFunc
}

func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "AuthHandler.ServeHTTP",
		func(so *trace.StartOptions) { so.Sampler = trace.AlwaysSample() })
	defer span.End()

	token := r.Header.Get("Authorization")
	if token == "" {
		token = r.FormValue("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	span.AddAttributes(trace.StringAttribute("X-Real-IP", clientIP(r)))

	if len(token) == 0 {
		if !isLoopback(r.RemoteAddr) {
			message := "JWT verification failed, empty token"
			span.SetStatus(trace.Status{Code: trace.StatusCodeUnauthenticated, Message: message})
			log.Warn(message)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ctx = auth.WithPerm(ctx, api.AllPermissions)
		h.Next(w, r.WithContext(ctx))
		return
	}

	if !strings.HasPrefix(token, "Bearer ") {
		log.Warn("missing Bearer prefix in auth header")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	token = strings.TrimPrefix(token, "Bearer ")

	perms, err := h.Verify(ctx, token)
	if err != nil {
		message := fmt.Sprintf("JWT Verification failed (originating from %s): %s", r.RemoteAddr, err)
		span.SetStatus(trace.Status{Code: trace.StatusCodeUnauthenticated, Message: message})
		log.Warn(message)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	ctx = auth.WithPerm(ctx, perms)
	h.Next(w, r.WithContext(ctx))
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func clientIP(r *http.Request) string {
	if realIP := r.Header.Get("X-Real-IP"); len(realIP) != 0 {
		return realIP
	}
	return r.RemoteAddr
}
