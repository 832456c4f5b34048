package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// DeeplinkHandler is the interface the callback route feeds.
type DeeplinkHandler interface {
	HandleDeeplink(ctx context.Context, url string) (bool, error)
}

// CallbackHandler receives wallet redirects on the dapp's universal link and hands the
// full URL to the client. Query strings are kept verbatim since some wallets sign them.
type CallbackHandler struct {
	target DeeplinkHandler
	log    *zap.SugaredLogger
}

func NewCallbackHandler(target DeeplinkHandler, log *zap.SugaredLogger) *CallbackHandler {
	return &CallbackHandler{target: target, log: log}
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		u := *r.URL
		if u.Host == "" {
			u.Host = r.Host
		}
		if u.Scheme == "" {
			u.Scheme = "http"
			if r.TLS != nil {
				u.Scheme = "https"
			}
		}
		raw = u.String()
	}

	handled, err := h.target.HandleDeeplink(r.Context(), raw)
	if err != nil {
		h.log.Warnf("handle callback %s: %v", raw, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !handled {
		h.log.Debugf("callback not consumed: %s", raw)
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}
