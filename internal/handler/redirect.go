package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/marcel-gle/gb-qr-tracker/internal/analytics"
	"github.com/marcel-gle/gb-qr-tracker/internal/identifier"
	"github.com/marcel-gle/gb-qr-tracker/internal/metrics"
	"github.com/marcel-gle/gb-qr-tracker/internal/middleware"
	"github.com/marcel-gle/gb-qr-tracker/internal/model"
	"github.com/marcel-gle/gb-qr-tracker/internal/service"
	"github.com/marcel-gle/gb-qr-tracker/internal/signature"
)

// OriginalHostHeader carries the host the edge relay was reached on.
const OriginalHostHeader = "X-Original-Host"

// Client-facing messages.
const (
	msgNotFound           = "Link not found."
	msgInactive           = "Link is inactive."
	msgInvalidDestination = "Destination is invalid or missing."
	msgUnauthorized       = "Unauthorized."
	msgInternal           = "An internal error occurred."
)

// Resolver classifies identifiers.
type Resolver interface {
	Resolve(ctx context.Context, id string) (service.Resolution, error)
}

// Dispatcher hands captures to the analytics pipeline without blocking.
type Dispatcher interface {
	Dispatch(c analytics.Capture) bool
}

// RedirectHandler handles redirect requests.
type RedirectHandler struct {
	resolver   Resolver
	verifier   *signature.Verifier
	dispatcher Dispatcher
	metrics    metrics.Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewRedirectHandler creates a new RedirectHandler. A nil dispatcher
// disables analytics.
func NewRedirectHandler(resolver Resolver, verifier *signature.Verifier, dispatcher Dispatcher, recorder metrics.Recorder, logger *slog.Logger) *RedirectHandler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedirectHandler{
		resolver:   resolver,
		verifier:   verifier,
		dispatcher: dispatcher,
		metrics:    recorder,
		logger:     logger.With("component", "redirect"),
		now:        time.Now,
	}
}

// Redirect handles GET /{identifier} and GET /?id={identifier}.
func (h *RedirectHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	raw := rawIdentifier(r)

	trust, err := signature.FromHeaders(r.Header)
	if err == nil {
		err = h.verifier.Verify(trust, identifier.Decode(raw))
	}
	if err != nil {
		h.metrics.IncRedirect(metrics.OutcomeUnauthorized)
		h.logger.Warn("redirect_unauthorized",
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", msgUnauthorized)
		return
	}

	id, err := identifier.Validate(raw)
	if err != nil {
		h.metrics.IncRedirect(metrics.OutcomeBadRequest)
		writeError(w, http.StatusBadRequest, "INVALID_ID", err.Error())
		return
	}

	res, err := h.resolver.Resolve(r.Context(), id)
	if err != nil {
		h.metrics.IncRedirect(metrics.OutcomeError)
		h.logger.Error("redirect_error",
			"link_id", id,
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", msgInternal)
		return
	}

	switch res.Status {
	case service.StatusMissing:
		h.metrics.IncRedirect(metrics.OutcomeNotFound)
		h.logger.Info("redirect_not_found", "link_id", id)
		writeError(w, http.StatusNotFound, "LINK_NOT_FOUND", msgNotFound)
		return
	case service.StatusInactive:
		h.metrics.IncRedirect(metrics.OutcomeInactive)
		h.logger.Info("redirect_inactive", "link_id", id)
		writeError(w, http.StatusGone, "LINK_INACTIVE", msgInactive)
		return
	case service.StatusDestinationInvalid:
		h.metrics.IncRedirect(metrics.OutcomeInvalidDestination)
		h.logger.Error("redirect_invalid_destination", "link_id", id)
		writeError(w, http.StatusInternalServerError, "INVALID_DESTINATION", msgInvalidDestination)
		return
	}

	h.dispatch(r, res.Link, trust, start)

	h.metrics.IncRedirect(metrics.OutcomeRedirect)
	h.logger.Info("redirect_success",
		"link_id", id,
		"origin", originOf(trust),
		"duration_ms", float64(h.now().Sub(start).Microseconds())/1000,
	)

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Referrer-Policy", "no-referrer")
	http.Redirect(w, r, res.Link.Destination, http.StatusFound)
}

func (h *RedirectHandler) dispatch(r *http.Request, link *model.Link, trust signature.Trust, at time.Time) {
	if h.dispatcher == nil {
		return
	}
	h.dispatcher.Dispatch(analytics.Capture{
		Link:         *link,
		UserAgent:    r.UserAgent(),
		Referer:      r.Referer(),
		ClientIP:     middleware.ClientIP(r),
		Origin:       originOf(trust),
		OriginalHost: r.Header.Get(OriginalHostHeader),
		At:           at,
	})
}

func originOf(trust signature.Trust) model.Origin {
	if trust.IsSigned() {
		return model.OriginEdge
	}
	return model.OriginDirect
}

// rawIdentifier returns the identifier exactly as sent, before any
// decoding: the id query parameter when present, else the path segment.
func rawIdentifier(r *http.Request) string {
	if raw, ok := rawQueryParam(r.URL.RawQuery, "id"); ok {
		return strings.TrimSpace(raw)
	}
	return strings.TrimPrefix(r.URL.EscapedPath(), "/")
}

func rawQueryParam(query, key string) (string, bool) {
	for query != "" {
		var pair string
		pair, query, _ = strings.Cut(query, "&")
		k, v, _ := strings.Cut(pair, "=")
		if k == key {
			return v, true
		}
	}
	return "", false
}
