package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"github.com/harrisonrobin/clarity/pkg/auth"
	"github.com/harrisonrobin/clarity/pkg/logger"
	"github.com/harrisonrobin/clarity/pkg/store"
)

type googleHandler struct {
	oauth  *oauth2.Config
	issuer *auth.Issuer
	owners CredentialStore
}

// Connect redirects the owner to the Google consent screen.
func (h *googleHandler) Connect(c echo.Context) error {
	if h.oauth == nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody{Error: "Google Calendar is not configured"})
	}
	state, err := h.issuer.IssueState(ownerID(c))
	if err != nil {
		return internalError(c, err)
	}
	return c.Redirect(http.StatusFound, auth.ConsentURL(h.oauth, state))
}

// Callback stores the refresh token for the owner named by state.
func (h *googleHandler) Callback(c echo.Context) error {
	if h.oauth == nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody{Error: "Google Calendar is not configured"})
	}
	ctx := c.Request().Context()
	log := logger.FromContext(ctx).With("component", "google_callback")

	owner, err := h.issuer.ParseState(c.QueryParam("state"))
	if err != nil {
		log.Warn("Rejected callback state", "error", err)
		return c.String(http.StatusBadRequest, "User identifier is missing from the callback.")
	}
	if e := c.QueryParam("error"); e != "" {
		log.Warn("Consent was not granted", "owner_id", owner, "reason", e)
		return c.String(http.StatusBadRequest, "Google Calendar access was not granted.")
	}

	refresh, err := auth.ExchangeCode(ctx, h.oauth, c.QueryParam("code"))
	if err != nil {
		log.Error("Code exchange failed", "owner_id", owner, "error", err)
		return c.String(http.StatusInternalServerError, "An internal error occurred.")
	}
	if err := h.owners.SetCalendarToken(ctx, owner, refresh); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Error("Callback for unknown owner", "owner_id", owner)
			return c.String(http.StatusNotFound, "Owner not found.")
		}
		log.Error("Failed to store calendar credential", "owner_id", owner, "error", err)
		return c.String(http.StatusInternalServerError, "An internal error occurred.")
	}
	log.Info("Stored calendar credential", "owner_id", owner)
	return c.String(http.StatusOK, "Google Calendar successfully connected! You can now close this tab.")
}
