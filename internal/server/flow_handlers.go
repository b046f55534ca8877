package server

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/dgellow/oauth-demo/internal/cookie"
	"github.com/dgellow/oauth-demo/internal/flow"
	jsonwriter "github.com/dgellow/oauth-demo/internal/json"
	"github.com/dgellow/oauth-demo/internal/log"
)

// FlowHandlers serves the start page and the redirect callback
type FlowHandlers struct {
	manager *flow.Manager
}

// NewFlowHandlers creates flow handlers backed by manager
func NewFlowHandlers(manager *flow.Manager) *FlowHandlers {
	return &FlowHandlers{manager: manager}
}

// StartHandler begins a new flow and renders the start page
func (h *FlowHandlers) StartHandler(w http.ResponseWriter, r *http.Request) {
	res, err := h.manager.Start(r.Context())
	if err != nil {
		log.LogErrorWithFields("flow", "Failed to start flow", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to start authorization flow")
		return
	}

	cookie.SetFlow(w, res.Binding, h.manager.TTL())
	h.render(w, MainPageData{
		ClientID:        res.ClientID,
		CodeChallenge:   res.CodeChallenge,
		ChallengeMethod: res.ChallengeMethod,
		AccessToken:     res.AccessToken,
		AuthorizeURL:    res.AuthorizeURL,
		PKCE:            h.manager.PKCE(),
	})
}

// CallbackHandler completes the flow the authorization server redirected back
func (h *FlowHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	// The flow cookie is single use whatever happens next
	binding, _ := cookie.GetFlow(r)
	cookie.ClearFlow(w)

	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		description := query.Get("error_description")
		log.LogWarnWithFields("flow", "Authorization server returned an error", map[string]any{
			"error":       providerErr,
			"description": description,
		})
		if description == "" {
			description = "Authorization was not granted"
		}
		jsonwriter.WriteError(w, http.StatusBadRequest, providerErr, description)
		return
	}

	res, err := h.manager.Complete(r.Context(), flow.CallbackParams{
		Code:    query.Get("code"),
		State:   query.Get("state"),
		Binding: binding,
	})
	if err != nil {
		h.writeCompleteError(w, err)
		return
	}

	h.render(w, MainPageData{
		ClientID:    res.ClientID,
		AccessToken: res.AccessToken,
		PKCE:        h.manager.PKCE(),
		Completed:   true,
	})
}

func (h *FlowHandlers) writeCompleteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, flow.ErrMissingParameter):
		jsonwriter.WriteBadRequest(w, "Missing code or state parameter")
	case errors.Is(err, flow.ErrStateMismatch):
		log.LogWarnWithFields("flow", "Rejected callback with mismatched state", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteError(w, http.StatusBadRequest, "invalid_state", "State does not belong to this browser")
	case errors.Is(err, flow.ErrUnknownState):
		log.LogWarnWithFields("flow", "Rejected callback with unknown state", nil)
		jsonwriter.WriteError(w, http.StatusBadRequest, "invalid_state", "Unknown or expired state")
	case errors.Is(err, flow.ErrExchange):
		// Already logged by the manager, with the body only where allowed
		jsonwriter.WriteBadGateway(w, "Token exchange failed")
	default:
		log.LogErrorWithFields("flow", "Failed to complete flow", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to complete authorization flow")
	}
}

func (h *FlowHandlers) render(w http.ResponseWriter, data MainPageData) {
	var buf bytes.Buffer
	if err := mainPageTemplate.Execute(&buf, data); err != nil {
		log.LogErrorWithFields("flow", "Failed to render page", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
