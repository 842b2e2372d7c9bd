package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/brojonat/zviewer/service/config"
	"github.com/brojonat/zviewer/service/privacy"
	"github.com/brojonat/zviewer/service/session"
)

const maxRequestBodySize = 1 << 16 // a single form field

// scoreView is the JSON projection of a ScoreState shared by all endpoints.
type scoreView struct {
	Address        string                 `json:"address"`
	Score          int                    `json:"score"`
	Source         privacy.Source         `json:"source"`
	FallbackReason privacy.FallbackReason `json:"fallback_reason,omitempty"`
	Verdict        string                 `json:"verdict"`
	Tier           privacy.Tier           `json:"tier"`
	Transactions   []privacy.Transaction  `json:"transactions"`
	Rows           []privacy.Row          `json:"rows"`
	Chart          privacy.ChartSeries    `json:"chart"`
	ShareURL       string                 `json:"share_url"`
}

func newScoreView(state privacy.ScoreState, source privacy.Source, reason privacy.FallbackReason, pageURL string) scoreView {
	txs := state.Transactions
	if txs == nil {
		txs = []privacy.Transaction{}
	}
	return scoreView{
		Address:        state.Address,
		Score:          state.Score,
		Source:         source,
		FallbackReason: reason,
		Verdict:        privacy.Verdict(state.Score),
		Tier:           privacy.PanelTier(state.Score),
		Transactions:   txs,
		Rows:           privacy.TransactionRows(txs),
		Chart:          privacy.Chart(state),
		ShareURL:       privacy.ShareURL(state.Score, pageURL),
	}
}

// scoreResponse is returned by the stateless score endpoints.
type scoreResponse struct {
	scoreView
	Requested string `json:"requested,omitempty"`
	Notice    string `json:"notice,omitempty"`
}

// sessionResponse is the caller's session state.
type sessionResponse struct {
	scoreView
	Loading    bool            `json:"loading"`
	Generation uint64          `json:"generation"`
	Notice     *session.Notice `json:"notice,omitempty"`
}

// handleScore returns a handler that scores an address without touching
// any session.
// GET /api/v1/score/{address}
// GET /api/v1/score?address={address}
func handleScore(acquirer session.Acquirer, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if address == "" {
			address = r.URL.Query().Get("address")
		}
		address = strings.TrimSpace(address)

		result, err := acquirer.Acquire(r.Context(), address)
		if errors.Is(err, privacy.ErrEmptyAddress) {
			writeError(w, privacy.EmptyAddressMessage, http.StatusBadRequest)
			return
		}
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to score address", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, scoreResponse{
			scoreView: newScoreView(result.State, result.Source, result.FallbackReason, pageURL(cfg, r)),
			Requested: address,
			Notice:    result.Notice(),
		}, http.StatusOK)
	})
}

// handleDemoScore returns the demo dataset as a score response.
// GET /api/v1/demo
func handleDemoScore(cfg *config.Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, scoreResponse{
			scoreView: newScoreView(privacy.DemoState(), privacy.SourceDemo, privacy.ReasonNone, pageURL(cfg, r)),
		}, http.StatusOK)
	})
}

// handleSession returns the caller's session state.
// GET /api/v1/session
func handleSession(sessions *session.Registry, cfg *config.Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := sessionStore(w, r, sessions).Snapshot()
		writeJSON(w, sessionResponse{
			scoreView:  newScoreView(state.ScoreState, state.Source, state.FallbackReason, pageURL(cfg, r)),
			Loading:    state.Loading,
			Generation: state.Generation,
			Notice:     state.Notice,
		}, http.StatusOK)
	})
}

// handleLookup starts a lookup for the submitted address and redirects to
// the page, which shows the loading state until the lookup completes.
// POST /lookup
func handleLookup(sessions *session.Registry, runner *lookupRunner, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		if err := r.ParseForm(); err != nil {
			writeError(w, "invalid form", http.StatusBadRequest)
			return
		}

		store := sessionStore(w, r, sessions)
		gen, address, err := store.Submit(r.PostForm.Get("address"))
		if err != nil {
			logger.DebugContext(r.Context(), "lookup rejected", "error", err)
			redirectHome(w, r)
			return
		}

		logger.InfoContext(r.Context(), "lookup started", "address", address, "generation", gen)
		runner.Run(store, gen, address)
		redirectHome(w, r)
	})
}

// handleDemo loads the demo dataset into the caller's session.
// POST /demo
func handleDemo(sessions *session.Registry, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionStore(w, r, sessions).LoadDemo()
		logger.DebugContext(r.Context(), "demo loaded")
		redirectHome(w, r)
	})
}

// handleDismissNotice clears the caller's notice.
// POST /notice/dismiss
func handleDismissNotice(sessions *session.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionStore(w, r, sessions).Dispatch(session.NoticeDismissed{})
		redirectHome(w, r)
	})
}

// handleShare redirects to the tweet intent for the caller's current score.
// GET /share
func handleShare(sessions *session.Registry, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := sessionStore(w, r, sessions).Snapshot()
		target := privacy.ShareURL(state.Score, pageURL(cfg, r))
		logger.DebugContext(r.Context(), "share redirect", "score", state.Score)
		http.Redirect(w, r, target, http.StatusSeeOther)
	})
}

// sessionStore returns the caller's store, issuing a session cookie when a
// new session had to be created.
func sessionStore(w http.ResponseWriter, r *http.Request, sessions *session.Registry) *session.Store {
	var id string
	if c, err := r.Cookie(session.CookieName); err == nil {
		id = c.Value
	}

	id, store, created := sessions.Get(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     session.CookieName,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Secure:   r.TLS != nil,
		})
	}
	return store
}

// pageURL is the URL put into share text: PUBLIC_URL when configured,
// otherwise the page root as seen by the client.
func pageURL(cfg *config.Config, r *http.Request) string {
	if cfg != nil && cfg.PublicURL != "" {
		return cfg.PublicURL
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return fmt.Sprintf("%s://%s/", scheme, r.Host)
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
