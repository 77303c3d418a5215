package api

import (
	"io"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
)

// registerConnectionRoutes wires the IS-05 Connection API for the single
// receiver. List endpoints return child paths with trailing slashes to
// signal URL continuation, per the connection API schemas.
func (s *Server) registerConnectionRoutes(r chi.Router) {
	r.Route("/x-nmos/connection/{version}", func(r chi.Router) {
		r.Use(s.requireConnectionVersion)

		r.Get("/", listHandler("bulk/", "single/"))

		r.Route("/bulk", func(r chi.Router) {
			r.Get("/", listHandler("senders/", "receivers/"))
			for _, collection := range []string{"/senders", "/receivers"} {
				r.Get(collection, s.handleBulkGet)
				r.Options(collection, s.handleBulkOptions)
				r.Post(collection, s.handleBulkPost)
			}
		})

		r.Route("/single", func(r chi.Router) {
			r.Get("/", listHandler("senders/", "receivers/"))
			r.Get("/senders", listHandler())
			r.Get("/receivers", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, []string{s.identity.ReceiverID + "/"})
			})

			r.Route("/receivers/{receiverID}", func(r chi.Router) {
				r.Use(s.requireReceiver)
				r.Get("/", listHandler("constraints/", "staged/", "active/", "transporttype/"))
				r.Get("/constraints", s.handleConstraints)
				r.Get("/staged", s.handleGetStaged)
				r.Patch("/staged", s.handlePatchStaged)
				r.Get("/active", s.handleGetActive)
				r.Post("/staged/activation", s.handleActivate)
				r.Get("/transporttype", s.handleTransportType)
			})
		})
	})
}

func (s *Server) requireConnectionVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !slices.Contains(s.cfg.Registry.Versions, chi.URLParam(r, "version")) {
			writeError(w, http.StatusNotFound, "unsupported IS-05 version", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireReceiver rejects any receiver ID other than the node's single
// persisted receiver UUID.
func (s *Server) requireReceiver(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "receiverID") != s.identity.ReceiverID {
			writeError(w, http.StatusNotFound, "unknown receiver", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func listHandler(entries ...string) http.HandlerFunc {
	if entries == nil {
		entries = []string{}
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, entries)
	}
}

func (s *Server) handleBulkGet(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "GET not permitted on bulk resources", "")
}

func (s *Server) handleBulkOptions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleBulkPost(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotImplemented, "bulk control is not implemented", "")
}

func (s *Server) handleConstraints(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sample_rates":      []int{48000},
		"channels":          []int{1},
		"encodings":         []string{"L24"},
		"destination_modes": []string{"multicast", "unicast"},
	})
}

func (s *Server) handleTransportType(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"type": "urn:x-nmos:transport:rtp.mcast"})
}

func (s *Server) handleGetStaged(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Snapshot().Staged)
}

func (s *Server) handleGetActive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Snapshot().Active)
}

func (s *Server) handlePatchStaged(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPatchBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body", err.Error())
		return
	}
	state, err := s.controller.UpdateStaged(body)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state.Staged)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	state, err := s.controller.Activate(r.Context())
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"state": state})
}
