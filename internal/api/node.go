package api

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/aes67-nmos/internal/config"
	"github.com/ManuGH/aes67-nmos/internal/nmos"
)

// registerNodeRoutes wires the read-only IS-04 Node API. Controllers query
// this surface directly after finding the node through the registry.
func (s *Server) registerNodeRoutes(r chi.Router) {
	r.Route("/x-nmos/node/{version}", func(r chi.Router) {
		r.Use(s.requireNodeVersion)

		r.Get("/", listHandler("self/", "sources/", "flows/", "devices/", "senders/", "receivers/"))
		r.Get("/self", s.handleSelf)

		r.Get("/devices", s.handleListDevices)
		r.Get("/devices/{deviceID}", s.handleGetDevice)

		// This node holds no sources, flows or senders.
		for _, collection := range []string{"/sources", "/flows", "/senders"} {
			r.Get(collection, listHandler())
			r.Get(collection+"/{id}", s.handleEmptyCollectionItem)
		}

		r.Get("/receivers", s.handleListReceivers)
		r.Route("/receivers/{receiverID}", func(r chi.Router) {
			r.Use(s.requireReceiver)
			r.Get("/", s.handleGetReceiver)
			// The target endpoint predates IS-05 and must exist even
			// though connection management happens via sr-ctrl.
			r.Options("/target", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{})
			})
			r.Put("/target", func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusNotImplemented, "receiver target subscription is not implemented", "")
			})
		})
	})
}

func (s *Server) requireNodeVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !slices.Contains(config.SupportedNodeVersions, chi.URLParam(r, "version")) {
			writeError(w, http.StatusNotFound, "unsupported IS-04 version", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSelf(w http.ResponseWriter, r *http.Request) {
	// Daemon reachability is advisory; an unreachable daemon yields an
	// unlocked clock rather than an error.
	status, err := s.ptp.PTPStatus(r.Context())
	if err != nil {
		status = nil
	}
	writeJSON(w, http.StatusOK, s.builder().Node(nmos.ClockFromPTP(status)))
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, []nmos.Device{s.builder().Device()})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "deviceID") != s.identity.DeviceID {
		writeError(w, http.StatusNotFound, "device not found", "")
		return
	}
	writeJSON(w, http.StatusOK, s.builder().Device())
}

func (s *Server) handleEmptyCollectionItem(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "resource not found", "")
}

func (s *Server) handleListReceivers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, []nmos.Receiver{s.builder().Receiver(s.controller.SinkActive())})
}

func (s *Server) handleGetReceiver(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.builder().Receiver(s.controller.SinkActive()))
}
