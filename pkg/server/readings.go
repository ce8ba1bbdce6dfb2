package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/raterudder/hanbridge/pkg/log"
	"github.com/raterudder/hanbridge/pkg/sensor"
	"github.com/raterudder/hanbridge/pkg/types"
)

type readingResponse struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Kind        string      `json:"kind"`
	Unit        string      `json:"unit,omitempty"`
	DeviceClass string      `json:"deviceClass,omitempty"`
	StateClass  string      `json:"stateClass,omitempty"`
	Diagnostic  bool        `json:"diagnostic,omitempty"`
	Value       types.Value `json:"value"`
}

func (s *Server) reading(r sensor.Reader) readingResponse {
	return readingResponse{
		ID:          r.ID,
		Name:        r.Name,
		Kind:        r.Kind.String(),
		Unit:        r.Unit,
		DeviceClass: r.DeviceClass,
		StateClass:  r.StateClass,
		Diagnostic:  r.Diagnostic,
		Value:       r.Read(s.store),
	}
}

func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	readers := s.registered()
	res := make([]readingResponse, 0, len(readers))
	for _, rd := range readers {
		res = append(res, s.reading(rd))
	}
	writeJSON(w, res)
}

func (s *Server) handleGetReading(w http.ResponseWriter, r *http.Request) {
	rd, ok := sensor.Find(s.registered(), r.PathValue("id"))
	if !ok {
		writeJSONError(w, "unknown reading", http.StatusNotFound)
		return
	}
	writeJSON(w, s.reading(rd))
}

type deviceResponse struct {
	Host         string             `json:"host"`
	Identity     types.Identity     `json:"identity"`
	Availability types.Availability `json:"availability"`
	FetchedAt    string             `json:"fetchedAt,omitempty"`
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	res := deviceResponse{
		Host:         s.host,
		Identity:     s.store.Identity(),
		Availability: s.store.Availability(),
	}
	if snap := s.store.Snapshot(); !snap.FetchedAt.IsZero() {
		res.FetchedAt = snap.FetchedAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, res)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.poller.Refresh(ctx); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "refresh failed", slog.Any("error", err))
		writeJSONError(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.handleDevice(w, r)
}
