// Package adminhttp serves a read-only HTTP surface over the tag
// server's live state: tag listing/lookup, registered compound types,
// and process health. It never mutates the tag store - all writes
// happen over the binary tag protocol in internal/server.
package adminhttp

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"opendax/internal/store"
	"opendax/internal/types"
	"opendax/logger"
)

// Handler exposes the admin routes. It holds read-only references into
// the running tag server; it never locks anything the protocol
// listener also locks for longer than a single store/registry call.
type Handler struct {
	store     *store.Store
	registry  *types.Registry
	startTime time.Time
}

// NewHandler builds an admin Handler over a running store and registry.
func NewHandler(st *store.Store, reg *types.Registry) *Handler {
	return &Handler{store: st, registry: reg, startTime: time.Now()}
}

// Router builds the gorilla/mux router serving every admin route plus
// the swagger UI, grounded on the teacher's `router := mux.NewRouter()`
// + `/api/v1` subrouter split in main.go.
func (h *Handler) Router() http.Handler {
	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", h.Health).Methods("GET")
	api.HandleFunc("/tags", h.ListTags).Methods("GET")
	api.HandleFunc("/tags/{name}", h.GetTag).Methods("GET")
	api.HandleFunc("/types/{id}", h.GetType).Methods("GET")
	api.HandleFunc("/debug/traces", h.ActiveTraces).Methods("GET")

	router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)
	return router
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("adminhttp: encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}

// healthResponse mirrors the shape of the teacher's HealthResponse,
// trimmed to what a tag server actually reports (no entity/user counts).
type healthResponse struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Uptime     string    `json:"uptime"`
	TagCount   int       `json:"tag_count"`
	GoRoutines int       `json:"goroutines"`
	LogLevel   string    `json:"log_level"`
}

// Health reports process liveness and the current tag count.
// @Summary Health check
// @Description Get server health status and tag count
// @Tags health
// @Produce json
// @Success 200 {object} healthResponse
// @Router /api/v1/health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{
		Status:     "healthy",
		Timestamp:  time.Now(),
		Uptime:     time.Since(h.startTime).String(),
		TagCount:   len(h.store.List()),
		GoRoutines: runtime.NumGoroutine(),
		LogLevel:   logger.GetLogLevel(),
	})
}

type tagResponse struct {
	Index uint32 `json:"index"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Count uint   `json:"count"`
	Size  uint   `json:"size_bytes"`
}

func toTagResponse(meta store.TagMeta, reg *types.Registry) tagResponse {
	return tagResponse{
		Index: meta.Index,
		Name:  meta.Name,
		Type:  reg.NameOf(meta.Type),
		Count: meta.Count,
		Size:  meta.Size,
	}
}

// ListTags lists every live tag in the store.
// @Summary List tags
// @Description List every registered tag and its metadata
// @Tags tags
// @Produce json
// @Success 200 {array} tagResponse
// @Router /api/v1/tags [get]
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	all := h.store.List()
	out := make([]tagResponse, 0, len(all))
	for _, meta := range all {
		out = append(out, toTagResponse(meta, h.registry))
	}
	respondJSON(w, http.StatusOK, out)
}

// GetTag looks up one tag by name.
// @Summary Get tag
// @Description Get a single tag's metadata by name
// @Tags tags
// @Produce json
// @Param name path string true "tag name"
// @Success 200 {object} tagResponse
// @Failure 404 {object} map[string]string
// @Router /api/v1/tags/{name} [get]
func (h *Handler) GetTag(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	meta, err := h.store.ByName(name)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, toTagResponse(meta, h.registry))
}

type typeResponse struct {
	Name    string   `json:"name"`
	SizeBits uint    `json:"size_bits"`
	Members []string `json:"members,omitempty"`
}

// GetType reports a registered type's layout, primitive or compound.
// @Summary Get type
// @Description Get a registered type's name, size, and (if compound) members
// @Tags types
// @Produce json
// @Param id path int true "type id"
// @Success 200 {object} typeResponse
// @Router /api/v1/types/{id} [get]
func (h *Handler) GetType(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	raw, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		respondError(w, http.StatusBadRequest, "type id must be numeric")
		return
	}
	id := types.ID(raw)

	resp := typeResponse{Name: h.registry.NameOf(id), SizeBits: h.registry.SizeBits(id)}
	if types.IsCustom(id) {
		h.registry.IterMembers(id, func(m types.Member, bitOffset uint) {
			resp.Members = append(resp.Members, m.Name)
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

// ActiveTraces reports in-flight request traces when span tracing is
// enabled (OPENDAX_TRACE_SPANS). Empty, not an error, when tracing is
// off or nothing is currently in flight.
// @Summary Active traces
// @Description List in-flight request traces when span tracing is enabled
// @Tags debug
// @Produce json
// @Success 200 {array} string
// @Router /api/v1/debug/traces [get]
func (h *Handler) ActiveTraces(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, logger.GetActiveTraces())
}
