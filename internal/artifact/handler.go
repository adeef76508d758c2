package artifact

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/af-corp/janus-gateway/internal/httputil"
)

// Handler serves stored artifacts over HTTP with range support.
type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// Get handles GET /artifacts/{id}. Partial requests (Range: bytes=..) get
// 206 with Content-Range; unsatisfiable ranges get 416; unknown or expired
// ids get 404.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	id := chi.URLParam(r, "id")

	f, art, err := h.store.Open(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, reqID, "Artifact not found or expired")
			return
		}
		httputil.WriteInternalError(w, reqID, "Failed to open artifact")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", ContentType(art))
	w.Header().Set("Content-Disposition", `inline; filename="`+art.DisplayName+`"`)
	w.Header().Set("X-Artifact-ID", art.ID)

	// ServeContent handles Range, Content-Length, 206/416, and
	// If-Modified-Since against the creation time.
	http.ServeContent(w, r, art.DisplayName, art.CreatedAt, f)
}
