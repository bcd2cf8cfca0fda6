package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"mystery-hunt-client/internal/app"
	"mystery-hunt-client/internal/domain"
	"mystery-hunt-client/internal/logger"
)

// AssetHandler serves cached blobs by handle.
type AssetHandler struct {
	assets *app.AssetCache
	log    logrus.FieldLogger
}

func NewAssetHandler(assets *app.AssetCache, log logrus.FieldLogger) *AssetHandler {
	return &AssetHandler{assets: assets, log: logger.OrDiscard(log)}
}

// Register mounts GET and DELETE under prefix, e.g. "/assets/".
func (h *AssetHandler) Register(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("GET "+prefix+"{handle}", h.Get)
	mux.HandleFunc("DELETE "+prefix+"{handle}", h.Release)
}

func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	blob, err := h.assets.Open(r.PathValue("handle"))
	if errors.Is(err, domain.ErrHandleNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.WithError(err).Warn("asset open failed")
		http.Error(w, "asset unavailable", http.StatusInternalServerError)
		return
	}
	ct := blob.ContentType
	if ct == "" {
		ct = http.DetectContentType(blob.Data)
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.Header().Set("Cache-Control", "private, no-store")
	_, _ = w.Write(blob.Data)
}

func (h *AssetHandler) Release(w http.ResponseWriter, r *http.Request) {
	if !h.assets.Release(r.PathValue("handle")) {
		http.Error(w, domain.ErrHandleNotFound.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
