package handler

import (
	"net/http"
	"time"
)

// handleStatus handles GET /admin/v1/status.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ver, commit := version()
	resp := StatusResponse{
		Version:       ver,
		Commit:        commit,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}
	if h.store != nil {
		resp.Keys = h.store.KeyCount()
		resp.AppendOnly = h.store.AppendOnly()
		resp.AOFOffset = h.store.AOFOffset()
		resp.LastSnapshot = h.store.LastSnapshot()
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

// handleSnapshot handles POST /admin/v1/snapshot.
func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, CodeSnapshotDisabled, "persistence is not configured")
		return
	}

	info, err := h.store.Save(r.Context())
	if err != nil {
		h.logger.Error("snapshot via admin api failed",
			"request_id", getRequestID(r),
			"error", err)
		h.writeError(w, r, http.StatusInternalServerError, CodeSnapshotFailed, err.Error())
		return
	}
	h.logger.Info("snapshot via admin api",
		"request_id", getRequestID(r),
		"keys", info.Keys,
		"aof_offset", info.AOFOffset)
	h.writeJSON(w, r, http.StatusOK, info)
}
