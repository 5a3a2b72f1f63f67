package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/radumarias/rencfs-desktop/vault"
)

func vaultIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "vaultID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vault id")
		return 0, false
	}
	return id, true
}

// detached keeps the operation running if the caller goes away, so a vault
// is never left half transitioned by a dropped connection.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (a *API) handler(id int64) *vault.Handler {
	return a.registry.GetOrCreate(id)
}

func (a *API) finish(w http.ResponseWriter, r *http.Request, id int64, ok, failed Event, err error, attrs ...slog.Attr) {
	if err != nil {
		a.events.log(r.Context(), failed, id, err, attrs...)
		mapError(w, err)
		return
	}
	a.events.log(r.Context(), ok, id, nil, attrs...)
	writeJSON(w, http.StatusOK, EmptyReply{})
}

// Lock stops the vault's filesystem process.
func (a *API) Lock(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultIDParam(w, r)
	if !ok {
		return
	}
	err := a.handler(id).Lock(detached(r), "")
	a.finish(w, r, id, EventVaultLocked, EventVaultLockFailed, err)
}

// Unlock starts the vault's filesystem process. The reply is sent after the
// grace period, once the process was seen healthy.
func (a *API) Unlock(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultIDParam(w, r)
	if !ok {
		return
	}
	err := a.handler(id).Unlock(detached(r))
	a.finish(w, r, id, EventVaultUnlocked, EventVaultUnlockFailed, err)
}

func decodePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req StringRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	if req.Value == "" {
		writeError(w, http.StatusBadRequest, "value is required")
		return "", false
	}
	return req.Value, true
}

// ChangeMountPoint restarts an unlocked vault on its new mount point. The
// request carries the previous mount point.
func (a *API) ChangeMountPoint(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultIDParam(w, r)
	if !ok {
		return
	}
	old, ok := decodePath(w, r)
	if !ok {
		return
	}
	err := a.handler(id).ChangeMountPoint(detached(r), old)
	a.finish(w, r, id, EventMountPointChanged, EventRelocateFailed, err, slog.String("old_mount_point", old))
}

// ChangeDataDir restarts an unlocked vault on its new data directory. The
// request carries the previous data directory.
func (a *API) ChangeDataDir(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultIDParam(w, r)
	if !ok {
		return
	}
	old, ok := decodePath(w, r)
	if !ok {
		return
	}
	err := a.handler(id).ChangeDataDir(detached(r), old)
	a.finish(w, r, id, EventDataDirChanged, EventRelocateFailed, err, slog.String("old_data_dir", old))
}

// Status reports whether the daemon tracks a process for the vault.
func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultIDParam(w, r)
	if !ok {
		return
	}
	resp := StatusResponse{ID: id}
	if h, ok := a.registry.Lookup(id); ok {
		resp.Unlocked, resp.MountPoint = h.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Hello lets a client check that it reached a daemon.
func (a *API) Hello(w http.ResponseWriter, r *http.Request) {
	var req HelloRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, HelloResponse{Message: fmt.Sprintf("Hello %s!", req.Name)})
}
