package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/radumarias/rencfs-desktop/storage"
	"github.com/radumarias/rencfs-desktop/vault"
)

// ServiceErrorHeader carries the structured error on failed lifecycle calls.
// Its value is base64-encoded JSON of a ServiceError.
const ServiceErrorHeader = "X-Vault-Service-Error"

// Kind identifies a lifecycle failure across the process boundary.
type Kind string

const (
	KindCannotLockVault        Kind = "cannot_lock_vault"
	KindCannotUnlockVault      Kind = "cannot_unlock_vault"
	KindCannotChangeMountPoint Kind = "cannot_change_mount_point"
	KindCannotChangeDataDir    Kind = "cannot_change_data_dir"
)

var kindSentinels = map[Kind]error{
	KindCannotLockVault:        vault.ErrCannotLockVault,
	KindCannotUnlockVault:      vault.ErrCannotUnlockVault,
	KindCannotChangeMountPoint: vault.ErrCannotChangeMountPoint,
	KindCannotChangeDataDir:    vault.ErrCannotChangeDataDir,
}

// Sentinel returns the vault error matching k, or nil for an unknown kind.
func (k Kind) Sentinel() error {
	return kindSentinels[k]
}

// KindOf classifies err. The relocation kinds are checked first because a
// relocation error never also wraps a lock or unlock sentinel.
func KindOf(err error) (Kind, bool) {
	switch {
	case errors.Is(err, vault.ErrCannotChangeMountPoint):
		return KindCannotChangeMountPoint, true
	case errors.Is(err, vault.ErrCannotChangeDataDir):
		return KindCannotChangeDataDir, true
	case errors.Is(err, vault.ErrCannotLockVault):
		return KindCannotLockVault, true
	case errors.Is(err, vault.ErrCannotUnlockVault):
		return KindCannotUnlockVault, true
	}
	return "", false
}

// ServiceError is a lifecycle failure as seen by a remote caller. It unwraps
// to the matching vault sentinel, so errors.Is works on both sides.
type ServiceError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Kind.Sentinel()
}

// EncodeServiceError renders e as a ServiceErrorHeader value.
func EncodeServiceError(e *ServiceError) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeServiceError parses a ServiceErrorHeader value. It fails on
// malformed input and on kinds it does not know.
func DecodeServiceError(value string) (*ServiceError, error) {
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, err
	}
	var se ServiceError
	if err := json.Unmarshal(data, &se); err != nil {
		return nil, err
	}
	if se.Kind.Sentinel() == nil {
		return nil, errors.New("unknown error kind " + string(se.Kind))
	}
	return &se, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}

// mapError writes err as a reply. Lifecycle failures become 500 with the
// structured header; anything else is reported by message only.
func mapError(w http.ResponseWriter, err error) {
	if kind, ok := KindOf(err); ok {
		if value, encErr := EncodeServiceError(&ServiceError{Kind: kind, Message: err.Error()}); encErr == nil {
			w.Header().Set(ServiceErrorHeader, value)
		}
		writeError(w, http.StatusInternalServerError, "internal error: "+err.Error())
		return
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrNameTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrInvalidVault):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
