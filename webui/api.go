package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"pixelbatch/archive"
	"pixelbatch/core"
	"pixelbatch/db"
	"pixelbatch/generation"
	"pixelbatch/logging"
)

const maxBodyBytes = 1 << 20

// RunStarter starts background runs. *generation.Service satisfies it.
type RunStarter interface {
	Start(ctx context.Context, cmd generation.GenerateCommand) (string, error)
	Running() bool
}

// KeyStore is the credential pool with single-key edits.
// *db.CredentialRepository satisfies it.
type KeyStore interface {
	core.CredentialStore
	AddCredential(ctx context.Context, key string) (bool, error)
	RemoveCredential(ctx context.Context, index int) error
}

// Pinger reports storage health. *db.Database satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// API holds the JSON handlers.
type API struct {
	runs   RunStarter
	board  *generation.StatusBoard
	images core.ImageStore
	keys   KeyStore
	hub    *Broadcaster
	health Pinger
	log    *logging.Logger
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Status  generation.Status `json:"status"`
	Running bool              `json:"running"`
}

// KeyView is a masked credential.
type KeyView struct {
	Index  int    `json:"index"`
	Masked string `json:"masked"`
}

type idsRequest struct {
	IDs []int64 `json:"ids"`
}

type keyRequest struct {
	Key string `json:"key"`
}

type keysRequest struct {
	Keys []string `json:"keys"`
}

// Messages for empty selections.
const (
	MessageNothingToDelete   = "No images selected to delete."
	MessageNothingToDownload = "No images selected to download."
)

// RegisterRoutes mounts the API on r.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", api.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/runs", api.handleStartRun)
		r.Get("/status", api.handleStatus)

		r.Route("/images", func(r chi.Router) {
			r.Get("/", api.handleListImages)
			r.Delete("/{id}", api.handleDeleteImage)
			r.Post("/delete", api.handleDeleteImages)
			r.Post("/download", api.handleDownload)
		})

		r.Route("/keys", func(r chi.Router) {
			r.Get("/", api.handleListKeys)
			r.Post("/", api.handleAddKey)
			r.Put("/", api.handleReplaceKeys)
			r.Delete("/{index}", api.handleRemoveKey)
		})
	})
}

func (api *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if api.health != nil {
		if err := api.health.Ping(r.Context()); err != nil {
			api.log.Error("health check failed", zap.Error(err))
			api.writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
	}
	api.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (api *API) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var cmd generation.GenerateCommand
	if !api.decode(w, r, &cmd) {
		return
	}

	// The run outlives the request.
	runID, err := api.runs.Start(context.WithoutCancel(r.Context()), cmd)
	switch {
	case err == nil:
		api.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
	case errors.Is(err, generation.ErrRunInProgress):
		api.writeError(w, http.StatusConflict, "A generation run is already in progress.")
	case errors.Is(err, generation.ErrNoCredentials),
		errors.Is(err, generation.ErrNoValidPrompts),
		errors.Is(err, generation.ErrInvalidAspect),
		errors.Is(err, generation.ErrInvalidCount):
		api.writeError(w, http.StatusUnprocessableEntity, rejectionMessage(err, cmd.PromptMode))
	default:
		api.log.Error("start run failed", zap.Error(err))
		api.writeError(w, http.StatusInternalServerError, "failed to start run")
	}
}

// rejectionMessage is the user-facing reason a command was refused.
func rejectionMessage(err error, mode core.PromptMode) string {
	switch {
	case errors.Is(err, generation.ErrNoCredentials):
		return generation.MessageNoCredentials
	case errors.Is(err, generation.ErrInvalidAspect):
		return generation.MessageBadAspect
	case errors.Is(err, generation.ErrInvalidCount):
		return generation.MessageBadCount
	case mode == core.PromptModeBulk:
		return generation.MessageNoBulkPrompts
	default:
		return generation.MessageNoPrompts
	}
}

func (api *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, http.StatusOK, StatusResponse{
		Status:  api.board.Latest(),
		Running: api.runs.Running(),
	})
}

func (api *API) handleListImages(w http.ResponseWriter, r *http.Request) {
	images, err := api.images.GetAll(r.Context())
	if err != nil {
		api.log.Error("list images failed", zap.Error(err))
		api.writeError(w, http.StatusInternalServerError, "failed to load images")
		return
	}
	if images == nil {
		images = []core.ImageRecord{}
	}
	api.writeJSON(w, http.StatusOK, images)
}

func (api *API) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid image id")
		return
	}
	if err := api.images.Delete(r.Context(), id); err != nil {
		api.log.Error("delete image failed", zap.Int64("image_id", id), zap.Error(err))
		api.writeError(w, http.StatusInternalServerError, "Error deleting image.")
		return
	}
	api.hub.BroadcastMessage(NewImagesDeletedMessage([]int64{id}))
	w.WriteHeader(http.StatusNoContent)
}

func (api *API) handleDeleteImages(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !api.decode(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		api.writeError(w, http.StatusBadRequest, MessageNothingToDelete)
		return
	}
	if err := api.images.DeleteMany(r.Context(), req.IDs); err != nil {
		api.log.Error("delete images failed", zap.Int("count", len(req.IDs)), zap.Error(err))
		api.writeError(w, http.StatusInternalServerError, "Error deleting selected images.")
		return
	}
	api.hub.BroadcastMessage(NewImagesDeletedMessage(req.IDs))
	api.writeJSON(w, http.StatusOK, map[string]any{
		"deleted": len(req.IDs),
		"message": fmt.Sprintf("Successfully deleted %d image(s).", len(req.IDs)),
	})
}

func (api *API) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !api.decode(w, r, &req) {
		return
	}
	images, err := api.images.GetAll(r.Context())
	if err != nil {
		api.log.Error("load images for download failed", zap.Error(err))
		api.writeError(w, http.StatusInternalServerError, "failed to load images")
		return
	}

	dl, err := archive.Build(images, req.IDs)
	if errors.Is(err, archive.ErrNothingSelected) {
		api.writeError(w, http.StatusBadRequest, MessageNothingToDownload)
		return
	}
	if err != nil {
		api.log.Error("build download failed", zap.Error(err))
		api.writeError(w, http.StatusInternalServerError, "Error creating zip file.")
		return
	}

	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(dl.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(dl.Data)
}

func (api *API) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := api.keys.LoadCredentials(r.Context())
	if err != nil {
		api.log.Error("load keys failed", zap.Error(err))
		api.writeError(w, http.StatusInternalServerError, "failed to load keys")
		return
	}
	views := make([]KeyView, len(keys))
	for i, k := range keys {
		views[i] = KeyView{Index: i, Masked: db.MaskCredential(k)}
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"keys": views, "count": len(views)})
}

func (api *API) handleAddKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if !api.decode(w, r, &req) {
		return
	}
	added, err := api.keys.AddCredential(r.Context(), req.Key)
	if err != nil {
		api.log.Error("add key failed", zap.Error(err))
		api.writeError(w, http.StatusInternalServerError, "failed to save key")
		return
	}
	if !added {
		api.writeError(w, http.StatusBadRequest, "key is empty or already present")
		return
	}
	api.keysChanged(r.Context())
	api.writeJSON(w, http.StatusCreated, map[string]bool{"added": true})
}

func (api *API) handleReplaceKeys(w http.ResponseWriter, r *http.Request) {
	var req keysRequest
	if !api.decode(w, r, &req) {
		return
	}
	if err := api.keys.SaveCredentials(r.Context(), req.Keys); err != nil {
		api.log.Error("replace keys failed", zap.Error(err))
		api.writeError(w, http.StatusInternalServerError, "failed to save keys")
		return
	}
	count := api.keysChanged(r.Context())
	api.writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (api *API) handleRemoveKey(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid key index")
		return
	}
	err = api.keys.RemoveCredential(r.Context(), index)
	if errors.Is(err, db.ErrCredentialIndex) {
		api.writeError(w, http.StatusNotFound, "no key at that index")
		return
	}
	if err != nil {
		api.log.Error("remove key failed", zap.Int("key_index", index), zap.Error(err))
		api.writeError(w, http.StatusInternalServerError, "failed to remove key")
		return
	}
	api.keysChanged(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// keysChanged broadcasts and returns the new pool size.
func (api *API) keysChanged(ctx context.Context) int {
	keys, err := api.keys.LoadCredentials(ctx)
	if err != nil {
		return 0
	}
	api.hub.BroadcastMessage(NewKeysChangedMessage(len(keys)))
	return len(keys)
}

// decode reads a JSON body into v, writing a 400 on failure.
func (api *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (api *API) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		api.log.Debug("write response failed", zap.Error(err))
	}
}

func (api *API) writeError(w http.ResponseWriter, status int, message string) {
	api.writeJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
