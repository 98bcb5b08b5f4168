package handlers

import (
	"net/http"

	"github.com/gallery-app/apiserver/internal/services"
	"github.com/gallery-app/apiserver/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// PostHandler provides HTTP handlers for posts and uploads.
type PostHandler struct {
	posts   *services.PostService
	uploads *services.UploadService
	logger  *zap.Logger
}

// NewPostHandler constructs a handler with the provided services.
func NewPostHandler(posts *services.PostService, uploads *services.UploadService, logger *zap.Logger) *PostHandler {
	return &PostHandler{posts: posts, uploads: uploads, logger: logger}
}

// PostRouter registers post routes on the given router. Reads and counters are
// public; upload and delete require authMiddleware.
func PostRouter(r chi.Router, handler *PostHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Get("/", handler.ListPosts)
	r.Get("/user/{userID}", handler.ListUserPosts)
	r.With(authMiddleware).Post("/presigned-url", handler.RequestUploadSlot)
	r.With(authMiddleware).Post("/confirm-upload", handler.ConfirmUpload)
	r.Route("/{postID}", func(r chi.Router) {
		r.Get("/", handler.GetPost)
		r.Post("/view", handler.RecordView)
		r.Post("/download", handler.RecordDownload)
		r.With(authMiddleware).Delete("/", handler.DeletePost)
	})
}

// PostListResponse is the paginated list response payload.
type PostListResponse struct {
	Items []types.Post `json:"items"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Total int          `json:"total"`
}

// ListPosts returns the feed, most recent first.
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	posts, total, err := h.posts.Feed(r.Context(), offset, limit)
	if err != nil {
		h.logger.Error("failed to list posts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list posts")
		return
	}

	writeJSON(w, http.StatusOK, PostListResponse{Items: posts, Page: page, Limit: limit, Total: total})
}

// ListUserPosts returns one user's posts, most recent first.
func (h *PostHandler) ListUserPosts(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(chi.URLParam(r, "userID"), "user id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	posts, total, err := h.posts.ListByUser(r.Context(), userID, offset, limit)
	if err != nil {
		writeServiceError(w, err, "failed to list posts")
		return
	}

	writeJSON(w, http.StatusOK, PostListResponse{Items: posts, Page: page, Limit: limit, Total: total})
}

// GetPost returns a post by id.
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, err := parsePostID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	post, err := h.posts.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to load post")
		return
	}

	writeJSON(w, http.StatusOK, post)
}

// RecordView increments a post's view counter.
func (h *PostHandler) RecordView(w http.ResponseWriter, r *http.Request) {
	id, err := parsePostID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	views, err := h.posts.RecordView(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to record view")
		return
	}

	writeJSON(w, http.StatusOK, types.ViewCount{Views: views})
}

// RecordDownload increments a post's download counter.
func (h *PostHandler) RecordDownload(w http.ResponseWriter, r *http.Request) {
	id, err := parsePostID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	downloads, err := h.posts.RecordDownload(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to record download")
		return
	}

	writeJSON(w, http.StatusOK, types.DownloadCount{Downloads: downloads})
}

// DeletePost removes a post owned by the caller.
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parsePostID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.posts.Delete(r.Context(), userID, id); err != nil {
		writeServiceError(w, err, "failed to delete post")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "post deleted"})
}

// RequestUploadSlot issues a presigned direct-to-storage upload URL.
func (h *PostHandler) RequestUploadSlot(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req types.UploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slot, err := h.uploads.RequestSlot(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, err, "failed to generate upload url")
		return
	}

	writeJSON(w, http.StatusOK, slot)
}

// ConfirmUpload records a post for an image the client stored through its slot.
func (h *PostHandler) ConfirmUpload(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var draft types.PostDraft
	if err := decodeJSON(w, r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	post, err := h.uploads.Confirm(r.Context(), userID, draft)
	if err != nil {
		writeServiceError(w, err, "failed to create post")
		return
	}

	writeJSON(w, http.StatusCreated, post)
}

func parsePostID(r *http.Request) (int, error) {
	return parseIDParam(chi.URLParam(r, "postID"), "post id")
}
