package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/GetStream/threads/api/validator"
	"github.com/GetStream/threads/feed"
	"github.com/GetStream/threads/store"
)

// A Feed provides the post operations behind the API.
type Feed interface {
	ListRoot(ctx context.Context, limit int) ([]store.Post, error)
	Get(ctx context.Context, id string) (store.Post, error)
	ListReplies(ctx context.Context, parentID string) ([]store.Post, error)
	Create(ctx context.Context, np feed.NewPost) (store.Post, error)
	Update(ctx context.Context, id string, patch feed.Patch) error
	ToggleLike(ctx context.Context, id string) (store.Post, error)
	Remove(ctx context.Context, id string) error
	Put(ctx context.Context, post store.Post) error
	Clear(ctx context.Context) error
}

// Prefs provides the viewer's theme preference.
type Prefs interface {
	Theme(ctx context.Context) store.Theme
	SetTheme(ctx context.Context, t store.Theme) error
	ToggleTheme(ctx context.Context) (store.Theme, error)
}

// API provides the REST endpoints for the application.
type API struct {
	Logger *slog.Logger
	Feed   Feed
	Prefs  Prefs
	Val    *validator.Validator

	once sync.Once
	mux  *http.ServeMux
}

func (a *API) setupRoutes() {
	if a.Val == nil {
		a.Val = validator.New()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /posts", a.listPosts)
	mux.HandleFunc("POST /posts", a.createPost)
	mux.HandleFunc("DELETE /posts", a.clearPosts)
	mux.HandleFunc("GET /posts/{postID}", a.getPost)
	mux.HandleFunc("PATCH /posts/{postID}", a.updatePost)
	mux.HandleFunc("PUT /posts/{postID}", a.putPost)
	mux.HandleFunc("DELETE /posts/{postID}", a.deletePost)
	mux.HandleFunc("GET /posts/{postID}/replies", a.listReplies)
	mux.HandleFunc("POST /posts/{postID}/replies", a.createReply)
	mux.HandleFunc("POST /posts/{postID}/like", a.toggleLike)
	mux.HandleFunc("GET /theme", a.getTheme)
	mux.HandleFunc("PUT /theme", a.setTheme)
	mux.HandleFunc("POST /theme/toggle", a.toggleTheme)

	a.mux = mux
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.once.Do(a.setupRoutes)
	a.Logger.Info("Request received", "method", r.Method, "path", r.URL.Path)
	a.mux.ServeHTTP(w, r)
}

func (a *API) respond(w http.ResponseWriter, status int, body any) {
	if body == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Error("Could not encode JSON body", "error", err.Error())
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, err error, msg string) {
	type response struct {
		Error string `json:"error"`
	}
	a.Logger.Error("Error", "error", err.Error())
	a.respond(w, status, response{Error: msg})
}

// respondFeedError maps a feed error to a response.
func (a *API) respondFeedError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, feed.ErrNotFound) {
		a.respondError(w, http.StatusNotFound, err, "Post not found")
		return
	}
	a.respondError(w, http.StatusInternalServerError, err, msg)
}

func (a *API) validationFailed(w http.ResponseWriter, errs []validator.ValidationError) bool {
	type response struct {
		Errors []validator.ValidationError `json:"errors"`
	}

	if len(errs) > 0 {
		a.respond(w, http.StatusBadRequest, &response{
			Errors: errs,
		})
		return true
	}
	return false
}

// decodeBody decodes and validates the JSON request body into v.
func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return false
	}
	return !a.validationFailed(w, a.Val.ValidateStruct(v))
}

func (a *API) listPosts(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Posts []Post `json:"posts"`
	}

	limit := feed.DefaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			a.respondError(w, http.StatusBadRequest, err, "Invalid limit")
			return
		}
		if a.validationFailed(w, a.Val.Validate(n, "min=1,max=200")) {
			return
		}
		limit = n
	}

	posts, err := a.Feed.ListRoot(r.Context(), limit)
	if err != nil {
		a.respondFeedError(w, err, "Could not list posts")
		return
	}
	a.Logger.Debug("Listed root posts", "count", len(posts))

	a.respond(w, http.StatusOK, response{Posts: apiPosts(posts)})
}

type createRequest struct {
	Text   string  `json:"text" validate:"notblank,max=500"`
	Author *author `json:"author,omitempty" validate:"omitempty"`
}

func (a *API) createPost(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if !a.decodeBody(w, r, &body) {
		return
	}

	post, err := a.Feed.Create(r.Context(), feed.NewPost{
		Text:   strings.TrimSpace(body.Text),
		Author: body.Author.storeAuthor(),
	})
	if err != nil {
		a.respondFeedError(w, err, "Could not create post")
		return
	}

	a.respond(w, http.StatusCreated, apiPost(post))
}

func (a *API) clearPosts(w http.ResponseWriter, r *http.Request) {
	if err := a.Feed.Clear(r.Context()); err != nil {
		a.respondFeedError(w, err, "Could not clear posts")
		return
	}
	a.respond(w, http.StatusNoContent, nil)
}

func (a *API) getPost(w http.ResponseWriter, r *http.Request) {
	post, err := a.Feed.Get(r.Context(), r.PathValue("postID"))
	if err != nil {
		a.respondFeedError(w, err, "Could not get post")
		return
	}
	a.respond(w, http.StatusOK, apiPost(post))
}

func (a *API) updatePost(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Text   *string `json:"text,omitempty" validate:"omitempty,notblank,max=500"`
		Author *author `json:"author,omitempty" validate:"omitempty"`
	}

	postID := r.PathValue("postID")
	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	if _, err := a.Feed.Get(r.Context(), postID); err != nil {
		a.respondFeedError(w, err, "Could not update post")
		return
	}

	patch := feed.Patch{Author: body.Author.storeAuthor()}
	if body.Text != nil {
		text := strings.TrimSpace(*body.Text)
		patch.Text = &text
	}
	if err := a.Feed.Update(r.Context(), postID, patch); err != nil {
		a.respondFeedError(w, err, "Could not update post")
		return
	}

	a.respond(w, http.StatusNoContent, nil)
}

// putPost stores a complete post under the path id, replacing any post with
// that id. Reply counts are taken as given.
func (a *API) putPost(w http.ResponseWriter, r *http.Request) {
	type request struct {
		ParentID   *string `json:"parentId"`
		Author     author  `json:"author"`
		Text       string  `json:"text" validate:"notblank,max=500"`
		CreatedAt  int64   `json:"createdAt" validate:"min=0"`
		LikeCount  int     `json:"likeCount" validate:"min=0,max=1000000000"`
		LikedByMe  bool    `json:"likedByMe"`
		ReplyCount int     `json:"replyCount" validate:"min=0"`
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	post := store.Post{
		ID:         r.PathValue("postID"),
		ParentID:   body.ParentID,
		Author:     *body.Author.storeAuthor(),
		Text:       strings.TrimSpace(body.Text),
		CreatedAt:  body.CreatedAt,
		LikeCount:  body.LikeCount,
		LikedByMe:  body.LikedByMe,
		ReplyCount: body.ReplyCount,
	}
	if err := a.Feed.Put(r.Context(), post); err != nil {
		a.respondFeedError(w, err, "Could not store post")
		return
	}

	a.respond(w, http.StatusOK, apiPost(post))
}

func (a *API) deletePost(w http.ResponseWriter, r *http.Request) {
	if err := a.Feed.Remove(r.Context(), r.PathValue("postID")); err != nil {
		a.respondFeedError(w, err, "Could not delete post")
		return
	}
	a.respond(w, http.StatusNoContent, nil)
}

func (a *API) listReplies(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Replies []Post `json:"replies"`
	}

	replies, err := a.Feed.ListReplies(r.Context(), r.PathValue("postID"))
	if err != nil {
		a.respondFeedError(w, err, "Could not list replies")
		return
	}

	a.respond(w, http.StatusOK, response{Replies: apiPosts(replies)})
}

func (a *API) createReply(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("postID")
	var body createRequest
	if !a.decodeBody(w, r, &body) {
		return
	}

	if _, err := a.Feed.Get(r.Context(), postID); err != nil {
		a.respondFeedError(w, err, "Could not create reply")
		return
	}

	reply, err := a.Feed.Create(r.Context(), feed.NewPost{
		Text:     strings.TrimSpace(body.Text),
		ParentID: &postID,
		Author:   body.Author.storeAuthor(),
	})
	if err != nil {
		a.respondFeedError(w, err, "Could not create reply")
		return
	}

	a.respond(w, http.StatusCreated, apiPost(reply))
}

func (a *API) toggleLike(w http.ResponseWriter, r *http.Request) {
	post, err := a.Feed.ToggleLike(r.Context(), r.PathValue("postID"))
	if err != nil {
		a.respondFeedError(w, err, "Could not like post")
		return
	}
	a.respond(w, http.StatusOK, apiPost(post))
}

type themeResponse struct {
	Theme store.Theme `json:"theme"`
}

func (a *API) getTheme(w http.ResponseWriter, r *http.Request) {
	a.respond(w, http.StatusOK, themeResponse{Theme: a.Prefs.Theme(r.Context())})
}

func (a *API) setTheme(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Theme string `json:"theme" validate:"oneof=dark light"`
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	theme := store.Theme(body.Theme)
	if err := a.Prefs.SetTheme(r.Context(), theme); err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not set theme")
		return
	}
	a.respond(w, http.StatusOK, themeResponse{Theme: theme})
}

func (a *API) toggleTheme(w http.ResponseWriter, r *http.Request) {
	theme, err := a.Prefs.ToggleTheme(r.Context())
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not toggle theme")
		return
	}
	a.respond(w, http.StatusOK, themeResponse{Theme: theme})
}
