package feed

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/GetStream/threads/store"
	"github.com/google/uuid"
)

const (
	// DefaultLimit is the number of root posts ListRoot returns when no
	// positive limit is given.
	DefaultLimit = 50

	maxLikes = 1_000_000_000
)

var (
	// ErrNotFound is returned when no post has the requested id.
	ErrNotFound = errors.New("post not found")

	// ErrStorage wraps storage failures surfaced in strict mode.
	ErrStorage = errors.New("storage failure")
)

// DefaultAuthor is used for posts created without an author.
var DefaultAuthor = store.Author{Name: "AI Persona", Handle: "@ai"}

// Feed provides the post operations on top of a Store. Each call runs a
// single load-compute-save cycle against the store.
type Feed struct {
	Store  *store.Store
	Logger *slog.Logger

	// Strict makes storage failures visible to callers. By default they are
	// logged and the operation appears to succeed.
	Strict bool

	Now   func() time.Time
	NewID func() string
}

// New returns a Feed backed by s.
func New(s *store.Store, logger *slog.Logger) *Feed {
	return &Feed{
		Store:  s,
		Logger: logger,
	}
}

// A NewPost holds the input for Create.
type NewPost struct {
	Text     string
	ParentID *string
	Author   *store.Author
}

// A Patch holds the fields Update may change. Nil fields are left alone.
type Patch struct {
	Text      *string
	Author    *store.Author
	LikeCount *int
	LikedByMe *bool
}

func (f *Feed) now() int64 {
	if f.Now != nil {
		return f.Now().UnixMilli()
	}
	return time.Now().UnixMilli()
}

func (f *Feed) newID() string {
	if f.NewID != nil {
		return f.NewID()
	}
	return "p_" + uuid.NewString()
}

func (f *Feed) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

// fail applies the failure policy to a storage error.
func (f *Feed) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	if f.Strict {
		return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
	}
	f.logger().Error("Storage failure ignored", "op", op, "error", err.Error())
	return nil
}

func (f *Feed) load(ctx context.Context, op string) (store.Dataset, error) {
	if !f.Strict {
		return f.Store.Load(ctx), nil
	}
	ds, err := f.Store.Read(ctx)
	if err != nil {
		return ds, f.fail(op, err)
	}
	return ds, nil
}

// ListRoot returns up to limit posts without a parent, newest first. A limit
// of zero or less means DefaultLimit, not an empty list.
func (f *Feed) ListRoot(ctx context.Context, limit int) ([]store.Post, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	ds, err := f.load(ctx, "list root")
	if err != nil {
		return nil, err
	}

	roots := make([]store.Post, 0, len(ds.Posts))
	for _, p := range ds.Posts {
		if !p.IsReply() {
			roots = append(roots, p)
		}
	}
	slices.SortStableFunc(roots, func(a, b store.Post) int {
		return cmp.Compare(b.CreatedAt, a.CreatedAt)
	})
	if len(roots) > limit {
		roots = roots[:limit]
	}
	return roots, nil
}

// Get returns the post with the given id.
func (f *Feed) Get(ctx context.Context, id string) (store.Post, error) {
	ds, err := f.load(ctx, "get")
	if err != nil {
		return store.Post{}, err
	}
	i := indexOf(ds.Posts, id)
	if i < 0 {
		return store.Post{}, ErrNotFound
	}
	return ds.Posts[i], nil
}

// ListReplies returns the direct replies to parentID, oldest first.
func (f *Feed) ListReplies(ctx context.Context, parentID string) ([]store.Post, error) {
	ds, err := f.load(ctx, "list replies")
	if err != nil {
		return nil, err
	}

	replies := make([]store.Post, 0)
	for _, p := range ds.Posts {
		if p.IsReply() && *p.ParentID == parentID {
			replies = append(replies, p)
		}
	}
	slices.SortStableFunc(replies, func(a, b store.Post) int {
		return cmp.Compare(a.CreatedAt, b.CreatedAt)
	})
	return replies, nil
}

// Create appends a new post. When the parent exists its reply count is
// incremented; a missing parent is ignored. A reply to a reply is attached
// to the reply's own parent so nesting stays one level deep.
func (f *Feed) Create(ctx context.Context, np NewPost) (store.Post, error) {
	post := store.Post{
		ID:        f.newID(),
		Author:    DefaultAuthor,
		Text:      np.Text,
		CreatedAt: f.now(),
	}
	if np.Author != nil {
		post.Author = *np.Author
	}
	if np.ParentID != nil && *np.ParentID != "" {
		parent := *np.ParentID
		post.ParentID = &parent
	}

	err := f.Store.Update(ctx, func(ds *store.Dataset) error {
		if post.ParentID != nil {
			if i := indexOf(ds.Posts, *post.ParentID); i >= 0 {
				if ds.Posts[i].IsReply() {
					root := *ds.Posts[i].ParentID
					post.ParentID = &root
					i = indexOf(ds.Posts, root)
				}
				if i >= 0 {
					ds.Posts[i].ReplyCount++
				}
			}
		}
		ds.Posts = append(ds.Posts, post)
		return nil
	})
	if err := f.fail("create", err); err != nil {
		return store.Post{}, err
	}
	return post, nil
}

// Put inserts post, or replaces the stored post with the same id. Reply
// counts are not adjusted.
func (f *Feed) Put(ctx context.Context, post store.Post) error {
	err := f.Store.Update(ctx, func(ds *store.Dataset) error {
		if i := indexOf(ds.Posts, post.ID); i >= 0 {
			ds.Posts[i] = post
		} else {
			ds.Posts = append(ds.Posts, post)
		}
		return nil
	})
	return f.fail("put", err)
}

// Update applies patch to the post with the given id. Unknown ids are
// ignored.
func (f *Feed) Update(ctx context.Context, id string, patch Patch) error {
	err := f.Store.Update(ctx, func(ds *store.Dataset) error {
		i := indexOf(ds.Posts, id)
		if i < 0 {
			return store.ErrSkip
		}
		p := &ds.Posts[i]
		if patch.Text != nil {
			p.Text = *patch.Text
		}
		if patch.Author != nil {
			p.Author = *patch.Author
		}
		if patch.LikeCount != nil {
			p.LikeCount = clampLikes(*patch.LikeCount)
		}
		if patch.LikedByMe != nil {
			p.LikedByMe = *patch.LikedByMe
		}
		return nil
	})
	return f.fail("update", err)
}

// ToggleLike flips the viewer's like on the post and adjusts its like count.
func (f *Feed) ToggleLike(ctx context.Context, id string) (store.Post, error) {
	var (
		post  store.Post
		found bool
	)
	err := f.Store.Update(ctx, func(ds *store.Dataset) error {
		// Backends may run this more than once.
		post, found = store.Post{}, false
		i := indexOf(ds.Posts, id)
		if i < 0 {
			return store.ErrSkip
		}
		p := &ds.Posts[i]
		p.LikedByMe = !p.LikedByMe
		if p.LikedByMe {
			p.LikeCount = clampLikes(p.LikeCount + 1)
		} else {
			p.LikeCount = clampLikes(p.LikeCount - 1)
		}
		post, found = *p, true
		return nil
	})
	if err := f.fail("toggle like", err); err != nil {
		return store.Post{}, err
	}
	if !found {
		return store.Post{}, ErrNotFound
	}
	return post, nil
}

// Remove deletes the post and its direct replies. If the post was a reply,
// its parent's reply count is decremented.
func (f *Feed) Remove(ctx context.Context, id string) error {
	err := f.Store.Update(ctx, func(ds *store.Dataset) error {
		i := indexOf(ds.Posts, id)
		if i < 0 {
			return store.ErrSkip
		}
		removed := ds.Posts[i]

		ds.Posts = slices.DeleteFunc(ds.Posts, func(p store.Post) bool {
			return p.ID == id || (p.IsReply() && *p.ParentID == id)
		})
		if removed.IsReply() {
			if pi := indexOf(ds.Posts, *removed.ParentID); pi >= 0 {
				ds.Posts[pi].ReplyCount = max(0, ds.Posts[pi].ReplyCount-1)
			}
		}
		return nil
	})
	return f.fail("remove", err)
}

// Clear removes every post.
func (f *Feed) Clear(ctx context.Context) error {
	return f.fail("clear", f.Store.Clear(ctx))
}

func indexOf(posts []store.Post, id string) int {
	return slices.IndexFunc(posts, func(p store.Post) bool {
		return p.ID == id
	})
}

func clampLikes(n int) int {
	return min(max(n, 0), maxLikes)
}
