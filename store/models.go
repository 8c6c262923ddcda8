package store

import "encoding/json"

// An Author is the denormalized snapshot of who wrote a post.
type Author struct {
	Name   string `json:"name"`
	Handle string `json:"handle"`
	Avatar string `json:"avatar,omitempty"`
}

// A Post is a root post or a reply. Replies reference their parent through
// ParentID.
type Post struct {
	ID         string  `json:"id"`
	ParentID   *string `json:"parentId"`
	Author     Author  `json:"author"`
	Text       string  `json:"text"`
	CreatedAt  int64   `json:"createdAt"`
	LikeCount  int     `json:"likeCount"`
	LikedByMe  bool    `json:"likedByMe"`
	ReplyCount int     `json:"replyCount"`
}

// IsReply reports whether the post has a parent.
func (p Post) IsReply() bool {
	return p.ParentID != nil && *p.ParentID != ""
}

// Profile is reserved. Profiles are kept as raw JSON so they survive a
// load/save cycle untouched.
type Profile = json.RawMessage

// A Dataset is everything persisted under the store key.
type Dataset struct {
	Posts    []Post    `json:"posts"`
	Profiles []Profile `json:"profiles"`
}

// Empty returns the default dataset.
func Empty() Dataset {
	return Dataset{
		Posts:    []Post{},
		Profiles: []Profile{},
	}
}

func (d *Dataset) normalize() {
	if d.Posts == nil {
		d.Posts = []Post{}
	}
	if d.Profiles == nil {
		d.Profiles = []Profile{}
	}
}
