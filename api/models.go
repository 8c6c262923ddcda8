package api

import (
	"github.com/GetStream/threads/linkify"
	"github.com/GetStream/threads/store"
)

// A Post is a post as returned by the API. HTML holds the rendered text.
type Post struct {
	ID         string       `json:"id"`
	ParentID   *string      `json:"parentId"`
	Author     store.Author `json:"author"`
	Text       string       `json:"text"`
	HTML       string       `json:"html"`
	CreatedAt  int64        `json:"createdAt"`
	LikeCount  int          `json:"likeCount"`
	LikedByMe  bool         `json:"likedByMe"`
	ReplyCount int          `json:"replyCount"`
}

func apiPost(p store.Post) Post {
	return Post{
		ID:         p.ID,
		ParentID:   p.ParentID,
		Author:     p.Author,
		Text:       p.Text,
		HTML:       linkify.HTML(p.Text),
		CreatedAt:  p.CreatedAt,
		LikeCount:  p.LikeCount,
		LikedByMe:  p.LikedByMe,
		ReplyCount: p.ReplyCount,
	}
}

func apiPosts(posts []store.Post) []Post {
	out := make([]Post, len(posts))
	for i, p := range posts {
		out[i] = apiPost(p)
	}
	return out
}

// An author is the optional author block of a create request.
type author struct {
	Name   string `json:"name" validate:"required,max=50"`
	Handle string `json:"handle" validate:"required,startswith=@,max=30"`
	Avatar string `json:"avatar" validate:"omitempty,url"`
}

func (a *author) storeAuthor() *store.Author {
	if a == nil {
		return nil
	}
	return &store.Author{
		Name:   a.Name,
		Handle: a.Handle,
		Avatar: a.Avatar,
	}
}
