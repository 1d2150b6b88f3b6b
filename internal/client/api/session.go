package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/perchworks/perch/internal/client/models"
	"github.com/perchworks/perch/internal/common"
)

// Session is an authenticated context bound to one login: the cookie jar
// holding the session cookie plus the transport. It is created by
// Client.Login and stays valid until Logout or until the server
// invalidates the cookie (which surfaces as common.ErrUnauthorized on the
// next call, not proactively).
type Session struct {
	client *Client

	mu     sync.Mutex
	closed bool
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return common.ErrSessionClosed
	}
	return nil
}

// Logout invalidates the session server-side. The local cookie state is
// cleared and the Session becomes unusable whether or not the call
// succeeds, so a failed logout never leaves an assumed-valid session
// behind.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return common.ErrSessionClosed
	}
	s.closed = true
	s.mu.Unlock()

	err := s.client.doRequest(ctx, http.MethodPost, "logout", nil, nil, nil)
	if resetErr := s.client.jar.reset(); resetErr != nil && err == nil {
		err = resetErr
	}
	s.client.logger.Info(ctx, "logged out")
	return err
}

// CreatePost publishes post to the given project and returns the
// server-assigned post ID. Pending attachments are uploaded first and the
// post's attachment entries are updated in place with their confirmed IDs.
func (s *Session) CreatePost(ctx context.Context, project string, post *models.Post) (models.PostID, error) {
	return s.send(ctx, http.MethodPost, fmt.Sprintf("project/%s/posts", project), project, post, nil)
}

// SharePost publishes post as a share of shareOf. An empty post is valid
// here — it shares without comment.
func (s *Session) SharePost(ctx context.Context, project string, post *models.Post, shareOf models.PostID) (models.PostID, error) {
	return s.send(ctx, http.MethodPost, fmt.Sprintf("project/%s/posts", project), project, post, &shareOf)
}

// EditPost replaces the content of an existing post. Attachments already
// resolved on a previous create are not re-uploaded.
func (s *Session) EditPost(ctx context.Context, project string, id models.PostID, post *models.Post) error {
	_, err := s.send(ctx, http.MethodPut, fmt.Sprintf("project/%s/posts/%s", project, id), project, post, nil)
	return err
}

// DeletePost removes a post.
func (s *Session) DeletePost(ctx context.Context, project string, id models.PostID) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.client.doRequest(ctx, http.MethodDelete, fmt.Sprintf("project/%s/posts/%s", project, id), nil, nil, nil)
}

// FetchPosts returns one page of a project's posts using this session's
// credentials, which also covers the project's own drafts and
// adult-gated posts.
func (s *Session) FetchPosts(ctx context.Context, project string, page uint64) ([]models.Post, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.client.FetchPosts(ctx, project, page)
}

type postResponse struct {
	PostID models.PostID `json:"postId"`
}

// send resolves attachments, builds the wire body, and issues the create
// or edit request. A post never leaves here with unresolved pending
// attachments.
func (s *Session) send(ctx context.Context, method, path, project string, post *models.Post, shareOf *models.PostID) (models.PostID, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if post.IsEmpty() && shareOf == nil {
		return 0, common.ErrEmptyPost
	}
	for _, att := range post.Attachments {
		if att.IsFailed() {
			return 0, common.ErrFailedAttachment
		}
	}

	if err := s.resolveAttachments(ctx, project, post); err != nil {
		return 0, err
	}

	body, err := buildAPIPost(post, shareOf)
	if err != nil {
		return 0, err
	}

	var resp postResponse
	if err := s.client.doRequest(ctx, method, path, nil, body, &resp); err != nil {
		return 0, err
	}
	s.client.logger.Info(ctx, "post sent", "method", method, "post_id", resp.PostID)
	return resp.PostID, nil
}
