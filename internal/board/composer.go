package board

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"local.dev/nexboard-backend/internal/models"
)

// MaxImageSize is the client-side guard on attached images. Larger files
// are rejected before any upload attempt; there is no re-encoding.
const MaxImageSize = 5 << 20

// DocStore is the slice of the document store the composer needs.
type DocStore interface {
	CreatePost(ctx context.Context, p models.Post) (string, error)
	GetPost(ctx context.Context, id string) (models.Post, error)
	DeletePost(ctx context.Context, id string) error
}

// BlobStore uploads bytes under a key and resolves a publicly fetchable URL.
type BlobStore interface {
	Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

// Image is a file attached to a submission.
type Image struct {
	Name        string
	Size        int64
	ContentType string
	Data        io.Reader
}

// SubmitInput carries one submission. Content is rich text as HTML markup;
// it is sanitized before storage.
type SubmitInput struct {
	Title   string
	Content string
	Image   *Image
}

// Composer turns submissions into remote writes: upload the image if any,
// then create the post document. It never touches the feed mirror; the
// live subscription reflects the result.
type Composer struct {
	docs     DocStore
	blobs    BlobStore
	policy   *bluemonday.Policy
	inFlight atomic.Bool
	now      func() time.Time
}

func NewComposer(docs DocStore, blobs BlobStore) *Composer {
	return &Composer{
		docs:   docs,
		blobs:  blobs,
		policy: bluemonday.UGCPolicy(),
		now:    time.Now,
	}
}

// Submit validates, uploads, then writes, as a best-effort sequence rather
// than a transaction. Only one submit may be in flight per Composer.
func (c *Composer) Submit(ctx context.Context, sess models.Session, in SubmitInput) (models.Post, error) {
	title := strings.TrimSpace(in.Title)
	// Sanitize before the emptiness check: content that is nothing but
	// disallowed markup must count as empty, or a post could be stored
	// with no content and no image.
	content := c.policy.Sanitize(strings.TrimSpace(in.Content))
	if title == "" || (emptyMarkup(content) && in.Image == nil) {
		return models.Post{}, &ValidationError{Message: "Please enter a title and some content or a photo."}
	}
	if in.Image != nil && in.Image.Size > MaxImageSize {
		return models.Post{}, &ValidationError{Message: "Image is too large (max 5 MB)."}
	}

	if !c.inFlight.CompareAndSwap(false, true) {
		return models.Post{}, ErrSubmitInFlight
	}
	defer c.inFlight.Store(false)

	var imageURL, imageKey string
	if in.Image != nil {
		key := blobKey(sess.UID, in.Image.Name, c.now())
		url, err := c.blobs.Upload(ctx, key, in.Image.ContentType, in.Image.Data)
		if err != nil {
			return models.Post{}, &UploadError{Err: err}
		}
		imageURL, imageKey = url, key
	}

	post := models.Post{
		Title:      title,
		Content:    content,
		ImageURL:   imageURL,
		AuthorID:   sess.UID,
		AuthorName: authorName(sess),
	}
	id, err := c.docs.CreatePost(ctx, post)
	if err != nil {
		// The uploaded blob would otherwise be orphaned; reclaim it on a
		// best-effort basis and keep the submit failure.
		if imageKey != "" {
			if derr := c.blobs.Delete(ctx, imageKey); derr != nil {
				log.Printf("board: orphaned image %s: %v", imageKey, derr)
			}
		}
		return models.Post{}, &WriteError{Err: err}
	}
	post.ID = id
	return post, nil
}

// Delete removes a post. The caller must have confirmed, and only the
// author's session may delete; the feed is left to the next snapshot.
func (c *Composer) Delete(ctx context.Context, sess models.Session, postID string, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	post, err := c.docs.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != sess.UID {
		return ErrNotAuthor
	}
	if err := c.docs.DeletePost(ctx, postID); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

// emptyMarkup reports whether content is a degenerate editor husk such as
// "<br>" or "<p></p>" with nothing visible in it.
func emptyMarkup(content string) bool {
	s := content
	for _, tag := range []string{"<br>", "<br/>", "<br />", "<p>", "</p>", "<div>", "</div>", "&nbsp;"} {
		s = strings.ReplaceAll(s, tag, "")
	}
	return strings.TrimSpace(s) == ""
}

// blobKey builds the per-author, time-ordered storage key for an image.
func blobKey(uid, filename string, now time.Time) string {
	name := strings.Map(func(r rune) rune {
		if r == '-' || r == '_' || r == '.' ||
			(r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
			return r
		}
		return '-'
	}, filename)
	if name == "" || name == "." {
		name = "img"
	}
	return fmt.Sprintf("posts/%s/%d_%s", uid, now.UnixMilli(), name)
}

// authorName mirrors the display rule: display name, else the email
// local-part, else "Anonymous".
func authorName(sess models.Session) string {
	if sess.DisplayName != "" {
		return sess.DisplayName
	}
	if i := strings.IndexByte(sess.Email, '@'); i > 0 {
		return sess.Email[:i]
	}
	return "Anonymous"
}
