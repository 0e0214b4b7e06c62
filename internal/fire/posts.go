// Package fire holds the Firebase-backed implementations of the small
// storage interfaces the rest of the app consumes.
package fire

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"local.dev/nexboard-backend/internal/board"
	"local.dev/nexboard-backend/internal/models"
)

// Posts is the Firestore posts collection. It satisfies board.DocStore.
type Posts struct {
	client *firestore.Client
	col    string
}

func NewPosts(client *firestore.Client, collection string) *Posts {
	return &Posts{client: client, col: collection}
}

// CreatePost writes a new document; the server assigns both the document ID
// and, through the serverTimestamp tag, createdAt.
func (p *Posts) CreatePost(ctx context.Context, post models.Post) (string, error) {
	ref, _, err := p.client.Collection(p.col).Add(ctx, post)
	if err != nil {
		return "", fmt.Errorf("add post: %w", err)
	}
	return ref.ID, nil
}

func (p *Posts) GetPost(ctx context.Context, id string) (models.Post, error) {
	doc, err := p.client.Collection(p.col).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return models.Post{}, board.ErrNotFound
		}
		return models.Post{}, fmt.Errorf("get post: %w", err)
	}
	var post models.Post
	if err := doc.DataTo(&post); err != nil {
		return models.Post{}, fmt.Errorf("decode post %s: %w", id, err)
	}
	post.ID = doc.Ref.ID
	return post, nil
}

func (p *Posts) DeletePost(ctx context.Context, id string) error {
	if _, err := p.client.Collection(p.col).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}
