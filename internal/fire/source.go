package fire

import (
	"context"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"local.dev/nexboard-backend/internal/feed"
	"local.dev/nexboard-backend/internal/models"
)

// Listen opens the one standing live query: all posts, newest first. The
// returned source's Stop releases the server-side subscription; Next then
// reports context.Canceled.
func (p *Posts) Listen(ctx context.Context) feed.Source {
	ctx, cancel := context.WithCancel(ctx)
	it := p.client.Collection(p.col).
		OrderBy("createdAt", firestore.Desc).
		Snapshots(ctx)
	return &snapshotSource{it: it, cancel: cancel}
}

type snapshotSource struct {
	it     *firestore.QuerySnapshotIterator
	cancel context.CancelFunc
	stop   sync.Once
}

func (s *snapshotSource) Next() (feed.Snapshot, error) {
	qs, err := s.it.Next()
	if err != nil {
		if status.Code(err) == codes.Canceled {
			return feed.Snapshot{}, context.Canceled
		}
		return feed.Snapshot{}, err
	}

	var posts []models.Post
	for {
		doc, err := qs.Documents.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return feed.Snapshot{}, err
		}
		var post models.Post
		if err := doc.DataTo(&post); err != nil {
			return feed.Snapshot{}, err
		}
		post.ID = doc.Ref.ID
		posts = append(posts, post)
	}
	return feed.Snapshot{Posts: posts}, nil
}

func (s *snapshotSource) Stop() {
	s.stop.Do(func() {
		s.cancel()
		s.it.Stop()
	})
}
