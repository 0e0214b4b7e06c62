package feed

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"

	"local.dev/nexboard-backend/internal/models"
)

// Snapshot is one push notification from the live query: the full current
// result set, not a delta.
type Snapshot struct {
	Posts []models.Post
}

// Source is a standing subscription to the posts collection. Next blocks
// until the backend pushes the next snapshot. Stop releases the
// subscription; after Stop, Next returns context.Canceled.
type Source interface {
	Next() (Snapshot, error)
	Stop()
}

// Synchronizer owns the client-side mirror of the posts collection. It holds
// exactly one Source, rebuilds the whole ordered feed on every snapshot, and
// republishes it to subscribers. Nothing else mutates the mirror.
type Synchronizer struct {
	source Source

	mu      sync.RWMutex
	posts   []models.Post
	loading bool
	err     error

	subs   map[int]chan models.Feed
	nextID int

	stop sync.Once
	done chan struct{}
}

func New(source Source) *Synchronizer {
	return &Synchronizer{
		source:  source,
		loading: true,
		subs:    map[int]chan models.Feed{},
		done:    make(chan struct{}),
	}
}

// Run receives snapshots until the source fails or Close is called. Call it
// on its own goroutine.
func (s *Synchronizer) Run() {
	defer close(s.done)
	for {
		snap, err := s.source.Next()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return // torn down by Close
			}
			// Subscription failure collapses the feed to empty and
			// non-loading; the error is recorded, never retried.
			log.Printf("feed: subscription error: %v", err)
			s.mu.Lock()
			s.posts = nil
			s.loading = false
			s.err = err
			s.mu.Unlock()
			s.publish()
			return
		}

		posts := append([]models.Post(nil), snap.Posts...)
		sort.SliceStable(posts, func(i, j int) bool {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		})

		s.mu.Lock()
		s.posts = posts
		s.loading = false
		s.err = nil
		s.mu.Unlock()
		s.publish()
	}
}

// Close releases the subscription. It is idempotent and safe to call before
// the first snapshot has arrived.
func (s *Synchronizer) Close() {
	s.stop.Do(func() {
		s.source.Stop()
	})
	<-s.done
}

// Posts returns a copy of the current mirror, newest first.
func (s *Synchronizer) Posts() []models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Post(nil), s.posts...)
}

// Feed bundles the mirror with the initial-loading flag.
func (s *Synchronizer) Feed() models.Feed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.Feed{
		Posts:   append([]models.Post(nil), s.posts...),
		Loading: s.loading,
	}
}

// Loading reports whether the first notification is still pending. Once it
// turns false it stays false.
func (s *Synchronizer) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the recorded subscription error, if any.
func (s *Synchronizer) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Subscribe delivers every republished feed. The cancel func is safe to
// call more than once.
func (s *Synchronizer) Subscribe() (<-chan models.Feed, func()) {
	ch := make(chan models.Feed, 8)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Synchronizer) publish() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f := models.Feed{
		Posts:   append([]models.Post(nil), s.posts...),
		Loading: s.loading,
	}
	for _, ch := range s.subs {
		select {
		case ch <- f:
		default: // a stalled subscriber skips snapshots, it never blocks sync
		}
	}
}
