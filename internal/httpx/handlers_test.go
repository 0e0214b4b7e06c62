package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"local.dev/nexboard-backend/internal/board"
	"local.dev/nexboard-backend/internal/feed"
	"local.dev/nexboard-backend/internal/models"
	"local.dev/nexboard-backend/internal/session"
	"local.dev/nexboard-backend/internal/ws"
)

// ---- fakes ----

type fakeSessions struct {
	sessions map[string]models.Session // token -> session
}

func (f *fakeSessions) SignUp(_ context.Context, email, password, displayName string) (models.Session, error) {
	if len(password) < 6 {
		return models.Session{}, &session.ValidationError{Message: "Password should be at least 6 characters."}
	}
	return models.Session{UID: "u1", Email: email, DisplayName: displayName}, nil
}

func (f *fakeSessions) SignIn(_ context.Context, email, password string) (models.Session, session.Tokens, error) {
	if password != "secret1" {
		return models.Session{}, session.Tokens{}, &session.AuthError{Message: "INVALID_PASSWORD"}
	}
	return models.Session{UID: "u1", Email: email}, session.Tokens{IDToken: "tok-u1"}, nil
}

func (f *fakeSessions) SignOut(_ context.Context, _ string) error { return nil }

func (f *fakeSessions) Verify(_ context.Context, idToken string) (models.Session, error) {
	if s, ok := f.sessions[idToken]; ok {
		return s, nil
	}
	return models.Session{}, &session.AuthError{Message: "invalid token"}
}

type fakeDocs struct {
	mu     sync.Mutex
	posts  map[string]models.Post
	nextID int
}

func (f *fakeDocs) CreatePost(_ context.Context, p models.Post) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := "doc" + string(rune('0'+f.nextID))
	p.CreatedAt = time.Now().UTC()
	f.posts[id] = p
	return id, nil
}

func (f *fakeDocs) GetPost(_ context.Context, id string) (models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return models.Post{}, board.ErrNotFound
	}
	p.ID = id
	return p, nil
}

func (f *fakeDocs) DeletePost(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.posts, id)
	return nil
}

func (f *fakeDocs) snapshot() feed.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	var posts []models.Post
	for id, p := range f.posts {
		p.ID = id
		posts = append(posts, p)
	}
	return feed.Snapshot{Posts: posts}
}

type fakeBlobs struct {
	mu      sync.Mutex
	uploads int
}

func (f *fakeBlobs) Upload(_ context.Context, key, _ string, r io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	f.mu.Lock()
	f.uploads++
	f.mu.Unlock()
	return "https://example.test/" + key, nil
}

func (f *fakeBlobs) Delete(_ context.Context, _ string) error { return nil }

type fakeSource struct {
	snaps    chan feed.Snapshot
	stopOnce sync.Once
	stopped  chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{snaps: make(chan feed.Snapshot), stopped: make(chan struct{})}
}

func (f *fakeSource) Next() (feed.Snapshot, error) {
	select {
	case s := <-f.snaps:
		return s, nil
	case <-f.stopped:
		return feed.Snapshot{}, context.Canceled
	}
}

func (f *fakeSource) Stop() { f.stopOnce.Do(func() { close(f.stopped) }) }

type env struct {
	app    *AppCtx
	docs   *fakeDocs
	blobs  *fakeBlobs
	src    *fakeSource
	feeds  <-chan models.Feed
	cancel func()
}

func newEnv(t *testing.T) *env {
	t.Helper()
	docs := &fakeDocs{posts: map[string]models.Post{}}
	blobs := &fakeBlobs{}
	src := newFakeSource()

	fs := feed.New(src)
	go fs.Run()
	t.Cleanup(fs.Close)
	feeds, cancel := fs.Subscribe()
	t.Cleanup(cancel)

	hub := ws.NewHub()
	go hub.Run()

	app := &AppCtx{
		Sessions: &fakeSessions{sessions: map[string]models.Session{
			"tok-ada": {UID: "u1", Email: "a@x.com", DisplayName: "Ada"},
			"tok-bob": {UID: "u2", Email: "bob@x.com", DisplayName: "Bob"},
		}},
		Feed:     fs,
		Composer: board.NewComposer(docs, blobs),
		Hub:      hub,
	}
	return &env{app: app, docs: docs, blobs: blobs, src: src, feeds: feeds, cancel: cancel}
}

// push delivers the store's current contents as the next snapshot and waits
// until the synchronizer has rebuilt.
func (e *env) push() {
	e.src.snaps <- e.docs.snapshot()
	<-e.feeds
}

func doJSON(h http.HandlerFunc, method, target, token string, body any) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

// ---- tests ----

func TestSignupAndMe(t *testing.T) {
	e := newEnv(t)

	rr := doJSON(HandleSignup(e.app), http.MethodPost, "/signup", "", map[string]string{
		"email": "a@x.com", "password": "secret1", "displayName": "Ada",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup status = %d: %s", rr.Code, rr.Body)
	}
	var sess models.Session
	if err := json.Unmarshal(rr.Body.Bytes(), &sess); err != nil {
		t.Fatal(err)
	}
	if sess.DisplayName != "Ada" {
		t.Fatalf("displayName = %q, want Ada", sess.DisplayName)
	}

	rr = doJSON(HandleMe(e.app), http.MethodGet, "/me", "tok-ada", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("/me status = %d", rr.Code)
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &sess); err != nil {
		t.Fatal(err)
	}
	if sess.DisplayName != "Ada" {
		t.Fatalf("/me displayName = %q, want Ada for the dashboard greeting", sess.DisplayName)
	}
}

func TestSignupShortPassword(t *testing.T) {
	e := newEnv(t)
	rr := doJSON(HandleSignup(e.app), http.MethodPost, "/signup", "", map[string]string{
		"email": "a@x.com", "password": "12345",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestLogin(t *testing.T) {
	e := newEnv(t)

	rr := doJSON(HandleLogin(e.app), http.MethodPost, "/login", "", map[string]string{
		"email": "a@x.com", "password": "secret1",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}
	var out struct {
		Tokens session.Tokens `json:"tokens"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Tokens.IDToken == "" {
		t.Fatal("login must return an ID token")
	}

	rr = doJSON(HandleLogin(e.app), http.MethodPost, "/login", "", map[string]string{
		"email": "a@x.com", "password": "nope",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad credentials status = %d, want 401", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "INVALID_PASSWORD") {
		t.Fatalf("identity message not surfaced verbatim: %s", rr.Body)
	}
}

func TestSubmitOversizedJSONBodyRejected(t *testing.T) {
	e := newEnv(t)

	// A JSON body above the request cap must be cut off, not decoded.
	huge := strings.Repeat("x", 17<<20)
	body, _ := json.Marshal(map[string]string{"title": "Hi", "content": huge})
	req := httptest.NewRequest(http.MethodPost, "/posts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer tok-ada")
	rr := httptest.NewRecorder()
	HandlePosts(e.app)(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if len(e.docs.posts) != 0 {
		t.Fatal("no document may be created from an oversized body")
	}
}

func TestSubmitRequiresAuth(t *testing.T) {
	e := newEnv(t)
	rr := doJSON(HandlePosts(e.app), http.MethodPost, "/posts", "", map[string]string{
		"title": "Hi", "content": "<p>Hello</p>",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestSubmitThenFeedShowsPostFirst(t *testing.T) {
	e := newEnv(t)
	e.push() // initial empty snapshot

	rr := doJSON(HandlePosts(e.app), http.MethodPost, "/posts", "tok-ada", map[string]string{
		"title": "Hi", "content": "<p>Hello</p>",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}
	var created models.Post
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ImageURL != "" {
		t.Fatalf("imageUrl = %q, want empty string", created.ImageURL)
	}
	if created.AuthorID != "u1" || created.AuthorName != "Ada" {
		t.Fatalf("author = %s/%s", created.AuthorID, created.AuthorName)
	}

	// The composer never mutates the feed; the snapshot is authoritative.
	e.push()

	rr = doJSON(HandlePosts(e.app), http.MethodGet, "/posts", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /posts status = %d", rr.Code)
	}
	var f models.Feed
	if err := json.Unmarshal(rr.Body.Bytes(), &f); err != nil {
		t.Fatal(err)
	}
	if len(f.Posts) != 1 || f.Posts[0].Title != "Hi" {
		t.Fatalf("feed = %+v", f.Posts)
	}
}

func multipartSubmit(t *testing.T, title, content string, imageName string, imageSize int) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("title", title)
	_ = mw.WriteField("content", content)
	if imageName != "" {
		fw, err := mw.CreateFormFile("image", imageName)
		if err != nil {
			t.Fatal(err)
		}
		// PNG magic so content sniffing sees an image.
		data := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, imageSize-8)...)
		if _, err := fw.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestSubmitOversizedImageRejected(t *testing.T) {
	e := newEnv(t)

	body, ctype := multipartSubmit(t, "Hi", "", "big.png", 6<<20)
	req := httptest.NewRequest(http.MethodPost, "/posts", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Authorization", "Bearer tok-ada")
	rr := httptest.NewRecorder()
	HandlePosts(e.app)(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rr.Code, rr.Body)
	}
	if e.blobs.uploads != 0 {
		t.Fatal("no upload may be attempted for an oversized image")
	}
	if len(e.docs.posts) != 0 {
		t.Fatal("no document may be created for an oversized image")
	}
}

func TestSubmitWithImage(t *testing.T) {
	e := newEnv(t)

	body, ctype := multipartSubmit(t, "Hi", "", "cat.png", 1024)
	req := httptest.NewRequest(http.MethodPost, "/posts", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Authorization", "Bearer tok-ada")
	rr := httptest.NewRecorder()
	HandlePosts(e.app)(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}
	var created models.Post
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(created.ImageURL, "https://example.test/posts/u1/") {
		t.Fatalf("imageUrl = %q", created.ImageURL)
	}
	if e.blobs.uploads != 1 {
		t.Fatalf("uploads = %d, want 1", e.blobs.uploads)
	}
}

func TestDeleteFlow(t *testing.T) {
	e := newEnv(t)
	e.push()

	rr := doJSON(HandlePosts(e.app), http.MethodPost, "/posts", "tok-ada", map[string]string{
		"title": "Hi", "content": "<p>Hello</p>",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("submit status = %d", rr.Code)
	}
	var created models.Post
	_ = json.Unmarshal(rr.Body.Bytes(), &created)
	e.push()

	// Confirmation is required before the remote delete is issued.
	rr = doJSON(HandlePostDetail(e.app), http.MethodDelete, "/posts/"+created.ID, "tok-ada", nil)
	if rr.Code != http.StatusPreconditionRequired {
		t.Fatalf("unconfirmed status = %d, want 428", rr.Code)
	}

	// A non-author session is gated out client-side.
	rr = doJSON(HandlePostDetail(e.app), http.MethodDelete, "/posts/"+created.ID+"?confirm=true", "tok-bob", nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("non-author status = %d, want 403", rr.Code)
	}
	if len(e.docs.posts) != 1 {
		t.Fatal("gated delete must not reach the store")
	}

	rr = doJSON(HandlePostDetail(e.app), http.MethodDelete, "/posts/"+created.ID+"?confirm=true", "tok-ada", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("author delete status = %d: %s", rr.Code, rr.Body)
	}

	// Feed updates on the next notification, not locally.
	e.push()
	if posts := e.app.Feed.Posts(); len(posts) != 0 {
		t.Fatalf("feed still shows %d posts after delete snapshot", len(posts))
	}
}

func TestErrMapping(t *testing.T) {
	rr := httptest.NewRecorder()
	writeErr(rr, board.ErrSubmitInFlight)
	if rr.Code != http.StatusConflict {
		t.Fatalf("in-flight status = %d, want 409", rr.Code)
	}

	rr = httptest.NewRecorder()
	writeErr(rr, &board.WriteError{Err: errors.New("backend down")})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("write error status = %d, want 502", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "backend down") {
		t.Fatal("backend internals must not leak to the user")
	}
}
