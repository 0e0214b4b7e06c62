// main.go
package main

import (
	"context"
	"log"
	"net/http"

	"local.dev/nexboard-backend/internal/board"
	"local.dev/nexboard-backend/internal/config"
	"local.dev/nexboard-backend/internal/feed"
	"local.dev/nexboard-backend/internal/fire"
	"local.dev/nexboard-backend/internal/httpx"
	"local.dev/nexboard-backend/internal/session"
	"local.dev/nexboard-backend/internal/ws"
)

func main() {
	ctx := context.Background()

	cfg := config.Load()
	app := config.NewApp(ctx, cfg)
	authClient := config.NewAuthClient(ctx, app)
	fsClient := config.NewFirestoreClient(ctx, app)
	defer fsClient.Close()
	bucket := config.NewBucket(ctx, app)

	sessions := session.NewProvider(authClient, cfg.WebAPIKey)
	posts := fire.NewPosts(fsClient, cfg.PostsCollection)
	composer := board.NewComposer(posts, fire.NewBucket(bucket, cfg.StorageBucket))

	// One standing subscription for the whole process; everything reads the
	// mirror or listens for republished feeds.
	feedSync := feed.New(posts.Listen(ctx))
	go feedSync.Run()
	defer feedSync.Close()

	hub := ws.NewHub()
	go hub.Run()

	feedCh, cancelFeed := feedSync.Subscribe()
	defer cancelFeed()
	go func() {
		for f := range feedCh {
			hub.Broadcast(f)
		}
	}()

	events, cancelWatch := sessions.Watch()
	defer cancelWatch()
	go func() {
		for ev := range events {
			log.Printf("session: %s uid=%s", ev.Type, ev.Session.UID)
		}
	}()

	appCtx := &httpx.AppCtx{
		Sessions: sessions,
		Feed:     feedSync,
		Composer: composer,
		Hub:      hub,
		Cfg:      cfg,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpx.HandleHealthz())
	mux.HandleFunc("/signup", httpx.HandleSignup(appCtx))
	mux.HandleFunc("/login", httpx.HandleLogin(appCtx))
	mux.HandleFunc("/logout", httpx.HandleLogout(appCtx))
	mux.HandleFunc("/me", httpx.HandleMe(appCtx))
	mux.HandleFunc("/posts", httpx.HandlePosts(appCtx))
	mux.HandleFunc("/posts/", httpx.HandlePostDetail(appCtx))
	mux.HandleFunc("/ws/feed", httpx.HandleFeedWS(appCtx))

	addr := ":" + cfg.Port
	log.Println("Server listening on", addr, "project=", cfg.ProjectID)
	if err := http.ListenAndServe(addr, httpx.CORS(mux)); err != nil {
		log.Fatal(err)
	}
}
