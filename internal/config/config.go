package config

import (
	"context"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	cloudstorage "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

// Config is read once from the environment at startup.
type Config struct {
	Port            string
	ProjectID       string
	StorageBucket   string
	WebAPIKey       string // Identity Toolkit key for password sign-in
	PostsCollection string
}

func Load() Config {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := Config{
		Port:            getenv("PORT", "8088"),
		ProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
		StorageBucket:   os.Getenv("FIREBASE_STORAGE_BUCKET"),
		WebAPIKey:       os.Getenv("FIREBASE_WEB_API_KEY"),
		PostsCollection: getenv("POSTS_COLLECTION", "posts"),
	}
	if cfg.ProjectID == "" {
		log.Fatal("FIREBASE_PROJECT_ID not set")
	}
	if cfg.StorageBucket == "" {
		cfg.StorageBucket = cfg.ProjectID + ".firebasestorage.app"
	}
	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// NewApp builds the Firebase app from credentials in the environment.
// Set FIREBASE_SERVICE_ACCOUNT_JSON or GOOGLE_APPLICATION_CREDENTIALS,
// or point FIREBASE_AUTH_EMULATOR_HOST / FIRESTORE_EMULATOR_HOST at the
// emulators for local work.
func NewApp(ctx context.Context, cfg Config) *firebase.App {
	var opts []option.ClientOption
	if saJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"); saJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(saJSON)))
	} else if cred := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); cred != "" {
		if _, err := os.Stat(cred); err != nil {
			log.Fatalf("GOOGLE_APPLICATION_CREDENTIALS %q not readable: %v", cred, err)
		}
		opts = append(opts, option.WithCredentialsFile(cred))
	} else if os.Getenv("FIREBASE_AUTH_EMULATOR_HOST") == "" && os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		log.Fatal("Missing Firebase credentials. Set FIREBASE_SERVICE_ACCOUNT_JSON or GOOGLE_APPLICATION_CREDENTIALS, or use the emulators")
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     cfg.ProjectID,
		StorageBucket: cfg.StorageBucket,
	}, opts...)
	if err != nil {
		log.Fatalf("firebase init: %v", err)
	}
	return app
}

func NewAuthClient(ctx context.Context, app *firebase.App) *auth.Client {
	client, err := app.Auth(ctx)
	if err != nil {
		log.Fatalf("firebase auth: %v", err)
	}
	return client
}

func NewFirestoreClient(ctx context.Context, app *firebase.App) *firestore.Client {
	client, err := app.Firestore(ctx)
	if err != nil {
		log.Fatalf("firestore: %v", err)
	}
	return client
}

func NewBucket(ctx context.Context, app *firebase.App) *cloudstorage.BucketHandle {
	sc, err := app.Storage(ctx)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	bucket, err := sc.DefaultBucket()
	if err != nil {
		log.Fatalf("storage bucket: %v", err)
	}
	return bucket
}
