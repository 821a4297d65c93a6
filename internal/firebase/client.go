package firebase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"library-circulation/internal/config"
)

// Client is the durable catalog and outbox store backed by Firestore.
type Client struct {
	App       *firebase.App
	Firestore *firestore.Client
}

// InitFirebase connects to Firestore.
// With FIRESTORE_EMULATOR_HOST set no credentials are needed.
func InitFirebase(ctx context.Context, cfg config.FirebaseConfig) (*Client, error) {
	if cfg.EmulatorHost != "" {
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("FIREBASE_PROJECT_ID is required with the Firestore emulator")
		}
		fs, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("firestore emulator client: %w", err)
		}
		slog.Info("firestore emulator connected", "host", cfg.EmulatorHost, "project", cfg.ProjectID)
		return &Client{Firestore: fs}, nil
	}

	var opt option.ClientOption
	switch {
	case cfg.CredentialsPath != "":
		if _, err := os.Stat(cfg.CredentialsPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("credentials file does not exist: %s", cfg.CredentialsPath)
		}
		opt = option.WithCredentialsFile(cfg.CredentialsPath)
	case cfg.CredentialsJSON != "":
		opt = option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))
	default:
		return nil, fmt.Errorf("FIREBASE_CREDENTIALS_PATH or FIREBASE_CREDENTIALS_JSON must be set")
	}

	var appCfg *firebase.Config
	if cfg.ProjectID != "" {
		appCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, appCfg, opt)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}

	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}

	slog.Info("firebase initialised")
	return &Client{App: app, Firestore: fs}, nil
}

// Close closes the Firestore connection.
func (c *Client) Close() error {
	if c.Firestore != nil {
		return c.Firestore.Close()
	}
	return nil
}

// Ping reads at most one branch document to prove Firestore is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Firestore.Collection(BranchesCollection).Limit(1).Documents(ctx).Next()
	if err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("firestore ping: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func isAlreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}
