package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects the backing store
type StorageKind string

const (
	StorageMemory    StorageKind = "memory"
	StorageFirestore StorageKind = "firestore"
)

// Config holds the gateway configuration, loaded from the environment
type Config struct {
	// Addr is the listen address, e.g. ":8080"
	Addr string

	// BaseURL is the public URL this gateway is served from, advertised to
	// SSE clients as the message endpoint base. Discovery metadata and
	// challenge URIs derive from the request origin instead.
	BaseURL string

	// AuthServerURL is the base URL of the upstream authorization server
	AuthServerURL string

	// ClientID and ClientSecret identify this gateway to the upstream
	// authorization server
	ClientID     string
	ClientSecret Secret

	// Storage selects the marker/todo store backend
	Storage StorageKind

	// GCPProject and FirestoreDatabase configure the firestore backend
	GCPProject        string
	FirestoreDatabase string
}

// Load reads configuration from the environment and validates it
func Load() (Config, error) {
	cfg := Config{
		Addr:              getenv("TASKGATE_ADDR", ":8080"),
		BaseURL:           os.Getenv("TASKGATE_BASE_URL"),
		AuthServerURL:     strings.TrimRight(os.Getenv("AUTH_SERVER_URL"), "/"),
		ClientID:          os.Getenv("AUTH_CLIENT_ID"),
		ClientSecret:      Secret(os.Getenv("AUTH_CLIENT_SECRET")),
		Storage:           StorageKind(getenv("TASKGATE_STORAGE", string(StorageMemory))),
		GCPProject:        os.Getenv("GCP_PROJECT"),
		FirestoreDatabase: getenv("FIRESTORE_DATABASE", "(default)"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required fields and URL shapes
func (c Config) Validate() error {
	if c.AuthServerURL == "" {
		return fmt.Errorf("AUTH_SERVER_URL is required")
	}
	if u, err := url.Parse(c.AuthServerURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("AUTH_SERVER_URL %q is not an absolute URL", c.AuthServerURL)
	}
	if c.ClientID == "" {
		return fmt.Errorf("AUTH_CLIENT_ID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("AUTH_CLIENT_SECRET is required")
	}
	if c.BaseURL != "" {
		if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("TASKGATE_BASE_URL %q is not an absolute URL", c.BaseURL)
		}
	}
	switch c.Storage {
	case StorageMemory:
	case StorageFirestore:
		if c.GCPProject == "" {
			return fmt.Errorf("GCP_PROJECT is required when TASKGATE_STORAGE=firestore")
		}
	default:
		return fmt.Errorf("unknown TASKGATE_STORAGE %q", c.Storage)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
