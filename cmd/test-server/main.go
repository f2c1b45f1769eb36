package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gostash/tierstore/pkg/tierstore"
)

var store *tierstore.Store

func main() {
	// 1. Configure the store.
	config := tierstore.DefaultConfig()

	// Secure tier: sealed bolt file (stands in for the platform
	// keychain). Generate a throwaway key with:
	//   openssl rand -hex 32
	sealKey := os.Getenv("TIERSTORE_SEAL_KEY")
	if sealKey != "" {
		config.Backends.Secure = tierstore.BackendConfig{
			Type:    "securebolt",
			Path:    "tierstore-secure.db",
			SealKey: sealKey,
		}
	}

	// General tier: plain bolt file. Swap for Redis with:
	// config.Backends.General = tierstore.BackendConfig{
	// 	Type:      "redis",
	// 	Endpoints: []string{"localhost:6379"},
	// 	Namespace: "tierstore",
	// }
	// or DynamoDB (LocalStack) with:
	// config.Backends.General = tierstore.BackendConfig{
	// 	Type:            "dynamodb",
	// 	Region:          "us-east-1",
	// 	TableName:       "tierstore-general",
	// 	Endpoint:        "http://localhost:4566",
	// 	AccessKeyID:     "test",
	// 	SecretAccessKey: "test",
	// }
	config.Backends.General = tierstore.BackendConfig{
		Type: "bolt",
		Path: "tierstore-general.db",
	}

	// 2. Create and initialize the store.
	var err error
	store, err = tierstore.NewFromConfig(config)
	if err != nil {
		logrus.Fatal("failed to create store: ", err)
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.Init(initCtx); err != nil {
		cancel()
		logrus.Fatal("failed to initialize store: ", err)
	}
	cancel()
	defer store.Destroy()

	// 3. Wire HTTP handlers.
	mux := http.NewServeMux()
	mux.HandleFunc("/item", handleItem)
	mux.HandleFunc("/token", handleToken)
	mux.HandleFunc("/stats", handleStats)
	mux.HandleFunc("/health", handleHealth)

	server := &http.Server{
		Addr:    ":8080",
		Handler: mux,
	}

	go func() {
		logrus.Info("test server listening on :8080")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatal("server error: ", err)
		}
	}()

	// 4. Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logrus.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}

// handleItem serves GET/PUT/DELETE on arbitrary keys.
//
//	GET    /item?key=theme
//	PUT    /item?key=theme&batch=1&ttl=5s   (body carries the value)
//	DELETE /item?key=theme
func handleItem(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "key is required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		value, found, err := store.GetItem(r.Context(), key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if !found {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]string{"key": key, "value": value})

	case http.MethodPut:
		var body struct {
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		opts := tierstore.SetOptions{Batch: r.URL.Query().Get("batch") == "1"}
		if ttl := r.URL.Query().Get("ttl"); ttl != "" {
			d, err := time.ParseDuration(ttl)
			if err != nil {
				http.Error(w, "invalid ttl", http.StatusBadRequest)
				return
			}
			opts.TTL = d
		}
		if err := store.SetItem(r.Context(), key, body.Value, opts); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		if err := store.RemoveItem(r.Context(), key, tierstore.RemoveOptions{}); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleToken serves the credential key through the token guard.
func handleToken(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tok, err := store.GetToken(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if tok == "" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]string{"token": tok})

	case http.MethodPut:
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if err := store.SetToken(r.Context(), body.Token); err != nil {
			// The one loud failure: secure storage is unavailable
			// and the token was not persisted anywhere.
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		if err := store.ClearToken(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, store.Stats(r.Context()))
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Error("failed to encode response: ", err)
	}
}
