package channel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"smsgate/internal/domain"
)

// WebhookConfig configures the webhook channel.
type WebhookConfig struct {
	Host   string
	Port   int
	Path   string // webhook URL path (default: /sms)
	Secret string // HMAC secret for verifying webhook signatures
	Logger *slog.Logger
}

// Webhook receives SMS events as HTTP POST requests from a telephony
// provider or a phone-side relay app.
type Webhook struct {
	host   string
	port   int
	path   string
	secret string
	queue  domain.EventQueue
	logger *slog.Logger
	mux    *http.ServeMux
	server *http.Server
}

// NewWebhook creates a new webhook channel handler.
func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Path == "" {
		cfg.Path = "/sms"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	w := &Webhook{
		host:   cfg.Host,
		port:   cfg.Port,
		path:   cfg.Path,
		secret: cfg.Secret,
		logger: cfg.Logger,
		mux:    http.NewServeMux(),
	}
	w.mux.HandleFunc(w.path, w.handleWebhook)
	w.mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.Write([]byte(`{"status":"ok"}`))
	})
	return w
}

func (w *Webhook) Name() string { return "webhook" }

// Handle mounts an extra handler (for example /metrics) on the webhook server.
func (w *Webhook) Handle(pattern string, h http.Handler) {
	w.mux.Handle(pattern, h)
}

// Handler exposes the mux for tests and embedding.
func (w *Webhook) Handler() http.Handler { return w.mux }

// Addr is the listen address.
func (w *Webhook) Addr() string {
	return net.JoinHostPort(w.host, strconv.Itoa(w.port))
}

// Start begins the webhook HTTP server and blocks until ctx ends.
func (w *Webhook) Start(ctx context.Context, queue domain.EventQueue) error {
	w.queue = queue

	w.server = &http.Server{
		Addr:              w.Addr(),
		Handler:           w.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	w.logger.Info("webhook server starting", "addr", w.server.Addr, "path", w.path)

	errCh := make(chan error, 1)
	go func() {
		if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("webhook server shutting down")
		return w.Stop()
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}

// Stop shuts the server down, waiting up to 5 seconds for open requests.
func (w *Webhook) Stop() error {
	if w.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return w.server.Shutdown(shutdownCtx)
}

func (w *Webhook) handleWebhook(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if w.queue == nil {
		http.Error(rw, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB max
	if err != nil {
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	// Verify HMAC signature if secret is configured.
	if w.secret != "" {
		sig := r.Header.Get("X-Signature-256")
		if sig == "" {
			http.Error(rw, "Missing signature", http.StatusUnauthorized)
			return
		}
		if !verifyHMAC(body, w.secret, sig) {
			http.Error(rw, "Invalid signature", http.StatusForbidden)
			return
		}
	}

	var payload EventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(rw, "Invalid JSON", http.StatusBadRequest)
		return
	}

	evt, err := payload.ToEvent(w.Name())
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}

	w.logger.Info("webhook received",
		"event_id", evt.ID,
		"parts", len(evt.Fragments),
		"subscription", evt.SubscriptionID,
	)

	w.queue.Publish(evt)

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusAccepted)
	json.NewEncoder(rw).Encode(map[string]string{
		"status":   "accepted",
		"event_id": evt.ID,
	})
}

// verifyHMAC verifies the HMAC-SHA256 signature of the body.
func verifyHMAC(body []byte, secret, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
