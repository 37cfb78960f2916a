package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"scriptreel/internal/config"
	"scriptreel/internal/services"
)

const (
	defaultVendorTimeout = 2 * time.Minute
	vendorHeaderAPIKey   = "x-api-key"
	maxErrorBody         = 512

	opSpeech  = "speech"
	opImage   = "image"
	opVideo   = "video"
	opSound   = "sound"
	opLipSync = "lipsync"
)

// HTTPVendor calls a JSON media gateway. Each operation is POST {base}/{op}
// with the request as body and a {"url": ...} response.
type HTTPVendor struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

var (
	_ TextToSpeech = (*HTTPVendor)(nil)
	_ TextToImage  = (*HTTPVendor)(nil)
	_ TextToVideo  = (*HTTPVendor)(nil)
	_ TextToSound  = (*HTTPVendor)(nil)
	_ LipSync      = (*HTTPVendor)(nil)
)

// VendorOption customizes an HTTPVendor.
type VendorOption func(*HTTPVendor)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) VendorOption {
	return func(v *HTTPVendor) {
		if client != nil {
			v.http = client
		}
	}
}

// WithLimiter overrides the request limiter. A nil limiter disables throttling.
func WithLimiter(limiter *rate.Limiter) VendorOption {
	return func(v *HTTPVendor) {
		v.limiter = limiter
	}
}

// NewHTTPVendor constructs a gateway client. Requests are limited to
// requestsPerSecond with the given burst.
func NewHTTPVendor(baseURL, apiKey string, requestsPerSecond float64, burst int, opts ...VendorOption) *HTTPVendor {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	v := &HTTPVendor{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		http:    &http.Client{Timeout: defaultVendorTimeout},
		limiter: rate.NewLimiter(limit, burst),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// NewHTTPVendorFromConfig wires the gateway from the vendor and generation
// sections of cfg.
func NewHTTPVendorFromConfig(cfg *config.Config, opts ...VendorOption) *HTTPVendor {
	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = defaultVendorTimeout
	}
	base := []VendorOption{WithHTTPClient(&http.Client{Timeout: timeout})}
	return NewHTTPVendor(cfg.Vendor.BaseURL, cfg.Vendor.APIKey, cfg.Generation.RequestsPerSecond, cfg.Generation.Burst, append(base, opts...)...)
}

// Synthesize implements TextToSpeech.
func (v *HTTPVendor) Synthesize(ctx context.Context, req SpeechRequest) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", services.Wrap(services.ErrGenerationPermanent, "vendor", opSpeech, "empty text", nil)
	}
	return v.post(ctx, opSpeech, req)
}

// GenerateImage implements TextToImage.
func (v *HTTPVendor) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", services.Wrap(services.ErrGenerationPermanent, "vendor", opImage, "empty prompt", nil)
	}
	return v.post(ctx, opImage, req)
}

// GenerateVideo implements TextToVideo.
func (v *HTTPVendor) GenerateVideo(ctx context.Context, req VideoRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", services.Wrap(services.ErrGenerationPermanent, "vendor", opVideo, "empty prompt", nil)
	}
	return v.post(ctx, opVideo, req)
}

// GenerateSound implements TextToSound.
func (v *HTTPVendor) GenerateSound(ctx context.Context, req SoundRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", services.Wrap(services.ErrGenerationPermanent, "vendor", opSound, "empty prompt", nil)
	}
	return v.post(ctx, opSound, req)
}

// Sync implements LipSync.
func (v *HTTPVendor) Sync(ctx context.Context, req LipSyncRequest) (string, error) {
	if req.VideoURL == "" || req.AudioURL == "" {
		return "", services.Wrap(services.ErrGenerationPermanent, "vendor", opLipSync, "video and audio urls are required", nil)
	}
	return v.post(ctx, opLipSync, req)
}

// Ping checks that the gateway answers GET {base}/health.
func (v *HTTPVendor) Ping(ctx context.Context) error {
	if v == nil || v.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "vendor", "ping", "vendor base url not configured", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("vendor: build health request: %w", err)
	}
	v.authorize(req)
	resp, err := v.http.Do(req)
	if err != nil {
		return classifyTransport("ping", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus("ping", resp.StatusCode, "")
	}
	return nil
}

type vendorResponse struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

func (v *HTTPVendor) post(ctx context.Context, op string, payload any) (string, error) {
	if v == nil {
		return "", fmt.Errorf("vendor: nil client")
	}
	if v.baseURL == "" {
		return "", services.Wrap(services.ErrConfiguration, "vendor", op, "vendor base url not configured", nil)
	}
	if v.limiter != nil {
		if err := v.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", services.Wrap(services.ErrGenerationTransient, "vendor", op, "rate limiter", err)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", services.Wrap(services.ErrGenerationPermanent, "vendor", op, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/"+op, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("vendor: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	v.authorize(req)

	resp, err := v.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return "", ctxErr
		}
		return "", classifyTransport(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransport(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", classifyStatus(op, resp.StatusCode, string(raw))
	}

	var parsed vendorResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", services.Wrap(services.ErrGenerationPermanent, "vendor", op, "decode response", err)
	}
	if strings.TrimSpace(parsed.URL) == "" {
		return "", services.Wrap(services.ErrGenerationPermanent, "vendor", op, "response carried no url", nil)
	}
	return parsed.URL, nil
}

func (v *HTTPVendor) authorize(req *http.Request) {
	if v.apiKey != "" {
		req.Header.Set(vendorHeaderAPIKey, v.apiKey)
	}
}

// classifyStatus maps an HTTP status to a generation marker. Timeouts,
// throttling and server errors are transient; other client errors are
// permanent.
func classifyStatus(op string, status int, body string) error {
	msg := fmt.Sprintf("unexpected status %d", status)
	if detail := truncate(strings.TrimSpace(body), maxErrorBody); detail != "" {
		msg += ": " + detail
	}
	marker := services.ErrGenerationPermanent
	if IsTransientStatus(status) {
		marker = services.ErrGenerationTransient
	}
	return services.Wrap(marker, "vendor", op, msg, nil)
}

// IsTransientStatus reports whether a vendor status code is worth retrying.
func IsTransientStatus(status int) bool {
	return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500
}

func classifyTransport(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrGenerationTransient, "vendor", op, "request timed out", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrGenerationTransient, "vendor", op, "request timed out", err)
	}
	return services.Wrap(services.ErrGenerationTransient, "vendor", op, "request failed", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
