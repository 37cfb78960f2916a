package capability_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptreel/internal/capability"
	"scriptreel/internal/services"
)

func TestHTTPVendorPostsRequestAndReturnsURL(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/video", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"url":"https://cdn.example/clip.mp4"}`))
	}))
	defer srv.Close()

	vendor := capability.NewHTTPVendor(srv.URL+"/", "secret", 0, 1)
	url, err := vendor.GenerateVideo(context.Background(), capability.VideoRequest{
		Prompt:            "a rainy kitchen",
		ReferenceImageURL: "https://cdn.example/kitchen.png",
		Duration:          4,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/clip.mp4", url)
	assert.Equal(t, "https://cdn.example/kitchen.png", got["reference_image_url"])
	assert.EqualValues(t, 4, got["duration"])
}

func TestHTTPVendorClassifiesStatus(t *testing.T) {
	cases := []struct {
		status int
		marker error
	}{
		{http.StatusRequestTimeout, services.ErrGenerationTransient},
		{http.StatusTooManyRequests, services.ErrGenerationTransient},
		{http.StatusBadGateway, services.ErrGenerationTransient},
		{http.StatusServiceUnavailable, services.ErrGenerationTransient},
		{http.StatusBadRequest, services.ErrGenerationPermanent},
		{http.StatusUnauthorized, services.ErrGenerationPermanent},
		{http.StatusUnprocessableEntity, services.ErrGenerationPermanent},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "vendor says no", tc.status)
		}))
		vendor := capability.NewHTTPVendor(srv.URL, "", 0, 1)
		_, err := vendor.Synthesize(context.Background(), capability.SpeechRequest{Text: "hello"})
		srv.Close()

		require.Error(t, err, "status %d", tc.status)
		assert.True(t, errors.Is(err, tc.marker), "status %d: %v", tc.status, err)
		assert.Contains(t, err.Error(), "vendor says no")
	}
}

func TestHTTPVendorTimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	vendor := capability.NewHTTPVendor(srv.URL, "", 0, 1,
		capability.WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	_, err := vendor.GenerateImage(context.Background(), capability.ImageRequest{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrGenerationTransient), "got %v", err)
	assert.True(t, services.Retryable(err))
}

func TestHTTPVendorRejectsMissingURLAndEmptyPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	vendor := capability.NewHTTPVendor(srv.URL, "", 0, 1)

	_, err := vendor.GenerateSound(context.Background(), capability.SoundRequest{Prompt: "thunder", Kind: capability.SoundEffect})
	assert.True(t, errors.Is(err, services.ErrGenerationPermanent), "got %v", err)

	_, err = vendor.GenerateImage(context.Background(), capability.ImageRequest{Prompt: "   "})
	assert.True(t, errors.Is(err, services.ErrGenerationPermanent), "got %v", err)

	_, err = vendor.Sync(context.Background(), capability.LipSyncRequest{VideoURL: "v"})
	assert.True(t, errors.Is(err, services.ErrGenerationPermanent), "got %v", err)
}

func TestHTTPVendorHonoursCancellation(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"url":"u"}`))
	}))
	defer srv.Close()

	vendor := capability.NewHTTPVendor(srv.URL, "", 0.001, 1)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := vendor.Synthesize(ctx, capability.SpeechRequest{Text: "first"})
	require.NoError(t, err)

	cancel()
	_, err = vendor.Synthesize(ctx, capability.SpeechRequest{Text: "second"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPVendorPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	require.NoError(t, capability.NewHTTPVendor(srv.URL, "", 0, 1).Ping(context.Background()))

	err := capability.NewHTTPVendor("", "", 0, 1).Ping(context.Background())
	assert.ErrorIs(t, err, services.ErrConfiguration)
}
