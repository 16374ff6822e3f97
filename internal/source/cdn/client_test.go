package cdn

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownload(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/props/ol donyo/pool.jpg":
			w.Header().Set("Content-Type", "image/jpeg; charset=binary")
			w.Write([]byte("jpegbytes"))
		case "/flaky.png":
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("png"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", Timeout: 5 * time.Second})

	asset, err := c.Download(context.Background(), "props/ol donyo/pool.jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", asset.ContentType)
	assert.Equal(t, []byte("jpegbytes"), asset.Data)

	asset, err = c.Download(context.Background(), "/flaky.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", asset.ContentType)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	_, err = c.Download(context.Background(), "missing.jpg")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		if r.URL.Path == "/videos/ol-donyo-lodge.mp4" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, VideoURLPattern: srv.URL + "/videos/{slug}.mp4"})

	ok, err := c.Exists(context.Background(), c.VideoURL("Ol Donyo Lodge"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Exists(context.Background(), c.VideoURL("Mara Camp"))
	require.NoError(t, err)
	assert.False(t, ok, "non-2xx means absent, not an error")
}

func TestVideoURL(t *testing.T) {
	c := NewClient(Config{VideoURLPattern: "https://cdn.example.com/videos/{slug}.mp4?n={name}"})
	assert.Equal(t, "https://cdn.example.com/videos/sasaab-lodge.mp4?n=Sasaab%20Lodge", c.VideoURL(" Sasaab Lodge "))
	assert.Equal(t, "", c.VideoURL(""))

	assert.Equal(t, "", NewClient(Config{}).VideoURL("Sasaab"))
}

func TestURL(t *testing.T) {
	c := NewClient(Config{BaseURL: "https://cdn.example.com/"})
	assert.Equal(t, "https://cdn.example.com/a/b%20c.jpg", c.URL("/a/b c.jpg"))
	assert.Equal(t, "https://other.example.com/x.jpg", c.URL("https://other.example.com/x.jpg"))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "ol-donyo-lodge", Slugify("Ol Donyo  Lodge!"))
	assert.Equal(t, "cottar-s-1920s-camp", Slugify("Cottar's 1920s Camp"))
}
