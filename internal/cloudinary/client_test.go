package cloudinary

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srvURL, secret string) *Client {
	c := New("demo", "key", secret, "tuition", "fees")
	c.BaseURL = srvURL
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	return c
}

func TestUploadUnsigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/demo/image/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "tuition", r.FormValue("upload_preset"))
		assert.Equal(t, "fees", r.FormValue("folder"))
		assert.Empty(t, r.FormValue("signature"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "shot.jpg", hdr.Filename)
		assert.Equal(t, []byte("img"), data)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"public_id":"fees/abc","secure_url":"https://res.example/fees/abc.jpg"}`)
	}))
	defer srv.Close()

	url, err := newTestClient(srv.URL, "").Upload(context.Background(), []byte("img"), "shot.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://res.example/fees/abc.jpg", url)
}

func TestUploadSigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "key", r.FormValue("api_key"))
		assert.Equal(t, "1700000000", r.FormValue("timestamp"))

		payload := "folder=fees&timestamp=1700000000&upload_preset=tuitionsecret"
		want := fmt.Sprintf("%x", sha1.Sum([]byte(payload)))
		assert.Equal(t, want, r.FormValue("signature"))
		fmt.Fprint(w, `{"secure_url":"https://res.example/x.jpg"}`)
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL, "secret").UploadBytes(context.Background(), []byte("img"), "x.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://res.example/x.jpg", res.SecureURL)
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusBadGateway, body: `{"error":{"message":"down"}}`},
		{name: "bad json", status: http.StatusOK, body: `not json`},
		{name: "no secure url", status: http.StatusOK, body: `{"public_id":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL, "").Upload(context.Background(), []byte("img"), "x.jpg")
			assert.Error(t, err)
		})
	}
}

func TestUploadRejectsEmpty(t *testing.T) {
	_, err := New("demo", "", "", "p", "").Upload(context.Background(), nil, "x.jpg")
	assert.Error(t, err)
}
