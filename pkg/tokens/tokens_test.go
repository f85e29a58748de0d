package tokens

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/models"
)

// byteCounter charges one token per byte so expectations are exact.
type byteCounter struct{}

func (byteCounter) CountText(text string) int { return len(text) }

type fakeSizer struct {
	width, height int
	err           error
	calls         atomic.Int32
}

func (f *fakeSizer) Size(_ context.Context, _ string) (int, int, error) {
	f.calls.Add(1)
	return f.width, f.height, f.err
}

func TestImageTokens(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		expected      int
	}{
		{"single tile", 512, 512, 255},
		{"square clamps short side", 1024, 1024, 765},
		{"tall clamps both passes", 2048, 4096, 1105},
		{"small image", 100, 80, 255},
		{"wide panorama", 4096, 1024, 765},
		{"invalid size", 0, 10, 85},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ImageTokens(tt.width, tt.height))
		})
	}
}

func TestEstimateFromChars(t *testing.T) {
	assert.Equal(t, 0, EstimateFromChars(""))
	assert.Equal(t, 1, EstimateFromChars("abc"))
	assert.Equal(t, 1, EstimateFromChars("abcd"))
	assert.Equal(t, 2, EstimateFromChars("abcde"))
}

func TestCounter_TextOnly(t *testing.T) {
	c := NewCounter(byteCounter{}, nil, zap.NewNop())

	msgs := []models.ConversationMessage{
		{Role: models.RoleSystem, Content: []models.ContentPart{models.TextPart("hi")}},
		{Role: models.RoleUser, Content: []models.ContentPart{models.TextPart("hello")}},
	}

	// (3 + len("system") + 2) + (3 + len("user") + 5) + 3
	assert.Equal(t, 11+12+3, c.Count(context.Background(), msgs))
}

func TestCounter_ImagesSizedOnce(t *testing.T) {
	sizer := &fakeSizer{width: 1024, height: 1024}
	c := NewCounter(byteCounter{}, sizer, zap.NewNop())

	msgs := []models.ConversationMessage{
		{Role: models.RoleUser, Content: []models.ContentPart{
			models.TextPart(""),
			models.ImagePart("https://img.example.com/a.png"),
			models.ImagePart("https://img.example.com/a.png"),
		}},
	}

	first := c.Count(context.Background(), msgs)
	second := c.Count(context.Background(), msgs)

	assert.Equal(t, 3+4+765*2+3, first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), sizer.calls.Load())
}

func TestCounter_SizingFailureChargesBase(t *testing.T) {
	sizer := &fakeSizer{err: errors.New("404")}
	c := NewCounter(byteCounter{}, sizer, zap.NewNop())

	msgs := []models.ConversationMessage{
		{Role: models.RoleUser, Content: []models.ContentPart{models.ImagePart("https://x/y.png")}},
	}
	assert.Equal(t, 3+4+LowDetailImageTokens+3, c.Count(context.Background(), msgs))
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestHTTPImageSizer(t *testing.T) {
	body := encodePNG(t, 640, 480)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	sizer := &HTTPImageSizer{client: srv.Client()}

	w, h, err := sizer.Size(context.Background(), srv.URL+"/scan.png")
	require.NoError(t, err)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)

	_, _, err = sizer.Size(context.Background(), srv.URL+"/missing.png")
	assert.Error(t, err)
}

func TestHTTPImageSizer_DataURL(t *testing.T) {
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(encodePNG(t, 32, 16))

	w, h, err := NewHTTPImageSizer(time.Second).Size(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, 32, w)
	assert.Equal(t, 16, h)

	_, _, err = NewHTTPImageSizer(time.Second).Size(context.Background(), "data:text/plain,hello")
	assert.Error(t, err)
}

func TestHTTPImageSizer_RefusesNonPublicTargets(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(encodePNG(t, 8, 8))
	}))
	defer srv.Close()

	sizer := NewHTTPImageSizer(time.Second)
	tests := []struct {
		name string
		url  string
	}{
		{"loopback https", srv.URL + "/a.png"},
		{"plain http", "http://img.example.com/a.png"},
		{"file scheme", "file:///etc/passwd"},
		{"metadata address", "https://169.254.169.254/latest/meta-data"},
		{"private address", "https://10.0.0.1/a.png"},
		{"ipv6 loopback", "https://[::1]/a.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := sizer.Size(context.Background(), tt.url)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrImageURLNotAllowed)
		})
	}
	assert.Zero(t, hits.Load())
}

func TestDialPublicOnly(t *testing.T) {
	tests := []struct {
		address string
		allowed bool
	}{
		{"93.184.216.34:443", true},
		{"[2606:4700::1111]:443", true},
		{"127.0.0.1:443", false},
		{"10.1.2.3:443", false},
		{"172.16.0.1:443", false},
		{"192.168.1.10:80", false},
		{"169.254.169.254:80", false},
		{"0.0.0.0:443", false},
		{"[::1]:443", false},
		{"[fe80::1]:443", false},
		{"[fd00::1]:443", false},
		{"[::ffff:127.0.0.1]:443", false},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			err := dialPublicOnly("tcp", tt.address, nil)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrImageURLNotAllowed)
		})
	}
}

func TestCounter_CacheIsBoundedAndKeyedByDigest(t *testing.T) {
	sizer := &fakeSizer{width: 512, height: 512}
	c := newCounter(byteCounter{}, sizer, zap.NewNop(), 2)
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(encodePNG(t, 4, 4))

	for _, u := range []string{dataURL, "https://x/1.png", "https://x/2.png", "https://x/3.png"} {
		msgs := []models.ConversationMessage{
			{Role: models.RoleUser, Content: []models.ContentPart{models.ImagePart(u)}},
		}
		c.Count(context.Background(), msgs)
	}

	assert.Equal(t, 2, c.images.Len())
	for _, k := range c.images.Keys() {
		key := k.(string)
		assert.Len(t, key, 64)
		assert.False(t, strings.HasPrefix(key, "data:"))
	}
	assert.False(t, c.images.Contains(imageKey(dataURL)))
	assert.True(t, c.images.Contains(imageKey("https://x/3.png")))
}

func TestCounter_MoreImagesThanCacheStillPriced(t *testing.T) {
	sizer := &fakeSizer{width: 1024, height: 1024}
	c := newCounter(byteCounter{}, sizer, zap.NewNop(), 1)

	msgs := []models.ConversationMessage{
		{Role: models.RoleUser, Content: []models.ContentPart{
			models.ImagePart("https://x/a.png"),
			models.ImagePart("https://x/b.png"),
			models.ImagePart("https://x/c.png"),
		}},
	}
	assert.Equal(t, 3+4+765*3+3, c.Count(context.Background(), msgs))
	assert.Equal(t, int32(3), sizer.calls.Load())
}
