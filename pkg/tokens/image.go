package tokens

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"
)

const (
	maxImageSide      = 2048
	shortImageSide    = 768
	imageTileSize     = 512
	tokensPerTile     = 170
	imageBaseTokens   = 85
	maxHeaderBytes    = 1 << 20
	maxImageRedirects = 3
	dataURLPrefix     = "data:"
	dataURLB64Marker  = ";base64,"
)

// LowDetailImageTokens is the flat cost charged when an image cannot be sized.
const LowDetailImageTokens = imageBaseTokens

// ImageTokens returns the high-detail cost of a w x h image. The image is first
// scaled so that its longest side is at most 2048, then so that its shortest
// side is at most 768, and is then billed per 512px tile.
//
//	ImageTokens(1024, 1024) // 765
//	ImageTokens(2048, 4096) // 1105
func ImageTokens(width, height int) int {
	if width <= 0 || height <= 0 {
		return imageBaseTokens
	}
	w, h := float64(width), float64(height)

	if longest := math.Max(w, h); longest > maxImageSide {
		scale := maxImageSide / longest
		w, h = w*scale, h*scale
	}
	if shortest := math.Min(w, h); shortest > shortImageSide {
		scale := shortImageSide / shortest
		w, h = w*scale, h*scale
	}

	tiles := math.Ceil(math.Floor(w)/imageTileSize) * math.Ceil(math.Floor(h)/imageTileSize)
	return tokensPerTile*int(tiles) + imageBaseTokens
}

// ImageSizer reports the pixel dimensions of an image reference.
type ImageSizer interface {
	Size(ctx context.Context, url string) (width, height int, err error)
}

// ErrImageURLNotAllowed marks a URL the sizer refuses to fetch.
var ErrImageURLNotAllowed = errors.New("image URL not allowed")

// HTTPImageSizer fetches images and decodes only their header. data: URLs are
// decoded in place.
type HTTPImageSizer struct {
	client   *http.Client
	checkURL func(*url.URL) error
}

var _ ImageSizer = (*HTTPImageSizer)(nil)

// NewHTTPImageSizer creates a sizer for client supplied URLs. Only https URLs
// are fetched, redirects included, and connections to loopback, private,
// link-local or unspecified addresses are refused after name resolution.
func NewHTTPImageSizer(timeout time.Duration) *HTTPImageSizer {
	dialer := &net.Dialer{Timeout: timeout, Control: dialPublicOnly}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: timeout,
		MaxIdleConns:        16,
		IdleConnTimeout:     90 * time.Second,
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxImageRedirects {
				return fmt.Errorf("stopped after %d redirects", len(via))
			}
			return requireHTTPS(req.URL)
		},
	}
	return &HTTPImageSizer{client: client, checkURL: requireHTTPS}
}

func requireHTTPS(u *url.URL) error {
	if u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrImageURLNotAllowed, u.Scheme)
	}
	return nil
}

// dialPublicOnly rejects connections to addresses that are not publicly
// routable. It runs on the resolved address, so DNS answers cannot bypass it.
func dialPublicOnly(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrImageURLNotAllowed, address)
	}
	addr := ap.Addr().Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() || addr.IsMulticast() {
		return fmt.Errorf("%w: %s is not a public address", ErrImageURLNotAllowed, addr)
	}
	return nil
}

// Size returns the width and height of the image at rawURL.
func (s *HTTPImageSizer) Size(ctx context.Context, rawURL string) (int, int, error) {
	if strings.HasPrefix(rawURL, dataURLPrefix) {
		return sizeDataURL(rawURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrImageURLNotAllowed, err)
	}
	if s.checkURL != nil {
		if err := s.checkURL(u); err != nil {
			return 0, 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to build image request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("failed to fetch image: status %d", resp.StatusCode)
	}

	cfg, _, err := image.DecodeConfig(io.LimitReader(resp.Body, maxHeaderBytes))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

func sizeDataURL(dataURL string) (int, int, error) {
	idx := strings.Index(dataURL, dataURLB64Marker)
	if idx < 0 {
		return 0, 0, fmt.Errorf("unsupported data URL encoding")
	}
	raw, err := base64.StdEncoding.DecodeString(dataURL[idx+len(dataURLB64Marker):])
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode data URL: %w", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
