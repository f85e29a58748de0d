package tokens

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sheetsmith/sheetsmith-engine/pkg/models"
)

const (
	// MessageOverhead is charged once per message for role and separators.
	MessageOverhead = 3
	// ReplyPriming is charged once per request for the assistant reply header.
	ReplyPriming = 3

	sizingConcurrency = 4
	imageCacheSize    = 1024
)

// Counter prices a whole message list. Image costs are kept in a bounded LRU
// keyed by the digest of the URL, so repeated counting during eviction sizes
// each image once without retaining client supplied URLs.
type Counter struct {
	text   TextCounter
	sizer  ImageSizer
	logger *zap.Logger
	images *lru.Cache
}

// NewCounter creates a message counter. A nil sizer charges every image the
// low-detail base cost.
func NewCounter(text TextCounter, sizer ImageSizer, logger *zap.Logger) *Counter {
	return newCounter(text, sizer, logger, imageCacheSize)
}

func newCounter(text TextCounter, sizer ImageSizer, logger *zap.Logger, cacheSize int) *Counter {
	images, err := lru.New(cacheSize)
	if err != nil {
		panic(fmt.Sprintf("invalid image cache size %d: %v", cacheSize, err))
	}
	return &Counter{
		text:   text,
		sizer:  sizer,
		logger: logger.Named("tokens"),
		images: images,
	}
}

// Count returns the prompt cost of msgs including reply priming.
func (c *Counter) Count(ctx context.Context, msgs []models.ConversationMessage) int {
	costs := c.imageCosts(ctx, msgs)

	total := ReplyPriming
	for i := range msgs {
		total += c.countMessage(&msgs[i], costs)
	}
	return total
}

func (c *Counter) countMessage(msg *models.ConversationMessage, costs map[string]int) int {
	n := MessageOverhead + c.text.CountText(string(msg.Role))
	for _, part := range msg.Content {
		switch part.Type {
		case models.PartTypeText:
			n += c.text.CountText(part.Text)
		case models.PartTypeImageURL:
			if part.ImageURL != nil {
				n += costs[imageKey(part.ImageURL.URL)]
			}
		}
	}
	return n
}

// imageCosts resolves the cost of every distinct image in msgs, from the cache
// where possible and by sizing the rest concurrently.
func (c *Counter) imageCosts(ctx context.Context, msgs []models.ConversationMessage) map[string]int {
	costs := make(map[string]int)
	var pending []string
	for _, msg := range msgs {
		for _, part := range msg.Content {
			if part.Type != models.PartTypeImageURL || part.ImageURL == nil {
				continue
			}
			url := part.ImageURL.URL
			key := imageKey(url)
			if _, ok := costs[key]; ok {
				continue
			}
			if v, ok := c.images.Get(key); ok {
				costs[key] = v.(int)
				continue
			}
			costs[key] = LowDetailImageTokens
			pending = append(pending, url)
		}
	}
	if len(pending) == 0 {
		return costs
	}

	sized := make([]int, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sizingConcurrency)
	for i, url := range pending {
		g.Go(func() error {
			sized[i] = c.sizeImage(gctx, url)
			return nil
		})
	}
	_ = g.Wait()

	for i, url := range pending {
		key := imageKey(url)
		costs[key] = sized[i]
		c.images.Add(key, sized[i])
	}
	return costs
}

func imageKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func (c *Counter) sizeImage(ctx context.Context, url string) int {
	if c.sizer == nil {
		return LowDetailImageTokens
	}
	w, h, err := c.sizer.Size(ctx, url)
	if err != nil {
		c.logger.Debug("Image sizing failed, charging base cost",
			zap.String("url", truncateURL(url)),
			zap.Error(err))
		return LowDetailImageTokens
	}
	return ImageTokens(w, h)
}

func truncateURL(url string) string {
	const max = 80
	if len(url) <= max {
		return url
	}
	return url[:max] + "..."
}
