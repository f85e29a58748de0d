// Package tokens estimates how many context-window tokens a conversation costs.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Encoding is the tokenizer used for every text count.
const Encoding = "cl100k_base"

// fallbackCharsPerToken is used when the tokenizer cannot be loaded.
const fallbackCharsPerToken = 4

var (
	encoder     *tiktoken.Tiktoken
	encoderOnce sync.Once
	encoderErr  error
)

func getEncoder() (*tiktoken.Tiktoken, error) {
	encoderOnce.Do(func() {
		encoder, encoderErr = tiktoken.GetEncoding(Encoding)
	})
	return encoder, encoderErr
}

// TextCounter counts tokens in plain text.
type TextCounter interface {
	CountText(text string) int
}

// Tiktoken counts text with the cl100k_base encoding. If the encoding cannot be
// loaded (no network for the BPE file, for example) it falls back to a
// character estimate and logs once.
type Tiktoken struct {
	logger   *zap.Logger
	warnOnce sync.Once
}

var _ TextCounter = (*Tiktoken)(nil)

// NewTiktoken creates a text counter.
func NewTiktoken(logger *zap.Logger) *Tiktoken {
	return &Tiktoken{logger: logger.Named("tokens")}
}

// CountText returns the token count of text.
func (t *Tiktoken) CountText(text string) int {
	if text == "" {
		return 0
	}
	enc, err := getEncoder()
	if err != nil {
		t.warnOnce.Do(func() {
			t.logger.Warn("Tokenizer unavailable, using character estimate",
				zap.String("encoding", Encoding),
				zap.Error(err))
		})
		return EstimateFromChars(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// EstimateFromChars approximates a token count from the text length.
func EstimateFromChars(text string) int {
	n := len(text) / fallbackCharsPerToken
	if len(text)%fallbackCharsPerToken != 0 {
		n++
	}
	return n
}
