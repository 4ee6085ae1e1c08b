package prompt

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer reports how many model tokens a text encodes to. It is only
// used for length accounting, never for decoding.
type Tokenizer interface {
	Count(text string) int
}

// TokenizerFunc adapts a plain function to Tokenizer.
type TokenizerFunc func(text string) int

func (f TokenizerFunc) Count(text string) int { return f(text) }

// Estimator approximates ~4 characters per token. Used for backends that do
// not publish their BPE (Anthropic).
type Estimator struct{}

func (Estimator) Count(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// TiktokenCounter counts tokens with the model's real BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the encoding for model, falling back to
// cl100k_base for models tiktoken does not know.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			return nil, fmt.Errorf("load tiktoken encoding for %s: %w", model, err)
		}
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count encodes with all special tokens allowed, so the legacy separator
// counts as the single token the model sees.
func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, []string{"all"}, nil))
}
