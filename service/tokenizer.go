package service

import (
	"fmt"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/processor"
)

const (
	unkToken = "[UNK]"
	clsToken = "[CLS]"
	sepToken = "[SEP]"
)

// Tokenizer is an uncased BERT WordPiece encoder.
type Tokenizer struct {
	tk     *tokenizer.Tokenizer
	maxLen int
	sepID  int64
}

// LoadTokenizer builds the bert-base-uncased pipeline over a vocab.txt where
// the line number is the token id.
func LoadTokenizer(path string, maxLen int) (*Tokenizer, error) {
	if maxLen < 3 {
		return nil, fmt.Errorf("max text length %d is too small", maxLen)
	}
	model, err := wordpiece.NewWordPieceFromFile(path, unkToken)
	if err != nil {
		return nil, fmt.Errorf("failed to load vocabulary: %w", err)
	}

	tk := tokenizer.NewTokenizer(model)
	tk.WithNormalizer(normalizer.NewBertNormalizer(true, true, true, true))
	tk.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())

	if _, ok := tk.TokenToId(unkToken); !ok {
		return nil, fmt.Errorf("vocabulary has no %s token", unkToken)
	}
	clsID, ok := tk.TokenToId(clsToken)
	if !ok {
		return nil, fmt.Errorf("vocabulary has no %s token", clsToken)
	}
	sepID, ok := tk.TokenToId(sepToken)
	if !ok {
		return nil, fmt.Errorf("vocabulary has no %s token", sepToken)
	}
	tk.WithPostProcessor(processor.NewBertProcessing(
		processor.PostToken{Id: sepID, Value: sepToken},
		processor.PostToken{Id: clsID, Value: clsToken},
	))

	return &Tokenizer{tk: tk, maxLen: maxLen, sepID: int64(sepID)}, nil
}

// Tokenize returns the word pieces of text without special tokens.
func (t *Tokenizer) Tokenize(text string) ([]string, error) {
	en, err := t.tk.EncodeSingle(text, false)
	if err != nil {
		return nil, err
	}
	return en.Tokens, nil
}

// Encode returns input ids, attention mask and token type ids for text,
// wrapped in [CLS] ... [SEP] and truncated to the maximum length.
func (t *Tokenizer) Encode(text string) (ids, mask, types []int64, err error) {
	en, err := t.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode question: %w", err)
	}

	n := min(len(en.Ids), t.maxLen)
	ids = make([]int64, n)
	for i := range n {
		ids[i] = int64(en.Ids[i])
	}
	if len(en.Ids) > t.maxLen {
		ids[n-1] = t.sepID
	}

	mask = make([]int64, n)
	for i := range mask {
		mask[i] = 1
	}
	types = make([]int64, n)
	return ids, mask, types, nil
}
