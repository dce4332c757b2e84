package embedding

import "strings"

// DefaultMaxTokens is the sequence length used when embedding.max_tokens is unset.
const DefaultMaxTokens = 256

// BERT special tokens and vocabulary size. Ids below firstWordID are
// reserved for [PAD], [unused*], [UNK], [CLS], [SEP] and [MASK].
const (
	clsTokenID  = 101
	sepTokenID  = 102
	firstWordID = 1000
	vocabSize   = 30522
)

// Encoding is a fixed-length model input for one text.
type Encoding struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
	// Words is how many words of the text made it into InputIDs.
	Words int
	// Dropped is how many words were cut off by the sequence length.
	Dropped int
}

// Truncated reports whether the text did not fit the sequence length.
func (e Encoding) Truncated() bool { return e.Dropped > 0 }

// Tokenizer encodes text for BERT-style models with a fixed sequence length.
type Tokenizer interface {
	Encode(text string, maxTokens int) Encoding
}

// SimpleTokenizer splits on whitespace, lower-cases and maps each word to a
// hashed id in the word range of the vocabulary. It needs no vocabulary file.
type SimpleTokenizer struct{}

// Encode returns [CLS] words... [SEP] padded to maxTokens. When the text is
// longer, the trailing words are dropped and [SEP] takes the last position.
// maxTokens below 2 is raised to 2 so both markers always fit.
func (t *SimpleTokenizer) Encode(text string, maxTokens int) Encoding {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if maxTokens < 2 {
		maxTokens = 2
	}
	enc := Encoding{
		InputIDs:      make([]int64, maxTokens),
		AttentionMask: make([]int64, maxTokens),
		TokenTypeIDs:  make([]int64, maxTokens),
	}

	words := strings.Fields(text)
	room := maxTokens - 2
	if len(words) > room {
		enc.Dropped = len(words) - room
		words = words[:room]
	}
	enc.Words = len(words)

	enc.InputIDs[0] = clsTokenID
	for i, w := range words {
		enc.InputIDs[i+1] = wordID(w)
	}
	enc.InputIDs[len(words)+1] = sepTokenID
	for i := 0; i < len(words)+2; i++ {
		enc.AttentionMask[i] = 1
	}
	return enc
}

func wordID(word string) int64 {
	h := uint64(HashString(strings.ToLower(word)))
	return int64(firstWordID + h%(vocabSize-firstWordID))
}

// HashString returns a deterministic non-negative hash of s.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
