package chunker

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultTokenEncoding is the encoding used by current OpenAI models.
const DefaultTokenEncoding = "cl100k_base"

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// TokenLength returns a length function counting tokens in the named
// encoding, for use with WithLengthFunc. Encodings are bundled, so no
// network access is needed.
func TokenLength(encoding string) (func(string) int, error) {
	if encoding == "" {
		encoding = DefaultTokenEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load token encoding %q: %w", encoding, err)
	}
	return func(s string) int {
		if s == "" {
			return 0
		}
		return len(enc.Encode(s, nil, nil))
	}, nil
}
