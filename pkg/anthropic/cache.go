package anthropic

import (
	"context"

	"github.com/rotisserie/eris"
)

// cacheTTL keeps the system prompt warm across a whole generation batch; a
// run of conversations rarely takes longer than an hour.
const cacheTTL = "1h"

// BuildCachedSystemBlocks wraps a system prompt in content blocks carrying
// a cache breakpoint. The generator shares one animal-preference prompt
// across every conversation, so all requests after the first read it from
// the prompt cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{{
		Text:         text,
		CacheControl: &CacheControl{TTL: cacheTTL},
	}}
}

// PrimerRequest warms the prompt cache with one sequential request before
// the batch starts. req must carry system blocks from
// BuildCachedSystemBlocks; the response is only useful for its usage
// accounting.
func PrimerRequest(ctx context.Context, client Client, req MessageRequest) (*MessageResponse, error) {
	resp, err := client.CreateMessage(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: primer request")
	}
	return resp, nil
}
