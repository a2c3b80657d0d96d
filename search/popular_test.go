package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopKeywordsWithoutCache(t *testing.T) {
	ctx := context.Background()

	// Recording against a disabled cache is a silent no-op.
	recordKeyword(ctx, nil, "ocean")

	p := NewPipeline(nil, nil, nil)
	assert.Nil(t, p.TopKeywords(ctx, 10))
	assert.Nil(t, p.TopKeywords(ctx, 0))
}
