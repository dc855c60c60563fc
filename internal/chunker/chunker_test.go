package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitebot/internal/document"
)

func sentences(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Sentence number %d talks about pricing. ", i)
	}
	return strings.TrimSpace(b.String())
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s := New()
		assert.Equal(t, DefaultChunkSize, s.chunkSize)
		assert.Equal(t, DefaultChunkOverlap, s.overlap)
	})

	t.Run("overlap exceeds chunk size", func(t *testing.T) {
		s := New(WithChunkSize(100), WithOverlap(150))
		assert.Less(t, s.overlap, s.chunkSize)
	})

	t.Run("invalid values ignored", func(t *testing.T) {
		s := New(WithChunkSize(0), WithOverlap(-1))
		assert.Equal(t, DefaultChunkSize, s.chunkSize)
		assert.Equal(t, DefaultChunkOverlap, s.overlap)
	})
}

func TestSplitText_Short(t *testing.T) {
	s := New()
	chunks := s.SplitText("  Hello world.  ")
	assert.Equal(t, []string{"Hello world."}, chunks)
	assert.Empty(t, s.SplitText("   "))
}

func TestSplitText_RespectsSizeAndOverlaps(t *testing.T) {
	s := New()
	text := sentences(300)

	chunks := s.SplitText(text)
	require.Greater(t, len(chunks), 2)

	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), DefaultChunkSize, "chunk %d too long", i)
		assert.True(t, strings.HasPrefix(c, "Sentence number"), "chunk %d should start on a sentence boundary", i)
		assert.True(t, strings.HasSuffix(c, "."), "chunk %d should end on a sentence boundary", i)
	}

	for i := 0; i+1 < len(chunks); i++ {
		firstSentence := chunks[i+1][:strings.Index(chunks[i+1], ". ")+1]
		assert.Contains(t, chunks[i], firstSentence, "chunk %d should overlap with chunk %d", i+1, i)
	}
}

func TestSplitText_Deterministic(t *testing.T) {
	s := New()
	text := sentences(250)
	first := s.SplitText(text)
	second := s.SplitText(text)
	assert.Equal(t, first, second)
}

func TestSplitText_PrefersParagraphs(t *testing.T) {
	para1 := strings.TrimSpace(strings.Repeat("alpha beta gamma ", 88))
	para2 := strings.TrimSpace(strings.Repeat("delta epsilon ", 100))
	s := New()

	chunks := s.SplitText(para1 + "\n\n" + para2)
	require.Len(t, chunks, 2)
	assert.Equal(t, para1, chunks[0])
	assert.Equal(t, para2, chunks[1])
}

func TestSplitText_CharacterFallback(t *testing.T) {
	text := strings.Repeat("abcdefghij", 500)
	s := New()

	chunks := s.SplitText(text)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 2000)
	assert.Equal(t, chunks[0][1800:], chunks[1][:200])
	assert.Equal(t, text[len(text)-len(chunks[2]):], chunks[2])
}

func TestSplitDocuments_PreservesOrderAndMetadata(t *testing.T) {
	s := New(WithChunkSize(200), WithOverlap(20))
	docs := []document.Document{
		{PageContent: sentences(20), Metadata: document.Metadata{Source: "https://a.test/1", Title: "One"}},
		{PageContent: "Tiny page.", Metadata: document.Metadata{Source: "https://a.test/2", Title: "Two", Date: "2024-01-02"}},
	}

	chunks := s.SplitDocuments(docs)
	require.Greater(t, len(chunks), 2)

	last := chunks[len(chunks)-1]
	assert.Equal(t, "Tiny page.", last.Content)
	assert.Equal(t, docs[1].Metadata, last.Metadata)
	assert.Equal(t, 0, last.Index)

	for i, c := range chunks[:len(chunks)-1] {
		assert.Equal(t, "https://a.test/1", c.Metadata.Source)
		assert.Equal(t, i, c.Index)
	}
	assert.True(t, strings.HasPrefix(chunks[0].Content, "Sentence number 0 "))
}
