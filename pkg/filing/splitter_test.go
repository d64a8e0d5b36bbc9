package filing

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitShortText(t *testing.T) {
	s := NewSplitter(1000, 200)
	assert.Equal(t, []string{"Item 1. Business"}, s.Split("  Item 1. Business \n"))
	assert.Empty(t, s.Split(""))
}

func TestSplitParagraphsWithOverlap(t *testing.T) {
	var paragraphs []string
	for i := range 30 {
		paragraphs = append(paragraphs, fmt.Sprintf("Paragraph %02d %s", i, strings.Repeat("x", 80)))
	}
	text := strings.Join(paragraphs, "\n\n")

	s := NewSplitter(250, 100)
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 250)
	}
	for i := 1; i < len(chunks); i++ {
		firstParagraph := strings.SplitN(chunks[i], "\n\n", 2)[0]
		assert.Contains(t, chunks[i-1], firstParagraph, "chunk %d should start with the tail of chunk %d", i, i-1)
	}
	for _, p := range paragraphs {
		found := false
		for _, c := range chunks {
			if strings.Contains(c, p) {
				found = true
				break
			}
		}
		assert.True(t, found, "paragraph lost: %s", p[:12])
	}
}

func TestSplitFallsBackToCharacters(t *testing.T) {
	s := NewSplitter(1000, 200)
	chunks := s.Split(strings.Repeat("a", 2500))

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 1000)
	assert.Len(t, chunks[1], 1000)
	assert.Len(t, chunks[2], 900)
}

func TestSplitCountsRunes(t *testing.T) {
	s := NewSplitter(10, 0)
	chunks := s.Split(strings.Repeat("é", 25))

	require.Len(t, chunks, 3)
	assert.Equal(t, 10, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, 5, utf8.RuneCountInString(chunks[2]))
}

func TestNewSplitterClampsOverlap(t *testing.T) {
	s := NewSplitter(100, 100)
	assert.Equal(t, 0, s.ChunkOverlap)

	s = NewSplitter(0, 10)
	assert.Equal(t, 1000, s.ChunkSize)
}

func TestFilingHeader(t *testing.T) {
	f := &Filing{CompanyName: "Apple Inc.", FormType: "10-K", FiledAt: "2024-11-01T06:01:36-04:00", Ticker: "aapl", AccessionNo: "0000320193-24-000123"}
	assert.Equal(t, "Filing Information: Apple Inc. (AAPL), 10-K, Filed: 2024-11-01T06:01:36-04:00, Period: N/A", f.Header("aapl"))
	assert.Equal(t, "AAPL/0000320193-24-000123", f.Key().String())
}
