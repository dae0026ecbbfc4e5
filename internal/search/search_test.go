package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns a fixed vector per text
type fakeEmbedder struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, float32(i)}
	}
	return out, nil
}

// countingSearcher records calls and returns a canned result
type countingSearcher struct {
	calls  int
	result *Result
	err    error
}

func (s *countingSearcher) Search(ctx context.Context, indexID, query string, topK int) (*Result, error) {
	s.calls++
	return s.result, s.err
}

func TestBuildQuery(t *testing.T) {
	assert.Equal(t, "Запрос акта сверки", BuildQuery("", "  Запрос акта сверки "))
	assert.Equal(t, "Клиент просит акт Re: Акт", BuildQuery("Клиент просит акт", "Re: Акт"))

	long := BuildQuery(strings.Repeat("ж", 150), strings.Repeat("ы", 150))
	assert.Equal(t, MaxQueryLength, utf8.RuneCountInString(long))
	assert.True(t, utf8.ValidString(long))
}

func TestFormatContext(t *testing.T) {
	t.Run("nil and empty", func(t *testing.T) {
		assert.Equal(t, "", FormatContext(nil))
		assert.Equal(t, "", FormatContext(&Result{}))
	})

	t.Run("caps hits and length", func(t *testing.T) {
		r := &Result{}
		for i := 0; i < 7; i++ {
			r.Data = append(r.Data, Hit{
				Filename: "doc.md",
				Score:    0.9,
				Content:  []Chunk{{Text: strings.Repeat("а", 1500)}},
			})
		}

		out := FormatContext(r)
		assert.Equal(t, MaxContextHits, strings.Count(out, "Документ "))
		assert.Contains(t, out, "Документ 5: doc.md")
		assert.NotContains(t, out, "Документ 6")
		assert.Contains(t, out, "Релевантность: 0.9000")
		assert.NotContains(t, out, strings.Repeat("а", MaxHitLength+1))
		assert.Contains(t, out, strings.Repeat("а", MaxHitLength))
	})

	t.Run("hit without content", func(t *testing.T) {
		out := FormatContext(&Result{Data: []Hit{{FileID: "f-1", Score: 0.5}}})
		assert.Contains(t, out, "Документ 1: f-1")
	})
}

func TestMeta(t *testing.T) {
	m := Meta("kb", "q", &Result{Data: []Hit{{Filename: "a.md"}, {Filename: "b.md"}}}, nil)
	assert.Equal(t, 2, m["results_count"])
	assert.Equal(t, []string{"a.md", "b.md"}, m["files"])

	m = Meta("kb", "q", nil, errors.New("timeout"))
	assert.Equal(t, "timeout", m["error"])
	assert.Equal(t, 0, m["results_count"])
}

func TestCachedSearcher(t *testing.T) {
	next := &countingSearcher{result: &Result{Data: []Hit{{Filename: "a.md"}}}}
	s := NewCachedSearcher(next, time.Minute)

	r1, err := s.Search(context.Background(), "kb", "акт", 5)
	require.NoError(t, err)
	r2, err := s.Search(context.Background(), "kb", "акт", 5)
	require.NoError(t, err)
	assert.Same(t, r1, r2)
	assert.Equal(t, 1, next.calls)

	_, err = s.Search(context.Background(), "other", "акт", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedSearcher_ErrorsNotCached(t *testing.T) {
	next := &countingSearcher{err: errors.New("down")}
	s := NewCachedSearcher(next, time.Minute)

	_, err := s.Search(context.Background(), "kb", "q", 5)
	assert.Error(t, err)
	_, err = s.Search(context.Background(), "kb", "q", 5)
	assert.Error(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedSearcher_Bounded(t *testing.T) {
	next := &countingSearcher{result: &Result{}}
	s := NewCachedSearcher(next, time.Minute)

	for i := 0; i <= maxCachedResults; i++ {
		_, err := s.Search(context.Background(), "kb", fmt.Sprintf("q-%d", i), 5)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, s.cache.Len(), "nothing expired, so the cache starts over")
}
