package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeChunker_GoFunctionsProduceOneChunkEach(t *testing.T) {
	source := []byte(`package main

// Hello prints a greeting.
func Hello() {
	println("hello")
}

func Goodbye() {
	println("bye")
}
`)

	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "main.go",
		Content:  source,
		Language: "go",
	}, DefaultConfig())

	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)

	var names []string
	for _, c := range chunks {
		if c.ChunkType == TypeFunction {
			names = append(names, c.Breadcrumb)
		}
	}
	assert.Contains(t, names, "Hello")
	assert.Contains(t, names, "Goodbye")
}

func TestCodeChunker_CommentedDeclarationTextMatchesSpanExactly(t *testing.T) {
	source := []byte(`package main

// Hello prints a greeting.
func Hello() {
	println("hello")
}
`)

	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "main.go",
		Content:  source,
		Language: "go",
	}, DefaultConfig())

	require.NoError(t, err)

	var hello *Chunk
	for _, c := range chunks {
		if c.ChunkType == TypeFunction && c.Breadcrumb == "Hello" {
			hello = c
		}
	}
	require.NotNil(t, hello)

	assert.Equal(t, string(source[hello.Span.ByteStart:hello.Span.ByteEnd]), hello.Text)
	assert.Equal(t, 1, strings.Count(hello.Text, "// Hello prints a greeting."))
}

func TestCodeChunker_ChunksAreInSourceOrder(t *testing.T) {
	source := []byte(`package main

func A() {}

func B() {}

func C() {}
`)
	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "order.go",
		Content:  source,
		Language: "go",
	}, DefaultConfig())
	require.NoError(t, err)

	for i := 1; i < len(chunks); i++ {
		assert.LessOrEqual(t, chunks[i-1].Span.ByteStart, chunks[i].Span.ByteStart)
	}
}

func TestCodeChunker_GoMethodBreadcrumbIsMethodName(t *testing.T) {
	source := []byte(`package main

type Greeter struct{}

func (g *Greeter) Greet() string {
	return "hi"
}
`)
	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "greeter.go",
		Content:  source,
		Language: "go",
	}, DefaultConfig())
	require.NoError(t, err)

	var sawStruct, sawMethod bool
	for _, c := range chunks {
		if c.ChunkType == TypeStruct {
			sawStruct = true
		}
		if c.ChunkType == TypeMethod {
			sawMethod = true
			assert.Equal(t, "Greet", c.Breadcrumb)
		}
	}
	assert.True(t, sawStruct)
	assert.True(t, sawMethod)
}

func TestCodeChunker_OversizeFunctionStrides(t *testing.T) {
	var body strings.Builder
	body.WriteString("package main\n\nfunc Big() {\n")
	for i := 0; i < 2000; i++ {
		body.WriteString("\tx := 1 + 1\n")
	}
	body.WriteString("}\n")

	cfg := Config{MaxTokens: 200, StrideOverlap: 50, EnableStriding: true}

	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "big.go",
		Content:  []byte(body.String()),
		Language: "go",
	}, cfg)
	require.NoError(t, err)

	var fragments []*Chunk
	for _, c := range chunks {
		if c.ChunkType == TypeStrideFrag {
			fragments = append(fragments, c)
		}
	}
	require.NotEmpty(t, fragments)

	origin := fragments[0].StrideInfo.OriginChunkID
	for i, f := range fragments {
		assert.Equal(t, origin, f.StrideInfo.OriginChunkID)
		assert.Equal(t, i, f.StrideInfo.StrideIndex)
		assert.Equal(t, len(fragments), f.StrideInfo.TotalStrides)
		assert.LessOrEqual(t, f.EstimatedTokens, cfg.MaxTokens)
	}
}

func TestCodeChunker_FallbackForUnknownLanguage(t *testing.T) {
	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "notes.txt",
		Content:  []byte("just some plain text\nacross a couple lines\n"),
		Language: "",
	}, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, TypeWholeFile, chunks[0].ChunkType)
}

func TestCodeChunker_EmptyFileProducesNoChunks(t *testing.T) {
	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "empty.go",
		Content:  []byte{},
		Language: "go",
	}, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestCodeChunker_ContentHashStableForSameContent(t *testing.T) {
	source := []byte("package main\n\nfunc Hello() {}\n")
	chunker := NewCodeChunker()
	defer chunker.Close()

	first, err := chunker.Chunk(context.Background(), &FileInput{Path: "a.go", Content: source, Language: "go"}, DefaultConfig())
	require.NoError(t, err)
	second, err := chunker.Chunk(context.Background(), &FileInput{Path: "a.go", Content: source, Language: "go"}, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, first, len(second))
	for i := range first {
		assert.Equal(t, first[i].ID(), second[i].ID())
	}
}
