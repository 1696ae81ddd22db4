// Package search answers regex, lexical, semantic and hybrid queries
// against a chunk/embedding store (spec.md §4.7).
package search

// Mode selects which of the four query paths Search executes.
type Mode string

const (
	ModeRegex    Mode = "regex"
	ModeLexical  Mode = "lexical"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// Options configures a query. Not every field applies to every Mode
// (spec.md §4.7's "full enumeration; not all apply to every mode").
type Options struct {
	Mode Mode

	CaseInsensitive bool
	WholeWord       bool
	FixedString     bool

	TopK      int
	Threshold float64

	ContextLines int
	Before       int
	After        int

	LineNumbers         bool
	ShowScores          bool
	ShowFilenames       bool
	FilesWithMatches    bool
	FilesWithoutMatches bool

	IncludePatterns  []string
	ExcludePatterns  []string
	RespectGitignore bool

	FullSection bool

	Rerank         bool
	RerankModel    string
	EmbeddingModel string
}

// Result is one match, in whichever unit the originating mode produces:
// a line (regex/lexical) or a chunk (semantic/hybrid).
type Result struct {
	File      string
	LineStart int
	LineEnd   int
	ByteStart uint32
	ByteEnd   uint32

	Text   string
	Before []string
	After  []string

	ChunkID      string
	ChunkType    string
	Score        float64
	MatchedTerms []string
}
