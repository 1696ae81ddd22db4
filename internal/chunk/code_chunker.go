package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/lwyBZss8924d/ckindex/internal/tokenest"
)

// CodeChunker implements AST-aware chunking (spec.md §4.3, component
// C3) using tree-sitter grammars for the languages internal/lang marks
// AST-able, and a line-window fallback for everything else.
type CodeChunker struct {
	parser    *Parser
	extractor *SymbolExtractor
	registry  *LanguageRegistry
}

// NewCodeChunker creates a chunker backed by the default language registry.
func NewCodeChunker() *CodeChunker {
	registry := DefaultRegistry()
	return &CodeChunker{
		parser:    NewParserWithRegistry(registry),
		extractor: NewSymbolExtractorWithRegistry(registry),
		registry:  registry,
	}
}

// Close releases chunker resources.
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// SupportedExtensions returns file extensions the AST path handles.
func (c *CodeChunker) SupportedExtensions() []string {
	return c.registry.SupportedExtensions()
}

// kindRank orders chunk_type "size" for the nesting-suppression rule
// in spec.md §4.3 step 3: module > class-like > function-like > block.
func kindRank(t ChunkType) int {
	switch t {
	case TypeModule:
		return 4
	case TypeClass, TypeStruct, TypeInterface:
		return 3
	case TypeFunction, TypeMethod:
		return 2
	default:
		return 1
	}
}

func symbolChunkType(symType SymbolType, node *Node, language string) ChunkType {
	switch symType {
	case SymbolTypeFunction:
		return TypeFunction
	case SymbolTypeMethod:
		return TypeMethod
	case SymbolTypeInterface:
		return TypeInterface
	case SymbolTypeClass:
		return TypeClass
	case SymbolTypeType:
		if language == "go" {
			// Go's type_declaration covers struct, interface and alias;
			// inspect the type_spec's child to tell them apart.
			if hasDescendant(node, "interface_type") {
				return TypeInterface
			}
			if hasDescendant(node, "struct_type") {
				return TypeStruct
			}
		}
		return TypeStruct
	default:
		return TypeBlock
	}
}

func hasDescendant(n *Node, nodeType string) bool {
	found := false
	n.Walk(func(cur *Node) bool {
		if cur.Type == nodeType {
			found = true
			return false
		}
		return !found
	})
	return found
}

// candidate is a symbol-defining node with its resolved chunk_type and
// the ancestry of enclosing named declarations, outermost first.
type candidate struct {
	node      *Node
	symbol    *Symbol
	chunkType ChunkType
	ancestry  []string
}

// Chunk splits file into chunks per spec.md §4.3.
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput, cfg Config) ([]*Chunk, error) {
	if len(file.Content) == 0 {
		return []*Chunk{}, nil
	}

	if _, supported := c.registry.GetByName(file.Language); !supported {
		return c.chunkFallback(file, cfg), nil
	}

	tree, err := c.parser.Parse(ctx, file.Content, file.Language)
	if err != nil || tree.Root.HasError {
		return c.chunkFallback(file, cfg), nil
	}

	config, _ := c.registry.GetByName(file.Language)
	candidates := c.collectCandidates(tree, config, file.Language)
	if len(candidates) == 0 {
		return c.chunkFallback(file, cfg), nil
	}

	candidates = suppressNested(candidates)

	var chunks []*Chunk
	covered := make([]Span, 0, len(candidates))
	for _, cand := range candidates {
		candChunks := c.chunksFromCandidate(cand, tree, file, cfg)
		chunks = append(chunks, candChunks...)
		covered = append(covered, Span{ByteStart: cand.node.StartByte, ByteEnd: cand.node.EndByte})
	}

	residual := c.residualChunks(tree, file, cfg, covered)
	chunks = append(chunks, residual...)

	sortChunksBySpan(chunks)
	return chunks, nil
}

// collectCandidates walks the tree once, tracking the stack of
// enclosing named declarations so each candidate can carry an accurate
// breadcrumb/ancestry (spec.md §3, §4.3 step 5).
func (c *CodeChunker) collectCandidates(tree *Tree, config *LanguageConfig, language string) []candidate {
	symbolTypes := buildSymbolTypeIndex(config)

	type frame struct {
		node     *Node
		idx      int
		isNamed  bool
		nameUsed string
	}

	var candidates []candidate
	var names []string

	root := tree.Root
	stack := []*frame{{node: root, idx: -1}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.idx == -1 {
			top.idx = 0

			var sym *Symbol
			var ct ChunkType
			isDecl := top.node.Type == "lexical_declaration" || top.node.Type == "variable_declaration"
			if isDecl {
				if s := c.extractor.extractSpecialSymbol(top.node, tree.Source, language); s != nil {
					sym = s
					ct = TypeFunction
				}
			}
			if sym == nil {
				if symType, ok := symbolTypes[top.node.Type]; ok {
					if s := c.extractSymbol(top.node, tree, symType, language); s != nil {
						sym = s
						ct = symbolChunkType(symType, top.node, language)
					}
				}
			}

			if sym != nil {
				ancestry := append([]string{}, names...)
				candidates = append(candidates, candidate{
					node:      top.node,
					symbol:    sym,
					chunkType: ct,
					ancestry:  ancestry,
				})
				names = append(names, sym.Name)
				top.isNamed = true
				top.nameUsed = sym.Name
			}
		}

		if top.idx < len(top.node.Children) {
			child := top.node.Children[top.idx]
			top.idx++
			stack = append(stack, &frame{node: child, idx: -1})
			continue
		}

		if top.isNamed && len(names) > 0 && names[len(names)-1] == top.nameUsed {
			names = names[:len(names)-1]
		}
		stack = stack[:len(stack)-1]
	}

	return candidates
}

func buildSymbolTypeIndex(config *LanguageConfig) map[string]SymbolType {
	idx := make(map[string]SymbolType)
	for _, t := range config.FunctionTypes {
		idx[t] = SymbolTypeFunction
	}
	for _, t := range config.MethodTypes {
		idx[t] = SymbolTypeMethod
	}
	for _, t := range config.ClassTypes {
		idx[t] = SymbolTypeClass
	}
	for _, t := range config.InterfaceTypes {
		idx[t] = SymbolTypeInterface
	}
	for _, t := range config.TypeDefTypes {
		idx[t] = SymbolTypeType
	}
	for _, t := range config.ConstantTypes {
		idx[t] = SymbolTypeConstant
	}
	for _, t := range config.VariableTypes {
		idx[t] = SymbolTypeVariable
	}
	return idx
}

func (c *CodeChunker) extractSymbol(n *Node, tree *Tree, symType SymbolType, language string) *Symbol {
	config, _ := c.registry.GetByName(language)
	name := c.extractor.extractName(n, tree.Source, config, language)
	if name == "" {
		return nil
	}
	return &Symbol{
		Name:       name,
		Type:       symType,
		StartLine:  int(n.StartPoint.Row) + 1,
		EndLine:    int(n.EndPoint.Row) + 1,
		Signature:  c.extractor.extractSignature(n, tree.Source, symType, language),
		DocComment: c.extractor.extractDocComment(n, tree.Source, language),
	}
}

// suppressNested applies spec.md §4.3 step 3: drop a candidate that is
// strictly nested inside another candidate of the same or larger kind
// when the outer one is already small enough to stand alone; otherwise
// keep the finer (inner) candidate and drop the outer.
func suppressNested(candidates []candidate) []candidate {
	keep := make([]bool, len(candidates))
	for i := range candidates {
		keep[i] = true
	}

	for i, inner := range candidates {
		for j, outer := range candidates {
			if i == j || !keep[i] || !keep[j] {
				continue
			}
			if !strictlyNested(inner.node, outer.node) {
				continue
			}
			if kindRank(inner.chunkType) > kindRank(outer.chunkType) {
				continue
			}

			// "Small enough" is approximated on byte span: exact token
			// estimation needs the source buffer, which isn't carried
			// on candidate; byte size is a conservative stand-in.
			outerBytes := outer.node.EndByte - outer.node.StartByte
			if outerBytes <= smallEnoughBytes {
				keep[i] = false
			} else {
				keep[j] = false
			}
		}
	}

	var result []candidate
	for i, cand := range candidates {
		if keep[i] {
			result = append(result, cand)
		}
	}
	return result
}

// smallEnoughBytes is a conservative proxy for "outer candidate already
// fits in one chunk", used before token estimation runs on chunk text.
const smallEnoughBytes = 2048

func strictlyNested(inner, outer *Node) bool {
	if inner == outer {
		return false
	}
	return inner.StartByte >= outer.StartByte && inner.EndByte <= outer.EndByte &&
		(inner.StartByte > outer.StartByte || inner.EndByte < outer.EndByte)
}

func (c *CodeChunker) chunksFromCandidate(cand candidate, tree *Tree, file *FileInput, cfg Config) []*Chunk {
	node := cand.node
	leading, start := leadingTrivia(node, tree.Source)
	text := string(tree.Source[start:node.EndByte])

	breadcrumb := strings.Join(append(append([]string{}, cand.ancestry...), cand.symbol.Name), ".")

	span := Span{
		ByteStart: start,
		ByteEnd:   node.EndByte,
		LineStart: lineNumberAt(tree.Source, start),
		LineEnd:   int(node.EndPoint.Row) + 1,
	}

	chunk := buildChunk(file.Path, span, text, cand.chunkType, breadcrumb, cand.ancestry, leading, "")

	if chunk.EstimatedTokens <= cfg.MaxTokens || !cfg.EnableStriding {
		return []*Chunk{chunk}
	}

	return strideChunk(chunk, cfg)
}

// leadingTrivia pulls in an immediately preceding comment/docstring run
// as leading_trivia (spec.md §4.3 step 4) and returns the adjusted
// start byte that includes it.
func leadingTrivia(n *Node, source []byte) (string, uint32) {
	lineStart := n.StartByte
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	if lineStart == 0 {
		return "", n.StartByte
	}

	firstCommentLine := lineStart
	pos := lineStart - 1
	for pos > 0 {
		end := pos
		pos--
		for pos > 0 && source[pos] != '\n' {
			pos--
		}
		ls := pos
		if pos > 0 {
			ls++
		}
		if ls > end {
			break
		}
		line := strings.TrimSpace(string(source[ls:end]))
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "*") || strings.HasPrefix(line, "/*") {
			firstCommentLine = ls
			continue
		}
		break
	}

	if firstCommentLine == lineStart {
		return "", n.StartByte
	}
	trivia := string(source[firstCommentLine:n.StartByte])
	return trivia, firstCommentLine
}

// residualChunks emits uncovered top-level regions as text-window
// chunks (spec.md §4.3 step 6).
func (c *CodeChunker) residualChunks(tree *Tree, file *FileInput, cfg Config, covered []Span) []*Chunk {
	sortSpans(covered)

	var gaps []Span
	cursor := uint32(0)
	for _, sp := range covered {
		if sp.ByteStart > cursor {
			gaps = append(gaps, Span{ByteStart: cursor, ByteEnd: sp.ByteStart})
		}
		if sp.ByteEnd > cursor {
			cursor = sp.ByteEnd
		}
	}
	if cursor < uint32(len(tree.Source)) {
		gaps = append(gaps, Span{ByteStart: cursor, ByteEnd: uint32(len(tree.Source))})
	}

	var chunks []*Chunk
	for _, gap := range gaps {
		text := string(tree.Source[gap.ByteStart:gap.ByteEnd])
		if strings.TrimSpace(text) == "" {
			continue
		}
		for _, win := range splitByBlankLines(text, cfg.MaxTokens) {
			absStart := gap.ByteStart + win.offset
			span := Span{
				ByteStart: absStart,
				ByteEnd:   absStart + uint32(len(win.text)),
				LineStart: lineNumberAt(tree.Source, absStart),
				LineEnd:   lineNumberAt(tree.Source, absStart+uint32(len(win.text))),
			}
			chunk := buildChunk(file.Path, span, win.text, TypeTextWindow, "", nil, "", "")
			if chunk.EstimatedTokens > cfg.MaxTokens && cfg.EnableStriding {
				chunks = append(chunks, strideChunk(chunk, cfg)...)
			} else {
				chunks = append(chunks, chunk)
			}
		}
	}
	return chunks
}

func lineNumberAt(source []byte, pos uint32) int {
	line := 1
	for i := uint32(0); i < pos && i < uint32(len(source)); i++ {
		if source[i] == '\n' {
			line++
		}
	}
	return line
}

type textWindow struct {
	text   string
	offset uint32
}

// splitByBlankLines groups lines up to a target size close to but
// under maxTokens, preferring breaks at blank lines (spec.md §4.3
// fallback path, reused for residual AST regions).
func splitByBlankLines(text string, maxTokens int) []textWindow {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	lines := strings.Split(text, "\n")

	var windows []textWindow
	var cur strings.Builder
	var offset uint32
	var windowStart uint32

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		windows = append(windows, textWindow{text: cur.String(), offset: windowStart})
		cur.Reset()
	}

	for i, line := range lines {
		if cur.Len() == 0 {
			windowStart = offset
		}
		cur.WriteString(line)
		if i < len(lines)-1 {
			cur.WriteByte('\n')
		}
		offset += uint32(len(line)) + 1

		if tokenest.Estimate(cur.String()) >= maxTokens && strings.TrimSpace(line) == "" {
			flush()
		}
	}
	flush()

	if len(windows) == 0 {
		windows = append(windows, textWindow{text: text, offset: 0})
	}
	return windows
}

// chunkFallback handles plain text / unsupported grammars (spec.md
// §4.3 fallback path).
func (c *CodeChunker) chunkFallback(file *FileInput, cfg Config) []*Chunk {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return []*Chunk{}
	}

	whole := buildChunk(file.Path, Span{ByteStart: 0, ByteEnd: uint32(len(content)), LineStart: 1, LineEnd: strings.Count(content, "\n") + 1}, content, TypeWholeFile, "", nil, "", "")
	if whole.EstimatedTokens <= cfg.MaxTokens {
		return []*Chunk{whole}
	}

	var chunks []*Chunk
	for _, win := range splitByBlankLines(content, cfg.MaxTokens) {
		span := Span{
			ByteStart: win.offset,
			ByteEnd:   win.offset + uint32(len(win.text)),
			LineStart: lineNumberAt([]byte(content), win.offset),
			LineEnd:   lineNumberAt([]byte(content), win.offset+uint32(len(win.text))),
		}
		chunk := buildChunk(file.Path, span, win.text, TypeTextWindow, "", nil, "", "")
		if chunk.EstimatedTokens > cfg.MaxTokens && cfg.EnableStriding {
			chunks = append(chunks, strideChunk(chunk, cfg)...)
		} else {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// strideChunk splits an oversize chunk into stride fragments (spec.md
// §4.3 "Striding"). The byte budget is derived from the chunk's own
// observed chars-per-token ratio rather than a fixed constant, since
// tokenest classifies code/prose density per string.
func strideChunk(origin *Chunk, cfg Config) []*Chunk {
	tokens := origin.EstimatedTokens
	if tokens == 0 {
		tokens = 1
	}
	effectiveCPT := float64(len(origin.Text)) / float64(tokens)
	if effectiveCPT <= 0 {
		effectiveCPT = 4.4
	}

	budget := int(float64(cfg.MaxTokens) * effectiveCPT * 0.9)
	if budget < 64 {
		budget = 64
	}
	overlap := int(float64(cfg.StrideOverlap) * effectiveCPT)
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= budget {
		overlap = budget / 4
	}

	text := origin.Text
	originID := origin.ID()

	type rawFragment struct {
		start, end int
	}
	var frags []rawFragment
	for i := 0; i < len(text); {
		end := i + budget
		if end >= len(text) {
			end = len(text)
		} else if nl := strings.LastIndexByte(text[i:end], '\n'); nl > 0 {
			end = i + nl + 1
		}
		frags = append(frags, rawFragment{start: i, end: end})
		if end >= len(text) {
			break
		}
		next := end - overlap
		if next <= i {
			next = end
		}
		i = next
	}

	total := len(frags)
	chunks := make([]*Chunk, 0, total)
	for idx, f := range frags {
		fragText := text[f.start:f.end]
		span := Span{
			ByteStart: origin.Span.ByteStart + uint32(f.start),
			ByteEnd:   origin.Span.ByteStart + uint32(f.end),
			LineStart: origin.Span.LineStart + strings.Count(text[:f.start], "\n"),
			LineEnd:   origin.Span.LineStart + strings.Count(text[:f.end], "\n"),
		}

		overlapBytes := 0
		if idx > 0 {
			overlapBytes = frags[idx-1].end - f.start
			if overlapBytes < 0 {
				overlapBytes = 0
			}
		}

		chunk := buildChunk(origin.File, span, fragText, TypeStrideFrag, origin.Breadcrumb, origin.Ancestry, origin.LeadingTrivia, origin.TrailingTrivia)
		chunk.StrideInfo = &StrideInfo{
			StrideIndex:   idx,
			TotalStrides:  total,
			OriginChunkID: originID,
			OverlapBytes:  overlapBytes,
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// buildChunk assembles a Chunk from text that is already the exact
// substring of the source at span (leading trivia, when present, is
// expected to already be folded into both span and text by the
// caller — it is recorded on LeadingTrivia/TrailingTrivia for metadata
// only and must not be prepended again here).
func buildChunk(file string, span Span, text string, chunkType ChunkType, breadcrumb string, ancestry []string, leading, trailing string) *Chunk {
	chunk := &Chunk{
		File:            file,
		Span:            span,
		Text:            text,
		ChunkType:       chunkType,
		Breadcrumb:      breadcrumb,
		Ancestry:        ancestry,
		LeadingTrivia:   leading,
		TrailingTrivia:  trailing,
		EstimatedTokens: tokenest.Estimate(text),
	}
	chunk.ContentHash = contentHash(file, span, text)
	return chunk
}

// contentHash computes the stable (file, span, text) hash used as the
// chunk's primary key (spec.md §3).
func contentHash(file string, span Span, text string) string {
	h := sha256.New()
	h.Write([]byte(file))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatUint(uint64(span.ByteStart), 10)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatUint(uint64(span.ByteEnd), 10)))
	h.Write([]byte{0})
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:])[:16]
}

func sortSpans(spans []Span) {
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j-1].ByteStart > spans[j].ByteStart; j-- {
			spans[j-1], spans[j] = spans[j], spans[j-1]
		}
	}
}

func sortChunksBySpan(chunks []*Chunk) {
	for i := 1; i < len(chunks); i++ {
		for j := i; j > 0 && chunks[j-1].Span.ByteStart > chunks[j].Span.ByteStart; j-- {
			chunks[j-1], chunks[j] = chunks[j], chunks[j-1]
		}
	}
}
