package chunking

import "github.com/kirillkom/autoreport-rag/internal/core/domain"

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// boundaryLevels are tried in order; within one level the latest cut wins.
var boundaryLevels = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? "},
	{" "},
}

type Segment struct {
	Text  string
	Start int
}

// Splitter cuts text into chunks of at most ChunkSize runes. Consecutive
// chunks share exactly Overlap runes, and a chunk is never shorter than
// max(Overlap+1, ChunkSize/2) unless it is the last one.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

// Split covers all of text. Only empty text yields no segments; blank
// reports are dropped by the caller.
func (s *Splitter) Split(text string) []Segment {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= s.ChunkSize {
		return []Segment{{Text: text, Start: 0}}
	}

	minLen := s.ChunkSize / 2
	if minLen <= s.Overlap {
		minLen = s.Overlap + 1
	}

	out := make([]Segment, 0, len(runes)/(s.ChunkSize-s.Overlap)+1)
	start := 0
	for {
		if len(runes)-start <= s.ChunkSize {
			out = append(out, Segment{Text: string(runes[start:]), Start: start})
			return out
		}
		end := start + cutPoint(runes[start:start+s.ChunkSize], minLen)
		out = append(out, Segment{Text: string(runes[start:end]), Start: start})
		start = end - s.Overlap
	}
}

// Chunk splits one report into passages carrying its provenance.
func (s *Splitter) Chunk(doc domain.SourceDocument) []domain.Passage {
	segments := s.Split(doc.Text)
	if len(segments) == 0 {
		return nil
	}

	passages := make([]domain.Passage, 0, len(segments))
	for i, seg := range segments {
		passages = append(passages, domain.Passage{
			ID:   domain.PassageID(doc.Source, i),
			Text: seg.Text,
			Provenance: domain.Provenance{
				Company:    doc.Company,
				Year:       doc.Year,
				Source:     doc.Source,
				ChunkIndex: i,
				Page:       doc.PageAt(seg.Start),
			},
		})
	}
	return passages
}

// cutPoint returns the chunk length for window, preferring the strongest
// boundary that still leaves at least minLen runes.
func cutPoint(window []rune, minLen int) int {
	for _, level := range boundaryLevels {
		best := -1
		for _, sep := range level {
			sepRunes := []rune(sep)
			idx := lastIndex(window, sepRunes)
			if idx < 0 {
				continue
			}
			cut := idx + len(sepRunes)
			if cut >= minLen && cut > best {
				best = cut
			}
		}
		if best > 0 {
			return best
		}
	}
	return len(window)
}

func lastIndex(haystack, needle []rune) int {
	for i := len(haystack) - len(needle); i >= 0; i-- {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
