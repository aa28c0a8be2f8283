package xlsx

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/autoreport-rag/internal/infrastructure/extractor"
)

// Extractor renders every worksheet as one page holding a [TABLE] block.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extensions() []string {
	return []string{".xlsx"}
}

func (e *Extractor) Extract(ctx context.Context, path string) (string, []int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var pages []string
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, "Sheet: "+sheet+"\n"+extractor.TableText(rows))
	}
	if len(pages) == 0 {
		return "", nil, nil
	}
	text, offsets := extractor.JoinPages(pages)
	return text, offsets, nil
}
