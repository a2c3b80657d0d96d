package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leafdriven/mediadex/common/apperr"
)

// maxPageButtons caps one pagination row.
const maxPageButtons = 8

// noopCallback marks buttons that exist only for layout.
const noopCallback = "noop"

// Button is one inline keyboard cell.
type Button struct {
	Text string
	Data string
}

// PageCallback is a parsed pagination callback. Both the legacy 5-field and
// the current 6-field wire forms parse into it; encoding always emits the
// 6-field form.
type PageCallback struct {
	SessionID   string
	PrincipalID int64
	Offset      int
	Total       int
	FileType    string
}

// Encode emits the 6-field callback: page_<sid>_<pid>_<offset>_<total>_<type>.
// An empty file type is written as "-" so field positions stay fixed.
func (c PageCallback) Encode() string {
	ftype := c.FileType
	if ftype == "" {
		ftype = "-"
	}
	return fmt.Sprintf("page_%s_%d_%d_%d_%s", c.SessionID, c.PrincipalID, c.Offset, c.Total, ftype)
}

// ParsePageCallback accepts both wire forms; the legacy 5-field one simply
// lacks the trailing file type.
func ParsePageCallback(data string) (*PageCallback, error) {
	parts := strings.Split(data, "_")
	if len(parts) != 5 && len(parts) != 6 {
		return nil, apperr.New(apperr.CodeInvalidInput, "pagination callback has %d fields", len(parts))
	}
	if parts[0] != "page" {
		return nil, apperr.New(apperr.CodeInvalidInput, "unexpected callback prefix %q", parts[0])
	}

	pid, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, apperr.New(apperr.CodeInvalidInput, "bad principal id %q", parts[2])
	}
	offset, err := strconv.Atoi(parts[3])
	if err != nil || offset < 0 {
		return nil, apperr.New(apperr.CodeInvalidInput, "bad offset %q", parts[3])
	}
	total, err := strconv.Atoi(parts[4])
	if err != nil || total < 0 {
		return nil, apperr.New(apperr.CodeInvalidInput, "bad total %q", parts[4])
	}

	cb := &PageCallback{SessionID: parts[1], PrincipalID: pid, Offset: offset, Total: total}
	if len(parts) == 6 && parts[5] != "-" {
		cb.FileType = parts[5]
	}
	return cb, nil
}

// BuildPageRow lays out the pagination row for (offset, total). Boundary
// pages are always shown, a symmetric window of one page surrounds the
// current page, and the remaining slots fill from whichever end the current
// page is near, with ellipses closing the gaps. At most maxPageButtons cells
// are emitted.
func BuildPageRow(cb PageCallback, pageSize int) []Button {
	if pageSize <= 0 || cb.Total <= 0 {
		return nil
	}
	totalPages := (cb.Total + pageSize - 1) / pageSize
	if totalPages <= 1 {
		return nil
	}
	current := cb.Offset/pageSize + 1
	if current > totalPages {
		current = totalPages
	}

	var row []Button
	for _, page := range pageNumbers(current, totalPages) {
		if page == 0 {
			row = append(row, Button{Text: "…", Data: noopCallback})
			continue
		}
		if page == current {
			row = append(row, Button{Text: fmt.Sprintf("· %d ·", page), Data: noopCallback})
			continue
		}
		target := cb
		target.Offset = (page - 1) * pageSize
		row = append(row, Button{Text: strconv.Itoa(page), Data: target.Encode()})
	}
	return row
}

// pageNumbers returns the page layout with 0 standing in for an ellipsis.
func pageNumbers(current, totalPages int) []int {
	if totalPages <= maxPageButtons {
		out := make([]int, totalPages)
		for i := range out {
			out[i] = i + 1
		}
		return out
	}

	switch {
	case current <= maxPageButtons-4:
		// Head-heavy: 1..6, ellipsis, last.
		out := make([]int, 0, maxPageButtons)
		for i := 1; i <= maxPageButtons-2; i++ {
			out = append(out, i)
		}
		return append(out, 0, totalPages)
	case current >= totalPages-(maxPageButtons-5):
		// Tail-heavy: 1, ellipsis, last-5..last.
		out := []int{1, 0}
		for i := totalPages - (maxPageButtons - 3); i <= totalPages; i++ {
			out = append(out, i)
		}
		return out
	default:
		return []int{1, 0, current - 1, current, current + 1, 0, totalPages}
	}
}
