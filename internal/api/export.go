package api

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/susu3304/warikan/internal/logger"
	"github.com/susu3304/warikan/internal/settlement"
	"github.com/susu3304/warikan/internal/warikan"
	"github.com/xuri/excelize/v2"
)

const (
	expenseSheet    = "支払い"
	settlementSheet = "精算"
)

// buildWorkbook lays out the group's expenses and the resulting transfers on two sheets.
func buildWorkbook(cur settlement.Currencies, members []warikan.Member, expenses []warikan.Expense, lines map[string][]settlement.Line) (*excelize.File, error) {
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.ID] = m.Name
	}
	name := func(id string) string {
		if n, ok := names[id]; ok {
			return n
		}
		return id
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", expenseSheet); err != nil {
		return nil, err
	}

	headers := []string{"日付", "タイトル", "金額", "通貨", "支払者", "参加者"}
	for i, h := range headers {
		if err := f.SetCellValue(expenseSheet, fmt.Sprintf("%c1", 'A'+i), h); err != nil {
			return nil, err
		}
	}
	for idx, e := range expenses {
		row := idx + 2
		participants := make([]string, 0, len(e.Participants))
		for _, id := range e.Participants {
			participants = append(participants, name(id))
		}
		values := []interface{}{
			e.CreatedAt.Format("2006-01-02"),
			e.Title,
			e.Amount.StringFixed(cur.Precision(e.Currency)),
			e.Currency,
			name(e.PaidBy),
			strings.Join(participants, ", "),
		}
		for i, v := range values {
			if err := f.SetCellValue(expenseSheet, fmt.Sprintf("%c%d", 'A'+i, row), v); err != nil {
				return nil, err
			}
		}
	}
	_ = f.SetColWidth(expenseSheet, "A", "A", 12)
	_ = f.SetColWidth(expenseSheet, "B", "B", 24)
	_ = f.SetColWidth(expenseSheet, "F", "F", 30)

	if _, err := f.NewSheet(settlementSheet); err != nil {
		return nil, err
	}
	for i, h := range []string{"支払う人", "受け取る人", "金額", "通貨"} {
		if err := f.SetCellValue(settlementSheet, fmt.Sprintf("%c1", 'A'+i), h); err != nil {
			return nil, err
		}
	}
	row := 2
	for _, code := range settlementCurrencies(lines) {
		for _, l := range lines[code] {
			values := []interface{}{name(l.From), name(l.To), l.Amount.StringFixed(cur.Precision(code)), code}
			for i, v := range values {
				if err := f.SetCellValue(settlementSheet, fmt.Sprintf("%c%d", 'A'+i, row), v); err != nil {
					return nil, err
				}
			}
			row++
		}
	}
	return f, nil
}

func settlementCurrencies(lines map[string][]settlement.Line) []string {
	codes := make([]string, 0, len(lines))
	for code := range lines {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := a.member(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	members, err := a.svc.Members(ctx, groupID)
	if err != nil {
		a.fail(w, r, err, "failed to export")
		return
	}
	expenses, err := a.svc.Expenses(ctx, groupID)
	if err != nil {
		a.fail(w, r, err, "failed to export")
		return
	}
	lines, err := a.svc.Settlements(ctx, groupID)
	if err != nil {
		a.fail(w, r, err, "failed to export")
		return
	}

	f, err := buildWorkbook(a.svc.Currencies(), members, expenses, lines)
	if err != nil {
		a.fail(w, r, err, "failed to export")
		return
	}
	defer f.Close()

	// Render fully first so a failure can still answer with a JSON error.
	buf, err := f.WriteToBuffer()
	if err != nil {
		a.fail(w, r, err, "failed to export")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"warikan_%s.xlsx\"",
		time.Now().Format("20060102")))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		logger.Log.WithError(err).WithField("group_id", groupID).Warn("failed to write export")
	}
}
