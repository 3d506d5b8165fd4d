package api

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/susu3304/warikan/internal/warikan"
	"github.com/xuri/excelize/v2"
)

func TestExportWorkbook(t *testing.T) {
	a, svc := newTestAPI(t)
	g, bob := seed(t, svc)
	if _, err := svc.AddExpense(context.Background(), g.ID, alice.UserID, warikan.ExpenseInput{
		Title: "宿", Amount: decimal.NewFromInt(1000), PaidBy: alice.UserID,
		Participants: []string{alice.UserID, bob.ID},
	}); err != nil {
		t.Fatal(err)
	}

	w := do(a, "GET", "/api/groups/"+g.ID+"/export.xlsx", bearer(t, a, alice), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("content type = %q", ct)
	}
	if cl := w.Header().Get("Content-Length"); cl != strconv.Itoa(w.Body.Len()) {
		t.Errorf("content length = %q, body is %d bytes", cl, w.Body.Len())
	}

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	cells := []struct {
		sheet, cell, want string
	}{
		{expenseSheet, "B2", "宿"},
		{expenseSheet, "C2", "1000"},
		{expenseSheet, "E2", "Alice"},
		{expenseSheet, "F2", "Alice, Bob"},
		{settlementSheet, "A2", "Bob"},
		{settlementSheet, "B2", "Alice"},
		{settlementSheet, "C2", "500"},
		{settlementSheet, "D2", "JPY"},
	}
	for _, c := range cells {
		got, err := f.GetCellValue(c.sheet, c.cell)
		if err != nil {
			t.Fatalf("%s!%s: %v", c.sheet, c.cell, err)
		}
		if got != c.want {
			t.Errorf("%s!%s = %q, want %q", c.sheet, c.cell, got, c.want)
		}
	}
}
