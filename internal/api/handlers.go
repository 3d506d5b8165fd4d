package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/susu3304/warikan/internal/logger"
	"github.com/susu3304/warikan/internal/settlement"
	"github.com/susu3304/warikan/internal/warikan"
)

type lineJSON struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type balanceJSON struct {
	MemberID string `json:"member_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// fail maps service errors to HTTP statuses; unexpected errors are logged and hidden.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, warikan.ErrGroupNotFound),
		errors.Is(err, warikan.ErrMemberNotFound),
		errors.Is(err, warikan.ErrExpenseNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, warikan.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, warikan.ErrInvalidGroup), errors.Is(err, warikan.ErrInvalidExpense):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Log.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).WithError(err).Error(action)
		writeError(w, http.StatusInternalServerError, action)
	}
}

// member resolves the group in the path and checks the caller belongs to it.
func (a *API) member(w http.ResponseWriter, r *http.Request) (string, *Claims, bool) {
	claims := claimsFrom(r.Context())
	groupID := mux.Vars(r)["group_id"]
	if err := a.svc.Authorize(r.Context(), groupID, claims.UserID); err != nil {
		a.fail(w, r, err, "failed to authorize")
		return "", nil, false
	}
	return groupID, claims, true
}

func (a *API) linesJSON(lines map[string][]settlement.Line) map[string][]lineJSON {
	cur := a.svc.Currencies()
	out := make(map[string][]lineJSON, len(lines))
	for code, ls := range lines {
		items := make([]lineJSON, 0, len(ls))
		for _, l := range ls {
			items = append(items, lineJSON{
				From:     l.From,
				To:       l.To,
				Amount:   l.Amount.StringFixed(cur.Precision(code)),
				Currency: code,
			})
		}
		out[code] = items
	}
	return out
}

func (a *API) handleListGroups(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	groups, err := a.svc.Groups(r.Context(), claims.UserID)
	if err != nil {
		a.fail(w, r, err, "failed to list groups")
		return
	}
	if groups == nil {
		groups = []warikan.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (a *API) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	g, err := a.svc.CreateGroup(r.Context(), req.Name, claims.identity())
	if err != nil {
		a.fail(w, r, err, "failed to create group")
		return
	}
	logger.Log.WithFields(logrus.Fields{"group_id": g.ID, "owner": claims.UserID}).Info("group created")
	writeJSON(w, http.StatusCreated, g)
}

func (a *API) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := a.member(w, r)
	if !ok {
		return
	}
	g, err := a.svc.Group(r.Context(), groupID)
	if err != nil {
		a.fail(w, r, err, "failed to get group")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (a *API) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	groupID, claims, ok := a.member(w, r)
	if !ok {
		return
	}
	if err := a.svc.DeleteGroup(r.Context(), groupID, claims.UserID); err != nil {
		a.fail(w, r, err, "failed to delete group")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "group deleted"})
}

// handleJoin is reached from an invite link, so the caller need not be a member yet.
func (a *API) handleJoin(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	groupID := mux.Vars(r)["group_id"]

	var req struct {
		DisplayName string `json:"displayName"`
	}
	// The body is optional.
	_ = json.NewDecoder(r.Body).Decode(&req)

	who := claims.identity()
	if name := strings.TrimSpace(req.DisplayName); name != "" {
		who.Name = name
	}
	created, err := a.svc.Join(r.Context(), groupID, who)
	if err != nil {
		a.fail(w, r, err, "failed to join group")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true, "created": created})
}

func (a *API) handleListMembers(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := a.member(w, r)
	if !ok {
		return
	}
	members, err := a.svc.Members(r.Context(), groupID)
	if err != nil {
		a.fail(w, r, err, "failed to list members")
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (a *API) handleAddMember(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := a.member(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	m, err := a.svc.AddMember(r.Context(), groupID, req.Name)
	if err != nil {
		a.fail(w, r, err, "failed to add member")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := a.member(w, r)
	if !ok {
		return
	}
	if err := a.svc.RemoveMember(r.Context(), groupID, mux.Vars(r)["member_id"]); err != nil {
		a.fail(w, r, err, "failed to remove member")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "member removed"})
}

func (a *API) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := a.member(w, r)
	if !ok {
		return
	}
	expenses, err := a.svc.Expenses(r.Context(), groupID)
	if err != nil {
		a.fail(w, r, err, "failed to list expenses")
		return
	}
	if expenses == nil {
		expenses = []warikan.Expense{}
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (a *API) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	groupID, claims, ok := a.member(w, r)
	if !ok {
		return
	}
	var in warikan.ExpenseInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e, err := a.svc.AddExpense(r.Context(), groupID, claims.UserID, in)
	if err != nil {
		a.fail(w, r, err, "failed to add expense")
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (a *API) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := a.member(w, r)
	if !ok {
		return
	}
	var in warikan.ExpenseInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e, err := a.svc.UpdateExpense(r.Context(), groupID, mux.Vars(r)["expense_id"], in)
	if err != nil {
		a.fail(w, r, err, "failed to update expense")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (a *API) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := a.member(w, r)
	if !ok {
		return
	}
	if err := a.svc.DeleteExpense(r.Context(), groupID, mux.Vars(r)["expense_id"]); err != nil {
		a.fail(w, r, err, "failed to delete expense")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "expense deleted"})
}

func (a *API) handleSettlements(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := a.member(w, r)
	if !ok {
		return
	}
	lines, err := a.svc.Settlements(r.Context(), groupID)
	if err != nil {
		a.fail(w, r, err, "failed to compute settlements")
		return
	}
	writeJSON(w, http.StatusOK, a.linesJSON(lines))
}

func (a *API) handleSettle(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := a.member(w, r)
	if !ok {
		return
	}
	res, err := a.svc.Settle(r.Context(), groupID)
	if err != nil {
		a.fail(w, r, err, "failed to settle")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lines":   a.linesJSON(res.Lines),
		"summary": res.Summary,
	})
}

func (a *API) handleBalances(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := a.member(w, r)
	if !ok {
		return
	}
	balances, err := a.svc.Balances(r.Context(), groupID)
	if err != nil {
		a.fail(w, r, err, "failed to compute balances")
		return
	}
	cur := a.svc.Currencies()
	out := make(map[string][]balanceJSON, len(balances))
	for code, bs := range balances {
		items := make([]balanceJSON, 0, len(bs))
		for _, b := range bs {
			items = append(items, balanceJSON{
				MemberID: b.MemberID,
				Amount:   b.Amount.StringFixed(cur.Precision(code)),
				Currency: code,
			})
		}
		out[code] = items
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleInvite(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := a.member(w, r)
	if !ok {
		return
	}
	g, err := a.svc.Group(r.Context(), groupID)
	if err != nil {
		a.fail(w, r, err, "failed to get group")
		return
	}
	if a.config.LiffID == "" {
		writeError(w, http.StatusInternalServerError, "LIFF_ID is not set")
		return
	}
	inviteURL := warikan.InviteURL(a.config.LiffID, g.ID)
	text := warikan.InviteText(g.Name, inviteURL)
	writeJSON(w, http.StatusOK, map[string]string{
		"url":       inviteURL,
		"text":      text,
		"share_url": warikan.LineShareURL(text),
	})
}
