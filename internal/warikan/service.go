package warikan

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/susu3304/warikan/internal/settlement"
)

const (
	DefaultMemberName      = "LINEユーザー"
	DefaultCurrency        = "JPY"
	DefaultReminderMinutes = 60

	// LinePrefix and DiscordPrefix mark member IDs that belong to user accounts.
	LinePrefix    = "line:"
	DiscordPrefix = "discord:"
)

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

type Service struct {
	store      Store
	currencies settlement.Currencies
	now        func() time.Time
}

func NewService(store Store, currencies settlement.Currencies) *Service {
	if currencies == nil {
		currencies = settlement.DefaultCurrencies()
	}
	return &Service{store: store, currencies: currencies, now: time.Now}
}

func (s *Service) Currencies() settlement.Currencies {
	return s.currencies
}

// CreateGroup creates a group and registers the owner as its first member.
func (s *Service) CreateGroup(ctx context.Context, name string, owner Identity) (*Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: グループ名が必要です", ErrInvalidGroup)
	}
	now := s.now()
	g := &Group{ID: uuid.NewString(), Name: name, OwnerID: owner.UserID, CreatedAt: now}
	var m *Member
	if owner.UserID != "" {
		m = &Member{ID: owner.UserID, GroupID: g.ID, Name: memberName(owner.Name), UID: owner.UserID, JoinedAt: now}
	}
	if err := s.store.CreateGroup(ctx, g, m); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

func (s *Service) Group(ctx context.Context, groupID string) (*Group, error) {
	return s.store.Group(ctx, groupID)
}

func (s *Service) Groups(ctx context.Context, uid string) ([]Group, error) {
	return s.store.GroupsForUser(ctx, uid)
}

// DeleteGroup removes a group with its members, expenses, tasks and reminder.
// Only the owner may delete a group that has one.
func (s *Service) DeleteGroup(ctx context.Context, groupID, actorUID string) error {
	g, err := s.store.Group(ctx, groupID)
	if err != nil {
		return err
	}
	if g.OwnerID != "" && g.OwnerID != actorUID {
		return ErrForbidden
	}
	return s.store.DeleteGroup(ctx, groupID)
}

// Join adds the user to the group unless already a member. It reports whether a member was created.
func (s *Service) Join(ctx context.Context, groupID string, who Identity) (bool, error) {
	if who.UserID == "" {
		return false, fmt.Errorf("%w: ユーザーIDが必要です", ErrInvalidGroup)
	}
	if _, err := s.store.Group(ctx, groupID); err != nil {
		return false, err
	}
	return s.store.AddMember(ctx, &Member{
		ID:       who.UserID,
		GroupID:  groupID,
		Name:     memberName(who.Name),
		UID:      who.UserID,
		JoinedAt: s.now(),
	})
}

// AddMember adds a name-only member that is not backed by a user account.
func (s *Service) AddMember(ctx context.Context, groupID, name string) (*Member, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: メンバー名が必要です", ErrInvalidGroup)
	}
	if _, err := s.store.Group(ctx, groupID); err != nil {
		return nil, err
	}
	m := &Member{ID: uuid.NewString(), GroupID: groupID, Name: name, JoinedAt: s.now()}
	if _, err := s.store.AddMember(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) RemoveMember(ctx context.Context, groupID, memberID string) error {
	return s.store.DeleteMember(ctx, groupID, memberID)
}

// Members returns the group's members in join order.
func (s *Service) Members(ctx context.Context, groupID string) ([]Member, error) {
	if _, err := s.store.Group(ctx, groupID); err != nil {
		return nil, err
	}
	return s.store.Members(ctx, groupID)
}

// Authorize returns ErrForbidden unless uid belongs to a member of the group.
func (s *Service) Authorize(ctx context.Context, groupID, uid string) error {
	members, err := s.Members(ctx, groupID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.ID == uid || (m.UID != "" && m.UID == uid) {
			return nil
		}
	}
	return ErrForbidden
}

func (s *Service) AddExpense(ctx context.Context, groupID, createdBy string, in ExpenseInput) (*Expense, error) {
	in, err := s.validateExpense(ctx, groupID, in)
	if err != nil {
		return nil, err
	}
	e := &Expense{
		ID:           uuid.NewString(),
		GroupID:      groupID,
		Title:        in.Title,
		Amount:       in.Amount,
		Currency:     in.Currency,
		PaidBy:       in.PaidBy,
		Participants: in.Participants,
		CreatedBy:    createdBy,
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateExpense(ctx, e); err != nil {
		return nil, fmt.Errorf("create expense: %w", err)
	}
	return e, nil
}

func (s *Service) UpdateExpense(ctx context.Context, groupID, expenseID string, in ExpenseInput) (*Expense, error) {
	e, err := s.store.Expense(ctx, groupID, expenseID)
	if err != nil {
		return nil, err
	}
	in, err = s.validateExpense(ctx, groupID, in)
	if err != nil {
		return nil, err
	}
	e.Title = in.Title
	e.Amount = in.Amount
	e.Currency = in.Currency
	e.PaidBy = in.PaidBy
	e.Participants = in.Participants
	if err := s.store.UpdateExpense(ctx, e); err != nil {
		return nil, fmt.Errorf("update expense: %w", err)
	}
	return e, nil
}

func (s *Service) DeleteExpense(ctx context.Context, groupID, expenseID string) error {
	return s.store.DeleteExpense(ctx, groupID, expenseID)
}

func (s *Service) Expense(ctx context.Context, groupID, expenseID string) (*Expense, error) {
	return s.store.Expense(ctx, groupID, expenseID)
}

// Expenses returns the group's expenses, newest first.
func (s *Service) Expenses(ctx context.Context, groupID string) ([]Expense, error) {
	if _, err := s.store.Group(ctx, groupID); err != nil {
		return nil, err
	}
	return s.store.Expenses(ctx, groupID)
}

func (s *Service) validateExpense(ctx context.Context, groupID string, in ExpenseInput) (ExpenseInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return in, fmt.Errorf("%w: タイトルが必要です", ErrInvalidExpense)
	}
	in.Currency = settlement.NormalizeCode(in.Currency)
	if in.Currency == "" {
		in.Currency = DefaultCurrency
	}
	if !currencyCode.MatchString(in.Currency) {
		return in, fmt.Errorf("%w: 通貨コードが不正です (%s)", ErrInvalidExpense, in.Currency)
	}
	if !in.Amount.IsPositive() {
		return in, fmt.Errorf("%w: 金額は正の数で入力してください", ErrInvalidExpense)
	}
	if !s.currencies.InRange(in.Amount, in.Currency) {
		return in, fmt.Errorf("%w: 金額が大きすぎます", ErrInvalidExpense)
	}
	if s.currencies.ToMinor(in.Amount, in.Currency) <= 0 {
		return in, fmt.Errorf("%w: 金額が小さすぎます", ErrInvalidExpense)
	}

	members, err := s.Members(ctx, groupID)
	if err != nil {
		return in, err
	}
	known := make(map[string]struct{}, len(members))
	for _, m := range members {
		known[m.ID] = struct{}{}
	}
	if _, ok := known[in.PaidBy]; !ok {
		return in, fmt.Errorf("%w: 支払者がメンバーではありません", ErrInvalidExpense)
	}
	seen := make(map[string]struct{}, len(in.Participants))
	participants := make([]string, 0, len(in.Participants))
	for _, id := range in.Participants {
		if _, dup := seen[id]; dup {
			continue
		}
		if _, ok := known[id]; !ok {
			return in, fmt.Errorf("%w: 参加者 %q はメンバーではありません", ErrInvalidExpense, id)
		}
		seen[id] = struct{}{}
		participants = append(participants, id)
	}
	if len(participants) == 0 {
		return in, fmt.Errorf("%w: 参加者を1人以上選んでください", ErrInvalidExpense)
	}
	in.Participants = participants
	return in, nil
}

func (s *Service) load(ctx context.Context, groupID string) ([]Member, []Expense, error) {
	members, err := s.Members(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	expenses, err := s.store.Expenses(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	return members, expenses, nil
}

func toSettlementInput(members []Member, expenses []Expense) ([]settlement.Member, []settlement.Expense) {
	sm := make([]settlement.Member, 0, len(members))
	for _, m := range members {
		sm = append(sm, m.settlementMember())
	}
	se := make([]settlement.Expense, 0, len(expenses))
	for _, e := range expenses {
		se = append(se, e.settlementExpense())
	}
	return sm, se
}

// Settlements computes the transfers for the group without persisting anything.
func (s *Service) Settlements(ctx context.Context, groupID string) (map[string][]settlement.Line, error) {
	members, expenses, err := s.load(ctx, groupID)
	if err != nil {
		return nil, err
	}
	sm, se := toSettlementInput(members, expenses)
	return s.currencies.Compute(sm, se), nil
}

// Balances returns each member's net position per currency.
func (s *Service) Balances(ctx context.Context, groupID string) (map[string][]settlement.Balance, error) {
	members, expenses, err := s.load(ctx, groupID)
	if err != nil {
		return nil, err
	}
	sm, se := toSettlementInput(members, expenses)
	return s.currencies.Balances(sm, se), nil
}

// Settle computes the transfers, replaces the group's pending tasks with them and
// returns a printable summary.
func (s *Service) Settle(ctx context.Context, groupID string) (*SettleResult, error) {
	members, expenses, err := s.load(ctx, groupID)
	if err != nil {
		return nil, err
	}
	sm, se := toSettlementInput(members, expenses)
	lines := s.currencies.Compute(sm, se)

	var tasks []SettlementTask
	for _, cur := range sortedKeys(lines) {
		for _, l := range lines[cur] {
			tasks = append(tasks, SettlementTask{
				GroupID:  groupID,
				PayerID:  l.From,
				PayeeID:  l.To,
				Currency: cur,
				Amount:   s.currencies.ToMinor(l.Amount, cur),
			})
		}
	}
	if err := s.store.SetSettlementTasks(ctx, groupID, tasks); err != nil {
		return nil, fmt.Errorf("save settlement tasks: %w", err)
	}

	names := nameIndex(members)
	var b strings.Builder
	if len(tasks) == 0 {
		b.WriteString("精算は不要です")
	} else {
		b.WriteString("支払タスク:\n")
		for _, cur := range sortedKeys(lines) {
			for _, l := range lines[cur] {
				fmt.Fprintf(&b, "%s → %s: %s\n", names(l.From), names(l.To), s.currencies.Format(l.Amount, cur))
			}
		}
	}
	return &SettleResult{Lines: lines, Summary: b.String()}, nil
}

// Status describes each member's balance per currency.
func (s *Service) Status(ctx context.Context, groupID string) (string, error) {
	members, expenses, err := s.load(ctx, groupID)
	if err != nil {
		return "", err
	}
	if len(members) == 0 {
		return "参加者がいません", nil
	}
	if len(expenses) == 0 {
		return "支払いはまだありません", nil
	}
	sm, se := toSettlementInput(members, expenses)
	balances := s.currencies.Balances(sm, se)

	totals := make(map[string]int64)
	for _, e := range expenses {
		cur := settlement.NormalizeCode(e.Currency)
		totals[cur] += s.currencies.ToMinor(e.Amount, cur)
	}

	names := nameIndex(members)
	var b strings.Builder
	for _, cur := range sortedKeys(balances) {
		fmt.Fprintf(&b, "[%s] 総支出: %s\n", cur, s.currencies.Format(s.currencies.FromMinor(totals[cur], cur), cur))
		for _, bal := range balances[cur] {
			sign := ""
			if bal.Amount.IsPositive() {
				sign = "+"
			}
			fmt.Fprintf(&b, "%s: %s%s\n", names(bal.MemberID), sign, s.currencies.Format(bal.Amount, cur))
		}
	}
	return b.String(), nil
}

func (s *Service) PendingTasks(ctx context.Context, groupID string) ([]SettlementTask, error) {
	return s.store.PendingSettlementTasks(ctx, groupID)
}

// CompleteTask marks the pending task between actor and other as paid.
func (s *Service) CompleteTask(ctx context.Context, groupID, actorID, otherID string) (string, error) {
	t, err := s.store.CompleteSettlementTask(ctx, groupID, actorID, otherID)
	if err != nil {
		return "", err
	}
	if t == nil {
		return "対象のタスクが見つかりません", nil
	}
	members, err := s.store.Members(ctx, groupID)
	if err != nil {
		return "", err
	}
	names := nameIndex(members)
	amount := s.currencies.Format(s.currencies.FromMinor(t.Amount, t.Currency), t.Currency)
	return fmt.Sprintf("完了しました: %s → %s %s", names(t.PayerID), names(t.PayeeID), amount), nil
}

// ReminderMessage lists the unpaid tasks of a group. It is empty when nothing is pending.
func (s *Service) ReminderMessage(ctx context.Context, groupID string) (string, error) {
	tasks, err := s.store.PendingSettlementTasks(ctx, groupID)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "", nil
	}
	members, err := s.store.Members(ctx, groupID)
	if err != nil {
		return "", err
	}
	names := nameIndex(members)
	var b strings.Builder
	b.WriteString("未精算の支払いがあります:\n")
	for _, t := range tasks {
		amount := s.currencies.Format(s.currencies.FromMinor(t.Amount, t.Currency), t.Currency)
		fmt.Fprintf(&b, "%s → %s: %s\n", names(t.PayerID), names(t.PayeeID), amount)
	}
	return b.String(), nil
}

// SetReminder enables or disables periodic reminders for the group.
func (s *Service) SetReminder(ctx context.Context, groupID string, enabled bool, intervalMinutes int) error {
	if _, err := s.store.Group(ctx, groupID); err != nil {
		return err
	}
	if intervalMinutes <= 0 {
		intervalMinutes = DefaultReminderMinutes
	}
	var next *time.Time
	if enabled {
		t := s.now().Add(time.Duration(intervalMinutes) * time.Minute)
		next = &t
	}
	return s.store.UpsertReminder(ctx, groupID, enabled, intervalMinutes, next)
}

func (s *Service) DueReminders(ctx context.Context, now time.Time) ([]ReminderDue, error) {
	return s.store.DueReminders(ctx, now)
}

func (s *Service) MarkReminderSent(ctx context.Context, groupID string, sentAt, nextDue time.Time) error {
	return s.store.MarkReminderSent(ctx, groupID, sentAt, nextDue)
}

func (s *Service) DelayReminder(ctx context.Context, groupID string, nextDue time.Time) error {
	return s.store.DelayReminder(ctx, groupID, nextDue)
}

func (s *Service) LinkChannel(ctx context.Context, groupID, channelID string) error {
	if _, err := s.store.Group(ctx, groupID); err != nil {
		return err
	}
	return s.store.LinkChannel(ctx, groupID, channelID)
}

func (s *Service) GroupByChannel(ctx context.Context, channelID string) (*Group, error) {
	return s.store.GroupByChannel(ctx, channelID)
}

func memberName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultMemberName
	}
	return name
}

// DisplayName renders a member for chat output; Discord members become mentions.
func DisplayName(m Member) string {
	if id, ok := strings.CutPrefix(m.ID, DiscordPrefix); ok {
		return "<@" + id + ">"
	}
	return m.Name
}

func nameIndex(members []Member) func(string) string {
	byID := make(map[string]Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}
	return func(id string) string {
		if m, ok := byID[id]; ok {
			return DisplayName(m)
		}
		return "(不明)"
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
