package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/susu3304/warikan/internal/logger"
	"github.com/susu3304/warikan/internal/warikan"
)

const discordMemberName = "Discordユーザー"

// Request is a /warikan invocation stripped of the Discord session.
type Request struct {
	ChannelID string
	UserID    string
	UserName  string
	Sub       string
	Options   []*discordgo.ApplicationCommandInteractionDataOption
	// Users resolved by Discord for mentions, keyed by ID. May be nil.
	Users map[string]*discordgo.User
}

func (r Request) caller() warikan.Identity {
	return warikan.Identity{UserID: warikan.DiscordPrefix + r.UserID, Name: r.UserName}
}

func (r Request) identity(id string) warikan.Identity {
	name := discordMemberName
	if u, ok := r.Users[id]; ok && u != nil {
		name = u.Username
	}
	return warikan.Identity{UserID: warikan.DiscordPrefix + id, Name: name}
}

func HandleWarikan(s *discordgo.Session, i *discordgo.InteractionCreate, svc *warikan.Service) {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		respondText(s, i, "サブコマンドが指定されていません")
		return
	}

	user := i.User
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
	}
	if user == nil {
		respondText(s, i, "ユーザーを特定できませんでした")
		return
	}
	name := user.Username
	if i.Member != nil && i.Member.Nick != "" {
		name = i.Member.Nick
	}

	sub := data.Options[0]
	req := Request{
		ChannelID: i.ChannelID,
		UserID:    user.ID,
		UserName:  name,
		Sub:       sub.Name,
		Options:   sub.Options,
	}
	if data.Resolved != nil {
		req.Users = data.Resolved.Users
	}
	respondText(s, i, Run(context.Background(), svc, req))
}

// Run executes a subcommand and returns the reply text.
func Run(ctx context.Context, svc *warikan.Service, req Request) string {
	msg, err := run(ctx, svc, req)
	if err != nil {
		return errorText(err, req)
	}
	return msg
}

func run(ctx context.Context, svc *warikan.Service, req Request) (string, error) {
	switch req.Sub {
	case "create":
		name := getStringOption(req.Options, "name")
		if name == nil {
			return "グループ名の指定が必要です", nil
		}
		g, err := svc.CreateGroup(ctx, *name, req.caller())
		if err != nil {
			return "", err
		}
		if err := svc.LinkChannel(ctx, g.ID, req.ChannelID); err != nil {
			return "", err
		}
		return fmt.Sprintf("グループ「%s」を作成し、このチャンネルに紐付けました\nID: %s", g.Name, g.ID), nil

	case "link":
		groupID := getStringOption(req.Options, "group_id")
		if groupID == nil || strings.TrimSpace(*groupID) == "" {
			return "グループIDの指定が必要です", nil
		}
		g, err := svc.Group(ctx, strings.TrimSpace(*groupID))
		if err != nil {
			return "", err
		}
		if err := svc.LinkChannel(ctx, g.ID, req.ChannelID); err != nil {
			return "", err
		}
		if _, err := svc.Join(ctx, g.ID, req.caller()); err != nil {
			return "", err
		}
		return fmt.Sprintf("このチャンネルをグループ「%s」に紐付けました", g.Name), nil
	}

	g, err := svc.GroupByChannel(ctx, req.ChannelID)
	if err != nil {
		return "", err
	}

	switch req.Sub {
	case "join":
		created, err := svc.Join(ctx, g.ID, req.caller())
		if err != nil {
			return "", err
		}
		if !created {
			return "既に参加しています", nil
		}
		return "参加者として登録しました", nil

	case "pay":
		return pay(ctx, svc, g, req)

	case "settle":
		res, err := svc.Settle(ctx, g.ID)
		if err != nil {
			return "", err
		}
		return res.Summary, nil

	case "status":
		return svc.Status(ctx, g.ID)

	case "members":
		members, err := svc.Members(ctx, g.ID)
		if err != nil {
			return "", err
		}
		if len(members) == 0 {
			return "参加者がいません", nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "参加者 (%d名):\n", len(members))
		for _, m := range members {
			fmt.Fprintf(&b, "・%s\n", warikan.DisplayName(m))
		}
		return b.String(), nil

	case "done":
		uid := getUserID(req.Options, "user")
		if uid == "" {
			return "相手の指定が必要です", nil
		}
		return svc.CompleteTask(ctx, g.ID, warikan.DiscordPrefix+req.UserID, warikan.DiscordPrefix+uid)

	case "remind":
		enabled := getBoolOption(req.Options, "enabled")
		if enabled == nil {
			return "enabled の指定が必要です", nil
		}
		interval := warikan.DefaultReminderMinutes
		if v := getIntOption(req.Options, "interval"); v != nil && *v > 0 {
			interval = int(*v)
		}
		if err := svc.SetReminder(ctx, g.ID, *enabled, interval); err != nil {
			return "", err
		}
		if !*enabled {
			return "リマインドを無効にしました", nil
		}
		return fmt.Sprintf("リマインドを有効にしました (%d分ごと)", interval), nil
	}
	return "未知のサブコマンドです", nil
}

// pay records an expense paid by the caller. Mentioned users who are not members yet
// are registered first; without mentions the expense is split among all members.
func pay(ctx context.Context, svc *warikan.Service, g *warikan.Group, req Request) (string, error) {
	amountOpt := getStringOption(req.Options, "amount")
	if amountOpt == nil {
		return "金額の指定が必要です", nil
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(*amountOpt))
	if err != nil {
		return "金額を数値で入力してください", nil
	}

	var joined []string
	payer := req.caller()
	created, err := svc.Join(ctx, g.ID, payer)
	if err != nil {
		return "", err
	}
	if created {
		joined = append(joined, fmt.Sprintf("<@%s>", req.UserID))
	}

	var participants []string
	if users := getStringOption(req.Options, "users"); users != nil {
		ids := parseMentionIDs(*users)
		if len(ids) == 0 {
			return "ユーザーのメンション/IDを認識できませんでした", nil
		}
		for _, id := range ids {
			who := req.identity(id)
			created, err := svc.Join(ctx, g.ID, who)
			if err != nil {
				return "", err
			}
			if created {
				joined = append(joined, fmt.Sprintf("<@%s>", id))
			}
			participants = append(participants, who.UserID)
		}
	} else {
		members, err := svc.Members(ctx, g.ID)
		if err != nil {
			return "", err
		}
		for _, m := range members {
			participants = append(participants, m.ID)
		}
	}

	in := warikan.ExpenseInput{
		Title:        "支払い",
		Amount:       amount,
		PaidBy:       payer.UserID,
		Participants: participants,
	}
	if t := getStringOption(req.Options, "title"); t != nil && strings.TrimSpace(*t) != "" {
		in.Title = *t
	}
	if c := getStringOption(req.Options, "currency"); c != nil {
		in.Currency = *c
	}

	e, err := svc.AddExpense(ctx, g.ID, payer.UserID, in)
	if err != nil {
		return "", err
	}
	msg := fmt.Sprintf("%s を記録しました (%s, %d人で割り勘)",
		svc.Currencies().Format(e.Amount, e.Currency), e.Title, len(e.Participants))
	if len(joined) > 0 {
		msg += "\n参加登録: " + strings.Join(joined, ", ")
	}
	return msg, nil
}

func errorText(err error, req Request) string {
	switch {
	case errors.Is(err, warikan.ErrNotLinked):
		return "このチャンネルはグループに紐付いていません\n/warikan create か /warikan link を使ってください"
	case errors.Is(err, warikan.ErrGroupNotFound),
		errors.Is(err, warikan.ErrMemberNotFound),
		errors.Is(err, warikan.ErrExpenseNotFound),
		errors.Is(err, warikan.ErrForbidden),
		errors.Is(err, warikan.ErrInvalidGroup),
		errors.Is(err, warikan.ErrInvalidExpense):
		return err.Error()
	}
	logger.Log.WithFields(logrus.Fields{
		"channel_id": req.ChannelID,
		"user_id":    req.UserID,
		"sub":        req.Sub,
	}).WithError(err).Error("warikan command failed")
	return "エラーが発生しました"
}
