package commands

import (
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/warikan/internal/logger"
)

var mentionPattern = regexp.MustCompile(`<@!?([0-9]+)>`)

func respondText(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
	if err != nil {
		logger.Log.WithError(err).Warn("failed to respond to interaction")
	}
}

func findOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, o := range opts {
		if o.Name == name {
			return o
		}
	}
	return nil
}

func getStringOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) *string {
	if o := findOption(opts, name); o != nil && o.Type == discordgo.ApplicationCommandOptionString {
		v := o.StringValue()
		return &v
	}
	return nil
}

func getIntOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) *int64 {
	if o := findOption(opts, name); o != nil && o.Type == discordgo.ApplicationCommandOptionInteger {
		v := o.IntValue()
		return &v
	}
	return nil
}

func getBoolOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) *bool {
	if o := findOption(opts, name); o != nil && o.Type == discordgo.ApplicationCommandOptionBoolean {
		v := o.BoolValue()
		return &v
	}
	return nil
}

// getUserID reads the raw ID of a user option; no session is needed.
func getUserID(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	if o := findOption(opts, name); o != nil {
		if id, ok := o.Value.(string); ok {
			return id
		}
	}
	return ""
}

// parseMentionIDs supports <@123>, <@!123>, and raw IDs separated by spaces.
func parseMentionIDs(text string) []string {
	var ids []string
	for _, m := range mentionPattern.FindAllStringSubmatch(text, -1) {
		if len(m) >= 2 {
			ids = append(ids, m[1])
		}
	}
	for _, tok := range strings.Fields(text) {
		if allDigits(tok) {
			ids = append(ids, tok)
		}
	}
	return unique(ids)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
