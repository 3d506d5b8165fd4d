package bot

import (
	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
	"github.com/susu3304/warikan/internal/commands"
	"github.com/susu3304/warikan/internal/logger"
)

func (b *Bot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	logger.Log.Infof("%s is connected!", event.User.Username)

	// Register commands for all guilds
	for _, guild := range event.Guilds {
		if err := b.registerGuildCommands(guild.ID); err != nil {
			logger.Log.WithField("guild_id", guild.ID).WithError(err).Error("failed to register commands")
		}
	}
}

func (b *Bot) onGuildCreate(s *discordgo.Session, event *discordgo.GuildCreate) {
	logger.Log.WithFields(logrus.Fields{"guild": event.Name, "guild_id": event.ID}).Info("guild available, ensuring commands")
	if err := b.registerGuildCommands(event.ID); err != nil {
		logger.Log.WithField("guild_id", event.ID).WithError(err).Error("failed to register commands")
	}
}

func (b *Bot) registerGuildCommands(guildID string) error {
	// Replaces whatever was registered before.
	_, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, guildID, commands.GetCommands())
	if err != nil {
		return err
	}
	logger.Log.WithField("guild_id", guildID).Info("registered application commands")
	return nil
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	switch i.ApplicationCommandData().Name {
	case commands.CommandName:
		commands.HandleWarikan(s, i, b.svc)
	}
}
