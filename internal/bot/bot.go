package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/warikan/internal/logger"
	"github.com/susu3304/warikan/internal/warikan"
)

type Bot struct {
	session  *discordgo.Session
	svc      *warikan.Service
	reminder *reminderWorker
}

func New(token string, svc *warikan.Service) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	bot := &Bot{
		session:  session,
		svc:      svc,
		reminder: newReminderWorker(session, svc),
	}

	// Register event handlers
	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onGuildCreate)
	session.AddHandler(bot.onInteractionCreate)

	session.Identify.Intents = discordgo.IntentsGuilds

	return bot, nil
}

func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	if err := b.reminder.start(); err != nil {
		_ = b.session.Close()
		return fmt.Errorf("failed to start reminder worker: %w", err)
	}
	logger.Log.Info("Discord bot is running")
	return nil
}

func (b *Bot) Stop() error {
	b.reminder.stop()
	return b.session.Close()
}
