package bot

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/susu3304/warikan/internal/logger"
	"github.com/susu3304/warikan/internal/warikan"
)

const (
	reminderSchedule = "@every 1m"
	reminderFooter   = "\n\n※このメッセージは自動投稿です"
)

// reminderWorker periodically posts unpaid settlement reminders to linked channels.
type reminderWorker struct {
	svc     *warikan.Service
	session reminderSession
	cron    *cron.Cron
	now     func() time.Time
	// pause between send attempts
	retryDelay func() time.Duration
}

// Minimal session interface for sending channel messages.
type reminderSession interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

func newReminderWorker(session reminderSession, svc *warikan.Service) *reminderWorker {
	return &reminderWorker{
		svc:     svc,
		session: session,
		now:     time.Now,
		retryDelay: func() time.Duration {
			return time.Duration(300+rand.Intn(500)) * time.Millisecond
		},
	}
}

func (w *reminderWorker) start() error {
	if w == nil {
		return nil
	}
	// SkipIfStillRunning keeps a slow tick from overlapping the next one.
	w.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := w.cron.AddFunc(reminderSchedule, func() { w.tick(context.Background()) }); err != nil {
		return err
	}
	w.cron.Start()
	logger.Log.Infof("reminder worker started (%s)", reminderSchedule)
	return nil
}

func (w *reminderWorker) stop() {
	if w == nil || w.cron == nil {
		return
	}
	<-w.cron.Stop().Done()
}

func (w *reminderWorker) tick(ctx context.Context) {
	now := w.now()
	targets, err := w.svc.DueReminders(ctx, now)
	if err != nil {
		logger.Log.WithError(err).Error("reminder: failed to load due reminders")
		return
	}

	for _, t := range targets {
		log := logger.Log.WithFields(logrus.Fields{"group_id": t.GroupID, "channel_id": t.ChannelID})
		msg, err := w.svc.ReminderMessage(ctx, t.GroupID)
		if err != nil {
			log.WithError(err).Error("reminder: failed to build message")
			continue
		}
		if msg == "" {
			continue
		}
		if err := w.sendWithRetry(ctx, t.ChannelID, msg+reminderFooter); err != nil {
			log.WithError(err).Warn("reminder: failed to send message")
			// Back off so we don't hammer Discord every minute.
			backoff := 2 * time.Minute
			if t.IntervalMinutes > 0 {
				max := time.Duration(t.IntervalMinutes) * time.Minute
				if backoff > max {
					backoff = max
				}
			}
			if derr := w.svc.DelayReminder(ctx, t.GroupID, now.Add(backoff)); derr != nil {
				log.WithError(derr).Error("reminder: failed to delay reminder")
			}
			continue
		}
		next := now.Add(time.Duration(t.IntervalMinutes) * time.Minute)
		if err := w.svc.MarkReminderSent(ctx, t.GroupID, now, next); err != nil {
			log.WithError(err).Error("reminder: failed to mark reminder sent")
		}
	}
}

func (w *reminderWorker) sendWithRetry(ctx context.Context, channelID, content string) error {
	const attemptTimeout = 12 * time.Second
	const maxAttempts = 2

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		_, err := w.session.ChannelMessageSend(channelID, content, discordgo.WithContext(sendCtx))
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTemporaryOrTimeout(err) {
			return err
		}
		if attempt < maxAttempts {
			time.Sleep(w.retryDelay())
		}
	}
	return lastErr
}

func isTemporaryOrTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
