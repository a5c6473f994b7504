// Package chat posts show moments to the channel's Twitch chat via IRC.
package chat

import (
	"context"
	"fmt"
	"log/slog"

	twitchirc "github.com/gempir/go-twitch-irc/v4"

	"github.com/kleoz/smashbet/game"
)

// Announcer writes bonus and match events to chat. It is optional: New
// returns nil when credentials are missing and the engine treats a nil
// announcer as disabled.
type Announcer struct {
	client  *twitchirc.Client
	channel string
	log     *slog.Logger
}

// New builds an announcer, or nil when username/token/channel are not all set.
func New(username, oauthToken, channel string) *Announcer {
	if username == "" || oauthToken == "" || channel == "" {
		slog.Info("chat announcer disabled: missing bot credentials")
		return nil
	}
	return &Announcer{
		client:  twitchirc.NewClient(username, oauthToken),
		channel: channel,
		log:     slog.Default().With(slog.String("component", "chat")),
	}
}

// Start connects and blocks until the connection drops or ctx is canceled.
// Run it in a goroutine; Connect re-dials on transient failures.
func (a *Announcer) Start(ctx context.Context) {
	a.client.OnConnect(func() {
		a.log.Info("connected to chat", slog.String("channel", a.channel))
	})
	a.client.Join(a.channel)

	go func() {
		<-ctx.Done()
		if err := a.client.Disconnect(); err != nil {
			a.log.Warn("chat disconnect failed", slog.Any("err", err))
		}
	}()

	if err := a.client.Connect(); err != nil && ctx.Err() == nil {
		a.log.Error("chat connection ended", slog.Any("err", err))
	}
}

func (a *Announcer) say(msg string) {
	a.client.Say(a.channel, msg)
}

func (a *Announcer) BonusApplied(user string, cat game.Category, targetBot int, payload string) {
	switch cat {
	case game.CategoryLevelUp:
		a.say(fmt.Sprintf("%s boosted bot %d!", user, targetBot))
	case game.CategoryLevelDown:
		a.say(fmt.Sprintf("%s weakened bot %d!", user, targetBot))
	case game.CategoryCharSelect:
		a.say(fmt.Sprintf("%s picked %s for bot %d!", user, payload, targetBot))
	}
}

func (a *Announcer) MatchClosed(matchID int64, winner *int) {
	if winner != nil {
		a.say(fmt.Sprintf("Match %d is over, bot %d takes it! GG to everyone who bet on it.", matchID, *winner))
		return
	}
	a.say(fmt.Sprintf("Match %d is over!", matchID))
}
