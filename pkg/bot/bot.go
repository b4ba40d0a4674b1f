// Package bot routes incoming messages to the right service and renders the
// replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/zonchen/homebot/internal/history"
	"github.com/zonchen/homebot/internal/store"
	"github.com/zonchen/homebot/pkg/line"
	"github.com/zonchen/homebot/pkg/rss"
	"github.com/zonchen/homebot/pkg/weather"
)

const helpText = `Here's what I can do:
/news - top headlines
/weather [city] - forecast
/air - air quality
/eat <location> [keyword] - restaurants nearby
/parking <location> - parking nearby
/go <origin> to <destination> - driving directions
/rss add <url> [name] | /rss remove <n> | /rss list
/backup status [album] | /backup link <album>
/memory - recent conversation | /clear - forget it
Anything else and we just chat. Send me a photo to file it away.`

// Messenger sends replies and pushes, and fetches image content.
type Messenger interface {
	Reply(ctx context.Context, replyToken, text string) error
	MessageContent(ctx context.Context, messageID string) ([]byte, error)
}

// Feeds is the subscription service surface the bot uses.
type Feeds interface {
	Add(ctx context.Context, subscriber, url, name string) (string, error)
	Remove(subscriber string, index int) (string, error)
	List(subscriber string) []store.Subscription
}

// Weather is the forecast service surface.
type Weather interface {
	Forecast(ctx context.Context, city string) (*weather.Forecast, error)
	AirQuality(ctx context.Context, lat, lon float64) (int, error)
}

// Places is the maps service surface.
type Places interface {
	SearchRestaurants(ctx context.Context, location, keyword string) (string, error)
	SearchParking(ctx context.Context, location string) (string, error)
	Directions(ctx context.Context, origin, destination string) (string, error)
}

// Headlines is the news service surface.
type Headlines interface {
	TopHeadlines(ctx context.Context) (string, error)
}

// Chatter answers free-form messages.
type Chatter interface {
	Reply(ctx context.Context, subscriber, text string) (string, error)
}

// Backups answers album backup queries.
type Backups interface {
	Status(group, albumID string) string
	Link(ctx context.Context, group, albumID string) (string, error)
}

// Uploader stores images picked up from chat.
type Uploader interface {
	Upload(ctx context.Context, path string, data []byte, overwrite bool) error
	EnsureFolder(ctx context.Context, path string) error
	SharedLink(ctx context.Context, path string) (string, error)
}

// History is the conversation bookkeeping the bot needs directly.
type History interface {
	Recent(ctx context.Context, subscriber string, n int) ([]history.Message, error)
	Clear(ctx context.Context, subscriber string) error
	SetPendingImage(ctx context.Context, subscriber, messageID string) error
	PendingImage(ctx context.Context, subscriber string) (string, error)
	ClearPendingImage(ctx context.Context, subscriber string) error
}

// Options carries the per-deployment defaults.
type Options struct {
	DefaultCity string
	DefaultLat  float64
	DefaultLon  float64
	ImagesRoot  string
}

// Bot dispatches webhook events.
type Bot struct {
	messenger Messenger
	feeds     Feeds
	weather   Weather
	places    Places
	news      Headlines
	chatter   Chatter
	backups   Backups
	uploader  Uploader
	history   History
	opts      Options
	now       func() time.Time
}

// New wires a Bot. Any service may be nil; its commands then answer with a
// "not configured" message instead of failing.
func New(m Messenger, feeds Feeds, w Weather, p Places, n Headlines, c Chatter, b Backups, u Uploader, h History, opts Options) *Bot {
	if opts.DefaultCity == "" {
		opts.DefaultCity = "Taipei"
	}
	if opts.ImagesRoot == "" {
		opts.ImagesRoot = "/line_bot_images"
	}
	return &Bot{
		messenger: m,
		feeds:     feeds,
		weather:   w,
		places:    p,
		news:      n,
		chatter:   c,
		backups:   b,
		uploader:  u,
		history:   h,
		opts:      opts,
		now:       time.Now,
	}
}

// HandleEvent processes one webhook event. Errors are rendered into the
// reply; nothing here is fatal.
func (b *Bot) HandleEvent(ctx context.Context, ev line.Event) {
	if ev.Type != "message" {
		return
	}

	var reply string
	switch ev.Message.Type {
	case "text":
		reply = b.handleText(ctx, ev.SenderID(), ev.Message.Text)
	case "image":
		reply = b.handleImage(ctx, ev.SenderID(), ev.Message.ID)
	default:
		return
	}
	if reply == "" {
		return
	}

	if err := b.messenger.Reply(ctx, ev.ReplyToken, reply); err != nil {
		fmt.Fprintf(os.Stderr, "bot: reply to %s: %v\n", ev.SenderID(), err)
	}
}

func (b *Bot) handleText(ctx context.Context, sender, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	// A pending image routes the next message into the folder flow.
	if b.history != nil && b.uploader != nil {
		if pending, _ := b.history.PendingImage(ctx, sender); pending != "" {
			return b.storePendingImage(ctx, sender, pending, text)
		}
	}

	cmd, rest := splitCommand(text)
	switch cmd {
	case "/help":
		return helpText
	case "/news":
		return b.handleNews(ctx)
	case "/weather":
		return b.handleWeather(ctx, rest)
	case "/air":
		return b.handleAir(ctx)
	case "/eat":
		return b.handleEat(ctx, rest)
	case "/parking":
		return b.handleParking(ctx, rest)
	case "/go":
		return b.handleDirections(ctx, rest)
	case "/rss":
		return b.handleRSS(ctx, sender, rest)
	case "/backup":
		return b.handleBackup(ctx, sender, rest)
	case "/memory":
		return b.handleMemory(ctx, sender)
	case "/clear":
		return b.handleClear(ctx, sender)
	}

	if b.chatter == nil {
		return helpText
	}
	reply, err := b.chatter.Reply(ctx, sender, text)
	if err != nil {
		return oops(err)
	}
	return reply
}

func splitCommand(text string) (cmd, rest string) {
	cmd, rest, _ = strings.Cut(text, " ")
	return strings.ToLower(cmd), strings.TrimSpace(rest)
}

func (b *Bot) handleNews(ctx context.Context) string {
	if b.news == nil {
		return "News isn't set up."
	}
	msg, err := b.news.TopHeadlines(ctx)
	if err != nil {
		return oops(err)
	}
	return msg
}

func (b *Bot) handleWeather(ctx context.Context, city string) string {
	if b.weather == nil {
		return "Weather isn't set up."
	}
	if city == "" {
		city = b.opts.DefaultCity
	}
	f, err := b.weather.Forecast(ctx, city)
	if err != nil {
		return oops(err)
	}
	return f.Message()
}

func (b *Bot) handleAir(ctx context.Context) string {
	if b.weather == nil {
		return "Weather isn't set up."
	}
	aqi, err := b.weather.AirQuality(ctx, b.opts.DefaultLat, b.opts.DefaultLon)
	if err != nil {
		return oops(err)
	}
	return "Current air quality: " + weather.AQILabel(aqi)
}

func (b *Bot) handleEat(ctx context.Context, rest string) string {
	if b.places == nil {
		return "Restaurant search isn't set up."
	}
	if rest == "" {
		return "Where should I look? Try /eat Daan District ramen"
	}
	location, keyword, _ := strings.Cut(rest, " ")
	msg, err := b.places.SearchRestaurants(ctx, location, strings.TrimSpace(keyword))
	if err != nil {
		return oops(err)
	}
	return msg
}

func (b *Bot) handleParking(ctx context.Context, location string) string {
	if b.places == nil {
		return "Parking search isn't set up."
	}
	if location == "" {
		return "Where should I look? Try /parking Taipei 101"
	}
	msg, err := b.places.SearchParking(ctx, location)
	if err != nil {
		return oops(err)
	}
	return msg
}

func (b *Bot) handleDirections(ctx context.Context, rest string) string {
	if b.places == nil {
		return "Directions aren't set up."
	}
	origin, destination, ok := strings.Cut(rest, " to ")
	if !ok || strings.TrimSpace(origin) == "" || strings.TrimSpace(destination) == "" {
		return "Try /go Taipei Main Station to Taipei 101"
	}
	msg, err := b.places.Directions(ctx, strings.TrimSpace(origin), strings.TrimSpace(destination))
	if err != nil {
		return oops(err)
	}
	return msg
}

func (b *Bot) handleRSS(ctx context.Context, sender, rest string) string {
	if b.feeds == nil {
		return "Feed subscriptions aren't set up."
	}

	sub, args := splitCommand(rest)
	switch sub {
	case "add":
		url, name, _ := strings.Cut(args, " ")
		if url == "" {
			return "Try /rss add https://example.com/feed.xml [name]"
		}
		resolved, err := b.feeds.Add(ctx, sender, url, strings.TrimSpace(name))
		if err != nil {
			return oops(err)
		}
		return fmt.Sprintf("Subscribed to %s. I'll check it every hour.", resolved)
	case "remove":
		n, err := strconv.Atoi(args)
		if err != nil {
			return "Try /rss remove 1 (see /rss list for numbers)"
		}
		name, err := b.feeds.Remove(sender, n-1)
		if err != nil {
			return oops(err)
		}
		return fmt.Sprintf("Unsubscribed from %s.", name)
	case "list", "":
		subs := b.feeds.List(sender)
		if len(subs) == 0 {
			return "No feed subscriptions yet. Try /rss add <url>."
		}
		var out strings.Builder
		out.WriteString("Your feeds:\n")
		for i, s := range subs {
			fmt.Fprintf(&out, "%d. %s\n", i+1, s.Name)
		}
		return strings.TrimRight(out.String(), "\n")
	}
	return "Feed commands: /rss add <url> [name], /rss remove <n>, /rss list"
}

func (b *Bot) handleBackup(ctx context.Context, sender, rest string) string {
	if b.backups == nil {
		return "Album backup isn't set up."
	}
	sub, args := splitCommand(rest)
	switch sub {
	case "status":
		return b.backups.Status(sender, args)
	case "link":
		if args == "" {
			return "Try /backup link <album>"
		}
		msg, err := b.backups.Link(ctx, sender, args)
		if err != nil {
			return oops(err)
		}
		return msg
	}
	return "Backup commands: /backup status [album], /backup link <album>"
}

func (b *Bot) handleMemory(ctx context.Context, sender string) string {
	if b.history == nil {
		return "Memory isn't set up."
	}
	lines, err := b.history.Recent(ctx, sender, 5)
	if err != nil {
		return oops(err)
	}
	if len(lines) == 0 {
		return "Nothing stored yet."
	}
	var out strings.Builder
	out.WriteString("Recent conversation:\n\n")
	for _, l := range lines {
		fmt.Fprintf(&out, "[%s] %s\n", l.CreatedAt.Format("2006-01-02 15:04"), l.Content)
	}
	return strings.TrimRight(out.String(), "\n")
}

func (b *Bot) handleClear(ctx context.Context, sender string) string {
	if b.history == nil {
		return "Memory isn't set up."
	}
	if err := b.history.Clear(ctx, sender); err != nil {
		return oops(err)
	}
	return "Memory cleared!"
}

func (b *Bot) handleImage(ctx context.Context, sender, messageID string) string {
	if b.history == nil || b.uploader == nil {
		return "Photo filing isn't set up."
	}
	if err := b.history.SetPendingImage(ctx, sender, messageID); err != nil {
		return oops(err)
	}
	return "Which folder should this photo go to?\n1. Reply with a folder name\n2. Reply with new/<name> to create one"
}

// storePendingImage completes the image flow: the text is the folder choice.
func (b *Bot) storePendingImage(ctx context.Context, sender, messageID, text string) string {
	folder := path.Join(b.opts.ImagesRoot, text)
	if name, ok := strings.CutPrefix(text, "new/"); ok {
		folder = path.Join(b.opts.ImagesRoot, name)
		if err := b.uploader.EnsureFolder(ctx, folder); err != nil {
			return oops(err)
		}
	}

	data, err := b.messenger.MessageContent(ctx, messageID)
	if err != nil {
		return oops(err)
	}

	target := path.Join(folder, b.now().Format("20060102_150405")+".jpg")
	if err := b.uploader.Upload(ctx, target, data, false); err != nil {
		return oops(err)
	}

	url, err := b.uploader.SharedLink(ctx, folder)
	if err != nil {
		return oops(err)
	}

	if err := b.history.ClearPendingImage(ctx, sender); err != nil {
		fmt.Fprintf(os.Stderr, "bot: clear pending image for %s: %v\n", sender, err)
	}
	return fmt.Sprintf("Photo filed under %s\nLink: %s", folder, url)
}

// oops renders a service error as a human-readable reply. Known sentinel
// errors get friendlier wording.
func oops(err error) string {
	switch {
	case errors.Is(err, rss.ErrInvalidFeed):
		return "That doesn't look like a valid RSS/Atom feed."
	case errors.Is(err, store.ErrAlreadySubscribed):
		return "You're already subscribed to that feed."
	case errors.Is(err, store.ErrNotFound):
		return "I couldn't find that subscription. Check /rss list for the numbers."
	}
	return fmt.Sprintf("Oops, that didn't work: %v 😅", err)
}
