package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/zonchen/homebot/internal/config"
	"github.com/zonchen/homebot/internal/history"
	"github.com/zonchen/homebot/internal/scheduler"
	"github.com/zonchen/homebot/internal/store"
	"github.com/zonchen/homebot/pkg/backup"
	"github.com/zonchen/homebot/pkg/bot"
	"github.com/zonchen/homebot/pkg/chat"
	"github.com/zonchen/homebot/pkg/dropbox"
	"github.com/zonchen/homebot/pkg/feed"
	"github.com/zonchen/homebot/pkg/line"
	"github.com/zonchen/homebot/pkg/news"
	"github.com/zonchen/homebot/pkg/places"
	"github.com/zonchen/homebot/pkg/rss"
	"github.com/zonchen/homebot/pkg/server"
	"github.com/zonchen/homebot/pkg/weather"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func openFeedStore(cfg *config.Config) (*store.JSONFileStore, error) {
	st, err := store.NewJSONFileStore(cfg.Storage.FeedsPath, cfg.Storage.WatermarksPath)
	if err != nil {
		return nil, fmt.Errorf("open feed store: %w", err)
	}
	return st, nil
}

func buildRSS(cfg *config.Config, st store.Store, notifier rss.Notifier) *rss.Service {
	return rss.New(st, feed.NewFetcher(15*time.Second), notifier)
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	st, err := openFeedStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	hist, err := history.Open(cfg.Storage.HistoryPath)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer hist.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	messenger := line.New(cfg.Line.ChannelToken)
	feeds := buildRSS(cfg, st, messenger)

	var weatherSvc *weather.Service
	if cfg.Weather.APIKey != "" {
		weatherSvc = weather.New(cfg.Weather.APIKey)
	}
	var placesSvc *places.Service
	if cfg.Maps.APIKey != "" {
		placesSvc = places.New(cfg.Maps.APIKey)
	}
	var newsSvc *news.Service
	if cfg.News.APIKey != "" {
		newsSvc = news.New(cfg.News.APIKey, cfg.News.Country)
	}
	var assistant *chat.Assistant
	if cfg.OpenAI.APIKey != "" {
		assistant = chat.New(cfg.OpenAI.APIKey, cfg.OpenAI.Model, hist)
	}

	// Keep unconfigured services as nil interfaces so the bot answers
	// their commands with a "not set up" message.
	var (
		weatherI bot.Weather
		placesI  bot.Places
		newsI    bot.Headlines
		chatterI bot.Chatter
		backupsI bot.Backups
		uploadI  bot.Uploader
	)
	if weatherSvc != nil {
		weatherI = weatherSvc
	}
	if placesSvc != nil {
		placesI = placesSvc
	}
	if newsSvc != nil {
		newsI = newsSvc
	}
	if assistant != nil {
		chatterI = assistant
	}
	if cfg.Dropbox.AccessToken != "" {
		dbx := dropbox.New(cfg.Dropbox.AccessToken)
		backups, err := backup.New(ctx, dbx, cfg.Dropbox.BackupRoot)
		if err != nil {
			return fmt.Errorf("init backup service: %w", err)
		}
		backupsI = backups
		uploadI = dbx
	}

	b := bot.New(messenger,
		feeds,
		weatherI, placesI, newsI,
		chatterI, backupsI, uploadI,
		hist,
		bot.Options{
			DefaultCity: cfg.Weather.DefaultCity,
			DefaultLat:  cfg.Weather.DefaultLat,
			DefaultLon:  cfg.Weather.DefaultLon,
			ImagesRoot:  cfg.Dropbox.ImagesRoot,
		})

	var briefing *scheduler.Briefing
	if weatherSvc != nil && cfg.Schedule.BriefingTo != "" {
		briefing = &scheduler.Briefing{
			Weather: weatherSvc,
			Pusher:  messenger,
			To:      cfg.Schedule.BriefingTo,
			City:    cfg.Weather.DefaultCity,
			Lat:     cfg.Weather.DefaultLat,
			Lon:     cfg.Weather.DefaultLon,
			At:      cfg.Schedule.Briefing,
		}
	}

	sched, err := scheduler.New(feeds, briefing, cfg.Schedule.FeedCheck, cfg.Schedule.Timezone)
	if err != nil {
		return err
	}
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "scheduler error: %v\n", err)
		}
	}()

	srv := server.New(cfg.Line.ChannelSecret, b, port)
	go func() {
		<-ctx.Done()
		fmt.Fprintln(os.Stderr, "\nshutting down...")
	}()

	return srv.ListenAndServe()
}

func runCheck() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := openFeedStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	feeds := buildRSS(cfg, st, line.New(cfg.Line.ChannelToken))
	feeds.CheckUpdates(context.Background())
	return nil
}

func runFeeds(subscriber string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := openFeedStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	subs := st.Subscriptions(subscriber)
	if len(subs) == 0 {
		fmt.Printf("no subscriptions for %s\n", subscriber)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tURL")
	for i, s := range subs {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, s.Name, s.URL)
	}
	return w.Flush()
}
