// Package scheduler runs the recurring background jobs: the hourly feed
// check and the optional morning weather briefing.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zonchen/homebot/pkg/weather"
)

// Checker runs one feed poll cycle.
type Checker interface {
	CheckUpdates(ctx context.Context)
}

// Pusher delivers a text message to a user or group.
type Pusher interface {
	Push(ctx context.Context, to, text string) error
}

// WeatherSource provides the briefing content.
type WeatherSource interface {
	Forecast(ctx context.Context, city string) (*weather.Forecast, error)
	AirQuality(ctx context.Context, lat, lon float64) (int, error)
}

// Briefing is the daily weather push.
type Briefing struct {
	Weather WeatherSource
	Pusher  Pusher
	To      string
	City    string
	Lat     float64
	Lon     float64
	At      string // local time, 15:04
}

// Scheduler owns the cron timer.
type Scheduler struct {
	checker  Checker
	briefing *Briefing
	feedSpec string
	loc      *time.Location
}

// New creates a Scheduler. feedSpec is a cron expression; empty defaults to
// the top of every hour. briefing may be nil.
func New(checker Checker, briefing *Briefing, feedSpec, timezone string) (*Scheduler, error) {
	if feedSpec == "" {
		feedSpec = "0 * * * *"
	}
	loc := time.Local
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %s: %w", timezone, err)
		}
		loc = l
	}
	return &Scheduler{
		checker:  checker,
		briefing: briefing,
		feedSpec: feedSpec,
		loc:      loc,
	}, nil
}

// Run schedules the jobs and blocks until ctx is cancelled. A running feed
// check finishes before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithLocation(s.loc))

	if _, err := c.AddFunc(s.feedSpec, func() {
		s.checker.CheckUpdates(ctx)
	}); err != nil {
		return fmt.Errorf("schedule feed check %q: %w", s.feedSpec, err)
	}

	if s.briefing != nil && s.briefing.To != "" {
		spec, err := dailySpec(s.briefing.At)
		if err != nil {
			return err
		}
		if _, err := c.AddFunc(spec, func() {
			s.sendBriefing(ctx)
		}); err != nil {
			return fmt.Errorf("schedule briefing %q: %w", spec, err)
		}
	}

	fmt.Fprintf(os.Stderr, "scheduler: running (feed check %q, tz %s)\n", s.feedSpec, s.loc)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	fmt.Fprintln(os.Stderr, "scheduler: stopped")
	return ctx.Err()
}

// dailySpec turns a 15:04 local time into a cron expression.
func dailySpec(at string) (string, error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return "", fmt.Errorf("parse briefing time %q: %w", at, err)
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}

func (s *Scheduler) sendBriefing(ctx context.Context) {
	b := s.briefing

	var parts []string
	if f, err := b.Weather.Forecast(ctx, b.City); err != nil {
		fmt.Fprintf(os.Stderr, "scheduler: briefing forecast: %v\n", err)
	} else {
		parts = append(parts, f.Message())
	}
	if aqi, err := b.Weather.AirQuality(ctx, b.Lat, b.Lon); err != nil {
		fmt.Fprintf(os.Stderr, "scheduler: briefing air quality: %v\n", err)
	} else {
		parts = append(parts, "Current air quality: "+weather.AQILabel(aqi))
	}
	if len(parts) == 0 {
		return
	}

	if err := b.Pusher.Push(ctx, b.To, strings.Join(parts, "\n\n")); err != nil {
		fmt.Fprintf(os.Stderr, "scheduler: push briefing: %v\n", err)
	}
}
