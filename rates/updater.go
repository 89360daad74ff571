package rates

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Updater refreshes a rates file from fetchers.
type Updater struct {
	Path     string // rates file location
	Fetchers []Fetcher
	Now      func() time.Time // time.Now if nil
}

// Report summarizes a refresh.
type Report struct {
	Updated int              // number of pairs written
	Sources []string         // fetchers that succeeded
	Failed  map[string]error // by fetcher name
	At      time.Time
}

// Run fetches every source and merges the pairs into the rates file.
// The file is saved when at least one fetcher succeeded, pairs of failing
// sources keep their previous value.
func (u *Updater) Run(ctx context.Context) (Report, error) {
	now := time.Now
	if u.Now != nil {
		now = u.Now
	}
	f, err := LoadOrEmpty(u.Path)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Failed: make(map[string]error), At: now().UTC()}
	var errs []error
	for _, src := range u.Fetchers {
		pairs, err := src.Fetch(ctx)
		if err != nil {
			log.Printf("update from %s failed: %v", src.Name(), err)
			rep.Failed[src.Name()] = err
			errs = append(errs, err)
			continue
		}
		for _, p := range pairs {
			f.Set(p.From, p.To, p.Rate, rep.At)
		}
		rep.Updated += len(pairs)
		rep.Sources = append(rep.Sources, src.Name())
		log.Printf("%s: %d rates", src.Name(), len(pairs))
	}
	if len(rep.Sources) == 0 {
		if len(errs) == 0 {
			return rep, errors.New("no rate source configured")
		}
		return rep, fmt.Errorf("cannot update rates: %w", errors.Join(errs...))
	}
	f.Refreshed(strings.Join(rep.Sources, ", "), rep.At)
	if err := f.Save(u.Path); err != nil {
		return rep, fmt.Errorf("cannot save rates: %w", err)
	}
	return rep, nil
}

// Schedule runs u on the standard 5 fields cron spec until ctx is done.
// Each run is reported to done, which may be nil.
func Schedule(ctx context.Context, spec string, u *Updater, done func(Report, error)) error {
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	_, err := c.AddFunc(spec, func() {
		rep, err := u.Run(ctx)
		if err != nil {
			log.Printf("scheduled rates update: %v", err)
		}
		if done != nil {
			done(rep, err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
