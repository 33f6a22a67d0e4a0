// Package seed writes a small demo community into the archives: a handful of
// users, a shared prayer thread, and the surrounding role, activity, and auth
// records. Records go through the archive writer only; run an import
// afterwards to materialize them in the database.
package seed

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gulkily/thywill-sub001/internal/archive"
	"github.com/gulkily/thywill-sub001/internal/logger"
	"github.com/gulkily/thywill-sub001/internal/record"
)

// DemoPassword is the password every seeded account gets.
const DemoPassword = "thywill-demo"

type Seeder struct {
	writer *archive.Writer
	log    *logger.Logger

	// Start anchors the demo timeline; zero means 2024-01-01T09:00:00Z.
	Start time.Time
	// Cost is the bcrypt cost for seeded password hashes; zero means
	// bcrypt.MinCost, which keeps seeding fast.
	Cost int
}

func New(w *archive.Writer, log *logger.Logger) *Seeder {
	return &Seeder{writer: w, log: log}
}

type member struct {
	username string
	display  string
	admin    bool
}

var members = []member{
	{"grace", "Grace H", true},
	{"samuel", "Samuel O", false},
	{"ruth", "Ruth A", false},
	{"peter", "Peter N", false},
}

var prayers = []struct {
	author string
	text   string
	marks  []string
}{
	{"samuel", "Please pray for my mother's surgery on Friday.", []string{"grace", "ruth", "peter"}},
	{"ruth", "Thankful for a new job, praying it goes well.", []string{"grace"}},
	{"peter", "For our town after the flooding last week.", []string{"grace", "samuel"}},
}

// Seed appends the demo records and returns how many were written.
func (s *Seeder) Seed(ctx context.Context) (int, error) {
	start := s.Start
	if start.IsZero() {
		start = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	}
	cost := s.Cost
	if cost == 0 {
		cost = bcrypt.MinCost
	}

	at := start
	next := func() time.Time {
		t := at
		at = at.Add(7 * time.Minute)
		return t
	}

	written := 0
	emit := func(rec *record.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.writer.Append(rec); err != nil {
			return err
		}
		written++
		return nil
	}

	for _, m := range members {
		hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), cost)
		if err != nil {
			return written, fmt.Errorf("seed: hash password: %w", err)
		}
		created := next()
		if err := emit(&record.Record{Domain: record.DomainUser, User: &record.User{
			Username:     m.username,
			DisplayName:  m.display,
			Email:        m.username + "@example.com",
			PasswordHash: string(hash),
			Created:      created,
			Admin:        m.admin,
		}}); err != nil {
			return written, fmt.Errorf("seed user %s: %w", m.username, err)
		}
		if err := emit(&record.Record{Domain: record.DomainAuthEvent, Auth: &record.AuthEvent{
			At: next(), Username: m.username, Kind: "login",
		}}); err != nil {
			return written, fmt.Errorf("seed auth %s: %w", m.username, err)
		}
	}

	if err := emit(&record.Record{Domain: record.DomainRole, Role: &record.Role{
		Username: "grace", Role: "admin", GrantedBy: "grace", GrantedAt: next(),
	}}); err != nil {
		return written, fmt.Errorf("seed role: %w", err)
	}

	var firstID string
	for _, p := range prayers {
		created := next()
		id := record.NewPrayerID(created, p.author, p.text)
		if firstID == "" {
			firstID = id
		}
		if err := emit(&record.Record{Domain: record.DomainPrayer, Prayer: &record.Prayer{
			ID: id, Author: p.author, Text: p.text, Created: created, Category: "community",
		}}); err != nil {
			return written, fmt.Errorf("seed prayer by %s: %w", p.author, err)
		}
		if err := emit(&record.Record{Domain: record.DomainActivity, Activity: &record.Activity{
			At: created, Actor: p.author, Action: "submit_prayer", Target: id,
		}}); err != nil {
			return written, fmt.Errorf("seed activity for %s: %w", id, err)
		}
		for _, who := range p.marks {
			if err := emit(&record.Record{Domain: record.DomainPrayerMark, Mark: &record.PrayerMark{
				PrayerID: id, Username: who, MarkedAt: next(),
			}}); err != nil {
				return written, fmt.Errorf("seed mark on %s: %w", id, err)
			}
		}
	}

	// Mark the first prayer answered so the demo shows attributes too.
	if err := emit(&record.Record{Domain: record.DomainPrayerAttribute, Attribute: &record.PrayerAttribute{
		PrayerID: firstID, Name: "answered", Value: "true", SetBy: prayers[0].author, SetAt: next(),
	}}); err != nil {
		return written, fmt.Errorf("seed attribute: %w", err)
	}

	s.log.Info("seeded demo archives", "records", written)
	return written, nil
}
