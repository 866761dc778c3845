package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/codeme/heyme/internal/storage"
	"golang.org/x/sync/errgroup"
)

const (
	keywordLimit        = 10
	recentQuestionLimit = 10
	recentDocumentLimit = 5
	failedQuestionLimit = 10
	dailyWindowDays     = 30
)

// Overview is the aggregate served to the dashboard page.
type Overview struct {
	Keywords        []storage.KeywordCount   `json:"keywords"`
	RecentQuestions []storage.RecentQuestion `json:"recent_questions"`
	RecentDocuments []storage.Document       `json:"recent_documents"`
	DailyCounts     []storage.DailyCount     `json:"daily_counts"`
	FailedQuestions []storage.FailedQuestion `json:"failed_questions"`
	TotalQuestions  int                      `json:"total_questions"`
}

// Store is the slice of storage.Store the aggregator needs.
type Store interface {
	TopKeywords(limit int) ([]storage.KeywordCount, error)
	RecentQuestions(limit int) ([]storage.RecentQuestion, error)
	ListDocuments(limit int) ([]storage.Document, error)
	DailyCounts(since time.Time) ([]storage.DailyCount, error)
	FailedQuestions(limit int) ([]storage.FailedQuestion, error)
	CountQALogs() (int, error)
}

// Build runs the dashboard queries in parallel and assembles the overview.
func Build(ctx context.Context, store Store) (Overview, error) {
	var out Overview
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		keywords, err := store.TopKeywords(keywordLimit)
		if err != nil {
			return fmt.Errorf("loading keywords: %w", err)
		}
		out.Keywords = keywords
		return nil
	})
	g.Go(func() error {
		recent, err := store.RecentQuestions(recentQuestionLimit)
		if err != nil {
			return fmt.Errorf("loading recent questions: %w", err)
		}
		out.RecentQuestions = recent
		return nil
	})
	g.Go(func() error {
		docs, err := store.ListDocuments(recentDocumentLimit)
		if err != nil {
			return fmt.Errorf("loading recent documents: %w", err)
		}
		out.RecentDocuments = docs
		return nil
	})
	g.Go(func() error {
		since := time.Now().UTC().AddDate(0, 0, -dailyWindowDays)
		daily, err := store.DailyCounts(since)
		if err != nil {
			return fmt.Errorf("loading daily counts: %w", err)
		}
		out.DailyCounts = daily
		return nil
	})
	g.Go(func() error {
		failed, err := store.FailedQuestions(failedQuestionLimit)
		if err != nil {
			return fmt.Errorf("loading failed questions: %w", err)
		}
		out.FailedQuestions = failed
		return nil
	})
	g.Go(func() error {
		total, err := store.CountQALogs()
		if err != nil {
			return fmt.Errorf("counting questions: %w", err)
		}
		out.TotalQuestions = total
		return nil
	})

	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return out, nil
}
