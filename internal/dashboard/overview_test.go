package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codeme/heyme/internal/storage"
)

type fakeStore struct {
	keywordsFn func(int) ([]storage.KeywordCount, error)
	recentFn   func(int) ([]storage.RecentQuestion, error)
	docsFn     func(int) ([]storage.Document, error)
	dailyFn    func(time.Time) ([]storage.DailyCount, error)
	failedFn   func(int) ([]storage.FailedQuestion, error)
	countFn    func() (int, error)
}

func (f *fakeStore) TopKeywords(limit int) ([]storage.KeywordCount, error) {
	if f.keywordsFn != nil {
		return f.keywordsFn(limit)
	}
	return []storage.KeywordCount{{Keyword: "project", Count: 3}}, nil
}

func (f *fakeStore) RecentQuestions(limit int) ([]storage.RecentQuestion, error) {
	if f.recentFn != nil {
		return f.recentFn(limit)
	}
	return []storage.RecentQuestion{{ID: "q1", Question: "latest"}}, nil
}

func (f *fakeStore) ListDocuments(limit int) ([]storage.Document, error) {
	if f.docsFn != nil {
		return f.docsFn(limit)
	}
	return []storage.Document{{ID: "d1", Title: "doc"}}, nil
}

func (f *fakeStore) DailyCounts(since time.Time) ([]storage.DailyCount, error) {
	if f.dailyFn != nil {
		return f.dailyFn(since)
	}
	return []storage.DailyCount{{Date: "2026-03-01", Count: 4}}, nil
}

func (f *fakeStore) FailedQuestions(limit int) ([]storage.FailedQuestion, error) {
	if f.failedFn != nil {
		return f.failedFn(limit)
	}
	return nil, nil
}

func (f *fakeStore) CountQALogs() (int, error) {
	if f.countFn != nil {
		return f.countFn()
	}
	return 42, nil
}

func TestBuild_AssemblesAllSections(t *testing.T) {
	got, err := Build(context.Background(), &fakeStore{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(got.Keywords) != 1 || got.Keywords[0].Keyword != "project" {
		t.Errorf("Keywords = %+v", got.Keywords)
	}
	if len(got.RecentQuestions) != 1 {
		t.Errorf("RecentQuestions = %+v", got.RecentQuestions)
	}
	if len(got.RecentDocuments) != 1 {
		t.Errorf("RecentDocuments = %+v", got.RecentDocuments)
	}
	if len(got.DailyCounts) != 1 {
		t.Errorf("DailyCounts = %+v", got.DailyCounts)
	}
	if got.TotalQuestions != 42 {
		t.Errorf("TotalQuestions = %d, want 42", got.TotalQuestions)
	}
}

func TestBuild_UsesThirtyDayWindow(t *testing.T) {
	var gotSince time.Time
	store := &fakeStore{
		dailyFn: func(since time.Time) ([]storage.DailyCount, error) {
			gotSince = since
			return nil, nil
		},
	}
	if _, err := Build(context.Background(), store); err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := time.Now().UTC().AddDate(0, 0, -30)
	if diff := gotSince.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("since = %v, want about %v", gotSince, want)
	}
}

func TestBuild_PropagatesQueryError(t *testing.T) {
	store := &fakeStore{
		failedFn: func(int) ([]storage.FailedQuestion, error) {
			return nil, errors.New("table locked")
		},
	}
	if _, err := Build(context.Background(), store); err == nil {
		t.Fatal("expected error")
	}
}
