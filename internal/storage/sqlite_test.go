package storage

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsApplyOnce(t *testing.T) {
	s := newTestStore(t)
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&n); err != nil {
		t.Fatalf("counting versions: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 applied migration, got %d", n)
	}
}

func TestSaveAndListQALogs(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	logs := []QALog{
		{ID: "q1", Question: "What is my name?", Answer: "Alex.", CreatedAt: base},
		{ID: "q2", Question: "Where do I work?", Answer: "Codeit.", CreatedAt: base.Add(time.Minute)},
	}
	for _, l := range logs {
		if err := s.SaveQALog(l); err != nil {
			t.Fatalf("SaveQALog(%s): %v", l.ID, err)
		}
	}

	got, err := s.ListQALogs()
	if err != nil {
		t.Fatalf("ListQALogs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(got))
	}
	if got[0].ID != "q1" || got[1].ID != "q2" {
		t.Fatalf("expected oldest-first order, got %s then %s", got[0].ID, got[1].ID)
	}
	if got[0].Question != "What is my name?" || got[0].Answer != "Alex." {
		t.Fatalf("unexpected first log: %+v", got[0])
	}
}

func TestListQALogsExcludesLinkTurns(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveQALog(QALog{ID: "q1", Question: "private", Answer: "a"}); err != nil {
		t.Fatalf("SaveQALog: %v", err)
	}
	if err := s.SaveQALog(QALog{ID: "q2", Question: "public", Answer: "b", LinkID: "link-1"}); err != nil {
		t.Fatalf("SaveQALog link: %v", err)
	}

	got, err := s.ListQALogs()
	if err != nil {
		t.Fatalf("ListQALogs: %v", err)
	}
	if len(got) != 1 || got[0].ID != "q1" {
		t.Fatalf("expected only the non-link turn, got %+v", got)
	}
}

func TestClearQALogs(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveQALog(QALog{ID: "q1", Question: "hello there", Answer: "hi"}); err != nil {
		t.Fatalf("SaveQALog: %v", err)
	}
	if err := s.ClearQALogs(); err != nil {
		t.Fatalf("ClearQALogs: %v", err)
	}

	got, err := s.ListQALogs()
	if err != nil {
		t.Fatalf("ListQALogs: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty log after clear, got %d rows", len(got))
	}

	var kw int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM qa_keywords").Scan(&kw); err != nil {
		t.Fatalf("counting keywords: %v", err)
	}
	if kw != 0 {
		t.Fatalf("expected keywords cleared, got %d rows", kw)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	s := newTestStore(t)

	doc := Document{
		ID:               "d1",
		Title:            "notes",
		OriginalFileName: "notes.txt",
		MimeType:         "text/plain",
		SizeBytes:        5,
		GroupID:          "g1",
		Content:          []byte("hello"),
	}
	if err := s.SaveDocument(doc); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}

	got, err := s.GetDocument("d1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Status != DocStatusUploaded {
		t.Fatalf("expected uploaded status, got %q", got.Status)
	}
	if string(got.Content) != "hello" {
		t.Fatalf("expected content round-trip, got %q", got.Content)
	}

	if err := s.UpdateDocumentStatus("d1", DocStatusProcessing, ""); err != nil {
		t.Fatalf("UpdateDocumentStatus: %v", err)
	}
	n, err := s.CountProcessingDocuments()
	if err != nil {
		t.Fatalf("CountProcessingDocuments: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 processing document, got %d", n)
	}

	if err := s.MarkDocumentIndexed("d1", 3); err != nil {
		t.Fatalf("MarkDocumentIndexed: %v", err)
	}
	got, err = s.GetDocument("d1")
	if err != nil {
		t.Fatalf("GetDocument after index: %v", err)
	}
	if got.Status != DocStatusProcessed || got.ChunkCount != 3 {
		t.Fatalf("expected processed with 3 chunks, got %q %d", got.Status, got.ChunkCount)
	}
	if len(got.Content) != 0 {
		t.Fatalf("expected content dropped after indexing, got %d bytes", len(got.Content))
	}

	if err := s.DeleteDocument("d1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if _, err := s.GetDocument("d1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteDocument("d1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestShareLinkAccessCount(t *testing.T) {
	s := newTestStore(t)

	expires := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	link := ShareLink{ID: "l1", GroupID: "g1", Title: "share me", IsActive: true, ExpiresAt: &expires}
	if err := s.SaveShareLink(link); err != nil {
		t.Fatalf("SaveShareLink: %v", err)
	}

	got, err := s.GetShareLink("l1")
	if err != nil {
		t.Fatalf("GetShareLink: %v", err)
	}
	if !got.IsActive || got.AccessCount != 0 {
		t.Fatalf("unexpected fresh link: %+v", got)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Fatalf("expected expires_at %v, got %v", expires, got.ExpiresAt)
	}
	if got.LastAccessedAt != nil {
		t.Fatalf("expected nil last_accessed_at, got %v", got.LastAccessedAt)
	}

	if err := s.TouchShareLink("l1"); err != nil {
		t.Fatalf("TouchShareLink: %v", err)
	}
	if err := s.TouchShareLink("l1"); err != nil {
		t.Fatalf("TouchShareLink again: %v", err)
	}

	got, err = s.GetShareLink("l1")
	if err != nil {
		t.Fatalf("GetShareLink after touch: %v", err)
	}
	if got.AccessCount != 2 {
		t.Fatalf("expected access count 2, got %d", got.AccessCount)
	}
	if got.LastAccessedAt == nil {
		t.Fatal("expected last_accessed_at to be set")
	}

	if _, err := s.GetShareLink("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSurveyResponseRoundTrip(t *testing.T) {
	s := newTestStore(t)

	r := SurveyResponse{
		ID:        "s1",
		Rating:    2,
		Reasons:   MarshalReasons([]string{"Unhelpful answer", "Slow response"}),
		SessionID: "sess-1",
	}
	if err := s.SaveSurveyResponse(r); err != nil {
		t.Fatalf("SaveSurveyResponse: %v", err)
	}

	var rating int
	var reasons string
	if err := s.db.QueryRow("SELECT rating, reasons FROM survey_responses WHERE id = 's1'").Scan(&rating, &reasons); err != nil {
		t.Fatalf("reading survey row: %v", err)
	}
	if rating != 2 {
		t.Fatalf("expected rating 2, got %d", rating)
	}
	if !strings.Contains(reasons, "Unhelpful answer") {
		t.Fatalf("expected reasons JSON to carry the tags, got %q", reasons)
	}
}

func TestJobQueueClaimCompleteFail(t *testing.T) {
	s := newTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j1", Type: "index_document", PayloadJSON: `{"document_id":"d1"}`, MaxAttempts: 2}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	job, err := s.ClaimNextJob([]string{"index_document"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil || job.ID != "j1" || job.Status != "running" {
		t.Fatalf("unexpected claimed job: %+v", job)
	}

	// Running jobs are not claimable.
	again, err := s.ClaimNextJob([]string{"index_document"})
	if err != nil {
		t.Fatalf("ClaimNextJob while running: %v", err)
	}
	if again != nil {
		t.Fatalf("expected no claimable job, got %+v", again)
	}

	if err := s.FailJob("j1", "boom"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	var status, runAfter string
	var attempts int
	if err := s.db.QueryRow("SELECT status, attempts, run_after FROM jobs WHERE id = 'j1'").Scan(&status, &attempts, &runAfter); err != nil {
		t.Fatalf("reading job row: %v", err)
	}
	if status != "pending" || attempts != 1 {
		t.Fatalf("expected pending retry with 1 attempt, got %s/%d", status, attempts)
	}
	ra, err := time.Parse(time.RFC3339, runAfter)
	if err != nil {
		t.Fatalf("parsing run_after: %v", err)
	}
	if !ra.After(time.Now().UTC()) {
		t.Fatalf("expected backoff into the future, got %v", ra)
	}

	if err := s.FailJob("j1", "boom again"); err != nil {
		t.Fatalf("FailJob final: %v", err)
	}
	if err := s.db.QueryRow("SELECT status FROM jobs WHERE id = 'j1'").Scan(&status); err != nil {
		t.Fatalf("reading job row: %v", err)
	}
	if status != "failed" {
		t.Fatalf("expected failed after max attempts, got %s", status)
	}
}

func TestJobCompleteMarksDone(t *testing.T) {
	s := newTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j1", Type: "index_document", PayloadJSON: "{}"}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"index_document"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.CompleteJob("j1"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	var status string
	if err := s.db.QueryRow("SELECT status FROM jobs WHERE id = 'j1'").Scan(&status); err != nil {
		t.Fatalf("reading job row: %v", err)
	}
	if status != "completed" {
		t.Fatalf("expected completed, got %s", status)
	}
}

func TestDashboardAggregates(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := []QALog{
		{ID: "q1", Question: "What is the project deadline?", Answer: "Friday.", CreatedAt: base},
		{ID: "q2", Question: "project status update", Answer: "", IsFailed: true, CreatedAt: base.Add(time.Hour)},
		{ID: "q3", Question: "Project status UPDATE", Answer: "", IsFailed: true, CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, l := range rows {
		if err := s.SaveQALog(l); err != nil {
			t.Fatalf("SaveQALog(%s): %v", l.ID, err)
		}
	}

	keywords, err := s.TopKeywords(10)
	if err != nil {
		t.Fatalf("TopKeywords: %v", err)
	}
	counts := make(map[string]int)
	for _, k := range keywords {
		counts[k.Keyword] = k.Count
	}
	if counts["project"] != 3 {
		t.Fatalf("expected keyword 'project' counted 3 times, got %d (all: %v)", counts["project"], counts)
	}

	recent, err := s.RecentQuestions(2)
	if err != nil {
		t.Fatalf("RecentQuestions: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "q3" {
		t.Fatalf("expected newest-first recent questions, got %+v", recent)
	}

	daily, err := s.DailyCounts(base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("DailyCounts: %v", err)
	}
	if len(daily) != 1 || daily[0].Count != 3 {
		t.Fatalf("expected one day with 3 turns, got %+v", daily)
	}

	failed, err := s.FailedQuestions(5)
	if err != nil {
		t.Fatalf("FailedQuestions: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected one normalized failure group, got %+v", failed)
	}
	if failed[0].NormalizedQuestion != "project status update" || failed[0].FailCount != 2 {
		t.Fatalf("unexpected failure group: %+v", failed[0])
	}
}

func TestNormalizeQuestion(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  What is MY name?! ", "what is my name"},
		{"hello,   world...", "hello world"},
		{"", ""},
		{"café ☕ time", "café time"},
	}
	for _, tc := range cases {
		if got := NormalizeQuestion(tc.in); got != tc.want {
			t.Errorf("NormalizeQuestion(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractKeywords(t *testing.T) {
	got := ExtractKeywords("What is the project deadline for the project?")
	want := []string{"project", "deadline"}
	if len(got) != len(want) {
		t.Fatalf("ExtractKeywords = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ExtractKeywords = %v, want %v", got, want)
		}
	}
}
