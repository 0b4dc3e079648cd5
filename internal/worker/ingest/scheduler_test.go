package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hitoshi/toonman/internal/model"
	"github.com/hitoshi/toonman/internal/repository"
	"github.com/hitoshi/toonman/internal/snapshot"
)

type fakeCatalogRunner struct {
	calls int
	err   error
}

func (r *fakeCatalogRunner) Run(context.Context) (*Result, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &Result{}, nil
}

type fakeCommentRunner struct {
	calls int
	err   error
}

func (r *fakeCommentRunner) Run(context.Context) (int, error) {
	r.calls++
	if r.err != nil {
		return 0, r.err
	}
	return 3, nil
}

type compactCall struct {
	dataset  string
	keyField string
	keys     []string
}

type fakeCompactor struct {
	calls []compactCall
}

func (c *fakeCompactor) Compact(_ context.Context, dataset, keyField string, records []snapshot.Record) error {
	call := compactCall{dataset: dataset, keyField: keyField}
	for _, r := range records {
		call.keys = append(call.keys, r.Key)
	}
	c.calls = append(c.calls, call)
	return nil
}

type listingWebtoonRepo struct {
	fakeWebtoonRepo
	pages map[int64][]*model.Webtoon
}

func (r *listingWebtoonRepo) ListUpdatedOn(_ context.Context, _ string, skip, _ int64) ([]*model.Webtoon, error) {
	return r.pages[skip], nil
}

type listingCommentRepo struct {
	pages map[int64][]*model.CommentThread
}

func (r *listingCommentRepo) BulkUpsert(context.Context, []*model.CommentThread) (int, []repository.WriteFailure, error) {
	return 0, nil, nil
}

func (r *listingCommentRepo) CountUpdatedOn(context.Context, string) (int64, error) {
	return 0, nil
}

func (r *listingCommentRepo) ListUpdatedOn(_ context.Context, _ string, skip, _ int64) ([]*model.CommentThread, error) {
	return r.pages[skip], nil
}

func TestRunOnce_ExecutesAllStages(t *testing.T) {
	catalog := &fakeCatalogRunner{}
	comments := &fakeCommentRunner{}
	compactor := &fakeCompactor{}
	webtoonRepo := &listingWebtoonRepo{pages: map[int64][]*model.Webtoon{
		0: {{URL: "u1"}, {URL: "u2"}},
	}}
	commentRepo := &listingCommentRepo{pages: map[int64][]*model.CommentThread{
		0: {{EpisodeURL: "ep1"}},
	}}

	s := NewScheduler(catalog, comments, compactor, webtoonRepo, commentRepo, discardLogger(), true)
	s.RunOnce(context.Background())

	if catalog.calls != 1 || comments.calls != 1 {
		t.Errorf("全ステージが実行されるべき: catalog=%d comments=%d", catalog.calls, comments.calls)
	}
	if len(compactor.calls) != 2 {
		t.Fatalf("コンパクション回数 = %d, want 2", len(compactor.calls))
	}

	first := compactor.calls[0]
	if first.dataset != "webtoon_data" || first.keyField != "url" {
		t.Errorf("カタログが先にコンパクトされるべき: %+v", first)
	}
	if len(first.keys) != 2 || first.keys[0] != "u1" {
		t.Errorf("カタログレコードのキー = %v", first.keys)
	}

	second := compactor.calls[1]
	if second.dataset != "webtoon_comments" || second.keyField != "episode_url" {
		t.Errorf("コメントが後にコンパクトされるべき: %+v", second)
	}
	if len(second.keys) != 1 || second.keys[0] != "ep1" {
		t.Errorf("コメントレコードのキー = %v", second.keys)
	}
}

func TestRunOnce_CatalogFailureDoesNotStopPipeline(t *testing.T) {
	catalog := &fakeCatalogRunner{err: errors.New("entry point unreachable")}
	comments := &fakeCommentRunner{}
	compactor := &fakeCompactor{}

	s := NewScheduler(catalog, comments, compactor,
		&listingWebtoonRepo{}, &listingCommentRepo{}, discardLogger(), true)
	s.RunOnce(context.Background())

	if comments.calls != 1 {
		t.Error("カタログ失敗後もコメントステージは実行されるべき")
	}
}

func TestRunOnce_SnapshotDisabled(t *testing.T) {
	compactor := &fakeCompactor{}
	s := NewScheduler(&fakeCatalogRunner{}, &fakeCommentRunner{}, compactor,
		&listingWebtoonRepo{}, &listingCommentRepo{}, discardLogger(), false)
	s.RunOnce(context.Background())

	if len(compactor.calls) != 0 {
		t.Errorf("スナップショット無効時はコンパクションしないべき: %v", compactor.calls)
	}
}

func TestRunOnce_NoCommentRunner(t *testing.T) {
	compactor := &fakeCompactor{}
	s := NewScheduler(&fakeCatalogRunner{}, nil, compactor,
		&listingWebtoonRepo{}, &listingCommentRepo{}, discardLogger(), true)
	s.RunOnce(context.Background())

	if len(compactor.calls) != 1 || compactor.calls[0].dataset != "webtoon_data" {
		t.Errorf("コメントランナーなしではカタログのみコンパクトされるべき: %v", compactor.calls)
	}
}

func TestRunOnce_PaginatesListing(t *testing.T) {
	fullPage := make([]*model.Webtoon, listPageSize)
	for i := range fullPage {
		fullPage[i] = &model.Webtoon{URL: fmt.Sprintf("u%d", i)}
	}
	webtoonRepo := &listingWebtoonRepo{pages: map[int64][]*model.Webtoon{
		0:            fullPage,
		listPageSize: {{URL: "last"}},
	}}

	compactor := &fakeCompactor{}
	s := NewScheduler(&fakeCatalogRunner{}, nil, compactor,
		webtoonRepo, &listingCommentRepo{}, discardLogger(), true)
	s.RunOnce(context.Background())

	if len(compactor.calls) != 1 {
		t.Fatalf("コンパクション回数 = %d, want 1", len(compactor.calls))
	}
	if got := len(compactor.calls[0].keys); got != listPageSize+1 {
		t.Errorf("全ページが読み出されるべき: %d", got)
	}
}
