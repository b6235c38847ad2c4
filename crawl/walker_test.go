package crawl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hhscan/hh"
	"hhscan/mapper"
)

type fakeSource struct {
	pages    func(page int) hh.Outcome
	requests []int
}

func (f *fakeSource) FetchPage(_ context.Context, page int) hh.Outcome {
	f.requests = append(f.requests, page)
	return f.pages(page)
}

type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func item(title string, from, to any) json.RawMessage {
	payload := map[string]any{
		"name":          title,
		"alternate_url": "https://hh.ru/vacancy/" + title,
		"salary":        map[string]any{"from": from, "to": to, "currency": "RUR", "gross": true},
	}
	raw, _ := json.Marshal(payload)
	return raw
}

func pageOf(pages int, items ...json.RawMessage) hh.Outcome {
	if items == nil {
		items = []json.RawMessage{}
	}
	return hh.Success(&hh.Page{Items: items, Pages: pages, PerPage: 100})
}

func newTestWalker(src *fakeSource, sleeper *recordingSleep, opts ...Option) *Walker {
	opts = append([]Option{WithSleep(sleeper.sleep)}, opts...)
	return NewWalker(src, opts...)
}

func TestWalker_StopsAtReportedPageCount(t *testing.T) {
	src := &fakeSource{pages: func(page int) hh.Outcome {
		return pageOf(3, item(fmt.Sprintf("p%d", page), 300000, nil))
	}}
	sleeper := &recordingSleep{}

	res := newTestWalker(src, sleeper).Walk(context.Background(), 250000)
	assert.Equal(t, []int{0, 1, 2}, src.requests)
	assert.Equal(t, StopLastPage, res.StopReason)
	assert.Len(t, res.Vacancies, 3)
	assert.Equal(t, []time.Duration{DefaultPageDelay, DefaultPageDelay}, sleeper.delays)
}

func TestWalker_HardCapBoundsMisreportedPages(t *testing.T) {
	src := &fakeSource{pages: func(page int) hh.Outcome {
		return pageOf(50, item(fmt.Sprintf("p%d", page), nil, 500000))
	}}

	res := newTestWalker(src, &recordingSleep{}).Walk(context.Background(), 250000)
	require.Len(t, src.requests, 20)
	assert.Equal(t, 19, src.requests[19])
	assert.Equal(t, StopPageCap, res.StopReason)
	assert.Equal(t, 20, res.Pages)
}

func TestWalker_EmptyFirstPage(t *testing.T) {
	src := &fakeSource{pages: func(int) hh.Outcome { return pageOf(5) }}

	res := newTestWalker(src, &recordingSleep{}).Walk(context.Background(), 250000)
	assert.Len(t, src.requests, 1)
	assert.Empty(t, res.Vacancies)
	assert.Equal(t, StopEmptyPage, res.StopReason)
}

func TestWalker_MissingItemsStops(t *testing.T) {
	src := &fakeSource{pages: func(int) hh.Outcome { return hh.Success(&hh.Page{Pages: 5}) }}

	res := newTestWalker(src, &recordingSleep{}).Walk(context.Background(), 250000)
	assert.Len(t, src.requests, 1)
	assert.Equal(t, StopNoItems, res.StopReason)
}

func TestWalker_EndToEndOrderAndFiltering(t *testing.T) {
	src := &fakeSource{pages: func(page int) hh.Outcome {
		switch page {
		case 0:
			return pageOf(2,
				item("page0-a", 300000, nil),
				item("page0-low", 100000, 200000),
				item("page0-b", nil, 260000),
			)
		case 1:
			return pageOf(2, item("page1-a", 250000, 400000))
		default:
			t.Fatalf("unexpected page %d", page)
			return hh.Outcome{}
		}
	}}

	res := newTestWalker(src, &recordingSleep{}).Walk(context.Background(), 250000)
	require.Len(t, res.Vacancies, 3)
	assert.Equal(t, "page0-a", res.Vacancies[0].Title)
	assert.Equal(t, "page0-b", res.Vacancies[1].Title)
	assert.Equal(t, "page1-a", res.Vacancies[2].Title)
	assert.Equal(t, 4, res.Normalized)
	assert.Equal(t, StopLastPage, res.StopReason)
}

func TestWalker_FetchFailureReturnsPartialResults(t *testing.T) {
	boom := errors.New("exhausted")
	src := &fakeSource{pages: func(page int) hh.Outcome {
		if page == 2 {
			return hh.Exhausted(boom)
		}
		return pageOf(10, item(fmt.Sprintf("p%d", page), 300000, nil))
	}}

	res := newTestWalker(src, &recordingSleep{}).Walk(context.Background(), 250000)
	assert.Equal(t, []int{0, 1, 2}, src.requests)
	assert.Equal(t, StopFetchFailed, res.StopReason)
	assert.ErrorIs(t, res.Err, boom)
	assert.Len(t, res.Vacancies, 2)
}

func TestWalker_HTTPErrorStops(t *testing.T) {
	src := &fakeSource{pages: func(int) hh.Outcome { return hh.HTTPError(404, errors.New("not found")) }}

	res := newTestWalker(src, &recordingSleep{}).Walk(context.Background(), 250000)
	assert.Len(t, src.requests, 1)
	assert.Equal(t, StopFetchFailed, res.StopReason)
}

func TestWalker_MalformedItemsAreSkipped(t *testing.T) {
	src := &fakeSource{pages: func(int) hh.Outcome {
		return pageOf(1,
			item("good", 300000, nil),
			json.RawMessage(`"garbage"`),
			json.RawMessage(`{"name":"bad","salary":"lots"}`),
		)
	}}

	res := newTestWalker(src, &recordingSleep{}).Walk(context.Background(), 250000)
	require.Len(t, res.Vacancies, 1)
	assert.Equal(t, "good", res.Vacancies[0].Title)
	assert.Equal(t, 2, res.Dropped)
}

func TestWalker_ZeroPagesStopsAfterFirstPage(t *testing.T) {
	src := &fakeSource{pages: func(int) hh.Outcome { return pageOf(0, item("x", 300000, nil)) }}

	res := newTestWalker(src, &recordingSleep{}).Walk(context.Background(), 250000)
	assert.Len(t, src.requests, 1)
	assert.Equal(t, StopLastPage, res.StopReason)
	assert.Len(t, res.Vacancies, 1)
}

func TestWalker_UsesConfiguredFields(t *testing.T) {
	src := &fakeSource{pages: func(int) hh.Outcome {
		return pageOf(1, json.RawMessage(`{"vacancy":{"title":"nested","link":"https://hh.ru/vacancy/9"},"pay":{"from":300000}}`))
	}}
	fields := mapper.Fields{Title: "vacancy.title", URL: "vacancy.link", Salary: "pay"}

	res := newTestWalker(src, &recordingSleep{}, WithFields(fields)).Walk(context.Background(), 250000)
	require.Len(t, res.Vacancies, 1)
	assert.Equal(t, "nested", res.Vacancies[0].Title)
	assert.Equal(t, "https://hh.ru/vacancy/9", res.Vacancies[0].URL)
}

type fakeArchive struct {
	pages []int
	err   error
}

func (a *fakeArchive) AppendPage(page int, _ []json.RawMessage) error {
	a.pages = append(a.pages, page)
	return a.err
}

func TestWalker_ArchivesRawPagesAndIgnoresArchiveErrors(t *testing.T) {
	archive := &fakeArchive{err: errors.New("disk full")}
	src := &fakeSource{pages: func(int) hh.Outcome { return pageOf(2, item("x", 300000, nil)) }}

	res := newTestWalker(src, &recordingSleep{}, WithRawArchive(archive)).Walk(context.Background(), 250000)
	assert.Equal(t, []int{0, 1}, archive.pages)
	assert.Len(t, res.Vacancies, 2)
}

func TestWalker_StampsRetrievedAtFromClock(t *testing.T) {
	at := time.Date(2025, 5, 4, 3, 2, 1, 0, time.UTC)
	src := &fakeSource{pages: func(int) hh.Outcome { return pageOf(1, item("x", 300000, nil)) }}

	res := newTestWalker(src, &recordingSleep{}, WithClock(func() time.Time { return at })).Walk(context.Background(), 250000)
	require.Len(t, res.Vacancies, 1)
	assert.Equal(t, at, res.Vacancies[0].RetrievedAt)
}

func TestWalker_CanceledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{pages: func(page int) hh.Outcome {
		return pageOf(10, item(fmt.Sprintf("p%d", page), 300000, nil))
	}}
	sleep := func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	res := NewWalker(src, WithSleep(sleep)).Walk(ctx, 250000)
	assert.Equal(t, StopCanceled, res.StopReason)
	assert.Len(t, src.requests, 1)
	assert.Len(t, res.Vacancies, 1)
}
