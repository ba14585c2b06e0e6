package engage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsbot/internal/metrics"
	"github.com/deusflow/newsbot/internal/twitter"
)

type fakeAccount struct {
	id        string
	likers    []twitter.User
	reposters []twitter.User
	replies   []twitter.Tweet
	likersErr error
	followErr error

	mu      sync.Mutex
	follows []string
}

func (f *fakeAccount) LikingUsers(context.Context, string) ([]twitter.User, error) {
	return f.likers, f.likersErr
}

func (f *fakeAccount) RetweetedBy(context.Context, string) ([]twitter.User, error) {
	return f.reposters, nil
}

func (f *fakeAccount) Replies(context.Context, string) ([]twitter.Tweet, error) {
	return f.replies, nil
}

func (f *fakeAccount) Follow(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.follows = append(f.follows, id)
	return f.followErr
}

func (f *fakeAccount) UserID() string { return f.id }

func users(ids ...string) []twitter.User {
	out := make([]twitter.User, len(ids))
	for i, id := range ids {
		out[i] = twitter.User{ID: id}
	}
	return out
}

func TestOnPostSettled_BothAccountsFollowEveryone(t *testing.T) {
	a := &fakeAccount{id: "100", likers: users("1"), replies: []twitter.Tweet{{ID: "t", AuthorID: "3"}}}
	b := &fakeAccount{id: "200", reposters: users("2")}

	f := New(a, b, WithInterval(0), WithMetrics(metrics.New()))
	rep := f.OnPostSettled(context.Background(), "p1")

	assert.Equal(t, []string{"1", "2", "3"}, a.follows)
	assert.Equal(t, []string{"1", "2", "3"}, b.follows)
	assert.Equal(t, 3, rep.Candidates)
	assert.Equal(t, 6, rep.Follows)
	assert.Empty(t, rep.StepErrors)
}

func TestOnPostSettled_NoDedupFollowsTwice(t *testing.T) {
	a := &fakeAccount{id: "100", likers: users("7")}
	b := &fakeAccount{id: "200", likers: users("7")}

	New(a, b, WithInterval(0), WithMetrics(metrics.New())).OnPostSettled(context.Background(), "p1")

	assert.Equal(t, []string{"7", "7"}, a.follows)
	assert.Equal(t, []string{"7", "7"}, b.follows)
}

func TestOnPostSettled_Dedup(t *testing.T) {
	a := &fakeAccount{id: "100", likers: users("7"), reposters: users("7", "8")}
	b := &fakeAccount{id: "200", likers: users("7")}

	rep := New(a, b, WithInterval(0), WithDedup(true), WithMetrics(metrics.New())).
		OnPostSettled(context.Background(), "p1")

	assert.Equal(t, []string{"7", "8"}, a.follows)
	assert.Equal(t, []string{"7", "8"}, b.follows)
	assert.Equal(t, 4, rep.Follows)
}

func TestOnPostSettled_FailingStepDoesNotAbortSiblings(t *testing.T) {
	m := metrics.New()
	a := &fakeAccount{id: "100", likersErr: errors.New("503"), reposters: users("2")}
	b := &fakeAccount{id: "200", likers: users("1")}

	rep := New(a, b, WithInterval(0), WithMetrics(m)).OnPostSettled(context.Background(), "p1")

	require.Len(t, rep.StepErrors, 1)
	assert.ErrorContains(t, rep.StepErrors[0], "account1/likers")
	assert.Equal(t, []string{"1", "2"}, a.follows)
	assert.Equal(t, int64(1), m.EngagementErrors)
}

func TestOnPostSettled_FollowFailureIsolated(t *testing.T) {
	m := metrics.New()
	a := &fakeAccount{id: "100", likers: users("1", "2"), followErr: errors.New("forbidden")}
	b := &fakeAccount{id: "200"}

	rep := New(a, b, WithInterval(0), WithMetrics(m)).OnPostSettled(context.Background(), "p1")

	assert.Equal(t, []string{"1", "2"}, a.follows, "a failure does not stop later follows")
	assert.Equal(t, []string{"1", "2"}, b.follows, "account 2 follows even when account 1 failed")
	assert.Equal(t, 2, rep.Failures)
	assert.Equal(t, 2, rep.Follows)
	assert.Equal(t, int64(2), m.FollowFailures)
	assert.Equal(t, int64(2), m.FollowsSent)
}

func TestOnPostSettled_SkipsOwnAccount(t *testing.T) {
	a := &fakeAccount{id: "100", replies: []twitter.Tweet{{AuthorID: "100"}, {AuthorID: "200"}}}
	b := &fakeAccount{id: "200"}

	New(a, b, WithInterval(0), WithMetrics(metrics.New())).OnPostSettled(context.Background(), "p1")

	assert.Equal(t, []string{"200"}, a.follows)
	assert.Equal(t, []string{"100"}, b.follows)
}

func TestOnPostSettled_Cancelled(t *testing.T) {
	a := &fakeAccount{id: "100", likers: users("1", "2")}
	b := &fakeAccount{id: "200"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := New(a, b, WithMetrics(metrics.New())).OnPostSettled(ctx, "p1")
	assert.Zero(t, rep.Follows)
	assert.Empty(t, a.follows)
}
