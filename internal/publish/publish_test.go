package publish

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsbot/internal/metrics"
	"github.com/deusflow/newsbot/internal/twitter"
)

type fakeTarget struct {
	id    string
	err   error
	texts []string
}

func (f *fakeTarget) Publish(_ context.Context, text string) (string, error) {
	f.texts = append(f.texts, text)
	return f.id, f.err
}

func TestDual_BothOK(t *testing.T) {
	a, b := &fakeTarget{id: "1"}, &fakeTarget{id: "2"}
	out := NewDual(a, b, metrics.New()).Publish(context.Background(), "hi")

	assert.Equal(t, BothOK, out.Kind)
	assert.Equal(t, [2]string{"1", "2"}, out.PostIDs)
	assert.Equal(t, "1", out.PrimaryID())
	assert.NoError(t, out.Err())
	assert.Equal(t, []string{"hi"}, a.texts)
	assert.Equal(t, []string{"hi"}, b.texts)
}

func TestDual_SkipsBAfterAFails(t *testing.T) {
	m := metrics.New()
	a, b := &fakeTarget{err: errors.New("rate limited")}, &fakeTarget{id: "2"}
	out := NewDual(a, b, m).Publish(context.Background(), "hi")

	assert.Equal(t, BothFailed, out.Kind)
	assert.Empty(t, b.texts, "account2 is not tried once account1 failed")
	assert.ErrorIs(t, out.Errs[AccountB], ErrSkipped)
	assert.Empty(t, out.PrimaryID())
	assert.Equal(t, int64(1), m.PublishFailures)
}

func TestDual_AnyPolicyTriesBAfterAFails(t *testing.T) {
	m := metrics.New()
	a, b := &fakeTarget{err: errors.New("boom")}, &fakeTarget{id: "2"}
	d := NewDual(a, b, m)
	d.Policy = AnyAccount
	out := d.Publish(context.Background(), "hi")

	assert.Equal(t, PartialFailure, out.Kind)
	assert.Equal(t, AccountA, out.Failed)
	assert.Equal(t, "2", out.PrimaryID())
	assert.Len(t, b.texts, 1)
	assert.Equal(t, int64(1), m.PartialPublishes)
	assert.ErrorContains(t, out.Err(), "account1: boom")
}

func TestDual_BothFailed(t *testing.T) {
	m := metrics.New()
	out := NewDual(&fakeTarget{err: errors.New("a")}, &fakeTarget{err: errors.New("b")}, m).
		Publish(context.Background(), "hi")

	assert.Equal(t, BothFailed, out.Kind)
	assert.Empty(t, out.PrimaryID())
	assert.Equal(t, int64(1), m.PublishFailures)
}

func TestDual_EmptyIDIsFailure(t *testing.T) {
	out := NewDual(&fakeTarget{id: "1"}, &fakeTarget{}, metrics.New()).Publish(context.Background(), "hi")
	assert.Equal(t, PartialFailure, out.Kind)
	assert.Equal(t, AccountB, out.Failed)
	assert.False(t, out.OK(AccountB))
}

func TestDual_RateLimitHook(t *testing.T) {
	reset := time.Unix(1714564800, 0)
	rl := &twitter.RateLimitError{APIError: twitter.APIError{Status: http.StatusTooManyRequests}, Reset: reset}

	d := NewDual(&fakeTarget{id: "1"}, &fakeTarget{err: rl}, metrics.New())
	var got []Account
	d.OnRateLimit = func(a Account, at time.Time) {
		got = append(got, a)
		assert.True(t, reset.Equal(at))
	}

	out := d.Publish(context.Background(), "hi")
	assert.Equal(t, AccountB, out.Failed)
	assert.Equal(t, []Account{AccountB}, got)
}

func TestPolicy(t *testing.T) {
	boom := errors.New("boom")
	bothOK := Outcome{Kind: BothOK, PostIDs: [2]string{"1", "2"}}
	bFailed := Outcome{Kind: PartialFailure, Failed: AccountB, PostIDs: [2]string{"1", ""}, Errs: [2]error{nil, boom}}
	aFailed := Outcome{Kind: PartialFailure, Failed: AccountA, PostIDs: [2]string{"", "2"}, Errs: [2]error{boom, nil}}
	none := Outcome{Kind: BothFailed, Errs: [2]error{boom, boom}}

	tests := []struct {
		policy Policy
		want   [4]bool
	}{
		{FirstAccount, [4]bool{true, true, false, false}},
		{AnyAccount, [4]bool{true, true, true, false}},
		{AllAccounts, [4]bool{true, false, false, false}},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			for i, o := range []Outcome{bothOK, bFailed, aFailed, none} {
				assert.Equal(t, tt.want[i], tt.policy.Posted(o), "outcome %d", i)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, FirstAccount, p)

	p, err = ParsePolicy("all")
	require.NoError(t, err)
	assert.Equal(t, AllAccounts, p)

	_, err = ParsePolicy("most")
	assert.Error(t, err)
}
