// Package publish posts the same text to both linked accounts and reports
// what happened on each.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/newsbot/internal/logger"
	"github.com/deusflow/newsbot/internal/metrics"
	"github.com/deusflow/newsbot/internal/twitter"
)

// Target publishes one post and returns its id. *twitter.Client is one.
type Target interface {
	Publish(ctx context.Context, text string) (string, error)
}

type Account int

const (
	AccountA Account = iota
	AccountB
)

func (a Account) String() string {
	if a == AccountA {
		return "account1"
	}
	return "account2"
}

type Kind int

const (
	BothOK Kind = iota
	PartialFailure
	BothFailed
)

func (k Kind) String() string {
	switch k {
	case BothOK:
		return "both_ok"
	case PartialFailure:
		return "partial_failure"
	default:
		return "both_failed"
	}
}

// Outcome is the result of one dual publish. PostIDs and Errs are indexed
// by Account; Failed is meaningful only for PartialFailure.
type Outcome struct {
	Kind    Kind
	Failed  Account
	PostIDs [2]string
	Errs    [2]error
}

// OK reports whether the given account published.
func (o Outcome) OK(a Account) bool { return o.Errs[a] == nil && o.PostIDs[a] != "" }

// PrimaryID is the first successful account's post id, empty when both
// failed.
func (o Outcome) PrimaryID() string {
	for _, id := range o.PostIDs {
		if id != "" {
			return id
		}
	}
	return ""
}

// Err joins the per-account errors.
func (o Outcome) Err() error {
	var errs []error
	for i, err := range o.Errs {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", Account(i), err))
		}
	}
	return errors.Join(errs...)
}

// ErrSkipped marks account B when it was not tried because A failed.
var ErrSkipped = errors.New("not attempted after account1 failed")

// Dual publishes to A then B. When A fails, B is tried only under the
// AnyAccount policy; otherwise the title is not recorded and B would get
// the same article again next cycle.
type Dual struct {
	targets [2]Target
	log     *slog.Logger
	metrics *metrics.Metrics

	// Policy decides whether B is tried after A failed. Zero means
	// FirstAccount.
	Policy Policy

	// OnRateLimit, when set, is told about rate-limit answers.
	OnRateLimit func(a Account, reset time.Time)
}

func NewDual(a, b Target, m *metrics.Metrics) *Dual {
	if m == nil {
		m = metrics.Global
	}
	return &Dual{targets: [2]Target{a, b}, log: logger.With("publish"), metrics: m}
}

func (d *Dual) Publish(ctx context.Context, text string) Outcome {
	var out Outcome
	for i, t := range d.targets {
		acct := Account(i)
		if acct == AccountB && out.Errs[AccountA] != nil && d.Policy != AnyAccount {
			out.Errs[i] = ErrSkipped
			d.log.Warn("skipping account2 after account1 failed", "policy", d.policy())
			continue
		}
		id, err := t.Publish(ctx, text)
		if err == nil && id == "" {
			err = errors.New("empty post id")
		}
		if err != nil {
			out.Errs[i] = err
			d.report(acct, err)
			continue
		}
		out.PostIDs[i] = id
		d.log.Info("posted", "account", acct, "post_id", id)
	}

	switch {
	case out.Errs[0] == nil && out.Errs[1] == nil:
		out.Kind = BothOK
	case out.Errs[0] != nil && out.Errs[1] != nil:
		out.Kind = BothFailed
		d.metrics.IncrementPublishFailures()
	default:
		out.Kind = PartialFailure
		if out.Errs[0] != nil {
			out.Failed = AccountA
		} else {
			out.Failed = AccountB
		}
		d.metrics.IncrementPartialPublishes()
	}
	return out
}

func (d *Dual) policy() Policy {
	if d.Policy == "" {
		return FirstAccount
	}
	return d.Policy
}

func (d *Dual) report(acct Account, err error) {
	if reset, ok := twitter.IsRateLimited(err); ok {
		d.log.Warn("rate limited", "account", acct, "reset", reset)
		if d.OnRateLimit != nil {
			d.OnRateLimit(acct, reset)
		}
		return
	}
	var apiErr *twitter.APIError
	if errors.As(err, &apiErr) && apiErr.Forbidden() {
		d.log.Error("client forbidden: the app must be attached to a project in the X developer portal", "account", acct)
		return
	}
	d.log.Error("publish failed", "account", acct, "error", err)
}

// Policy decides whether an Outcome counts as posted.
type Policy string

const (
	FirstAccount Policy = "first-account"
	AnyAccount   Policy = "any"
	AllAccounts  Policy = "all"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case FirstAccount, AnyAccount, AllAccounts:
		return p, nil
	case "":
		return FirstAccount, nil
	}
	return "", fmt.Errorf("unknown posted policy %q", s)
}

func (p Policy) Posted(o Outcome) bool {
	switch p {
	case AnyAccount:
		return o.Kind != BothFailed
	case AllAccounts:
		return o.Kind == BothOK
	default:
		return o.OK(AccountA)
	}
}
