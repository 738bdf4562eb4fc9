package crosscheck

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ruteri/tee-rng-worker/interfaces"
	"github.com/ruteri/tee-rng-worker/metrics"
)

const MinEndpoints = 2

var (
	ErrNotEnoughEndpoints = errors.New("cross-checked reads need at least two endpoints")
	ErrReadInconsistency  = errors.New("endpoints returned inconsistent results")
)

var (
	_ interfaces.ContractReader = (*Reader)(nil)
	_ interfaces.BalanceReader  = (*Reader)(nil)
)

// Reader answers a read only when every configured endpoint answers it and
// all answers are identical.
type Reader struct {
	viewers []interfaces.Viewer
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewReader needs at least MinEndpoints viewers with distinct names; asking
// the same endpoint twice is not a cross-check.
func NewReader(viewers []interfaces.Viewer, log *slog.Logger) (*Reader, error) {
	seen := make(map[string]struct{}, len(viewers))
	for _, v := range viewers {
		if _, dup := seen[v.Name()]; dup {
			return nil, fmt.Errorf("%w: endpoint %s configured more than once", ErrNotEnoughEndpoints, v.Name())
		}
		seen[v.Name()] = struct{}{}
	}
	if len(viewers) < MinEndpoints {
		return nil, fmt.Errorf("%w: got %d", ErrNotEnoughEndpoints, len(viewers))
	}
	return &Reader{
		viewers: append([]interfaces.Viewer(nil), viewers...),
		log:     log.With("module", "crosscheck"),
	}, nil
}

func (r *Reader) WithMetrics(m *metrics.Metrics) *Reader {
	r.metrics = m
	return r
}

func (r *Reader) Endpoints() []string {
	names := make([]string, len(r.viewers))
	for i, v := range r.viewers {
		names[i] = v.Name()
	}
	return names
}

func (r *Reader) ViewFunction(ctx context.Context, contractID, method string, args any) (json.RawMessage, error) {
	results, err := fanOut(ctx, r, method, func(ctx context.Context, v interfaces.Viewer) (json.RawMessage, error) {
		res, err := v.ViewFunction(ctx, contractID, method, args)
		if err != nil {
			return nil, err
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, res); err != nil {
			return nil, fmt.Errorf("invalid JSON result: %w", err)
		}
		return compact.Bytes(), nil
	})
	if err != nil {
		return nil, err
	}

	canonical := make([]string, len(results))
	for i, res := range results {
		canonical[i] = string(res)
	}
	if err := r.unanimous(method, canonical); err != nil {
		return nil, err
	}
	return results[0], nil
}

func (r *Reader) AccountBalance(ctx context.Context, accountID string) (*big.Int, error) {
	const method = "view_account"
	results, err := fanOut(ctx, r, method, func(ctx context.Context, v interfaces.Viewer) (*big.Int, error) {
		balance, err := v.AccountBalance(ctx, accountID)
		if err == nil && balance == nil {
			err = errors.New("nil balance")
		}
		return balance, err
	})
	if err != nil {
		return nil, err
	}

	canonical := make([]string, len(results))
	for i, res := range results {
		canonical[i] = res.String()
	}
	if err := r.unanimous(method, canonical); err != nil {
		return nil, err
	}
	return new(big.Int).Set(results[0]), nil
}

// fanOut queries every endpoint concurrently and waits for all of them. Any
// endpoint failure fails the whole read.
func fanOut[T any](ctx context.Context, r *Reader, method string, call func(context.Context, interfaces.Viewer) (T, error)) ([]T, error) {
	start := time.Now()
	results := make([]T, len(r.viewers))

	g, gctx := errgroup.WithContext(ctx)
	for i, v := range r.viewers {
		i, v := i, v
		g.Go(func() error {
			res, err := call(gctx, v)
			if err != nil {
				return fmt.Errorf("%s: %w", v.Name(), err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.metrics.ReadInconsistency(method)
		r.log.Warn("endpoint failed during cross-checked read",
			slog.String("method", method),
			slog.Duration("duration", time.Since(start)),
			slog.Any("err", err))
		return nil, fmt.Errorf("%w: %s: %w", ErrReadInconsistency, method, err)
	}
	return results, nil
}

// unanimous compares canonical forms byte for byte.
func (r *Reader) unanimous(method string, canonical []string) error {
	for i := 1; i < len(canonical); i++ {
		if canonical[i] == canonical[0] {
			continue
		}
		r.metrics.ReadInconsistency(method)
		r.log.Warn("endpoints disagree",
			slog.String("method", method),
			slog.String("first", r.viewers[0].Name()),
			slog.String("other", r.viewers[i].Name()))
		return fmt.Errorf("%w: %s: %s returned %q, %s returned %q",
			ErrReadInconsistency, method, r.viewers[0].Name(), canonical[0], r.viewers[i].Name(), canonical[i])
	}
	return nil
}
