package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name      string
		attempts  int
		failFirst int
		wantCalls int
		wantErr   bool
	}{
		{name: "first try", attempts: 3, failFirst: 0, wantCalls: 1},
		{name: "second try", attempts: 3, failFirst: 1, wantCalls: 2},
		{name: "last try", attempts: 3, failFirst: 2, wantCalls: 3},
		{name: "exhausted", attempts: 3, failFirst: 5, wantCalls: 3, wantErr: true},
		{name: "zero attempts runs once", attempts: 0, failFirst: 5, wantCalls: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), Policy{Attempts: tt.attempts, Delay: NoDelay()}, func(context.Context) error {
				calls++
				if calls <= tt.failFirst {
					return errBoom
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, errBoom)
			var rerr *Error
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, tt.wantCalls, rerr.Attempts)
		})
	}
}

func TestDoReturnsLastError(t *testing.T) {
	errs := []error{errors.New("one"), errors.New("two"), errors.New("three")}
	i := 0
	err := Do(context.Background(), Policy{Attempts: 3}, func(context.Context) error {
		e := errs[i]
		i++
		return e
	})
	assert.ErrorIs(t, err, errs[2])
	assert.NotErrorIs(t, err, errs[0])
}

func TestDoHookAndDelays(t *testing.T) {
	var seen []int
	var delays []int
	p := Policy{
		Attempts: 3,
		Delay: func(attempt int) time.Duration {
			delays = append(delays, attempt)
			return 0
		},
	}.WithHook(func(attempt int, err error) { seen = append(seen, attempt) })

	_ = Do(context.Background(), p, func(context.Context) error { return errors.New("x") })
	assert.Equal(t, []int{1, 2}, seen)
	assert.Equal(t, []int{1, 2}, delays)
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{Attempts: 3, Delay: Fixed(time.Hour)}
	go cancel()
	err := Do(ctx, p, func(context.Context) error {
		calls++
		return errors.New("down")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDelayFuncs(t *testing.T) {
	assert.Equal(t, time.Second, Fixed(time.Second)(3))
	assert.Equal(t, 3*time.Second, Linear(time.Second)(3))
	assert.Equal(t, time.Duration(0), NoDelay()(1))
	d := Default()
	assert.Equal(t, 3, d.Attempts)
	assert.Equal(t, time.Second, d.Delay(1))
}
