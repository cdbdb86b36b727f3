package blockfrost

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/stakewallet/lib/block/types"
)

const stake = "stake1u9ylzsgxaa6xctf4juup682ar3juj85n8tx3hthnljg47zctvm3rc"

// mockHandler replies the account endpoint with the body and status given for each stake key.
func mockHandler(t *testing.T, replies map[string]struct {
	status int
	body   string
}) http.HandlerFunc {
	t.Helper()

	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "secret", r.Header.Get(ProjectHeader))

		key := r.URL.Path[len("/api/v0/accounts/"):]

		rep, ok := replies[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status_code":404,"error":"Not Found","message":"The requested component has not been found."}`))

			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rep.status)
		_, _ = w.Write([]byte(rep.body))
	}
}

func TestAccountInfo(t *testing.T) {
	replies := map[string]struct {
		status int
		body   string
	}{
		stake: {http.StatusOK, `{"stake_address":"` + stake + `","active":true,"active_epoch":412,` +
			`"controlled_amount":"619154618165","rewards_sum":"319154618165","withdrawals_sum":"12125369253",` +
			`"pool_id":"pool1pu5jlj4q9w9jlxeu370a3c9myx47md5j5m2str0naunn2q3lkdy"}`},
		"big":        {http.StatusOK, `{"active":false,"controlled_amount":"45000000000000000000001","rewards_sum":"9007199254740993"}`},
		"inactive":   {http.StatusOK, `{"stake_address":"inactive","active":false,"controlled_amount":"0","rewards_sum":"0"}`},
		"garbage":    {http.StatusOK, `<html>oops</html>`},
		"noactive":   {http.StatusOK, `{"controlled_amount":"1","rewards_sum":"1"}`},
		"noamount":   {http.StatusOK, `{"active":true,"rewards_sum":"1"}`},
		"norewards":  {http.StatusOK, `{"active":true,"controlled_amount":"1"}`},
		"nullactive": {http.StatusOK, `{"active":null,"controlled_amount":"1","rewards_sum":"1"}`},
		"numeric":    {http.StatusOK, `{"active":true,"controlled_amount":1000,"rewards_sum":"1"}`},
		"float":      {http.StatusOK, `{"active":true,"controlled_amount":"1.5","rewards_sum":"1"}`},
		"negative":   {http.StatusOK, `{"active":true,"controlled_amount":"1","rewards_sum":"-1"}`},
		"exponent":   {http.StatusOK, `{"active":true,"controlled_amount":"1e9","rewards_sum":"1"}`},
		"empty":      {http.StatusOK, `{"active":true,"controlled_amount":"","rewards_sum":"1"}`},
		"limited":    {http.StatusTooManyRequests, `{"status_code":429,"error":"Project Over Limit","message":"Usage is over limit."}`},
		"down":       {http.StatusInternalServerError, `internal`},
		"forbidden":  {http.StatusForbidden, `{"status_code":403,"error":"Forbidden","message":"Invalid project token."}`},
	}

	mock := httptest.NewServer(mockHandler(t, replies))
	defer mock.Close()

	b, err := Init("preprod", mock.URL+"/api/v0/", "secret", time.Second, nil)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, "preprod", b.Name())

	cases := []struct {
		name   string
		key    string
		kind   types.Kind
		status int
		exp    types.Account
	}{
		{"active", stake, 0, 0, types.Account{StakeAddress: stake, Active: true, ControlledAmount: "619154618165", RewardsSum: "319154618165"}},
		{"beyond2^53", "big", 0, 0, types.Account{ControlledAmount: "45000000000000000000001", RewardsSum: "9007199254740993"}},
		{"inactive", "inactive", 0, 0, types.Account{StakeAddress: "inactive", ControlledAmount: "0", RewardsSum: "0"}},
		{"garbage", "garbage", types.KindParse, http.StatusOK, types.Account{}},
		{"noactive", "noactive", types.KindParse, http.StatusOK, types.Account{}},
		{"noamount", "noamount", types.KindParse, http.StatusOK, types.Account{}},
		{"norewards", "norewards", types.KindParse, http.StatusOK, types.Account{}},
		{"nullactive", "nullactive", types.KindParse, http.StatusOK, types.Account{}},
		{"numeric", "numeric", types.KindParse, http.StatusOK, types.Account{}},
		{"float", "float", types.KindParse, http.StatusOK, types.Account{}},
		{"negative", "negative", types.KindParse, http.StatusOK, types.Account{}},
		{"exponent", "exponent", types.KindParse, http.StatusOK, types.Account{}},
		{"empty", "empty", types.KindParse, http.StatusOK, types.Account{}},
		{"notfound", "unknown", types.KindUpstream, http.StatusNotFound, types.Account{}},
		{"limited", "limited", types.KindUpstream, http.StatusTooManyRequests, types.Account{}},
		{"down", "down", types.KindUpstream, http.StatusInternalServerError, types.Account{}},
		{"forbidden", "forbidden", types.KindUpstream, http.StatusForbidden, types.Account{}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			acc, err := b.AccountInfo(context.Background(), c.key)
			if c.kind == 0 {
				require.NoError(t, err)
				assert.Equal(t, c.exp, acc)

				return
			}

			require.Error(t, err)
			assert.True(t, types.IsUnavailable(err))
			assert.Equal(t, types.Account{}, acc)

			var le *types.LookupError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, c.kind, le.Kind)
			assert.Equal(t, c.status, le.Status)
			assert.Equal(t, c.key, le.StakeKey)

			switch c.kind {
			case types.KindParse:
				assert.ErrorIs(t, err, types.ErrParse)
				assert.NotErrorIs(t, err, types.ErrUpstream)
			case types.KindUpstream:
				assert.ErrorIs(t, err, types.ErrUpstream)
				assert.NotErrorIs(t, err, types.ErrParse)
			}
		})
	}
}

func TestAccountInfoStatusMessage(t *testing.T) {
	mock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"status_code":403,"error":"Forbidden","message":"Invalid project token."}`))
	}))
	defer mock.Close()

	b, err := Init("mainnet", mock.URL, "wrong", 0, nil)
	require.NoError(t, err)

	_, err = b.AccountInfo(context.Background(), stake)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid project token.")
	assert.Contains(t, err.Error(), "status 403")
}

func TestAccountInfoTransportError(t *testing.T) {
	mock := httptest.NewServer(http.NotFoundHandler())
	url := mock.URL
	mock.Close() // nothing listens on url anymore

	b, err := Init("mainnet", url, "secret", time.Second, nil)
	require.NoError(t, err)

	_, err = b.AccountInfo(context.Background(), stake)
	require.ErrorIs(t, err, types.ErrUpstream)

	var le *types.LookupError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 0, le.Status)
}

func TestAccountInfoTimeout(t *testing.T) {
	release := make(chan struct{})
	mock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer mock.Close()
	defer close(release)

	b, err := Init("mainnet", mock.URL, "secret", 50*time.Millisecond, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = b.AccountInfo(context.Background(), stake)
	require.ErrorIs(t, err, types.ErrUpstream)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAccountInfoSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	mock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		w.WriteHeader(http.StatusBadGateway)
	}))
	defer mock.Close()

	b, err := Init("mainnet", mock.URL, "secret", time.Second, nil)
	require.NoError(t, err)

	_, err = b.AccountInfo(context.Background(), stake)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAccountInfoEscapesKey(t *testing.T) {
	got := make(chan string, 1)
	mock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.URL.EscapedPath()

		_, _ = w.Write([]byte(`{"active":true,"controlled_amount":"1","rewards_sum":"0"}`))
	}))
	defer mock.Close()

	b, err := Init("mainnet", mock.URL, "secret", time.Second, nil)
	require.NoError(t, err)

	_, err = b.AccountInfo(context.Background(), "a/b c")
	require.NoError(t, err)
	assert.Equal(t, "/accounts/a%2Fb%20c", <-got)
}

func TestInit(t *testing.T) {
	_, err := Init("mainnet", "", "secret", 0, nil)
	require.ErrorIs(t, err, ErrNoNode)

	b, err := Init("mainnet", "http://localhost:3000/api/v0///", "secret", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/api/v0", b.node)
	assert.Equal(t, defaultTimeout, b.c.Timeout)
}
