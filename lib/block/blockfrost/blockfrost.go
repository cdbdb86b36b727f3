// Package blockfrost implements the account lookup against Blockfrost-compatible Cardano indexers.
package blockfrost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tarancss/stakewallet/lib/block/types"
)

// ProjectHeader is the header carrying the project id (API key) on every request.
const ProjectHeader = "project_id"

const (
	defaultTimeout = 5 * time.Second
	maxBodyLog     = 512     // bytes of a failed response kept for diagnostics
	maxBody        = 1 << 20 // responses are small json objects
	accountsPath   = "/accounts/"
)

// Errors found while decoding account responses.
var (
	ErrMissingField = errors.New("missing field in account response")
	ErrBadAmount    = errors.New("amount is not a non-negative integer")
	ErrNoNode       = errors.New("blockfrost base url is required")
)

// Blockfrost implements a connection to a Blockfrost-compatible API.
type Blockfrost struct {
	name    string
	node    string
	project string
	c       *http.Client
	log     *zap.Logger
}

// Init returns a client for the API at node (ie. https://cardano-mainnet.blockfrost.io/api/v0) authenticating with
// project. A timeout of 0 uses the default of 5 seconds. The returned client reuses its connections across lookups.
func Init(name, node, project string, timeout time.Duration, log *zap.Logger) (*Blockfrost, error) {
	if node == "" {
		return nil, ErrNoNode
	}

	if _, err := url.Parse(node); err != nil {
		return nil, fmt.Errorf("invalid blockfrost url %s: %w", node, err)
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Blockfrost{
		name:    name,
		node:    strings.TrimRight(node, "/"),
		project: project,
		c:       &http.Client{Timeout: timeout},
		log:     log.With(zap.String("component", "blockfrost"), zap.String("net", name)),
	}, nil
}

// Name returns the network name the client was configured for.
func (b *Blockfrost) Name() string {
	return b.name
}

// Close releases idle connections.
func (b *Blockfrost) Close() {
	b.c.CloseIdleConnections()
}

// accountResponse mirrors the fields of GET /accounts/{stake_address} this service uses. Pointers tell a missing
// field apart from its zero value.
type accountResponse struct {
	StakeAddress     string  `json:"stake_address"`
	Active           *bool   `json:"active"`
	ControlledAmount *string `json:"controlled_amount"`
	RewardsSum       *string `json:"rewards_sum"`
}

// errorResponse is the error body replied by Blockfrost.
type errorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// AccountInfo makes a single request for the account of stakeKey. Any failure is returned as a *types.LookupError
// of kind KindUpstream (no response or non-success status) or KindParse (undecodable body).
func (b *Blockfrost) AccountInfo(ctx context.Context, stakeKey string) (types.Account, error) {
	start := time.Now()
	u := b.node + accountsPath + url.PathEscape(stakeKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return types.Account{}, &types.LookupError{Kind: types.KindUpstream, StakeKey: stakeKey, Err: err}
	}

	req.Header.Set(ProjectHeader, b.project)
	req.Header.Set("Accept", "application/json")

	resp, err := b.c.Do(req)
	if err != nil {
		return types.Account{}, &types.LookupError{Kind: types.KindUpstream, StakeKey: stakeKey, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return types.Account{}, &types.LookupError{
			Kind: types.KindUpstream, StakeKey: stakeKey, Status: resp.StatusCode, Err: err,
		}
	}

	b.log.Debug("account lookup",
		zap.String("stake_key", stakeKey),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return types.Account{}, &types.LookupError{
			Kind:     types.KindUpstream,
			StakeKey: stakeKey,
			Status:   resp.StatusCode,
			Body:     truncate(body),
			Err:      statusError(resp.StatusCode, body),
		}
	}

	acc, err := decodeAccount(body)
	if err != nil {
		return types.Account{}, &types.LookupError{
			Kind:     types.KindParse,
			StakeKey: stakeKey,
			Status:   resp.StatusCode,
			Body:     truncate(body),
			Err:      err,
		}
	}

	return acc, nil
}

// decodeAccount decodes body into an Account. All of active, controlled_amount and rewards_sum must be present and
// both amounts must be non-negative integers written as decimal strings.
func decodeAccount(body []byte) (acc types.Account, err error) {
	var ar accountResponse
	if err = json.Unmarshal(body, &ar); err != nil {
		return acc, err
	}

	switch {
	case ar.Active == nil:
		return acc, fmt.Errorf("%w: active", ErrMissingField)
	case ar.ControlledAmount == nil:
		return acc, fmt.Errorf("%w: controlled_amount", ErrMissingField)
	case ar.RewardsSum == nil:
		return acc, fmt.Errorf("%w: rewards_sum", ErrMissingField)
	}

	if err = checkAmount(*ar.ControlledAmount); err != nil {
		return acc, fmt.Errorf("controlled_amount %q: %w", *ar.ControlledAmount, err)
	}

	if err = checkAmount(*ar.RewardsSum); err != nil {
		return acc, fmt.Errorf("rewards_sum %q: %w", *ar.RewardsSum, err)
	}

	return types.Account{
		StakeAddress:     ar.StakeAddress,
		Active:           *ar.Active,
		ControlledAmount: *ar.ControlledAmount,
		RewardsSum:       *ar.RewardsSum,
	}, nil
}

// checkAmount validates s without converting it: the string itself is what gets returned to callers.
func checkAmount(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ErrBadAmount
	}

	if d.IsNegative() || !d.IsInteger() || strings.ContainsAny(s, ".eE+-") {
		return ErrBadAmount
	}

	return nil
}

func statusError(status int, body []byte) error {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Message != "" {
		return fmt.Errorf("%s: %s", http.StatusText(status), er.Message)
	}

	return errors.New(http.StatusText(status))
}

func truncate(b []byte) string {
	if len(b) > maxBodyLog {
		return string(b[:maxBodyLog])
	}

	return string(b)
}
