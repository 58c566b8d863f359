package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ChainSafe/log15"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/wrapgate/bridge/internal/config"
)

// Client talks to the external transaction record store. The ledger is
// advisory: on-chain state is the ground truth, so callers treat every
// failure here as non-fatal to the chain-level protocol.
type Client struct {
	endpoint string
	key      string
	http     *http.Client
	log      log15.Logger
}

func NewClient(api config.Api, log log15.Logger) *Client {
	return &Client{
		endpoint: api.Endpoint,
		key:      api.Key,
		http:     http.DefaultClient,
		log:      log,
	}
}

type insertResponse struct {
	Transaction *TransferRecord `json:"transaction"`
	Error       string          `json:"error"`
}

// Insert creates the record and returns it with its store-assigned id. When
// the store does not assign one, a client-side uuid keeps updates addressable.
func (c *Client) Insert(ctx context.Context, record *TransferRecord) (*TransferRecord, error) {
	if err := record.Validate(); err != nil {
		return nil, err
	}
	if record.Id == "" {
		record.Id = uuid.NewString()
	}

	body, err := c.do(ctx, http.MethodPost, "/transactions/insert", record)
	if err != nil {
		return nil, err
	}

	ret := &insertResponse{}
	if err = json.Unmarshal(body, ret); err != nil {
		return nil, err
	}
	if ret.Error != "" {
		return nil, fmt.Errorf("ledger insert rejected: %s", ret.Error)
	}
	if ret.Transaction == nil {
		return record, nil
	}
	return ret.Transaction, nil
}

// Update patches the record in place. A failed update is retried once before
// being dropped, to minimize ledger/chain drift.
func (c *Client) Update(ctx context.Context, id string, patch Patch) error {
	if patch.Status != "" && !patch.Status.Valid() {
		return fmt.Errorf("invalid status %q", patch.Status)
	}

	payload := struct {
		Id string `json:"id"`
		Patch
	}{Id: id, Patch: patch}

	_, err := c.do(ctx, http.MethodPut, "/transactions/update", payload)
	if err == nil {
		return nil
	}
	c.log.Warn("Ledger update failed, retrying once", "id", id, "err", err)

	select {
	case <-time.After(config.LedgerRetryInterval):
	case <-ctx.Done():
		return ctx.Err()
	}

	if _, err = c.do(ctx, http.MethodPut, "/transactions/update", payload); err != nil {
		return errors.Wrap(err, "ledger update dropped after retry")
	}
	return nil
}

// FindActiveTransfer resolves the wrapped-asset projection for a token on the
// given chain: the most recent active LOCK_AND_MINT record, or not-wrapped.
func (c *Client) FindActiveTransfer(ctx context.Context, tokenId, targetChain string) (*WrappedInfo, error) {
	q := url.Values{}
	q.Set("tokenId", tokenId)
	q.Set("chain", targetChain)

	body, err := c.do(ctx, http.MethodGet, "/nft/wrapped?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	info := &WrappedInfo{}
	if err = json.Unmarshal(body, info); err != nil {
		return nil, err
	}
	return info, nil
}

// FindTransfersByOwner lists the owner's attempts, newest first, optionally
// narrowed by status.
func (c *Client) FindTransfersByOwner(ctx context.Context, owner string, status Status) ([]TransferRecord, error) {
	q := url.Values{}
	q.Set("owner", owner)
	if status != "" {
		q.Set("status", string(status))
	}

	body, err := c.do(ctx, http.MethodGet, "/transactions?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	ret := struct {
		Transactions []TransferRecord `json:"transactions"`
		Error        string           `json:"error"`
	}{}
	if err = json.Unmarshal(body, &ret); err != nil {
		return nil, err
	}
	if ret.Error != "" {
		return nil, fmt.Errorf("ledger query rejected: %s", ret.Error)
	}
	return ret.Transactions, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return nil, fmt.Errorf("assamble req failed, err is %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("api-key", c.key)
	}

	r, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do req failed, err is %v", err)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("io.ReadAll failed, err is %v", err)
	}
	_ = r.Body.Close()

	if r.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ledger responded %d: %s", r.StatusCode, string(body))
	}
	return body, nil
}
