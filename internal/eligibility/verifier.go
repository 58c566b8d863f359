package eligibility

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"

	"github.com/ChainSafe/log15"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

// ErrNotEligible means the allow-list oracle rejected the principal/asset
// pair. No chain state has been touched when it is returned.
var ErrNotEligible = errors.New("principal is not eligible to bridge this asset")

// ProofChecker executes the on-chain verifyProof call. The contract gateway
// satisfies it.
type ProofChecker interface {
	VerifyProof(ctx context.Context, verifierContract common.Address, proof [][32]byte, leaf [32]byte) (bool, error)
}

// Verifier fetches a membership proof from the distribution endpoint and
// checks it against the on-chain verifier. Results are never cached across
// attempts: allow lists change.
type Verifier struct {
	endpoint string
	contract common.Address
	checker  ProofChecker
	log      log15.Logger
}

func New(endpoint string, contract common.Address, checker ProofChecker, log log15.Logger) *Verifier {
	return &Verifier{
		endpoint: endpoint,
		contract: contract,
		checker:  checker,
		log:      log,
	}
}

// Leaf derives the membership leaf for a principal/token pair. The format has
// to match the one the proof distributor hashed: "<tokenId>-<checksummed addr>".
func Leaf(tokenId *big.Int, principal common.Address) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(fmt.Sprintf("%s-%s", tokenId.String(), principal.Hex())))
	var leaf [32]byte
	copy(leaf[:], h.Sum(nil))
	return leaf
}

type proofResponse struct {
	Proof      []string `json:"proof"`
	MerkleRoot string   `json:"merkleRoot"`
	Error      string   `json:"error"`
}

// FetchProof asks the distribution endpoint for the proof path of the leaf.
func (v *Verifier) FetchProof(ctx context.Context, tokenId *big.Int, principal common.Address) ([][32]byte, error) {
	body, err := json.Marshal(map[string]string{
		"tokenId":     tokenId.String(),
		"userAddress": principal.Hex(),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("assamble req failed, err is %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	r, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do req failed, err is %v", err)
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("io.ReadAll failed, err is %v", err)
	}
	_ = r.Body.Close()

	ret := &proofResponse{}
	if err = json.Unmarshal(data, ret); err != nil {
		return nil, err
	}
	if r.StatusCode != http.StatusOK || ret.Error != "" {
		return nil, fmt.Errorf("failed to get proof, status: %d, msg: %s", r.StatusCode, ret.Error)
	}

	proof := make([][32]byte, 0, len(ret.Proof))
	for _, p := range ret.Proof {
		proof = append(proof, common.HexToHash(p))
	}
	return proof, nil
}

// Verify runs the full gate: fetch the proof, then ask the on-chain verifier.
// It must be called strictly before any minting call.
func (v *Verifier) Verify(ctx context.Context, tokenId *big.Int, principal common.Address) error {
	proof, err := v.FetchProof(ctx, tokenId, principal)
	if err != nil {
		return errors.Wrap(err, "fetch eligibility proof failed")
	}

	leaf := Leaf(tokenId, principal)
	ok, err := v.checker.VerifyProof(ctx, v.contract, proof, leaf)
	if err != nil {
		return errors.Wrap(err, "verifyProof call failed")
	}
	if !ok {
		v.log.Info("Eligibility check rejected", "token", tokenId, "principal", principal)
		return ErrNotEligible
	}
	return nil
}
