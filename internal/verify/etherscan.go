package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/r3e-network/deployengine/internal/httputil"
)

// EtherscanV2 implements Platform against Etherscan's unified v2 API, which
// multiplexes every supported chain behind a single base URL and a
// `chainid` query parameter instead of per-chain subdomains.
type EtherscanV2 struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

// NewEtherscanV2 builds an EtherscanV2 platform. apiKey may be empty, in
// which case IsConfigured reports false and the engine emits
// verification_skipped rather than attempting a submission.
func NewEtherscanV2(apiKey string) (*EtherscanV2, error) {
	baseURL, _, err := httputil.NormalizeBaseURL("https://api.etherscan.io/v2", httputil.BaseURLOptions{RequireHTTPS: true})
	if err != nil {
		return nil, err
	}
	return &EtherscanV2{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    baseURL,
		httpClient: httputil.CopyHTTPClientWithTimeout(nil, 30*time.Second, true),
	}, nil
}

func (e *EtherscanV2) Name() string { return "etherscan_v2" }

// SupportsNetwork is true for every chain: the v2 API is chain-agnostic,
// it is Etherscan's API key coverage (not the platform) that varies.
func (e *EtherscanV2) SupportsNetwork(chainID uint64) bool { return chainID > 0 }

func (e *EtherscanV2) IsConfigured() bool { return e.apiKey != "" }

func (e *EtherscanV2) IsAlreadyVerified(ctx context.Context, req Request) (bool, error) {
	params := url.Values{
		"chainid": {strconv.FormatUint(req.Network.ChainID, 10)},
		"module":  {"contract"},
		"action":  {"getsourcecode"},
		"address": {req.Address.Hex()},
		"apikey":  {e.apiKey},
	}

	var resp etherscanEnvelope
	if err := e.get(ctx, params, &resp); err != nil {
		return false, fmt.Errorf("etherscan_v2: getsourcecode: %w", err)
	}

	var results []struct {
		SourceCode string `json:"SourceCode"`
	}
	if err := json.Unmarshal(resp.Result, &results); err != nil {
		return false, nil // status "0" results are a string, not already-verified
	}
	return len(results) > 0 && results[0].SourceCode != "", nil
}

func (e *EtherscanV2) VerifyContract(ctx context.Context, req Request) error {
	form := url.Values{
		"chainid":              {strconv.FormatUint(req.Network.ChainID, 10)},
		"module":               {"contract"},
		"action":               {"verifysourcecode"},
		"apikey":               {e.apiKey},
		"contractaddress":      {req.Address.Hex()},
		"sourceCode":           {req.Source},
		"contractname":         {contractNameForEtherscan(req.SourceName, req.ContractName)},
		"compilerversion":      {normalizeCompilerVersion(req.CompilerVersion)},
		"codeformat":           {"solidity-single-file"},
		"constructorArguements": {req.ConstructorArgs},
	}

	var resp etherscanEnvelope
	if err := e.post(ctx, form, &resp); err != nil {
		return fmt.Errorf("etherscan_v2: verifysourcecode: %w", err)
	}
	if resp.Status != "1" {
		msg := string(resp.Result)
		if alreadyVerifiedMessage(msg) {
			return nil
		}
		return fmt.Errorf("etherscan_v2: submission rejected: %s", msg)
	}

	var guid string
	_ = json.Unmarshal(resp.Result, &guid)
	return e.pollStatus(ctx, guid)
}

func (e *EtherscanV2) pollStatus(ctx context.Context, guid string) error {
	params := url.Values{
		"module": {"contract"},
		"action": {"checkverifystatus"},
		"guid":   {guid},
		"apikey": {e.apiKey},
	}

	var resp etherscanEnvelope
	if err := e.get(ctx, params, &resp); err != nil {
		return fmt.Errorf("etherscan_v2: checkverifystatus: %w", err)
	}

	var message string
	_ = json.Unmarshal(resp.Result, &message)
	if resp.Status == "1" || alreadyVerifiedMessage(message) {
		return nil
	}
	if contractNotFoundMessage(message) {
		return ErrContractNotFound
	}
	return fmt.Errorf("etherscan_v2: verification pending: %s", message)
}

type etherscanEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (e *EtherscanV2) get(ctx context.Context, params url.Values, out *etherscanEnvelope) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	return e.do(req, out)
}

func (e *EtherscanV2) post(ctx context.Context, form url.Values, out *etherscanEnvelope) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req, out)
}

func (e *EtherscanV2) do(req *http.Request, out *etherscanEnvelope) error {
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := httputil.ReadAllStrict(resp.Body, 4<<20)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// ErrContractNotFound is returned by a platform when the submitted
// bytecode has not yet been indexed by the block explorer — the one
// retryable verification failure (spec.md §4.5/§9).
var ErrContractNotFound = fmt.Errorf("contract not found")

func alreadyVerifiedMessage(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "already verified")
}

func contractNotFoundMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "unable to locate") || strings.Contains(lower, "not found")
}

func contractNameForEtherscan(sourceName, contractName string) string {
	if sourceName == "" {
		return contractName
	}
	return sourceName + ":" + contractName
}

// normalizeCompilerVersion prefixes a bare solc version with "v"; it adds
// no commit suffix, so only a caller that passes the long
// `X.Y.Z+commit.HASH` form (from build-info's solcLongVersion) gets the
// `vX.Y.Z+commit.HASH` form Etherscan's API requires. A value that already
// starts with "v", or is empty, passes through unchanged.
func normalizeCompilerVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
