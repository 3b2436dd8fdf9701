package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/r3e-network/deployengine/internal/httputil"
)

// Sourcify implements Platform against the Sourcify contract-verification
// API (https://sourcify.dev), which matches submitted source files against
// on-chain bytecode rather than requiring an API key.
type Sourcify struct {
	httpClient *http.Client
	baseURL    string
}

// NewSourcify builds a Sourcify platform client.
func NewSourcify() (*Sourcify, error) {
	baseURL, _, err := httputil.NormalizeBaseURL("https://sourcify.dev/server", httputil.BaseURLOptions{RequireHTTPS: true})
	if err != nil {
		return nil, err
	}
	return &Sourcify{
		baseURL:    baseURL,
		httpClient: httputil.CopyHTTPClientWithTimeout(nil, 30*time.Second, true),
	}, nil
}

func (s *Sourcify) Name() string { return "sourcify" }

// SupportsNetwork reports true for any nonzero chainID; no list of the
// chains Sourcify indexes is consulted. The engine treats an unsupported
// chain the same as an unconfigured platform (verification_skipped).
func (s *Sourcify) SupportsNetwork(chainID uint64) bool { return chainID > 0 }

// IsConfigured is always true: Sourcify requires no API key.
func (s *Sourcify) IsConfigured() bool { return true }

func (s *Sourcify) IsAlreadyVerified(ctx context.Context, req Request) (bool, error) {
	endpoint := fmt.Sprintf("%s/check-by-addresses?addresses=%s&chainIds=%d",
		s.baseURL, req.Address.Hex(), req.Network.ChainID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("sourcify: check-by-addresses: %w", err)
	}
	defer resp.Body.Close()

	body, err := httputil.ReadAllStrict(resp.Body, 1<<20)
	if err != nil {
		return false, err
	}

	var results []struct {
		Address string `json:"address"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(body, &results); err != nil {
		return false, fmt.Errorf("sourcify: decode check-by-addresses: %w", err)
	}
	for _, r := range results {
		if strings.EqualFold(r.Address, req.Address.Hex()) && (r.Status == "perfect" || r.Status == "partial") {
			return true, nil
		}
	}
	return false, nil
}

func (s *Sourcify) VerifyContract(ctx context.Context, req Request) error {
	payload := sourcifyVerifyRequest{
		Address: req.Address.Hex(),
		Chain:   strconv.FormatUint(req.Network.ChainID, 10),
		Files: map[string]string{
			fileName(req.SourceName, req.ContractName): req.Source,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sourcify: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sourcify: verify: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := httputil.ReadAllStrict(resp.Body, 1<<20)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNotFound || strings.Contains(string(respBody), "cannot match") {
		return ErrContractNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if alreadyVerifiedMessage(string(respBody)) {
			return nil
		}
		return fmt.Errorf("sourcify: verify rejected (%d): %s", resp.StatusCode, respBody)
	}

	var result struct {
		Result []struct {
			Status string `json:"status"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &result); err == nil {
		for _, r := range result.Result {
			if r.Status == "perfect" || r.Status == "partial" {
				return nil
			}
		}
	}
	return nil
}

type sourcifyVerifyRequest struct {
	Address string            `json:"address"`
	Chain   string            `json:"chain"`
	Files   map[string]string `json:"files"`
}

func fileName(sourceName, contractName string) string {
	if sourceName != "" {
		return sourceName
	}
	return contractName + ".sol"
}
