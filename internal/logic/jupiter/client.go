package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	sdkcommon "github.com/blocto/solana-go-sdk/common"
	sdktypes "github.com/blocto/solana-go-sdk/types"
	"github.com/pkg/errors"

	"flash-swap-sol/internal/types"
)

// 参考：https://station.jup.ag/docs/apis/swap-api

const (
	DefaultApiBaseUrl = "https://quote-api.jup.ag/v6/"

	quoteEndpointName            = "quote"
	swapInstructionsEndpointName = "swap-instructions"
)

type Client struct {
	baseUrl    string
	httpClient *http.Client
}

// NewClient 创建 Jupiter swap API 客户端
func NewClient(baseUrl string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseUrl:    baseUrl,
		httpClient: httpClient,
	}
}

type QuoteParams struct {
	InputMint   types.Pubkey
	OutputMint  types.Pubkey
	Amount      uint64
	SlippageBps uint32
	MaxAccounts uint8 // 0 表示不限制
}

type Quote struct {
	raw                  json.RawMessage
	InAmount             uint64
	OutAmount            uint64
	OtherAmountThreshold uint64
}

// GetQuote 获取最优路由报价
func (c *Client) GetQuote(ctx context.Context, params QuoteParams) (*Quote, error) {
	query := url.Values{}
	query.Set("inputMint", params.InputMint.String())
	query.Set("outputMint", params.OutputMint.String())
	query.Set("amount", strconv.FormatUint(params.Amount, 10))
	query.Set("slippageBps", strconv.FormatUint(uint64(params.SlippageBps), 10))
	if params.MaxAccounts > 0 {
		query.Set("maxAccounts", strconv.Itoa(int(params.MaxAccounts)))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseUrl+quoteEndpointName+"?"+query.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "error creating http request")
	}

	respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var parsed jsonQuote
	if err = json.Unmarshal(respBody, &parsed); err != nil {
		return nil, errors.Wrap(err, "error unmarshalling json response")
	}

	quote := &Quote{raw: respBody}
	for _, f := range []struct {
		s   string
		dst *uint64
	}{
		{parsed.InAmount, &quote.InAmount},
		{parsed.OutAmount, &quote.OutAmount},
		{parsed.OtherAmountThreshold, &quote.OtherAmountThreshold},
	} {
		if *f.dst, err = strconv.ParseUint(f.s, 10, 64); err != nil {
			return nil, errors.Wrapf(err, "error parsing amount %q", f.s)
		}
	}
	return quote, nil
}

type SwapInstructions struct {
	ComputeBudgetInstructions   []sdktypes.Instruction
	SetupInstructions           []sdktypes.Instruction
	SwapInstruction             sdktypes.Instruction
	CleanupInstruction          *sdktypes.Instruction
	AddressLookupTableAddresses []types.Pubkey
}

type SwapRequest struct {
	Quote                   *Quote
	User                    types.Pubkey
	SourceTokenAccount      types.Pubkey // 可为空
	DestinationTokenAccount types.Pubkey // 可为空
}

// GetSwapInstructions 把报价转换为链上指令
func (c *Client) GetSwapInstructions(ctx context.Context, r SwapRequest) (*SwapInstructions, error) {
	if r.Quote == nil {
		return nil, errors.New("quote is required")
	}

	body := jsonSwapRequest{
		QuoteResponse:    r.Quote.raw,
		UserPublicKey:    r.User.String(),
		WrapAndUnwrapSol: false,
	}
	if !r.SourceTokenAccount.IsZero() {
		body.SourceTokenAccount = r.SourceTokenAccount.String()
	}
	if !r.DestinationTokenAccount.IsZero() {
		body.DestinationTokenAccount = r.DestinationTokenAccount.String()
	}
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "error marshalling request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseUrl+swapInstructionsEndpointName, bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "error creating http request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var jsonBody jsonSwapInstructions
	if err = json.Unmarshal(respBody, &jsonBody); err != nil {
		return nil, errors.Wrap(err, "error unmarshalling json response")
	}
	if jsonBody.Error != "" {
		return nil, errors.Errorf("swap instructions error: %s", jsonBody.Error)
	}

	var res SwapInstructions
	for _, jsonIxn := range jsonBody.ComputeBudgetInstructions {
		ixn, err := jsonIxn.ToSdkInstruction()
		if err != nil {
			return nil, errors.Wrap(err, "error decoding compute budget instruction")
		}
		res.ComputeBudgetInstructions = append(res.ComputeBudgetInstructions, ixn)
	}
	for _, jsonIxn := range jsonBody.SetupInstructions {
		ixn, err := jsonIxn.ToSdkInstruction()
		if err != nil {
			return nil, errors.Wrap(err, "error decoding setup instruction")
		}
		res.SetupInstructions = append(res.SetupInstructions, ixn)
	}

	if jsonBody.SwapInstruction == nil {
		return nil, errors.New("swap instruction not provided")
	}
	if res.SwapInstruction, err = jsonBody.SwapInstruction.ToSdkInstruction(); err != nil {
		return nil, errors.Wrap(err, "error decoding swap instruction")
	}

	if jsonBody.CleanupInstruction != nil {
		ixn, err := jsonBody.CleanupInstruction.ToSdkInstruction()
		if err != nil {
			return nil, errors.Wrap(err, "error decoding cleanup instruction")
		}
		res.CleanupInstruction = &ixn
	}

	for _, addr := range jsonBody.AddressLookupTableAddresses {
		key, err := types.TryPubkeyFromBase58(addr)
		if err != nil {
			return nil, errors.Wrap(err, "invalid address lookup table address")
		}
		res.AddressLookupTableAddresses = append(res.AddressLookupTableAddresses, key)
	}
	return &res, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "error executing http request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "error reading response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("received http status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (i *jsonInstruction) ToSdkInstruction() (sdktypes.Instruction, error) {
	programID, err := types.TryPubkeyFromBase58(i.ProgramId)
	if err != nil {
		return sdktypes.Instruction{}, errors.Wrap(err, "invalid program public key")
	}

	data, err := base64.StdEncoding.DecodeString(i.Data)
	if err != nil {
		return sdktypes.Instruction{}, errors.Wrap(err, "error decoding base64 instruction data")
	}

	accounts := make([]sdktypes.AccountMeta, 0, len(i.Accounts))
	for _, acc := range i.Accounts {
		key, err := types.TryPubkeyFromBase58(acc.Pubkey)
		if err != nil {
			return sdktypes.Instruction{}, errors.Wrap(err, fmt.Sprintf("invalid account public key %q", acc.Pubkey))
		}
		accounts = append(accounts, sdktypes.AccountMeta{
			PubKey:     sdkcommon.PublicKey(key),
			IsSigner:   acc.IsSigner,
			IsWritable: acc.IsWritable,
		})
	}

	return sdktypes.Instruction{
		ProgramID: sdkcommon.PublicKey(programID),
		Accounts:  accounts,
		Data:      data,
	}, nil
}

type jsonQuote struct {
	InAmount             string `json:"inAmount"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
}

type jsonSwapRequest struct {
	QuoteResponse           json.RawMessage `json:"quoteResponse"`
	UserPublicKey           string          `json:"userPublicKey"`
	SourceTokenAccount      string          `json:"sourceTokenAccount,omitempty"`
	DestinationTokenAccount string          `json:"destinationTokenAccount,omitempty"`
	WrapAndUnwrapSol        bool            `json:"wrapAndUnwrapSol"`
}

type jsonInstructionAccount struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

type jsonInstruction struct {
	ProgramId string                   `json:"programId"`
	Accounts  []jsonInstructionAccount `json:"accounts"`
	Data      string                   `json:"data"`
}

type jsonSwapInstructions struct {
	Error                       string             `json:"error"`
	ComputeBudgetInstructions   []*jsonInstruction `json:"computeBudgetInstructions"`
	SetupInstructions           []*jsonInstruction `json:"setupInstructions"`
	SwapInstruction             *jsonInstruction   `json:"swapInstruction"`
	CleanupInstruction          *jsonInstruction   `json:"cleanupInstruction"`
	AddressLookupTableAddresses []string           `json:"addressLookupTableAddresses"`
}
