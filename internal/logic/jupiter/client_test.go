package jupiter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"flash-swap-sol/internal/consts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quoteJSON = `{"inputMint":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v","inAmount":"1000000","outputMint":"So11111111111111111111111111111111111111112","outAmount":"6123456","otherAmountThreshold":"6092839","slippageBps":50}`

const swapIxJSON = `{
  "computeBudgetInstructions": [],
  "setupInstructions": [
    {"programId": "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL", "accounts": [], "data": ""}
  ],
  "swapInstruction": {
    "programId": "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4",
    "accounts": [
      {"pubkey": "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", "isSigner": false, "isWritable": false},
      {"pubkey": "So11111111111111111111111111111111111111112", "isSigner": true, "isWritable": true}
    ],
    "data": "AQID"
  },
  "cleanupInstruction": null,
  "addressLookupTableAddresses": ["ComputeBudget111111111111111111111111111111"]
}`

func newTestServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, consts.USDCMintStr, r.URL.Query().Get("inputMint"))
		assert.Equal(t, consts.WSOLMintStr, r.URL.Query().Get("outputMint"))
		assert.Equal(t, "1000000", r.URL.Query().Get("amount"))
		assert.Equal(t, "50", r.URL.Query().Get("slippageBps"))
		_, _ = io.WriteString(w, quoteJSON)
	})
	mux.HandleFunc("/swap-instructions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.JSONEq(t, quoteJSON, string(body["quoteResponse"]))
		assert.JSONEq(t, `"`+consts.WSOLMintStr+`"`, string(body["destinationTokenAccount"]))
		_, ok := body["sourceTokenAccount"]
		assert.False(t, ok)
		_, _ = io.WriteString(w, swapIxJSON)
	})
	mux.HandleFunc("/broken/quote", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "route not found", http.StatusBadRequest)
	})
	return httptest.NewServer(mux)
}

func TestQuoteAndSwapInstructions(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := NewClient(srv.URL+"/", srv.Client())

	quote, err := c.GetQuote(context.Background(), QuoteParams{
		InputMint:   consts.USDCMint,
		OutputMint:  consts.WSOLMint,
		Amount:      1_000_000,
		SlippageBps: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), quote.InAmount)
	assert.Equal(t, uint64(6_123_456), quote.OutAmount)
	assert.Equal(t, uint64(6_092_839), quote.OtherAmountThreshold)

	ixs, err := c.GetSwapInstructions(context.Background(), SwapRequest{
		Quote:                   quote,
		User:                    consts.SystemProgram,
		DestinationTokenAccount: consts.WSOLMint,
	})
	require.NoError(t, err)
	assert.Empty(t, ixs.ComputeBudgetInstructions)
	require.Len(t, ixs.SetupInstructions, 1)
	assert.Nil(t, ixs.CleanupInstruction)
	assert.Equal(t, consts.JupiterV6Program[:], ixs.SwapInstruction.ProgramID[:])
	assert.Equal(t, []byte{1, 2, 3}, ixs.SwapInstruction.Data)
	require.Len(t, ixs.SwapInstruction.Accounts, 2)
	assert.True(t, ixs.SwapInstruction.Accounts[1].IsSigner)
	assert.Equal(t, []byte(consts.ComputeBudgetProgram[:]), []byte(ixs.AddressLookupTableAddresses[0][:]))
}

func TestHttpError(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := NewClient(srv.URL+"/broken/", srv.Client())

	_, err := c.GetQuote(context.Background(), QuoteParams{InputMint: consts.USDCMint, OutputMint: consts.WSOLMint})
	assert.ErrorContains(t, err, "received http status 400")

	_, err = c.GetSwapInstructions(context.Background(), SwapRequest{})
	assert.ErrorContains(t, err, "quote is required")
}

func TestToSdkInstruction(t *testing.T) {
	ix := &jsonInstruction{ProgramId: "not base58 0OIl", Data: ""}
	_, err := ix.ToSdkInstruction()
	assert.Error(t, err)

	ix = &jsonInstruction{ProgramId: consts.JupiterV6ProgramStr, Data: "!!"}
	_, err = ix.ToSdkInstruction()
	assert.ErrorContains(t, err, "base64")
}
