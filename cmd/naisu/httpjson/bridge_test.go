package httpjson

import (
	"net/http"
	"testing"

	"github.com/naisu-labs/naisu/clients/cctp"
	"github.com/naisu-labs/naisu/clients/lifi"
	"github.com/naisu-labs/naisu/clients/wormhole"
	"github.com/naisu-labs/naisu/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBridge(t *testing.T) {
	t.Run("Status", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		ts := newTestSuite(t)

		ts.Database.On("GetIntent", mock.Anything, validID).Return(sampleIntent(), nil)

		// ACT
		res, err := ts.Client.Get().AddPath("/api/v1/bridge/status").AddQuery("intent_id", validID).Do()

		// ASSERT
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assertResponseContainsJSON(t, res, "data.source_chain", "base_sepolia")
		assertResponseContainsJSON(t, res, "data.dest_chain", "sui")
		assertResponseContainsJSON(t, res, "data.amount", "2.5")
		assertResponseContainsJSON(t, res, "data.nonce", "4242")
	})

	t.Run("Status without usdc amount", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		ts := newTestSuite(t)

		intent := sampleIntent()
		intent.Direction = models.DirectionSuiToEvm
		intent.USDCAmount = ""

		ts.Database.On("GetIntent", mock.Anything, validID).Return(intent, nil)

		// ACT
		res, err := ts.Client.Get().AddPath("/api/v1/bridge/status").AddQuery("intent_id", validID).Do()

		// ASSERT
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assertResponseContainsJSON(t, res, "data.source_chain", "sui")
		assertResponseContainsJSON(t, res, "data.amount", "0")
	})

	t.Run("Status requires an intent", func(t *testing.T) {
		t.Parallel()

		ts := newTestSuite(t)

		res, err := ts.Client.Get().AddPath("/api/v1/bridge/status").Do()

		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("SuiToEvm", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		ts := newTestSuite(t)

		req := models.SuiToEvmBridgeRequest{
			IntentID:       validID,
			Sender:         validSuiAddr,
			Amount:         "2.5",
			EvmDestination: validEvmAddr,
		}

		// ACT
		res, err := ts.Client.Post().AddPath("/api/v1/bridge/sui-to-evm").JSON(req).Do()

		// ASSERT
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, res.StatusCode, res.String())
		assertResponseContainsJSON(t, res, "data.tx_params.amount", "2500000")
		assertResponseContainsJSON(t, res, "data.tx_params.destination_domain", "6")
		assertResponseContainsJSON(t, res, "data.tx_params.recipient", "0x000000000000000000000000"+validEvmAddr[2:])
		assertResponseContainsJSON(t, res, "data.tx_params.target", cctp.SuiDepositForBurnTarget)
		assertResponseContainsJSON(t, res, "data.summary", "Bridge 2.5 USDC from Sui to Base Sepolia")
		assertResponseContainsJSON(t, res, "message", "Bridge parameters calculated")
	})

	t.Run("SuiToEvm rejects a bad destination", func(t *testing.T) {
		t.Parallel()

		ts := newTestSuite(t)

		req := models.SuiToEvmBridgeRequest{Sender: validSuiAddr, Amount: "1", EvmDestination: "0xnope"}

		res, err := ts.Client.Post().AddPath("/api/v1/bridge/sui-to-evm").JSON(req).Do()

		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("PollAttestation", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name           string
			att            *cctp.Attestation
			err            error
			expectedStatus int
			expectedValue  string
		}{
			{
				name:           "complete",
				att:            &cctp.Attestation{Message: "0xmsg", AttestationSignature: "0xsig"},
				expectedStatus: http.StatusOK,
				expectedValue:  "complete",
			},
			{
				name:           "pending",
				err:            cctp.ErrAttestationTimeout,
				expectedStatus: http.StatusOK,
				expectedValue:  "pending",
			},
			{
				name:           "upstream failure",
				err:            errors.New("iris unavailable"),
				expectedStatus: http.StatusInternalServerError,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				// ARRANGE
				ts := newTestSuite(t)
				ts.Attestation.att, ts.Attestation.err = tt.att, tt.err

				req := models.AttestationRequest{Nonce: "4242", MaxAttempts: 2, IntervalSecs: 1}

				// ACT
				res, err := ts.Client.Post().AddPath("/api/v1/bridge/poll-attestation").JSON(req).Do()

				// ASSERT
				require.NoError(t, err)
				require.Equal(t, tt.expectedStatus, res.StatusCode)

				if tt.expectedValue != "" {
					assertResponseContainsJSON(t, res, "data.status", tt.expectedValue)
					assertResponseContainsJSON(t, res, "data.nonce", "4242")
				}
			})
		}
	})

	t.Run("PollAttestation rejects an interval past the limit", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name         string
			intervalSecs uint64
		}{
			{name: "just over the limit", intervalSecs: maxAttestationIntervalSecs + 1},
			{name: "overflows a duration", intervalSecs: 1 << 62},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				// ARRANGE
				ts := newTestSuite(t)
				req := models.AttestationRequest{Nonce: "4242", MaxAttempts: 2, IntervalSecs: tt.intervalSecs}

				// ACT
				res, err := ts.Client.Post().AddPath("/api/v1/bridge/poll-attestation").JSON(req).Do()

				// ASSERT
				require.NoError(t, err)
				assert.Equal(t, http.StatusBadRequest, res.StatusCode)
				assertResponseContainsJSON(t, res, "success", "false")
			})
		}
	})

	t.Run("Fee", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		ts := newTestSuite(t)

		// ACT
		res, err := ts.Client.Get().AddPath("/api/v1/bridge/fee").AddQuery("amount", "100").Do()

		// ASSERT
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assertResponseContainsJSON(t, res, "data.bridge_fee", "0.1")
		assertResponseContainsJSON(t, res, "data.gas_fee", "0.5")
		assertResponseContainsJSON(t, res, "data.total_fee", "0.6")
		assertResponseContainsJSON(t, res, "data.token", "USDC")
	})

	t.Run("Fee rejects a bad amount", func(t *testing.T) {
		t.Parallel()

		ts := newTestSuite(t)

		res, err := ts.Client.Get().AddPath("/api/v1/bridge/fee").AddQuery("amount", "-1").Do()

		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("LifiStatus", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		ts := newTestSuite(t)
		ts.Lifi.status = &lifi.BridgeStatus{TransactionID: "0xlifi", Status: "DONE"}

		// ACT
		res, err := ts.Client.Get().
			AddPath("/api/v1/bridge/lifi/status").
			AddQuery("tx_hash", "0xabc").
			AddQuery("from_chain", "BAS").
			Do()

		// ASSERT
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assertResponseContainsJSON(t, res, "data.status", "DONE")
	})

	t.Run("VAA", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name           string
			vaas           fakeVAAs
			expectedStatus int
			expectedPath   string
			expectedValue  string
		}{
			{
				name:           "verified",
				vaas:           fakeVAAs{raw: []byte{1}, vaa: &wormhole.VAA{Version: 1, Sequence: 7}},
				expectedStatus: http.StatusOK,
				expectedPath:   "data.verified",
				expectedValue:  "true",
			},
			{
				name: "unverified",
				vaas: fakeVAAs{
					raw:       []byte{1},
					vaa:       &wormhole.VAA{Version: 1, Sequence: 7},
					verifyErr: errors.Wrap(wormhole.ErrNoQuorum, "1 of 13 signatures"),
				},
				expectedStatus: http.StatusOK,
				expectedPath:   "data.error",
				expectedValue:  "quorum",
			},
			{
				name:           "malformed",
				vaas:           fakeVAAs{raw: []byte{1}, verifyErr: errors.Wrap(wormhole.ErrInvalidVAA, "too short")},
				expectedStatus: http.StatusBadRequest,
				expectedPath:   "error",
				expectedValue:  "invalid vaa",
			},
			{
				name:           "not found",
				vaas:           fakeVAAs{getErr: wormhole.ErrVAANotFound},
				expectedStatus: http.StatusNotFound,
				expectedPath:   "success",
				expectedValue:  "false",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				// ARRANGE
				ts := newTestSuite(t)
				*ts.VAAs = tt.vaas

				// ACT
				res, err := ts.Client.Get().AddPath("/api/v1/bridge/vaa/30/0xemitter/7").Do()

				// ASSERT
				require.NoError(t, err)
				require.Equal(t, tt.expectedStatus, res.StatusCode, res.String())
				assertResponseContainsJSON(t, res, tt.expectedPath, tt.expectedValue)
			})
		}
	})
}
