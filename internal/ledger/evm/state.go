package evm

import (
	"encoding/hex"
	"math/big"
	"strings"

	"gitlab.com/warrant1/connector/internal/errs"
	"gitlab.com/warrant1/connector/internal/ledger"
)

// decodeChannelState decodes the ABI-encoded return value of
// channelState(bytes32): four uint256 words (total deposit, total
// withdrawn, cumulative transferred, latest nonce) followed by a uint8
// phase tag, each padded to a 32-byte word.
func decodeChannelState(hexResult string) (ledger.OnChainChannelState, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(hexResult, "0x"))
	if err != nil {
		return ledger.OnChainChannelState{}, errs.Wrap(errs.KindLedgerUnavailable, "decode channel state", err)
	}
	const wordLen = 32
	if len(raw) < wordLen*5 {
		return ledger.OnChainChannelState{}, errs.New(errs.KindLedgerUnavailable, "channel state: short response")
	}

	word := func(i int) *big.Int { return new(big.Int).SetBytes(raw[i*wordLen : (i+1)*wordLen]) }

	phase := word(4).Uint64()
	return ledger.OnChainChannelState{
		TotalDeposit:          word(0),
		TotalWithdrawn:        word(1),
		CumulativeTransferred: word(2),
		LatestNonce:           word(3),
		Phase:                 phaseFromTag(phase),
	}, nil
}

func phaseFromTag(tag uint64) ledger.SettlementPhase {
	switch tag {
	case 1:
		return ledger.PhaseClosedChallenge
	case 2:
		return ledger.PhaseSettled
	default:
		return ledger.PhaseOpen
	}
}
