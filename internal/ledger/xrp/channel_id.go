package xrp

import (
	"crypto/sha512"

	addresscodec "github.com/Peersyst/xrpl-go/address-codec"
	"github.com/Peersyst/xrpl-go/xrpl/transaction/types"

	"gitlab.com/warrant1/connector/internal/proof"
)

// payChannelHashPrefix is rippled's single-byte ledger-object-space prefix
// for PayChannel entries ('x' = 0x78), used when deriving a channel's
// ledger-entry index from the transaction that created it.
var payChannelHashPrefix = []byte{'x'}

// ComputeChannelID reproduces rippled's Keylet::channel formula:
// SHA512Half(payChannelHashPrefix || AccountID(account) || AccountID(dest) ||
// sequence_be32). This lets the adapter recover the channel id assigned by
// a PaymentChannelCreate transaction without a follow-up ledger query.
func ComputeChannelID(account, destination types.Address, sequence uint32) proof.ChannelID {
	_, accountID, _ := addresscodec.DecodeClassicAddressToAccountID(account.String())
	_, destID, _ := addresscodec.DecodeClassicAddressToAccountID(destination.String())

	buf := make([]byte, 0, 1+20+20+4)
	buf = append(buf, payChannelHashPrefix...)
	buf = append(buf, accountID...)
	buf = append(buf, destID...)
	buf = append(buf, byte(sequence>>24), byte(sequence>>16), byte(sequence>>8), byte(sequence))

	full := sha512.Sum512(buf)
	var channelID proof.ChannelID
	copy(channelID[:], full[:32])
	return channelID
}
