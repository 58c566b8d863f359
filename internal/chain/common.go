package chain

import (
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

func callMsg(from, to common.Address, input []byte) ethereum.CallMsg {
	return ethereum.CallMsg{
		From: from,
		To:   &to,
		Data: input,
	}
}
