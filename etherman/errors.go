package etherman

import (
	"errors"
	"strings"

	"github.com/TEENet-io/watchtower-go/chainadapter"
	"github.com/ethereum/go-ethereum/rpc"
)

// rejections the node reports for a call that can never succeed as sent
var revertMarkers = []string{
	"execution reverted",
	"revert",
	"invalid opcode",
	"insufficient funds",
}

// classifySendError maps a failure to build or send a transaction.
// Nothing reached the chain, so only reverts are final.
func classifySendError(call chainadapter.CallKind, err error) error {
	var se *chainadapter.SubmitError
	if errors.As(err, &se) {
		return err
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return chainadapter.Rejected(call, "", err)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range revertMarkers {
		if strings.Contains(msg, marker) {
			return chainadapter.Rejected(call, "", err)
		}
	}
	return chainadapter.Transient(call, err)
}
