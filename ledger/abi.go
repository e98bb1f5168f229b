package ledger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Getter and transaction surface of the GetMeChai contract. Public mapping
// getters return flat output lists, not tuples.
const contractABIJSON = `[
  {"type":"function","name":"creators","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"wallet","type":"address"},{"name":"name","type":"string"},{"name":"subscriptionPrice","type":"uint256"},{"name":"isRegistered","type":"bool"},{"name":"postIds","type":"uint256[]"}]},
  {"type":"function","name":"posts","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"creator","type":"address"},{"name":"ipfsHash","type":"string"},{"name":"isFree","type":"bool"},{"name":"contributions","type":"uint256"}]},
  {"type":"function","name":"subscriptions","stateMutability":"view","inputs":[{"name":"","type":"address"},{"name":"","type":"address"}],"outputs":[{"name":"expiry","type":"uint256"},{"name":"autoPayBalance","type":"uint256"}]},
  {"type":"function","name":"creatorEarnings","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"isSubscribed","stateMutability":"view","inputs":[{"name":"subscriber","type":"address"},{"name":"creator","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"registerCreator","stateMutability":"nonpayable","inputs":[{"name":"name","type":"string"},{"name":"subscriptionPrice","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"addPost","stateMutability":"nonpayable","inputs":[{"name":"ipfsHash","type":"string"},{"name":"isFree","type":"bool"}],"outputs":[]},
  {"type":"function","name":"contribute","stateMutability":"payable","inputs":[{"name":"postId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"subscribe","stateMutability":"payable","inputs":[{"name":"creator","type":"address"}],"outputs":[]},
  {"type":"function","name":"depositAutoPay","stateMutability":"payable","inputs":[{"name":"creator","type":"address"}],"outputs":[]},
  {"type":"function","name":"renewSubscription","stateMutability":"nonpayable","inputs":[{"name":"creator","type":"address"}],"outputs":[]},
  {"type":"function","name":"withdrawEarnings","stateMutability":"nonpayable","inputs":[],"outputs":[]}
]`

var (
	abiOnce     sync.Once
	parsedABI   abi.ABI
	abiParseErr error
)

func contractABI() (abi.ABI, error) {
	abiOnce.Do(func() {
		parsedABI, abiParseErr = abi.JSON(strings.NewReader(contractABIJSON))
		if abiParseErr != nil {
			abiParseErr = fmt.Errorf("parse contract abi: %w", abiParseErr)
		}
	})
	return parsedABI, abiParseErr
}
