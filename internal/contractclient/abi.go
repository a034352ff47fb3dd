package contractclient

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// exchangeABIJSON describes the subset of the exchange contract's interface
// the core consumes (spec.md §4.4). The proxy contract mirrors the same
// write selectors and is bound with this same ABI when tunneling through
// it (spec.md: "the wallet calls the proxy, which forwards the allowlisted
// selector to the exchange").
const exchangeABIJSON = `[
	{"name":"getAccountById","type":"function","stateMutability":"view",
	 "inputs":[{"name":"accountId","type":"uint256"}],
	 "outputs":[{"name":"addr","type":"address"},{"name":"balance","type":"uint256"},{"name":"locked","type":"uint256"}]},
	{"name":"getAccountByAddress","type":"function","stateMutability":"view",
	 "inputs":[{"name":"addr","type":"address"}],
	 "outputs":[{"name":"accountId","type":"uint256"},{"name":"balance","type":"uint256"},{"name":"locked","type":"uint256"}]},
	{"name":"getPerpetualInfo","type":"function","stateMutability":"view",
	 "inputs":[{"name":"perpId","type":"uint256"}],
	 "outputs":[
		{"name":"basePricePNS","type":"int256"},
		{"name":"markPNS","type":"int256"},
		{"name":"oraclePNS","type":"int256"},
		{"name":"markTimestamp","type":"uint256"},
		{"name":"fundingRatePer100k","type":"int256"},
		{"name":"openInterestLongLNS","type":"uint256"},
		{"name":"openInterestShortLNS","type":"uint256"},
		{"name":"maxBidPriceONS","type":"int256"},
		{"name":"maxAskPriceONS","type":"int256"},
		{"name":"paused","type":"bool"}
	 ]},
	{"name":"getPosition","type":"function","stateMutability":"view",
	 "inputs":[{"name":"perpId","type":"uint256"},{"name":"accountId","type":"uint256"}],
	 "outputs":[
		{"name":"positionType","type":"uint8"},
		{"name":"entryPricePNS","type":"int256"},
		{"name":"lotLNS","type":"uint256"},
		{"name":"depositCNS","type":"uint256"},
		{"name":"markPNS","type":"int256"},
		{"name":"markPriceValid","type":"bool"}
	 ]},
	{"name":"getOpenOrders","type":"function","stateMutability":"view",
	 "inputs":[{"name":"perpId","type":"uint256"},{"name":"accountId","type":"uint256"}],
	 "outputs":[{"name":"orderIds","type":"uint256[]"},{"name":"typeCodes","type":"uint8[]"},{"name":"pricesPNS","type":"int256[]"},{"name":"lotsLNS","type":"uint256[]"}]},
	{"name":"getVolumeAtBookPrice","type":"function","stateMutability":"view",
	 "inputs":[{"name":"perpId","type":"uint256"},{"name":"priceONS","type":"int256"}],
	 "outputs":[{"name":"volumeLNS","type":"uint256"}]},
	{"name":"getNextPriceBelowWithOrders","type":"function","stateMutability":"view",
	 "inputs":[{"name":"perpId","type":"uint256"},{"name":"priceONS","type":"int256"}],
	 "outputs":[{"name":"nextONS","type":"int256"}]},
	{"name":"getTakerFee","type":"function","stateMutability":"view",
	 "inputs":[{"name":"perpId","type":"uint256"}],
	 "outputs":[{"name":"feeBps","type":"uint256"}]},
	{"name":"getMakerFee","type":"function","stateMutability":"view",
	 "inputs":[{"name":"perpId","type":"uint256"}],
	 "outputs":[{"name":"feeBps","type":"uint256"}]},
	{"name":"execOrder","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"desc","type":"tuple","components":[
		{"name":"descriptorId","type":"uint64"},
		{"name":"perpetualId","type":"uint256"},
		{"name":"typeCode","type":"uint8"},
		{"name":"orderId","type":"uint256"},
		{"name":"pricePNS","type":"int256"},
		{"name":"lotLNS","type":"uint256"},
		{"name":"expiryBlock","type":"uint64"},
		{"name":"postOnly","type":"bool"},
		{"name":"fillOrKill","type":"bool"},
		{"name":"immediateOrCancel","type":"bool"},
		{"name":"maxMatches","type":"uint32"},
		{"name":"leverageHundredths","type":"int64"},
		{"name":"lastExecutionBlock","type":"uint64"},
		{"name":"amountCNS","type":"uint256"}
	 ]}],
	 "outputs":[{"name":"orderId","type":"uint256"}]},
	{"name":"execOrders","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"descs","type":"tuple[]","components":[
		{"name":"descriptorId","type":"uint64"},
		{"name":"perpetualId","type":"uint256"},
		{"name":"typeCode","type":"uint8"},
		{"name":"orderId","type":"uint256"},
		{"name":"pricePNS","type":"int256"},
		{"name":"lotLNS","type":"uint256"},
		{"name":"expiryBlock","type":"uint64"},
		{"name":"postOnly","type":"bool"},
		{"name":"fillOrKill","type":"bool"},
		{"name":"immediateOrCancel","type":"bool"},
		{"name":"maxMatches","type":"uint32"},
		{"name":"leverageHundredths","type":"int64"},
		{"name":"lastExecutionBlock","type":"uint64"},
		{"name":"amountCNS","type":"uint256"}
	 ]},{"name":"revertOnFail","type":"bool"}],
	 "outputs":[{"name":"orderIds","type":"uint256[]"}]},
	{"name":"depositCollateral","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"accountId","type":"uint256"},{"name":"amountCNS","type":"uint256"}],"outputs":[]},
	{"name":"increasePositionCollateral","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"perpId","type":"uint256"},{"name":"accountId","type":"uint256"},{"name":"amountCNS","type":"uint256"}],"outputs":[]},
	{"name":"requestDecreasePositionCollateral","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"perpId","type":"uint256"},{"name":"accountId","type":"uint256"},{"name":"amountCNS","type":"uint256"}],"outputs":[]},
	{"name":"decreasePositionCollateral","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"perpId","type":"uint256"},{"name":"amountCNS","type":"uint256"},{"name":"clampToMaximum","type":"bool"}],"outputs":[]}
]`

// parsedExchangeABI is parsed once at package init, mirroring the teacher's
// onchain package initializing its ABIs in an init func.
var parsedExchangeABI abi.ABI

func init() {
	var err error
	parsedExchangeABI, err = abi.JSON(strings.NewReader(exchangeABIJSON))
	if err != nil {
		panic("contractclient: exchange abi parse: " + err.Error())
	}
}
