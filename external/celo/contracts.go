package celo

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// RegistryAddress is the fixed address of the core contract registry.
var RegistryAddress = common.HexToAddress("0x000000000000000000000000000000000000ce10")

const electionRegistryID = "Election"

const registryABIJson = `[
  {"type":"function","name":"getAddressForString","stateMutability":"view",
   "inputs":[{"name":"identifier","type":"string"}],
   "outputs":[{"name":"","type":"address"}]}
]`

const electionABIJson = `[
  {"type":"function","name":"getCurrentValidatorSigners","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"address[]"}]},
  {"type":"function","name":"getEpochSize","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"uint256"}]}
]`

var (
	registryABI = mustParseABI(registryABIJson)
	electionABI = mustParseABI(electionABIJson)
)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(errors.Wrap(err, "parsing contract abi"))
	}
	return parsed
}
