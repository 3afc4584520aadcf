// boxctl is a small operator utility: it derives facility IDs and canonical
// action payloads offline, so a scheduled governance action can be verified
// byte-for-byte before it is submitted.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/boxfi/boxd/internal/vault"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "facility-id":
		fs := flag.NewFlagSet("facility-id", flag.ExitOnError)
		adapter := fs.String("adapter", "", "funding adapter name")
		descriptor := fs.String("descriptor", "", "market descriptor (hex)")
		fs.Parse(os.Args[2:])
		desc, err := hexBytes(*descriptor)
		if err != nil {
			fatal(err)
		}
		fmt.Println(vault.FacilityID(*adapter, desc).Hex())

	case "encode":
		fs := flag.NewFlagSet("encode", flag.ExitOnError)
		action := fs.String("action", "", "timelocked action name")
		token := fs.String("token", "", "token address")
		name := fs.String("name", "", "adapter name")
		adapter := fs.String("adapter", "", "funding adapter name")
		descriptor := fs.String("descriptor", "", "market descriptor (hex)")
		facility := fs.String("facility", "", "facility id")
		value := fs.String("value", "", "decimal value")
		duration := fs.String("duration", "", "duration, e.g. 48h")
		signature := fs.String("signature", "", "timelocked function signature")
		fs.Parse(os.Args[2:])

		payload, err := encode(*action, *token, *name, *adapter, *descriptor, *facility, *value, *duration, *signature)
		if err != nil {
			fatal(err)
		}
		fmt.Println("payload: 0x" + hex.EncodeToString(payload))
		fmt.Println("key:     " + vault.ActionKey(payload).Hex())

	default:
		usage()
	}
}

func encode(action, token, name, adapter, descriptor, facility, value, duration, signature string) ([]byte, error) {
	switch action {
	case "set_max_slippage":
		d, err := decimal.NewFromString(value)
		if err != nil {
			return nil, err
		}
		return vault.EncodeSetMaxSlippage(d), nil
	case "set_epoch_duration":
		d, err := time.ParseDuration(duration)
		if err != nil {
			return nil, err
		}
		return vault.EncodeSetEpochDuration(d), nil
	case "add_token":
		return vault.EncodeAddToken(common.HexToAddress(token)), nil
	case "remove_token":
		return vault.EncodeRemoveToken(common.HexToAddress(token)), nil
	case "add_funding_adapter":
		return vault.EncodeAddFundingAdapter(name), nil
	case "remove_funding_adapter":
		return vault.EncodeRemoveFundingAdapter(name), nil
	case "add_facility":
		desc, err := hexBytes(descriptor)
		if err != nil {
			return nil, err
		}
		return vault.EncodeAddFacility(adapter, desc), nil
	case "remove_facility":
		return vault.EncodeRemoveFacility(common.HexToHash(facility)), nil
	case "bind_collateral":
		return vault.EncodeBindCollateralToken(common.HexToHash(facility), common.HexToAddress(token)), nil
	case "unbind_collateral":
		return vault.EncodeUnbindCollateralToken(common.HexToHash(facility)), nil
	case "bind_debt":
		return vault.EncodeBindDebtToken(common.HexToHash(facility), common.HexToAddress(token)), nil
	case "unbind_debt":
		return vault.EncodeUnbindDebtToken(common.HexToHash(facility)), nil
	case "increase_timelock":
		d, err := time.ParseDuration(duration)
		if err != nil {
			return nil, err
		}
		return vault.EncodeIncreaseTimelock(signature, d), nil
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

func hexBytes(raw string) ([]byte, error) {
	trimmed := strings.TrimPrefix(raw, "0x")
	if trimmed == "" {
		return nil, nil
	}
	return hex.DecodeString(trimmed)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "boxctl:", err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  boxctl facility-id -adapter NAME -descriptor 0xHEX
  boxctl encode -action ACTION [flags]`)
	os.Exit(2)
}
