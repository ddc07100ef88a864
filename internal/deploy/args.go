package deploy

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/compose-network/deploykit/internal/identifier"
	"github.com/compose-network/deploykit/internal/units"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const deployerRef = "$deployer"

// addressResolver turns an address expression into an address:
//
//	0x…       literal address
//	$deployer the signer of the run
//	@Key, Key address-store entry
type addressResolver func(expr string) (common.Address, error)

// convertArgs converts manifest literals to the Go values abi.Pack expects for inputs.
func convertArgs(inputs abi.Arguments, raw []string, resolve addressResolver) ([]any, error) {
	if len(raw) != len(inputs) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(inputs), len(raw))
	}

	values := make([]any, len(raw))
	for i, input := range inputs {
		value, err := convertArg(input.Type, raw[i], resolve)
		if err != nil {
			name := input.Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			return nil, fmt.Errorf("argument %s (%s): %w", name, input.Type.String(), err)
		}
		values[i] = value
	}

	return values, nil
}

func convertArg(typ abi.Type, raw string, resolve addressResolver) (any, error) {
	raw = strings.TrimSpace(raw)

	switch typ.T {
	case abi.AddressTy:
		return resolve(raw)
	case abi.BoolTy:
		return strconv.ParseBool(raw)
	case abi.StringTy:
		return raw, nil
	case abi.IntTy, abi.UintTy:
		return convertInt(typ, raw)
	case abi.BytesTy:
		return hexutil.Decode(raw)
	case abi.FixedBytesTy:
		return convertFixedBytes(typ, raw)
	case abi.SliceTy:
		return convertSlice(typ, raw, resolve)
	default:
		return nil, fmt.Errorf("unsupported argument type %s", typ.String())
	}
}

// convertInt accepts decimal or 0x integers and amounts with a unit suffix
// ("1.5 ether", "20 gwei").
func convertInt(typ abi.Type, raw string) (any, error) {
	value, err := parseInt(raw)
	if err != nil {
		return nil, err
	}

	if typ.T == abi.UintTy && value.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s for unsigned type", raw)
	}

	if typ.T == abi.IntTy {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(typ.Size-1))
		if value.Cmp(new(big.Int).Neg(limit)) < 0 || value.Cmp(limit) >= 0 {
			return nil, fmt.Errorf("value %s overflows %s", raw, typ.String())
		}
	} else if value.BitLen() > typ.Size {
		return nil, fmt.Errorf("value %s overflows %s", raw, typ.String())
	}

	if typ.Size > 64 {
		return value, nil
	}

	// abi.Pack wants the exact sized Go type for small integers
	out := reflect.New(typ.GetType()).Elem()
	if typ.T == abi.UintTy {
		out.SetUint(value.Uint64())
	} else {
		out.SetInt(value.Int64())
	}

	return out.Interface(), nil
}

func parseInt(raw string) (*big.Int, error) {
	if amount, unit, ok := strings.Cut(raw, " "); ok {
		switch strings.ToLower(strings.TrimSpace(unit)) {
		case "ether":
			return signedAmount(amount, units.ParseEther)
		case "gwei":
			return signedAmount(amount, units.ParseGwei)
		case "wei":
			raw = amount
		default:
			return nil, fmt.Errorf("unknown unit %q", unit)
		}
	}

	value, ok := new(big.Int).SetString(strings.ReplaceAll(raw, "_", ""), 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", raw)
	}

	return value, nil
}

// signedAmount lets int arguments carry a unit with a leading minus.
func signedAmount(amount string, parse func(string) (*big.Int, error)) (*big.Int, error) {
	negative := strings.HasPrefix(amount, "-")
	value, err := parse(strings.TrimPrefix(amount, "-"))
	if err != nil {
		return nil, err
	}
	if negative {
		value.Neg(value)
	}
	return value, nil
}

// convertFixedBytes takes 0x hex of the exact width, or for bytes32 a
// registry identifier name.
func convertFixedBytes(typ abi.Type, raw string) (any, error) {
	out := reflect.New(typ.GetType()).Elem()

	if strings.HasPrefix(raw, "0x") {
		data, err := hexutil.Decode(raw)
		if err != nil {
			return nil, err
		}
		if len(data) != typ.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", typ.Size, len(data))
		}
		reflect.Copy(out, reflect.ValueOf(data))
		return out.Interface(), nil
	}

	if typ.Size != identifier.Size {
		return nil, fmt.Errorf("%s needs a 0x value", typ.String())
	}

	id, err := identifier.Encode(raw)
	if err != nil {
		return nil, err
	}

	return id, nil
}

// convertSlice splits a comma separated list and converts every element.
func convertSlice(typ abi.Type, raw string, resolve addressResolver) (any, error) {
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")

	out := reflect.MakeSlice(typ.GetType(), 0, 0)
	if strings.TrimSpace(raw) == "" {
		return out.Interface(), nil
	}

	for i, item := range strings.Split(raw, ",") {
		value, err := convertArg(*typ.Elem, item, resolve)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = reflect.Append(out, reflect.ValueOf(value))
	}

	return out.Interface(), nil
}
