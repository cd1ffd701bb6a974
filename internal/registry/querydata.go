package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/tidwall/gjson"
)

// SpotPriceType is the query type of asset/currency price queries.
const SpotPriceType = "SpotPrice"

// ErrQueryData is returned when query data cannot be interpreted.
var ErrQueryData = errors.New("invalid query data")

var (
	stringT, _ = abi.NewType("string", "", nil)
	bytesT, _  = abi.NewType("bytes", "", nil)

	// Query data is abi.encode(string queryType, bytes queryParams)
	queryDataArgs = abi.Arguments{{Type: stringT}, {Type: bytesT}}
	// SpotPrice parameters are abi.encode(string asset, string currency)
	spotPriceArgs = abi.Arguments{{Type: stringT}, {Type: stringT}}
)

// EncodeQueryData builds query data from a type name and encoded parameters.
func EncodeQueryData(queryType string, params []byte) ([]byte, error) {
	if params == nil {
		params = []byte{}
	}
	data, err := queryDataArgs.Pack(queryType, params)
	if err != nil {
		return nil, fmt.Errorf("encode query data: %w", err)
	}
	return data, nil
}

// EncodeSpotPrice builds SpotPrice query data. Asset and currency are lowercased.
func EncodeSpotPrice(asset, currency string) ([]byte, error) {
	params, err := spotPriceArgs.Pack(strings.ToLower(asset), strings.ToLower(currency))
	if err != nil {
		return nil, fmt.Errorf("encode spot price params: %w", err)
	}
	return EncodeQueryData(SpotPriceType, params)
}

// DecodeQueryType returns the query type name carried by query data.
//
// Query data that is not (string,bytes) ABI data is read as a literal object
// such as {'type': 'LegacyRequest', 'legacy_id': 1}.
func DecodeQueryType(queryData []byte) (string, error) {
	if len(queryData) == 0 {
		return "", fmt.Errorf("%w: empty", ErrQueryData)
	}

	values, err := queryDataArgs.Unpack(queryData)
	if err == nil && len(values) == 2 {
		if name, ok := values[0].(string); ok && name != "" {
			return name, nil
		}
	}

	literal := strings.ReplaceAll(string(queryData), "'", `"`)
	if !gjson.Valid(literal) {
		return "", fmt.Errorf("%w: neither abi nor literal", ErrQueryData)
	}
	name := gjson.Get(literal, "type")
	if name.Type != gjson.String || name.Str == "" {
		return "", fmt.Errorf("%w: literal without type", ErrQueryData)
	}
	return name.Str, nil
}

// DecodeSpotPrice returns the asset and currency of SpotPrice query data.
func DecodeSpotPrice(queryData []byte) (asset, currency string, err error) {
	values, err := queryDataArgs.Unpack(queryData)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrQueryData, err)
	}
	if name, _ := values[0].(string); name != SpotPriceType {
		return "", "", fmt.Errorf("%w: not a %s query", ErrQueryData, SpotPriceType)
	}
	params, _ := values[1].([]byte)
	pair, err := spotPriceArgs.Unpack(params)
	if err != nil {
		return "", "", fmt.Errorf("%w: spot price params: %v", ErrQueryData, err)
	}
	asset, _ = pair[0].(string)
	currency, _ = pair[1].(string)
	return asset, currency, nil
}
