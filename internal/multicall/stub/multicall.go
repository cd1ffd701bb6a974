package stub

import (
	"context"
	"fmt"

	"autopay-tips/internal/ethrpc"
	ethstub "autopay-tips/internal/ethrpc/stub"
	"autopay-tips/internal/multicall"
)

// Handler emulates Multicall2 tryAggregate on top of client: each inner call
// is executed through client.Call, reverts become Success=false entries and,
// when requireSuccess is set, revert the whole aggregate.
func Handler(client ethrpc.Client) ethstub.Handler {
	return func(data []byte) ([]byte, error) {
		method, err := multicall.ABI.MethodById(data)
		if err != nil {
			return nil, fmt.Errorf("unknown selector: %w", err)
		}
		if method.Name != "tryAggregate" {
			return nil, fmt.Errorf("unsupported method %s", method.Name)
		}

		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, fmt.Errorf("unpack tryAggregate: %w", err)
		}

		var in struct {
			RequireSuccess bool
			Calls          []multicall.Request
		}
		if err := method.Inputs.Copy(&in, args); err != nil {
			return nil, fmt.Errorf("copy tryAggregate args: %w", err)
		}

		responses := make([]multicall.Response, len(in.Calls))
		for i, req := range in.Calls {
			out, err := client.Call(context.Background(), req.Target, req.CallData)
			if err != nil {
				if in.RequireSuccess {
					return nil, fmt.Errorf("Multicall2 aggregate: call failed")
				}
				continue
			}
			responses[i] = multicall.Response{Success: true, ReturnData: out}
		}

		return method.Outputs.Pack(responses)
	}
}
