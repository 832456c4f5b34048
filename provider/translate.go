package provider

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/ipfs-force-community/sophon-connect/types"
)

// PairingParams encodes req.Params for the pairing transport. personal_sign and
// eth_signTypedData_v4 are positional and ordered differently; every other method is
// sent as given.
func PairingParams(req *types.Request) (json.RawMessage, error) {
	if !req.IsSigning() {
		return req.Params, nil
	}
	address, message, err := SigningArgs(req)
	if err != nil {
		return nil, err
	}
	if req.Method == types.MethodPersonalSign {
		return json.Marshal([]string{message, address})
	}
	return json.Marshal([]string{address, message})
}

// Unsupported is the error returned for a method a transport cannot carry.
func Unsupported(kind types.ProviderKind, method string) error {
	return errors.Wrapf(types.ErrNotImplemented, "%s does not support %s", kind, method)
}

// SigningArgs returns address and message for a signing request, falling back to the
// params array when the caller used NewRequest.
func SigningArgs(req *types.Request) (address, message string, err error) {
	if req.Address != "" || req.Message != "" {
		return req.Address, req.Message, nil
	}
	var params []string
	if err := json.Unmarshal(req.Params, &params); err != nil || len(params) != 2 {
		return "", "", errors.Errorf("%s expects two string params", req.Method)
	}
	if req.Method == types.MethodPersonalSign {
		return params[1], params[0], nil
	}
	return params[0], params[1], nil
}
