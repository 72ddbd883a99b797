package v3

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"mercator-hq/saturn/pkg/protocol"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{Sort: cbor.SortCanonical}.EncMode()
	if err != nil {
		panic(err)
	}
	// Array ceiling follows the largest legal batch (a full file list);
	// map and nesting ceilings match the structural validator.
	decMode, err = cbor.DecOptions{
		MaxArrayElements: protocol.MaxFilesPerMessage,
		MaxMapPairs:      maxCBORMapLen,
		MaxNestedLevels:  maxCBORNesting,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// EncodeFrame serializes a wire frame.
func EncodeFrame(f *WireFrame) ([]byte, error) {
	buf, err := encMode.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf, nil
}

// DecodeFrame parses one wire frame. Structural validation runs first;
// unknown frame types and unknown map keys are preserved, not rejected.
func DecodeFrame(buf []byte) (*WireFrame, error) {
	if err := ValidateCBOR(buf); err != nil {
		return nil, err
	}
	var f WireFrame
	if err := decMode.Unmarshal(buf, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &f, nil
}

// EncodePayload serializes a packet body.
func EncodePayload(p *RpcPayload) ([]byte, error) {
	buf, err := encMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return buf, nil
}

// DecodePayload parses a packet body after structural validation.
func DecodePayload(buf []byte) (*RpcPayload, error) {
	if err := ValidateCBOR(buf); err != nil {
		return nil, err
	}
	var p RpcPayload
	if err := decMode.Unmarshal(buf, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &p, nil
}
