package krpc

import (
	"fmt"

	"github.com/anacrolix/dht/bencode"
)

// Error codes per BEP-5 and the BEP-44 extension.
const (
	ErrorCodeGenericError          = 201
	ErrorCodeServerError           = 202
	ErrorCodeProtocolError         = 203
	ErrorCodeMethodUnknown         = 204
	ErrorCodeMessageTooBig         = 205
	ErrorCodeInvalidSignature      = 206
	ErrorCodeCASMismatch           = 301
	ErrorCodeSequenceNumberLessThanCurrent = 302
)

// Error is the `e` list: [code, message].
type Error struct {
	Code int
	Msg  string
}

func (e Error) Error() string {
	return fmt.Sprintf("krpc error %d: %s", e.Code, e.Msg)
}

func (e Error) MarshalBencode() ([]byte, error) {
	return bencode.Marshal([]interface{}{e.Code, e.Msg})
}

func (e *Error) UnmarshalBencode(b []byte) error {
	var tuple []interface{}
	if err := bencode.Unmarshal(b, &tuple); err != nil {
		return err
	}
	if len(tuple) > 0 {
		if n, ok := tuple[0].(int64); ok {
			e.Code = int(n)
		}
	}
	if len(tuple) > 1 {
		if s, ok := tuple[1].(string); ok {
			e.Msg = s
		}
	}
	return nil
}

var (
	ErrorMethodUnknown  = Error{Code: ErrorCodeMethodUnknown, Msg: "method unknown"}
	ErrorInvalidToken   = Error{Code: ErrorCodeProtocolError, Msg: "invalid token"}
	ErrorMissingArgs    = Error{Code: ErrorCodeProtocolError, Msg: "missing required argument"}
	ErrorInvalidSig     = Error{Code: ErrorCodeInvalidSignature, Msg: "invalid signature"}
	ErrorCASMismatch    = Error{Code: ErrorCodeCASMismatch, Msg: "CAS hash mismatch"}
	ErrorLowSeq         = Error{Code: ErrorCodeSequenceNumberLessThanCurrent, Msg: "sequence number less than current"}
)
