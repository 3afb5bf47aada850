package api

import (
	"errors"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// ReasonKey is the field of the google.protobuf.Struct error detail that
// names the error kind, e.g. "SPLIT_MISMATCH".
const ReasonKey = "reason"

// NewReasonDetail builds the error detail carrying reason.
func NewReasonDetail(reason string) (*connect.ErrorDetail, error) {
	s, err := structpb.NewStruct(map[string]any{ReasonKey: reason})
	if err != nil {
		return nil, err
	}
	return connect.NewErrorDetail(s)
}

// ErrorReason returns the reason detail of a Connect error, or "" when err
// carries none.
func ErrorReason(err error) string {
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		return ""
	}
	for _, detail := range connectErr.Details() {
		msg, derr := detail.Value()
		if derr != nil {
			continue
		}
		if s, ok := msg.(*structpb.Struct); ok {
			if v, ok := s.GetFields()[ReasonKey]; ok {
				return v.GetStringValue()
			}
		}
	}
	return ""
}
