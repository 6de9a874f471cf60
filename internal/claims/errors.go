// Package claims implements the claim-chat rules: who may talk about an item,
// how rooms come into existence and how approval unlocks contact details.
package claims

import "errors"

var (
	ErrUnauthenticated    = errors.New("claims: unauthenticated")
	ErrNotFound           = errors.New("claims: not found")
	ErrForbidden          = errors.New("claims: forbidden")
	ErrRoomCreationFailed = errors.New("claims: room creation failed")
	ErrSendFailed         = errors.New("claims: send failed")
	ErrLoadFailed         = errors.New("claims: load failed")
	ErrEmptyBody          = errors.New("claims: message body is empty")
)
