package domain

import "errors"

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrPeerNotFound      = errors.New("peer not found")
	ErrSlotEmpty         = errors.New("opposite role slot is empty")
	ErrMalformedMessage  = errors.New("malformed signaling message")
	ErrDetectorNotLoaded = errors.New("detector not loaded")
	ErrFrameDecodeFailed = errors.New("frame decode failed")
	ErrFrameResizeFailed = errors.New("frame resize failed")
	ErrInferenceFailed   = errors.New("detector inference failed")
	ErrThrottled         = errors.New("frame rejected by per-room throttle")

	ErrInvalidDispatchMode = errors.New("dispatch mode must be local, offload or auto")
)
