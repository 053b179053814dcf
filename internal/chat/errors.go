package chat

import "errors"

var (
	// ErrMediaUploadFailed — the media upload before a send failed; the send
	// was aborted with no state mutation.
	ErrMediaUploadFailed = errors.New("media upload failed")
	// ErrSendFailed — the message row creation failed after any upload
	// succeeded. The optimistic entry stays visible, marked failed; uploaded
	// media is orphaned and not cleaned up here.
	ErrSendFailed = errors.New("send failed")
)

// State is the client-side lifecycle of a conversation view. READY is
// re-entered on every remote event or optimistic send; there is no terminal
// state while the subscription lives.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "empty"
	}
}
