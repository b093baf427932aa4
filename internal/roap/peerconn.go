package roap

import "context"

// DescriptionType distinguishes an offer description from an answer
// description in calls to SetLocalDescription/SetRemoteDescription.
type DescriptionType int

const (
	DescriptionOffer DescriptionType = iota
	DescriptionAnswer
)

func (t DescriptionType) String() string {
	if t == DescriptionAnswer {
		return "answer"
	}
	return "offer"
}

// PeerConnection is the browser/media-stack contract the coordinator drives
// (spec §6). Within one exchange the coordinator waits for each primitive
// to settle before calling the next. After a restart (spec §4.2) it issues
// a fresh CreateOffer while the abandoned call may still be pending, and
// discards that stale call's result — implementations are not required to
// support cancellation, only to eventually settle.
type PeerConnection interface {
	CreateOffer(ctx context.Context) (sdp string, err error)
	CreateAnswer(ctx context.Context) (sdp string, err error)
	SetLocalDescription(ctx context.Context, typ DescriptionType, sdp string) error
	SetRemoteDescription(ctx context.Context, typ DescriptionType, sdp string) error
	LocalSDP() string
}

// Munger rewrites an SDP blob after every successful SetLocalDescription,
// before the result is placed on the wire (spec §4.4).
type Munger func(ctx context.Context, sdp string) (string, error)

// PassthroughMunger returns sdp unmodified. It is the default Munger used
// when a Coordinator is built without one.
func PassthroughMunger(_ context.Context, sdp string) (string, error) {
	return sdp, nil
}
