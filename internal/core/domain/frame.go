package domain

// FrameRequest is produced on the capture peer and transported over the
// peer-to-peer data channel, optionally forwarded to the Inference Engine.
type FrameRequest struct {
	Room        RoomID `json:"room"`
	FrameID     string `json:"frame_id"`
	CaptureTS   int64  `json:"capture_ts"` // milliseconds, monotonic within the session
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageData   string `json:"imageData"` // data-URI-prefixed base64 JPEG, or raw base64
}

// Detection is a scored, labeled, normalized bounding box over the input
// frame. Coordinates are normalized to the detector input frame, each in
// [0,1], with Xmax > Xmin and Ymax > Ymin.
type Detection struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Xmin  float64 `json:"xmin"`
	Ymin  float64 `json:"ymin"`
	Xmax  float64 `json:"xmax"`
	Ymax  float64 `json:"ymax"`
}

// DetectionResult echoes the originating request's identity and carries the
// engine's ingress/egress timestamps alongside the surviving detections.
type DetectionResult struct {
	FrameID      string      `json:"frame_id"`
	CaptureTS    int64       `json:"capture_ts"`
	RecvTS       int64       `json:"recv_ts"`
	InferenceTS  int64       `json:"inference_ts"`
	Detections   []Detection `json:"detections"`
}

// Candidate is a raw detector output row before score filtering, coordinate
// normalization, and non-maximum suppression.
type Candidate struct {
	X0, Y0, X1, Y1 float64
	Score          float64
	ClassID        int
}
