package quality

// FailureReason identifies why an image was rejected by the gate.
type FailureReason string

const (
	ReasonTooBlurry          FailureReason = "too_blurry"
	ReasonTooDark            FailureReason = "too_dark"
	ReasonTooBright          FailureReason = "too_bright"
	ReasonResolutionTooSmall FailureReason = "resolution_too_small"
	ReasonInsufficientRoad   FailureReason = "insufficient_road_surface"
	ReasonFileNotFound       FailureReason = "file_not_found"
	ReasonProcessingError    FailureReason = "processing_error"
)

var reasonMessages = map[FailureReason]string{
	ReasonTooBlurry:          "image is too blurry for analysis",
	ReasonTooDark:            "image is too dark (underexposed)",
	ReasonTooBright:          "image is too bright (overexposed)",
	ReasonResolutionTooSmall: "image resolution is too small",
	ReasonInsufficientRoad:   "insufficient road surface visible in image",
	ReasonFileNotFound:       "image file not found",
	ReasonProcessingError:    "error occurred during image processing",
}

// Message returns the human-readable description of the failure reason.
func (r FailureReason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	return string(r)
}
