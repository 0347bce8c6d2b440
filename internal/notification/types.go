package notification

// Request is the payload for the facade's notify endpoint. Tag is the
// dedupe key: the facade replaces an undelivered notification carrying the
// same tag instead of stacking a duplicate.
type Request struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag,omitempty"`
}

// Response is the facade's reply to a notify request.
type Response struct {
	Success        bool   `json:"success"`
	NotificationID string `json:"notificationId,omitempty"`
	Error          string `json:"error,omitempty"`
}

// PermissionResponse is the facade's reply to a permission query. Granted is
// a state, not an error: callers decide per call site whether a denial is
// surfaced or silently skipped.
type PermissionResponse struct {
	Granted bool `json:"granted"`
}
