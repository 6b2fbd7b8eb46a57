package domain

// CheckInTokenType is the discriminator carried by every attendance QR payload.
const CheckInTokenType = "event_attendance"

// CheckInToken is the payload encoded in an attendance QR code.
type CheckInToken struct {
	Type      string `json:"type"`
	EventID   string `json:"event_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	CheckInID string `json:"check_in_id"`
	IssuedAt  int64  `json:"issued_at"`
	Signature string `json:"sig,omitempty"`
}

// IssuedCheckIn is a freshly minted check-in token and its preview image.
type IssuedCheckIn struct {
	CheckInID string
	Payload   string
	Image     []byte
}

// ScannedCheckIn is what a validated scan resolves to.
type ScannedCheckIn struct {
	UserID    string
	CheckInID string
}

// CheckInCodec mints, validates and renders attendance QR tokens.
type CheckInCodec interface {
	Issue(eventID, userID, userName string) (*IssuedCheckIn, error)
	Decode(rawScannedText, expectedEventID string) (*ScannedCheckIn, error)
	RenderForDownload(payload string) ([]byte, error)
	// ReadImage extracts the text of the QR code contained in a PNG or JPEG image.
	ReadImage(image []byte) (string, error)
}
