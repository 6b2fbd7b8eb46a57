// Package qr mints and validates the attendance tokens embedded in check-in QR codes.
package qr

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/makiuchi-d/gozxing"
	zxingqr "github.com/makiuchi-d/gozxing/qrcode"
	skipqr "github.com/skip2/go-qrcode"

	"campushub/internal/domain"
)

// Image sizes in pixels.
const (
	PreviewSize  = 256
	DownloadSize = 1024
)

const (
	// MaxUserNameRunes bounds the display name copied into a token.
	MaxUserNameRunes = 100
	// MaxPayloadBytes keeps every payload within a version 40 code at High recovery.
	MaxPayloadBytes = 1200
)

// Recovery levels tried in order for the printable image.
var downloadLevels = []skipqr.RecoveryLevel{skipqr.High, skipqr.Medium}

type codec struct {
	secret []byte
	now    func() time.Time
	newID  func() string
}

// NewCodec returns a CheckInCodec that signs payloads with HMAC-SHA256 under secret.
func NewCodec(secret string) domain.CheckInCodec {
	return &codec{
		secret: []byte(secret),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

func (c *codec) Issue(eventID, userID, userName string) (*domain.IssuedCheckIn, error) {
	token := domain.CheckInToken{
		Type:      domain.CheckInTokenType,
		EventID:   eventID,
		UserID:    userID,
		UserName:  truncateRunes(userName, MaxUserNameRunes),
		CheckInID: c.newID(),
		IssuedAt:  c.now().UnixMilli(),
	}
	sig, err := c.sign(token)
	if err != nil {
		return nil, err
	}
	token.Signature = sig
	payload, err := json.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("encode check-in token: %w", err)
	}
	if len(payload) > MaxPayloadBytes {
		return nil, domain.ErrCheckInTooLarge
	}
	img, err := render(string(payload), PreviewSize, skipqr.Medium)
	if err != nil {
		return nil, err
	}
	return &domain.IssuedCheckIn{
		CheckInID: token.CheckInID,
		Payload:   string(payload),
		Image:     img,
	}, nil
}

func (c *codec) Decode(raw, expectedEventID string) (*domain.ScannedCheckIn, error) {
	// null and {} unmarshal into a zero token; only a non-empty object is a token.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil || len(fields) == 0 {
		return nil, domain.ErrMalformedToken
	}
	var token domain.CheckInToken
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, domain.ErrMalformedToken
	}
	if token.Type != domain.CheckInTokenType {
		return nil, domain.ErrWrongTokenType
	}
	if token.EventID != expectedEventID {
		return nil, domain.ErrEventMismatch
	}
	if token.UserID == "" || token.CheckInID == "" {
		return nil, domain.ErrIncompleteToken
	}
	given := token.Signature
	token.Signature = ""
	want, err := c.sign(token)
	if err != nil {
		return nil, err
	}
	if !hmac.Equal([]byte(given), []byte(want)) {
		return nil, domain.ErrInvalidSignature
	}
	return &domain.ScannedCheckIn{UserID: token.UserID, CheckInID: token.CheckInID}, nil
}

// RenderForDownload prefers High recovery and falls back to Medium, the level
// the preview uses, for payloads too long for High.
func (c *codec) RenderForDownload(payload string) ([]byte, error) {
	var err error
	for _, level := range downloadLevels {
		var img []byte
		if img, err = render(payload, DownloadSize, level); err == nil {
			return img, nil
		}
	}
	return nil, err
}

func (c *codec) ReadImage(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", domain.ErrUnreadableImage
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", domain.ErrUnreadableImage
	}
	hints := map[gozxing.DecodeHintType]any{gozxing.DecodeHintType_TRY_HARDER: true}
	result, err := zxingqr.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", domain.ErrUnreadableImage
	}
	return result.GetText(), nil
}

// sign returns the hex HMAC of the token's canonical JSON with the signature field empty.
func (c *codec) sign(token domain.CheckInToken) (string, error) {
	token.Signature = ""
	canonical, err := json.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("encode check-in token: %w", err)
	}
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func render(payload string, size int, level skipqr.RecoveryLevel) ([]byte, error) {
	png, err := skipqr.Encode(payload, level, size)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	return png, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
