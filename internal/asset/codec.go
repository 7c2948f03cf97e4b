// Package asset converts inline image payloads between their wire form
// (data URIs or bare base64) and raw bytes.
package asset

import (
	"encoding/base64"
	"errors"
	"strings"

	"tryon/internal/domain"
)

// DefaultMIME is assumed for payloads that do not describe themselves.
const DefaultMIME = "image/png"

// Asset is a decoded image ready for upload or re-encoding.
type Asset struct {
	Data []byte
	MIME string
}

// IsDataURI reports whether payload carries a self-describing data: prefix.
func IsDataURI(payload string) bool {
	trimmed := strings.TrimSpace(payload)
	return strings.HasPrefix(strings.ToLower(trimmed), "data:") && strings.Contains(trimmed, ",")
}

// Decode accepts "data:<mime>;base64,<body>" or a bare base64 body.
func Decode(payload string) (Asset, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return Asset{}, &domain.DecodeError{Err: errors.New("empty payload")}
	}
	mime := ""
	body := trimmed
	if IsDataURI(trimmed) {
		header, rest, _ := strings.Cut(trimmed, ",")
		mime = mimeFromHeader(header)
		body = rest
	}
	data, err := decodeBase64(body)
	if err != nil {
		return Asset{}, &domain.DecodeError{Err: err}
	}
	if len(data) == 0 {
		return Asset{}, &domain.DecodeError{Err: errors.New("empty image data")}
	}
	if mime == "" {
		mime = DefaultMIME
	}
	return Asset{Data: data, MIME: mime}, nil
}

// Encode renders a as a base64 data URI.
func Encode(a Asset) string {
	mime := strings.TrimSpace(a.MIME)
	if mime == "" {
		mime = DefaultMIME
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// ExtensionForMIME maps a content type onto an upload file extension. Unknown
// types fall back to png so an upload never fails on the mime alone.
func ExtensionForMIME(mime string) string {
	switch normalizeMIME(mime) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}

// ContentTypeForMIME is the content type sent alongside ExtensionForMIME.
func ContentTypeForMIME(mime string) string {
	switch normalizeMIME(mime) {
	case "image/jpeg", "image/jpg":
		return "image/jpeg"
	case "image/webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

func normalizeMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if base, _, ok := strings.Cut(mime, ";"); ok {
		mime = strings.TrimSpace(base)
	}
	return mime
}

// mimeFromHeader extracts the mime from "data:image/jpeg;base64".
func mimeFromHeader(header string) string {
	_, rest, ok := strings.Cut(header, ":")
	if !ok {
		return ""
	}
	mime, _, _ := strings.Cut(rest, ";")
	return strings.TrimSpace(mime)
}

func decodeBase64(body string) ([]byte, error) {
	body = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t', ' ':
			return -1
		}
		return r
	}, body)
	if data, err := base64.StdEncoding.DecodeString(body); err == nil {
		return data, nil
	}
	if data, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(body, "=")); err == nil {
		return data, nil
	}
	return base64.URLEncoding.DecodeString(body)
}
