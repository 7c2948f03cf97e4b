package comfyui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/google/uuid"

	"tryon/internal/asset"
	"tryon/internal/domain"
)

// UploadedAsset is one image stored in ComfyUI's input folder. Index is the
// position of the source image in the upload batch.
type UploadedAsset struct {
	Index    int
	Name     string
	Verified bool
}

type uploadResponse struct {
	Name      string `json:"name"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// UploadImages stores assets in order and returns their ComfyUI names in the
// same order. The first failure aborts the batch with no partial result.
func (c *Client) UploadImages(ctx context.Context, assets []asset.Asset) ([]UploadedAsset, error) {
	uploaded := make([]UploadedAsset, 0, len(assets))
	for idx, a := range assets {
		name, err := c.uploadOne(ctx, idx, a)
		if err != nil {
			return nil, err
		}
		uploaded = append(uploaded, UploadedAsset{Index: idx, Name: name})
	}
	c.logger.Debug().Int("count", len(uploaded)).Msg("comfyui: uploaded images")
	return uploaded, nil
}

func (c *Client) uploadOne(ctx context.Context, idx int, a asset.Asset) (string, error) {
	ext := asset.ExtensionForMIME(a.MIME)
	ctype := asset.ContentTypeForMIME(a.MIME)
	filename := fmt.Sprintf("upload_%s.%s", strings.ReplaceAll(uuid.NewString(), "-", ""), ext)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, filename))
	header.Set("Content-Type", ctype)
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", &domain.UploadError{Index: idx, Filename: filename, Err: err}
	}
	if _, err := part.Write(a.Data); err != nil {
		return "", &domain.UploadError{Index: idx, Filename: filename, Err: err}
	}
	if err := mw.Close(); err != nil {
		return "", &domain.UploadError{Index: idx, Filename: filename, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/upload/image", &body)
	if err != nil {
		return "", &domain.UploadError{Index: idx, Filename: filename, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.logger.Debug().
		Int("index", idx).
		Str("filename", filename).
		Str("content_type", ctype).
		Msg("comfyui: uploading image")

	const op = "comfyui: upload image"
	status, raw, err := c.do(req, op)
	if err != nil {
		c.logger.Error().Err(err).Str("filename", filename).Msg("comfyui: upload failed")
		return "", &domain.UploadError{Index: idx, Filename: filename, Err: err}
	}
	if !isSuccess(status) {
		terr := &domain.TransportError{Op: op, Status: status, Body: domain.TrimBody(raw)}
		c.logger.Error().Int("status", status).Str("filename", filename).Msg("comfyui: upload rejected")
		return "", &domain.UploadError{Index: idx, Filename: filename, Err: terr}
	}

	// Some builds answer with an empty or non-JSON body; the synthesized name
	// is what ComfyUI stored in that case.
	var decoded uploadResponse
	if err := json.Unmarshal(raw, &decoded); err == nil {
		if name := strings.TrimSpace(decoded.Name); name != "" {
			return name, nil
		}
	}
	return filename, nil
}
