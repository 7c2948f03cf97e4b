package comfyui

import (
	"context"
	"net/http"
	"net/url"

	"tryon/internal/domain"
)

// VerifyImages confirms each uploaded name can be read back from the input
// folder. It stops at the first name that cannot.
func (c *Client) VerifyImages(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	for _, name := range names {
		q := url.Values{}
		q.Set("filename", name)
		q.Set("type", "input")
		status, _, err := c.get(ctx, "/view?"+q.Encode(), "comfyui: verify image")
		if err != nil {
			c.logger.Error().Err(err).Str("filename", name).Msg("comfyui: verify request failed")
			return &domain.VerificationError{Name: name, Err: err}
		}
		if status != http.StatusOK {
			c.logger.Error().Int("status", status).Str("filename", name).Msg("comfyui: uploaded image not accessible")
			return &domain.VerificationError{Name: name, Status: status}
		}
	}
	c.logger.Debug().Int("count", len(names)).Msg("comfyui: verified uploaded images")
	return nil
}

func markVerified(uploaded []UploadedAsset) {
	for i := range uploaded {
		uploaded[i].Verified = true
	}
}

func assetNames(uploaded []UploadedAsset) []string {
	names := make([]string, len(uploaded))
	for _, u := range uploaded {
		names[u.Index] = u.Name
	}
	return names
}
