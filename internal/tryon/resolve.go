package tryon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"tryon/internal/asset"
	"tryon/internal/domain"
)

const (
	slotPerson  = "person"
	slotGarment = "garment"
)

// maxImageBytes bounds a fetched image.
const maxImageBytes = 32 << 20

// ImageInput is one caller image, given inline or by reference. Inline wins
// when both are set.
type ImageInput struct {
	Inline string
	URL    string
}

func (in ImageInput) inline() string { return strings.TrimSpace(in.Inline) }

// remoteURL returns the reference when it is an http(s) URL.
func (in ImageInput) remoteURL() (string, bool) {
	raw := strings.TrimSpace(in.URL)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return raw, true
	}
	return "", false
}

func (in ImageInput) resolvable() bool {
	if in.inline() != "" {
		return true
	}
	_, ok := in.remoteURL()
	return ok
}

// resolveBoth turns both inputs into assets concurrently. Results keep their
// slot regardless of completion order.
func (o *Orchestrator) resolveBoth(ctx context.Context, person, garment ImageInput) (asset.Asset, asset.Asset, error) {
	var out [2]asset.Asset
	g, gctx := errgroup.WithContext(ctx)
	for i, item := range []struct {
		slot string
		in   ImageInput
	}{{slotPerson, person}, {slotGarment, garment}} {
		g.Go(func() error {
			a, err := o.resolve(gctx, item.slot, item.in)
			if err != nil {
				return err
			}
			out[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return asset.Asset{}, asset.Asset{}, err
	}
	return out[0], out[1], nil
}

func (o *Orchestrator) resolve(ctx context.Context, slot string, in ImageInput) (asset.Asset, error) {
	if payload := in.inline(); payload != "" {
		return asset.Decode(payload)
	}
	raw, ok := in.remoteURL()
	if !ok {
		return asset.Asset{}, domain.Validationf("%s image is required (%s_image_url or %s_image_b64)", slot, slot, slot)
	}
	a, err := o.fetch(ctx, raw)
	if err != nil {
		o.logger.Error().Err(err).Str("slot", slot).Str("url", raw).Msg("tryon: image fetch failed")
		return asset.Asset{}, &domain.ResolutionError{Slot: slot, Err: err}
	}
	o.logger.Debug().Str("slot", slot).Int("bytes", len(a.Data)).Str("mime", a.MIME).Msg("tryon: fetched image")
	return a, nil
}

func (o *Orchestrator) fetch(ctx context.Context, raw string) (asset.Asset, error) {
	if o.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.fetchTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return asset.Asset{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return asset.Asset{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return asset.Asset{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return asset.Asset{}, fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return asset.Asset{}, errors.New("empty body")
	}
	if len(data) > maxImageBytes {
		return asset.Asset{}, fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}
	return asset.Asset{Data: data, MIME: contentType(resp.Header.Get("Content-Type"), data)}, nil
}

// contentType prefers an image/* header and sniffs the bytes otherwise.
func contentType(header string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && strings.HasPrefix(mt, "image/") {
		return mt
	}
	if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return asset.DefaultMIME
}
