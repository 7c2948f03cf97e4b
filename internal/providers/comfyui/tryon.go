package comfyui

import (
	"context"

	"tryon/internal/asset"
	"tryon/internal/domain"
)

// TryOn runs the full pipeline for one person/garment pair: upload, bind,
// verify, submit, poll and extract. tmpl overrides the client's default
// workflow when non-nil. Its shape is checked before any request is sent.
func (c *Client) TryOn(ctx context.Context, person, garment asset.Asset, tmpl *Template) (*domain.Job, error) {
	if tmpl == nil {
		tmpl = c.template
	}
	if err := ValidateShape(tmpl.nodes); err != nil {
		c.logger.Error().Err(err).Str("template", tmpl.Version()).Msg("comfyui: rejected workflow")
		return nil, err
	}

	uploaded, err := c.UploadImages(ctx, []asset.Asset{person, garment})
	if err != nil {
		return nil, err
	}
	names := assetNames(uploaded)
	personName, garmentName := names[0], names[1]

	g, err := Bind(tmpl, personName, garmentName)
	if err != nil {
		return nil, err
	}
	if c.randomizeSeed {
		Refresh(g, c.rng)
	}
	c.logger.Debug().
		Str("node78", tmpl.ImageOf(PersonSlot)+" -> "+imageOf(g, PersonSlot)).
		Str("node106", tmpl.ImageOf(GarmentSlot)+" -> "+imageOf(g, GarmentSlot)).
		Msg("comfyui: bound images")

	if err := c.VerifyImages(ctx, names); err != nil {
		return nil, err
	}
	markVerified(uploaded)
	if err := AssertUsesImages(g, personName, garmentName); err != nil {
		c.logger.Error().Err(err).Msg("comfyui: workflow image assignment mismatch")
		return nil, err
	}

	promptID, err := c.SubmitWorkflow(ctx, g)
	if err != nil {
		return nil, err
	}
	job := &domain.Job{ID: promptID, Provider: ProviderName, Status: domain.JobStatusPending}
	history, err := c.WaitForResult(ctx, promptID)
	if err != nil {
		job.Status = domain.JobStatusFailed
		job.Raw = history
		return job, err
	}
	job.Status = domain.JobStatusSucceeded
	job.Raw = history
	job.Outputs = c.BuildImageURLs(history)
	c.logger.Info().
		Str("prompt_id", promptID).
		Int("outputs", len(job.Outputs)).
		Msg("comfyui: try-on completed")
	return job, nil
}
