package comfyui

import (
	"maps"
	"net/url"
	"slices"
	"strconv"
)

// BuildImageURLs turns a history entry's output descriptors into /view URLs.
// All URLs from one call share the same cache buster. Descriptors without a
// filename are skipped.
func (c *Client) BuildImageURLs(history map[string]any) []string {
	outputs, _ := history["outputs"].(map[string]any)
	cb := strconv.FormatInt(c.now().UnixMilli(), 10)
	urls := make([]string, 0, len(outputs))
	for _, nodeID := range slices.Sorted(maps.Keys(outputs)) {
		nodeOut, _ := outputs[nodeID].(map[string]any)
		images, _ := nodeOut["images"].([]any)
		for _, img := range images {
			desc, _ := img.(map[string]any)
			filename, _ := desc["filename"].(string)
			if filename == "" {
				continue
			}
			subfolder, _ := desc["subfolder"].(string)
			kind, _ := desc["type"].(string)
			if kind == "" {
				kind = "output"
			}
			q := url.Values{}
			q.Set("filename", filename)
			q.Set("subfolder", subfolder)
			q.Set("type", kind)
			q.Set("cb", cb)
			urls = append(urls, c.serverURL+"/view?"+q.Encode())
		}
	}
	c.logger.Debug().Int("count", len(urls)).Msg("comfyui: built image urls")
	return urls
}
