package comfyui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"tryon/internal/domain"
	"tryon/internal/poll"
)

type promptRequest struct {
	Prompt   Graph  `json:"prompt"`
	ClientID string `json:"client_id"`
}

type promptResponse struct {
	PromptID string `json:"prompt_id"`
	ID       string `json:"id"`
}

// SubmitWorkflow queues g and returns the prompt id assigned by ComfyUI.
func (c *Client) SubmitWorkflow(ctx context.Context, g Graph) (string, error) {
	if err := ValidateShape(g); err != nil {
		return "", err
	}
	clientID := uuid.NewString()
	c.logger.Debug().
		Str("client_id", clientID).
		Str("node78", imageOf(g, PersonSlot)).
		Str("node106", imageOf(g, GarmentSlot)).
		Msg("comfyui: submitting workflow")
	if imageOf(g, PersonSlot) == "" || imageOf(g, GarmentSlot) == "" {
		c.logger.Warn().Msg("comfyui: one or both LoadImage slots have no image before submission")
	}

	const op = "comfyui: submit workflow"
	status, raw, err := c.postJSON(ctx, "/prompt", op, promptRequest{Prompt: g, ClientID: clientID})
	if err != nil {
		c.logger.Error().Err(err).Msg("comfyui: submit failed")
		return "", err
	}
	if !isSuccess(status) {
		c.logger.Error().Int("status", status).Str("body", domain.TrimBody(raw)).Msg("comfyui: submit rejected")
		return "", &domain.TransportError{Op: op, Status: status, Body: domain.TrimBody(raw)}
	}
	var decoded promptResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", &domain.ProtocolError{Op: op, Msg: fmt.Sprintf("decode: %v", err)}
	}
	promptID := strings.TrimSpace(decoded.PromptID)
	if promptID == "" {
		promptID = strings.TrimSpace(decoded.ID)
	}
	if promptID == "" {
		c.logger.Error().Str("body", domain.TrimBody(raw)).Msg("comfyui: response without prompt id")
		return "", &domain.ProtocolError{Op: op, Msg: "missing prompt_id: " + domain.TrimBody(raw)}
	}
	c.logger.Info().Str("prompt_id", promptID).Msg("comfyui: submitted workflow")
	return promptID, nil
}

// WaitForResult polls /history/<id> until the job has outputs and returns the
// history entry for that job.
func (c *Client) WaitForResult(ctx context.Context, promptID string) (map[string]any, error) {
	c.logger.Debug().Str("prompt_id", promptID).Msg("comfyui: polling history")
	status, err := poll.Until(ctx, promptID, c.pollInterval, func(ctx context.Context) (poll.Status, error) {
		return c.fetchHistory(ctx, promptID)
	})
	if err != nil {
		c.logger.Error().Err(err).Str("prompt_id", promptID).Msg("comfyui: job did not succeed")
		return status.Raw, err
	}
	c.logger.Info().Str("prompt_id", promptID).Msg("comfyui: history ready")
	return status.Raw, nil
}

func (c *Client) fetchHistory(ctx context.Context, promptID string) (poll.Status, error) {
	c.metrics.IncPoll(ProviderName)
	const op = "comfyui: poll history"
	status, raw, err := c.get(ctx, "/history/"+url.PathEscape(promptID), op)
	if err != nil {
		return poll.Status{}, err
	}
	if status == http.StatusNotFound {
		c.logger.Debug().Str("prompt_id", promptID).Msg("comfyui: history not ready")
		return poll.Status{Outcome: domain.JobStatusPending}, nil
	}
	if !isSuccess(status) {
		return poll.Status{}, &domain.TransportError{Op: op, Status: status, Body: domain.TrimBody(raw)}
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return poll.Status{}, &domain.ProtocolError{Op: op, Msg: fmt.Sprintf("decode: %v", err)}
	}
	item, _ := decoded[promptID].(map[string]any)
	return classifyHistory(item), nil
}

// classifyHistory maps one history entry onto the shared outcome. A missing
// entry or one without outputs is still running.
func classifyHistory(item map[string]any) poll.Status {
	if item == nil {
		return poll.Status{Outcome: domain.JobStatusPending}
	}
	st, _ := item["status"].(map[string]any)
	statusStr, _ := st["status_str"].(string)
	completed, _ := st["completed"].(bool)
	switch statusStr {
	case "", "success":
	case "error":
		return poll.Status{Outcome: domain.JobStatusFailed, Raw: item, Reason: executionError(st)}
	default:
		return poll.Status{Outcome: domain.JobStatusFailed, Raw: item, Reason: "unknown status " + statusStr}
	}
	if outputs, ok := item["outputs"].(map[string]any); ok && len(outputs) > 0 {
		return poll.Status{Outcome: domain.JobStatusSucceeded, Raw: item}
	}
	if statusStr == "success" && completed {
		return poll.Status{Outcome: domain.JobStatusFailed, Raw: item, Reason: "job completed without outputs"}
	}
	return poll.Status{Outcome: domain.JobStatusPending, Raw: item}
}

// executionError digs the exception message out of status.messages, which
// ComfyUI encodes as [["execution_error", {...}], ...].
func executionError(st map[string]any) string {
	messages, _ := st["messages"].([]any)
	for _, m := range messages {
		pair, ok := m.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		if kind, _ := pair[0].(string); kind != "execution_error" {
			continue
		}
		detail, _ := pair[1].(map[string]any)
		msg, _ := detail["exception_message"].(string)
		nodeType, _ := detail["node_type"].(string)
		msg = strings.TrimSpace(msg)
		if nodeType != "" && msg != "" {
			return nodeType + ": " + msg
		}
		if msg != "" {
			return msg
		}
	}
	return "execution error"
}
