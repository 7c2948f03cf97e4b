package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"tryon/internal/asset"
	"tryon/internal/infra"
	"tryon/internal/providers/comfyui"
	"tryon/internal/tryon"
)

func main() {
	var (
		providerFlag string
		personFlag   string
		garmentFlag  string
		inputsFlag   string
		workflowFlag string
	)

	flag.StringVar(&providerFlag, "provider", comfyui.ProviderName, "provider to run (comfyui or fashn)")
	flag.StringVar(&personFlag, "person", "", "person image: http(s) URL or local file")
	flag.StringVar(&garmentFlag, "garment", "", "garment image: http(s) URL or local file")
	flag.StringVar(&inputsFlag, "inputs", "", "extra provider inputs as a JSON object (fashn)")
	flag.StringVar(&workflowFlag, "workflow", "", "ComfyUI API-format workflow file (.json, .yaml) replacing the default")
	flag.Parse()

	if strings.TrimSpace(personFlag) == "" || strings.TrimSpace(garmentFlag) == "" {
		exitWithError(errors.New("-person and -garment are required"))
	}

	_ = godotenv.Load()
	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "tryonctl").Logger()

	req := tryon.Request{Provider: providerFlag}
	if req.Person, err = imageInput(personFlag); err != nil {
		exitWithError(fmt.Errorf("person: %w", err))
	}
	if req.Garment, err = imageInput(garmentFlag); err != nil {
		exitWithError(fmt.Errorf("garment: %w", err))
	}
	if strings.TrimSpace(inputsFlag) != "" {
		if err := json.Unmarshal([]byte(inputsFlag), &req.Inputs); err != nil {
			exitWithError(fmt.Errorf("-inputs must be a JSON object: %w", err))
		}
	}
	if path := strings.TrimSpace(workflowFlag); path != "" {
		tmpl, err := comfyui.LoadTemplateFile(path)
		if err != nil {
			exitWithError(err)
		}
		req.Workflow = tmpl.Clone()
	}

	orch, err := tryon.NewFromConfig(cfg, &logger, nil)
	if err != nil {
		exitWithError(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job, err := orch.Run(ctx, req)
	if err != nil {
		if job != nil {
			fmt.Fprintf(os.Stderr, "job %s: ", job.ID)
		}
		exitWithError(err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{
		"provider": job.Provider,
		"job_id":   job.ID,
		"output":   job.Outputs,
	})
}

// imageInput passes URLs through and inlines local files as data URIs.
func imageInput(ref string) (tryon.ImageInput, error) {
	ref = strings.TrimSpace(ref)
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return tryon.ImageInput{URL: ref}, nil
	}
	if asset.IsDataURI(ref) {
		return tryon.ImageInput{Inline: ref}, nil
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return tryon.ImageInput{}, err
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		mime = asset.DefaultMIME
	}
	return tryon.ImageInput{Inline: asset.Encode(asset.Asset{Data: data, MIME: mime})}, nil
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
