// Package visual extracts embedded figures from PDFs and runs each through
// the vision tier for a bias-aware description.
package visual

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"

	"github.com/medlit/paperbot/internal/core/llm"
)

// Graph is one analyzed figure.
type Graph struct {
	Path        string `json:"path"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Description string `json:"description"`
}

// Analyzer produces figure analyses for a document. Failures degrade to
// zero graphs upstream.
type Analyzer interface {
	AnalyzeGraphs(ctx context.Context, path, hint string) ([]Graph, error)
}

const (
	// Figures beyond this count are almost always decorations, logos, or
	// supplementary panels; cap the vision spend per document.
	maxGraphs = 5

	minGraphDimension = 200
)

type analyzer struct {
	conf     *model.Configuration
	client   llm.Client
	imageDir string
	logger   *zerolog.Logger
}

func NewAnalyzer(client llm.Client, imageDir string, logger *zerolog.Logger) Analyzer {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	return &analyzer{
		conf:     conf,
		client:   client,
		imageDir: imageDir,
		logger:   logger,
	}
}

// AnalyzeGraphs extracts the document's embedded images into the image
// directory and describes each plausible figure. The hint, typically the
// paper's summary sentence, lets the model judge whether the chart
// exaggerates the stated conclusion.
func (a *analyzer) AnalyzeGraphs(ctx context.Context, path, hint string) ([]Graph, error) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	outDir := filepath.Join(a.imageDir, base)

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("image dir: %w", err)
	}

	if err := api.ExtractImagesFile(path, outDir, nil, a.conf); err != nil {
		return nil, fmt.Errorf("extract images: %w", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("read image dir: %w", err)
	}

	var graphs []Graph

	for _, entry := range entries {
		if len(graphs) >= maxGraphs {
			break
		}

		if entry.IsDir() {
			continue
		}

		imagePath := filepath.Join(outDir, entry.Name())

		width, height, ok := imageDimensions(imagePath)
		if !ok || width < minGraphDimension || height < minGraphDimension {
			continue
		}

		dataURI, err := EncodeDataURI(imagePath)
		if err != nil {
			a.logger.Debug().Err(err).Str("image", entry.Name()).Msg("skipping unreadable figure")
			continue
		}

		description, err := a.client.DescribeImage(ctx, dataURI, hint)
		if err != nil {
			a.logger.Warn().Err(err).Str("image", entry.Name()).Msg("figure description failed")
			continue
		}

		graphs = append(graphs, Graph{
			Path:        imagePath,
			Width:       width,
			Height:      height,
			Description: description,
		})
	}

	return graphs, nil
}

func imageDimensions(path string) (width, height int, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, false
	}

	return cfg.Width, cfg.Height, true
}

// EncodeDataURI reads an image file into a base64 data URI for the vision
// tier.
func EncodeDataURI(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	mime := "image/jpeg"
	if strings.EqualFold(filepath.Ext(path), ".png") {
		mime = "image/png"
	}

	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}
