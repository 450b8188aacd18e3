package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mediaPipeline/pipeline"
	"mediaPipeline/repository"
)

var statusCmd = &cobra.Command{
	Use:   "status <pipeline-id>",
	Short: "Print a pipeline with its steps and assets as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

type statusView struct {
	ID          string         `yaml:"id"`
	ProjectID   string         `yaml:"project_id"`
	Type        string         `yaml:"type"`
	Mode        string         `yaml:"mode"`
	Status      string         `yaml:"status"`
	CurrentStep string         `yaml:"current_step,omitempty"`
	Progress    int            `yaml:"progress"`
	Error       string         `yaml:"error,omitempty"`
	Config      map[string]any `yaml:"config"`
	UpdatedAt   string         `yaml:"updated_at"`
	Steps       []stepView     `yaml:"steps"`
	Assets      []assetView    `yaml:"assets,omitempty"`
}

type stepView struct {
	Step   string          `yaml:"step"`
	Status string          `yaml:"status"`
	Error  string          `yaml:"error,omitempty"`
	Result pipeline.Result `yaml:"result,omitempty"`
}

type assetView struct {
	Step   string `yaml:"step"`
	Kind   string `yaml:"kind"`
	Index  int    `yaml:"index"`
	Status string `yaml:"status"`
	Token  string `yaml:"token"`
	URL    string `yaml:"url,omitempty"`
	Error  string `yaml:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	db, err := connectDB(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	return printStatus(cmd.Context(), cmd.OutOrStdout(), repository.NewPostgresRepo(db), args[0])
}

func printStatus(ctx context.Context, w io.Writer, repo repository.Repository, id string) error {
	p, err := repo.GetPipeline(ctx, id)
	if err != nil {
		return fmt.Errorf("loading pipeline %s: %w", id, err)
	}
	assets, err := repo.ListAssets(ctx, id)
	if err != nil {
		return fmt.Errorf("loading assets of %s: %w", id, err)
	}
	return renderStatus(w, p, assets)
}

// renderStatus writes steps in execution order, not map order.
func renderStatus(w io.Writer, p *pipeline.Pipeline, assets []*pipeline.Asset) error {
	view := statusView{
		ID:          p.ID,
		ProjectID:   p.ProjectID,
		Type:        string(p.Type),
		Mode:        string(p.Mode),
		Status:      string(p.Status),
		CurrentStep: string(p.CurrentStep),
		Progress:    p.CurrentStepProgress,
		Error:       p.ErrorMessage,
		Config:      p.Config.Map(),
		UpdatedAt:   p.UpdatedAt.UTC().Format(time.RFC3339),
	}

	steps, err := pipeline.StepsFor(p.Type)
	if err != nil {
		return err
	}
	for _, id := range steps {
		st := p.Step(id)
		view.Steps = append(view.Steps, stepView{
			Step:   string(id),
			Status: string(st.Status),
			Error:  st.Error,
			Result: st.Result,
		})
	}
	for _, a := range assets {
		view.Assets = append(view.Assets, assetView{
			Step:   string(a.StepID),
			Kind:   string(a.Kind),
			Index:  a.Index,
			Status: string(a.Status),
			Token:  a.CorrelationToken,
			URL:    a.URL,
			Error:  a.Error,
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(view)
}
