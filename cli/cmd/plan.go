package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ghostwriter/cli/render"
	"github.com/pithecene-io/ghostwriter/completion"
	"github.com/pithecene-io/ghostwriter/runtime"
)

// PlanCommand returns the plan command.
// It is read-only and never contacts a gateway.
func PlanCommand() *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Show the batch plan for a story without submitting anything",
		Flags: append(ReadOnlyFlags(),
			&cli.IntFlag{
				Name:     "slots",
				Usage:    "Total slots in the story",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Max slots per batch",
				Value: completion.MaxBatchSize,
			},
		),
		Action: planAction,
	}
}

func planAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for plan command", 1)
	}

	plan, err := completion.Plan(c.Int("slots"), c.Int("batch-size"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid plan: %v", err), runtime.ExitCodeInvalidInput)
	}

	return r.Render(render.NewPlanView(plan))
}
