package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"tunehub/internal/domain"
)

const jobPollInterval = 500 * time.Millisecond

func newResolveCommand(ctx *commandContext, jsonOutput *bool) *cobra.Command {
	var hitPath string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a hit (JSON from a search) into a direct URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			hit, err := readHit(hitPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			rt, _, err := ctx.ensureRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer ctx.close()

			media, err := rt.Resolver.Resolve(cmd.Context(), hit)
			if err != nil {
				return fmt.Errorf("resolve: %w", err)
			}
			if media == nil {
				return errors.New("unable to resolve direct URL for this hit")
			}
			if *jsonOutput {
				return writeJSON(cmd, media)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Direct URL", "Filename"},
				[][]string{{media.DirectURL, media.Filename}},
				nil,
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&hitPath, "hit", "-", "Hit JSON file, - for stdin")
	return cmd
}

func newIngestCommand(ctx *commandContext, jsonOutput *bool) *cobra.Command {
	var hitPath string
	var transcode string
	var wait bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Submit a hit for download into the library",
		Long: "Submit a hit for download into the library.\n\n" +
			"With a Redis queue the job is picked up by the service workers. Without one\n" +
			"the job only exists in this process, so --wait is required.",
		RunE: func(cmd *cobra.Command, args []string) error {
			hit, err := readHit(hitPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			rt, _, err := ctx.ensureRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer ctx.close()
			if !wait && !rt.Durable() {
				return errors.New("no durable queue configured (REDIS_URL); rerun with --wait")
			}

			job, err := rt.Ingest.Submit(cmd.Context(), hit, domain.Transcode(transcode))
			if err != nil {
				return err
			}
			if !wait {
				if *jsonOutput {
					return writeJSON(cmd, map[string]string{"jobId": job.ID})
				}
				fmt.Fprintln(cmd.OutOrStdout(), job.ID)
				return nil
			}

			if !rt.Durable() {
				if err := rt.Pool.Start(cmd.Context()); err != nil {
					return err
				}
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), time.Minute)
					defer cancel()
					_ = rt.Pool.Stop(stopCtx)
				}()
			}
			final, err := waitForJob(cmd.Context(), func(ctx context.Context) (domain.IngestJob, error) {
				return rt.Ingest.Job(ctx, job.ID)
			})
			if err != nil {
				return err
			}
			if err := printJob(cmd, *jsonOutput, final); err != nil {
				return err
			}
			if final.State == domain.JobFailed {
				return fmt.Errorf("ingest failed: %s", final.LastError)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&hitPath, "hit", "-", "Hit JSON file, - for stdin")
	cmd.Flags().StringVar(&transcode, "transcode", string(domain.TranscodeCopy), "Transcode hint: copy, aac320 or mp3V0")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the job completes or fails")
	return cmd
}

func newJobCommand(ctx *commandContext, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "job <id>",
		Short: "Show the state of an ingest job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _, err := ctx.ensureRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer ctx.close()

			job, err := rt.Ingest.Job(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJob(cmd, *jsonOutput, job)
		},
	}
}

func printJob(cmd *cobra.Command, jsonOutput bool, job domain.IngestJob) error {
	if jsonOutput {
		return writeJSON(cmd, job)
	}
	fmt.Fprintln(cmd.OutOrStdout(), jobTable(job))
	return nil
}

// waitForJob polls until the job reaches a terminal state or ctx is done.
func waitForJob(ctx context.Context, get func(context.Context) (domain.IngestJob, error)) (domain.IngestJob, error) {
	ticker := time.NewTicker(jobPollInterval)
	defer ticker.Stop()
	for {
		job, err := get(ctx)
		if err != nil {
			return domain.IngestJob{}, err
		}
		if job.State.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}
