package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/markus-lassfolk/acsd/pkg/acs"
	"github.com/markus-lassfolk/acsd/pkg/iwinfo"
	"github.com/markus-lassfolk/acsd/pkg/logx"
	"github.com/markus-lassfolk/acsd/pkg/tracing"
	"github.com/markus-lassfolk/acsd/pkg/uci"
	"github.com/markus-lassfolk/acsd/pkg/wifi"
)

type replayOptions struct {
	band      string
	htmode    string
	channels  string
	regDomain string
	useDFS    bool
	chanTime  int
	jsonOut   bool
}

type outcomeChan chan acs.Outcome

func (c outcomeChan) SelectionFinished(_ context.Context, o acs.Outcome) { c <- o }

func newReplayCmd(g *globalOptions) *cobra.Command {
	opts := &replayOptions{}
	cmd := &cobra.Command{
		Use:   "replay <survey-file>",
		Short: "Run channel selection offline against a saved survey dump",
		Long: "Run channel selection offline against the output of `iw dev <dev> survey dump`\n" +
			"or `ubus call iwinfo survey` saved to a file. Nothing is written to the radio.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()
			logger := logx.NewLogger(g.logLevel, AppName)

			shutdown, err := tracing.Init(ctx, tracing.ConfigFromEnv(), logger)
			if err != nil {
				return err
			}
			defer tracing.Shutdown(context.WithoutCancel(ctx), shutdown, logger)

			return runReplay(ctx, cmd.OutOrStdout(), args[0], opts, logger)
		},
	}

	cmd.Flags().StringVarP(&opts.band, "band", "b", "", "Band of the capture (2g|5g); guessed from the frequencies when empty")
	cmd.Flags().StringVarP(&opts.htmode, "htmode", "m", "HT20", "htmode to select for (HT20|HT40+|HT40-|VHT20|VHT40|VHT80)")
	cmd.Flags().StringVarP(&opts.channels, "channels", "c", "", "Restrict candidates, same syntax as the wireless `channels` option")
	cmd.Flags().StringVarP(&opts.regDomain, "reg-domain", "r", uci.DefaultRegDomain, "Regulatory domain (ETSI|FCC|OTHER)")
	cmd.Flags().BoolVarP(&opts.useDFS, "dfs", "", false, "Allow DFS channels")
	cmd.Flags().IntVarP(&opts.chanTime, "chan-time-ms", "", uci.DefaultChanTimeMS, "Dwell time per channel reported in the outcome")
	cmd.Flags().BoolVarP(&opts.jsonOut, "json", "", false, "Print the outcome as JSON")
	return cmd
}

func runReplay(ctx context.Context, out io.Writer, path string, opts *replayOptions, logger *logx.Logger) error {
	driver, err := iwinfo.LoadReplay(path, logger)
	if err != nil {
		return err
	}

	band := opts.band
	if band == "" {
		band = guessBand(driver.Entries())
	}

	section := uci.RadioSection{
		Name:     "replay",
		Channel:  "auto",
		Channels: opts.channels,
		HTMode:   opts.htmode,
		Band:     band,
	}
	rc, err := section.RadioConfig(time.Duration(opts.chanTime) * time.Millisecond)
	if err != nil {
		return err
	}
	mode, err := wifi.BuildHWMode(section, wifi.ParseRegDomain(opts.regDomain), opts.useDFS)
	if err != nil {
		return err
	}

	outcomes := make(outcomeChan, 1)
	iface := acs.NewInterface(section.Name, mode, rc, logger)
	engine := acs.NewEngine(iface, driver, nil, logger,
		acs.WithObserver(tracing.NewCycleTracer(nil)),
		acs.WithObserver(outcomes))

	if _, err := engine.Start(ctx); err != nil {
		return err
	}

	var o acs.Outcome
	select {
	case o = <-outcomes:
	case <-ctx.Done():
		return fmt.Errorf("replay did not finish: %w", ctx.Err())
	}

	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(o); err != nil {
			return err
		}
		return o.Err
	}

	printOutcome(out, o)
	return o.Err
}

func guessBand(entries []iwinfo.SurveyEntry) string {
	for _, e := range entries {
		if e.Freq > 5000 {
			return "5g"
		}
	}
	return "2g"
}

func printOutcome(out io.Writer, o acs.Outcome) {
	if !o.Success() {
		fmt.Fprintf(out, "selection failed: %s (%s)\n", o.Reason, o.Error)
		return
	}

	fmt.Fprintf(out, "channel %d (%d MHz), bandwidth %d MHz", o.Channel, o.Freq, o.Bandwidth)
	if o.CenterSeg0 != 0 {
		fmt.Fprintf(out, ", center segment %d", o.CenterSeg0)
	}
	fmt.Fprintf(out, ", factor %.6g\n", o.Factor)

	if len(o.Candidates) == 0 {
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tFREQ\tFACTOR")
	for _, c := range o.Candidates {
		marker := ""
		if c.Channel == o.Channel {
			marker = " *"
		}
		fmt.Fprintf(tw, "%d%s\t%d\t%.6g\n", c.Channel, marker, c.Freq, c.Factor)
	}
	tw.Flush()
}
