// fanctl sends a single command to the pifanctrl command API and prints the
// result, or with -watch keeps printing the summary like a status display.
//
//	fanctl summary
//	fanctl simulate 55
//	fanctl readings '{"source":"Aggregate","latest":true}'
//	fanctl -watch 5s
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"pifanctrl/jsonrpc"
	"pifanctrl/status"
)

var (
	addr  = flag.String("addr", envOr("PIFAN_API", "127.0.0.1:4028"), "address of the pifanctrl command API")
	watch = flag.Duration("watch", 0, "print the summary at this interval until interrupted")
)

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] command [parameter]\n", os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), "commands: summary readings settings simulate fanspeed override release reset version")
		flag.PrintDefaults()
	}
	flag.Parse()

	c := jsonrpc.NewTCPClient(*addr)
	defer c.Shutdown()

	if *watch > 0 {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := watchSummary(ctx, c, *watch); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if flag.NArg() < 1 || flag.NArg() > 2 {
		flag.Usage()
		os.Exit(2)
	}
	var param any
	if flag.NArg() == 2 {
		param = parameter(flag.Arg(1))
	}
	_, result, err := c.Call(flag.Arg(0), param)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(result) == 0 {
		fmt.Println("ok")
		return
	}
	var out bytes.Buffer
	if err := json.Indent(&out, result, "", "  "); err != nil {
		out.Reset()
		out.Write(result)
	}
	fmt.Println(out.String())
}

// parameter passes valid JSON through unchanged and anything else as a
// string.
func parameter(arg string) any {
	if json.Valid([]byte(arg)) {
		return json.RawMessage(arg)
	}
	return arg
}

func watchSummary(ctx context.Context, c *jsonrpc.TCPClient, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		_, raw, err := c.Call(jsonrpc.CmdSummary, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", time.Now().Format(time.TimeOnly), err)
		} else {
			var info status.SystemInfo
			if err := json.Unmarshal(raw, &info); err != nil {
				return err
			}
			fmt.Println(formatSummary(info))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func formatValue(v float64, format string) string {
	if v == status.Missing {
		return "--"
	}
	return fmt.Sprintf(format, v)
}

func formatSummary(info status.SystemInfo) string {
	line := fmt.Sprintf("%s  T %s°C  M %s°C  PWM %s%%  %s rpm",
		info.AsOf.Local().Format(time.TimeOnly),
		formatValue(info.AggregatedTemperature, "%.1f"),
		formatValue(info.MeasuredTemperature, "%.1f"),
		formatValue(info.PwmPercentage, "%.0f"),
		formatValue(info.MeasuredFanRpm, "%.0f"))
	if info.Simulated {
		line += "  [simulated]"
	}
	if info.Overridden {
		line += fmt.Sprintf("  [override %.0f%%]", info.AppliedPercentage)
	}
	return line
}
