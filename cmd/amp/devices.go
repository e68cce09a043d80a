package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/dustin/go-humanize"
	"github.com/fxnlabs/amp-core/internal/accel"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
)

func devicesCommand() *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List the compute devices and mark the default one",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-banner",
				Usage: "Skip the banner",
			},
		},
		Action: func(c *cli.Context) error {
			return withStack(c, func(_ context.Context, st stack) error {
				out := c.App.Writer
				if !c.Bool("no-banner") {
					fmt.Fprintln(out, figure.NewFigure("amp", "", true).String())
				}
				renderDevices(out, st.Session.Devices(), st.Session.Default())
				return nil
			})
		},
	}
}

// renderDevices writes one row per device. The default device is marked with
// "*"; when it is the host fallback it gets a row of its own.
func renderDevices(w io.Writer, devices []accel.Device, def accel.Device) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"", "PATH", "BACKEND", "WORKERS", "MEMORY", "CAPABILITIES", "FEATURES", "DESCRIPTION"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	listed := false
	for _, d := range devices {
		if d == def {
			listed = true
		}
		table.Append(deviceRow(d, d == def))
	}
	if def != nil && !listed {
		table.Append(deviceRow(def, true))
	}
	table.Render()
}

func deviceRow(d accel.Device, isDefault bool) []string {
	info := d.Info()
	mark := ""
	if isDefault {
		mark = "*"
	}
	description := info.Description
	if info.Emulated {
		description += " [emulated]"
	}
	return []string{
		mark,
		info.Path,
		info.Backend,
		strconv.Itoa(info.Workers),
		humanBytes(info.TotalMemory),
		info.Capabilities.String(),
		strings.Join(info.Features, ","),
		description,
	}
}

func humanBytes(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}
