package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/PowerDNS/simpleblob"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/meshstream/meshstream/archive"
	"github.com/meshstream/meshstream/frame"
	"github.com/meshstream/meshstream/frame/replica"
)

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().BoolP("local", "l", false, "Dump a local file instead of a stored capture")
	dumpCmd.Flags().BoolP("records", "r", false, "Print every decoded record")
}

// loadCapture loads a capture by name, or the latest one of the configured
// scene if the name is empty.
func loadCapture(ctx context.Context, name string, local bool) (*archive.Capture, string, error) {
	if local {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, "", err
		}
		c, err := archive.LoadData(data)
		return c, name, err
	}
	st, err := simpleblob.GetBackend(ctx, conf.Storage.Type, conf.Storage.Options)
	if err != nil {
		return nil, "", err
	}
	if name == "" {
		c, ni, err := archive.Latest(ctx, st, conf.Scene.Name)
		return c, ni.FullName, err
	}
	c, err := archive.Load(ctx, st, name)
	return c, name, err
}

var dumpCmd = &cobra.Command{
	Use:          "dump [capture]",
	Short:        "Dump a capture, by default the latest one of the scene",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(rootCtx, time.Minute)
		defer cancel()

		local, err := cmd.Flags().GetBool("local")
		if err != nil {
			return err
		}
		printRecords, err := cmd.Flags().GetBool("records")
		if err != nil {
			return err
		}
		var name string
		if len(args) > 0 {
			name = args[0]
		}
		if local && name == "" {
			return fmt.Errorf("a file name is required with --local")
		}

		c, name, err := loadCapture(ctx, name, local)
		if err != nil {
			return err
		}

		// Buffered output speeds things up
		out := bufio.NewWriter(os.Stdout)
		defer out.Flush()
		return dumpCapture(out, c, name, printRecords)
	},
}

// dumpCapture prints the capture meta, the reconstructed primitives and the
// metadata. With records set, every decoded record is printed as well.
func dumpCapture(w io.Writer, c *archive.Capture, name string, printRecords bool) error {
	outf := func(sfmt string, args ...any) {
		_, _ = fmt.Fprintf(w, sfmt, args...)
	}

	m := c.Meta
	outf("capture:    %s\n", name)
	outf("scene:      %s\n", m.Scene)
	outf("instance:   %s (%s)\n", m.InstanceID, m.Hostname)
	outf("generation: %s\n", m.GenerationID)
	outf("time:       %s (%s ago)\n", m.Time(), time.Since(m.Time()).Round(time.Second))
	outf("seq:        %d\n", m.Seq)
	outf("primitives: %d\n", m.Primitives)
	outf("frames:     %d\n", len(c.Frames))

	rep := replica.New()
	for i, f := range c.Frames {
		if printRecords {
			recs, err := frame.Decode(f)
			if err != nil {
				return fmt.Errorf("frame %d: %w", i, err)
			}
			outf("\n### frame %d (%d bytes)\n", i, len(f))
			for _, r := range recs {
				outf("%s\n", r)
			}
		}
		if err := rep.ApplyFrame(f); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	if err := rep.Validate(); err != nil {
		return err
	}

	outf("\n### primitives\n\n")
	for _, id := range rep.IDs() {
		p := rep.Primitives[id]
		vertices := 0
		for i := range p.Stripes {
			vertices += p.Stripes[i].VertexCount()
		}
		outf("%5d  %-24s  %-8s  stripes=%d vertices=%d attrs=%s\n",
			p.ID, p.Name, p.Kind, len(p.Stripes), vertices, p.Attrs)
	}

	if len(c.Metadata) > 0 {
		outf("\n### metadata\n\n")
		names := lo.Keys(c.Metadata)
		sort.Strings(names)
		for _, n := range names {
			outf("%s: %v\n", n, c.Metadata[n])
		}
	}
	return nil
}
